//go:build linux

// Package pool implements the channel pool: slab-chunked allocation of
// stable channel slots, indexed by socket descriptor. A channel's slot
// address never moves for the pool's lifetime; acquiring and releasing
// only manipulates free-slot bookkeeping and the fd→slot map.
package pool

import (
	"go.uber.org/zap"

	"github.com/eapache/queue"

	"github.com/momentics/tskv/channel"
	"github.com/momentics/tskv/logging"
)

// handle locates a channel slot within the pool: which chunk, and which
// index within that chunk.
type handle struct {
	chunk int
	slot  int
}

// chunk is a fixed-size contiguous array of channel slots plus a FIFO queue
// of free indices within it: released slots are reused in release order.
type chunk struct {
	slots []channel.Channel
	free  *queue.Queue // holds int slot indices
}

func newChunk(size, rxCap, txCap int) *chunk {
	c := &chunk{
		slots: make([]channel.Channel, size),
		free:  queue.New(),
	}
	for i := range c.slots {
		c.slots[i] = *channel.New(rxCap, txCap)
	}
	for i := size - 1; i >= 0; i-- {
		c.free.Add(i)
	}
	return c
}

func (c *chunk) full() bool { return c.free.Length() == 0 }

// Pool owns every channel slot in the reactor. It is not safe for
// concurrent use — the reactor is the pool's sole caller, by design.
type Pool struct {
	chunkSize int
	rxCap     int
	txCap     int

	chunks    []*chunk
	nonFull   []int // indices into chunks, chunks currently accepting acquire
	byFD      map[int]handle
	log       *logging.Logger
}

// New creates an empty pool. chunkSize is the number of slots allocated
// per chunk; rxCap/txCap are the fixed RX/TX buffer capacities given to
// every slot.
func New(chunkSize, rxCap, txCap int) *Pool {
	return &Pool{
		chunkSize: chunkSize,
		rxCap:     rxCap,
		txCap:     txCap,
		byFD:      make(map[int]handle),
		log:       logging.Default(),
	}
}

// Len reports the number of live (acquired) channels.
func (p *Pool) Len() int { return len(p.byFD) }

// Acquire allocates a slot for fd, attaches it with proto, and returns the
// stable *channel.Channel pointer. Acquiring a duplicate fd is a
// programming error and is treated as a fatal invariant violation.
func (p *Pool) Acquire(fd int, proto channel.Protocol) *channel.Channel {
	if _, exists := p.byFD[fd]; exists {
		p.log.Invariant(false, "pool: duplicate fd on acquire", zap.Int("fd", fd))
	}

	ci := p.nonFullChunk()
	c := p.chunks[ci]

	v, _ := c.free.Peek().(int)
	c.free.Remove()
	slot := v

	if c.full() {
		p.removeNonFull(ci)
	}

	p.byFD[fd] = handle{chunk: ci, slot: slot}
	ch := &c.slots[slot]
	ch.Attach(fd, proto)
	return ch
}

// nonFullChunk returns the index of a chunk with at least one free slot,
// allocating a new chunk if none exists.
func (p *Pool) nonFullChunk() int {
	if len(p.nonFull) > 0 {
		return p.nonFull[len(p.nonFull)-1]
	}
	p.chunks = append(p.chunks, newChunk(p.chunkSize, p.rxCap, p.txCap))
	idx := len(p.chunks) - 1
	p.nonFull = append(p.nonFull, idx)
	return idx
}

func (p *Pool) removeNonFull(ci int) {
	for i, v := range p.nonFull {
		if v == ci {
			p.nonFull = append(p.nonFull[:i], p.nonFull[i+1:]...)
			return
		}
	}
}

// Release detaches and returns fd's slot to its chunk's free queue.
// Releasing an fd not currently held by the pool is a fatal invariant
// violation.
func (p *Pool) Release(fd int) {
	h, ok := p.byFD[fd]
	if !ok {
		p.log.Invariant(false, "pool: release of unknown fd", zap.Int("fd", fd))
		return
	}

	c := p.chunks[h.chunk]
	wasFull := c.full()
	c.slots[h.slot].Detach()
	c.free.Add(h.slot)
	if wasFull {
		p.nonFull = append(p.nonFull, h.chunk)
	}

	delete(p.byFD, fd)
}

// Lookup returns fd's channel, or nil if fd is not currently held.
func (p *Pool) Lookup(fd int) *channel.Channel {
	h, ok := p.byFD[fd]
	if !ok {
		return nil
	}
	return &p.chunks[h.chunk].slots[h.slot]
}

// ForEach visits every live channel exactly once. The visitor must not
// acquire or release slots.
func (p *Pool) ForEach(visit func(fd int, ch *channel.Channel)) {
	for fd, h := range p.byFD {
		visit(fd, &p.chunks[h.chunk].slots[h.slot])
	}
}

// Close asserts the pool holds no active channels. Destroying a non-empty
// pool is a fatal invariant violation.
func (p *Pool) Close() {
	p.log.Invariant(len(p.byFD) == 0, "pool: destroyed with active entries", zap.Int("active", len(p.byFD)))
}
