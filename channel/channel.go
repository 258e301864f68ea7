//go:build linux

// Package channel implements the per-connection state machine: one socket
// descriptor, one bounded RX buffer, one bounded TX buffer, and an embedded
// protocol plug-in. The reactor drives a channel's drain policy on each
// readiness event; the channel never blocks and never spawns goroutines.
package channel

import (
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/tskv/buffer"
	"github.com/momentics/tskv/logging"
	"github.com/momentics/tskv/metrics"
)

// State is the channel's lifecycle state.
type State int

const (
	// Closed holds no descriptor and is eligible for reuse.
	Closed State = iota
	// Running is actively servicing reads and writes.
	Running
	// Draining has seen peer EOF or a local shutdown request; it flushes
	// remaining TX and then closes.
	Draining
	// Aborting has hit an unrecoverable I/O error and closes on the next
	// loop step.
	Aborting
)

// SendResult reports the outcome of a TX enqueue attempt.
type SendResult int

const (
	// Full indicates every byte offered was queued.
	Full SendResult = iota
	// Partial indicates the TX buffer filled before all bytes were queued.
	Partial
	// Forbidden indicates the channel is not accepting new bytes (Closed or
	// Aborting); the TX buffer was not modified.
	Forbidden
)

// IO is the narrow handle a protocol plug-in sees: a readable RX view, a
// consume call, and a send call. It deliberately exposes nothing else about
// the channel or the reactor.
type IO interface {
	RxSpan() []byte
	RxConsume(n int)
	Send(p []byte) (int, SendResult)
}

// Protocol is the capability contract a plug-in implements.
type Protocol interface {
	// OnRead is invoked at most once per drain iteration while RX is
	// non-empty. It may consume RX bytes and/or enqueue TX bytes.
	OnRead(io IO)
	// OnError is invoked once when the channel transitions to Aborting.
	OnError(io IO, err error)
	// OnClose is invoked once, just before the channel is detached.
	OnClose(io IO)
}

// Channel is one connection's state machine. A Channel is allocated once by
// the pool and reused across its attach/detach lifecycle; its address is
// stable for the pool's lifetime.
type Channel struct {
	fd       int
	rx       *buffer.Bounded
	tx       *buffer.Bounded
	state    State
	protocol Protocol
	log      *logging.Logger
}

// New allocates a channel slot with the given fixed RX/TX buffer
// capacities. The slot starts Closed and holds no descriptor.
func New(rxCap, txCap int) *Channel {
	return &Channel{
		fd:    -1,
		rx:    buffer.New(rxCap),
		tx:    buffer.New(txCap),
		state: Closed,
		log:   logging.Default(),
	}
}

// FD returns the owned descriptor, or -1 if Closed.
func (c *Channel) FD() int { return c.fd }

// State returns the current lifecycle state.
func (c *Channel) State() State { return c.state }

// Attach transitions a Closed slot to Running, owning fd and clearing both
// buffers. Attaching an already-attached slot is a programming error.
func (c *Channel) Attach(fd int, p Protocol) {
	c.log.Invariant(c.state == Closed, "channel attach on non-closed slot", zap.Int("fd", fd))
	c.fd = fd
	c.protocol = p
	c.state = Running
	c.rx.Clear()
	c.tx.Clear()
}

// Detach returns the slot to Closed, clearing buffers and releasing the
// protocol reference. It does not close the descriptor — the caller (the
// reactor) owns that.
func (c *Channel) Detach() {
	c.fd = -1
	c.protocol = nil
	c.state = Closed
	c.rx.Clear()
	c.tx.Clear()
}

// DesiredEvents reports the channel's current readiness interest, derived
// from state and buffer occupancy — never stored separately.
func (c *Channel) DesiredEvents() (read, write bool) {
	read = c.state == Running && !c.rx.Full()
	write = (c.state == Running || c.state == Draining) && !c.tx.Empty()
	return
}

// ShouldClose reports whether the channel is eligible for the reactor to
// finalize its close.
func (c *Channel) ShouldClose() bool {
	return c.state == Aborting || (c.state == Draining && c.tx.Empty())
}

// BeginShutdown moves a Running channel to Draining. It does not touch the
// kernel-level read side; the channel simply stops asserting read interest
// once its state is no longer Running.
func (c *Channel) BeginShutdown() {
	if c.state == Running {
		c.state = Draining
	}
}

// Abort transitions the channel to Aborting, records the socket error
// counter for err, and fires the protocol's error hook. It performs a
// best-effort shutdown(RDWR) on the descriptor. Abort is idempotent: once
// Aborting, a second call is a no-op, so a write failure observed while
// already tearing down a channel cannot double-count an error or fire
// OnError twice.
func (c *Channel) Abort(err error) {
	if c.state == Aborting {
		return
	}
	c.state = Aborting
	recordSocketError(err)
	if c.fd >= 0 {
		_ = unix.Shutdown(c.fd, unix.SHUT_RDWR)
	}
	if c.protocol != nil {
		c.protocol.OnError(c.io(), err)
	}
}

// Notify invokes the protocol's close hook. The reactor calls this exactly
// once, immediately before Detach.
func (c *Channel) Notify() {
	if c.protocol != nil {
		c.protocol.OnClose(c.io())
	}
}

func (c *Channel) io() IO { return channelIO{c} }

// HandleEvent runs the drain policy for one readiness batch. readable and
// writable report which directions the reactor observed ready; readinessErr,
// if non-nil, is a readiness-error condition (EPOLLERR/EPOLLHUP) that
// short-circuits the normal drain and aborts the channel immediately.
func (c *Channel) HandleEvent(readable, writable bool, readinessErr error) {
	if readinessErr != nil {
		c.Abort(readinessErr)
		return
	}

	if !readable {
		if writable {
			c.flushUntilBlocked()
		}
		return
	}

	for {
		received := 0
		if c.state == Running {
			received = c.pullUntilBlocked()
		}

		consumed := 0
		if !c.rx.Empty() && c.protocol != nil {
			before := c.rx.Used()
			c.protocol.OnRead(c.io())
			consumed = before - c.rx.Used()
		}

		if c.state != Aborting && !c.tx.Empty() {
			c.flushUntilBlocked()
		}

		if received == 0 && consumed == 0 {
			break
		}
		if c.state == Aborting {
			break
		}
	}
}

// pullUntilBlocked reads from the socket into RX until it would block, RX
// fills, or peer EOF is observed. Returns the number of bytes received.
func (c *Channel) pullUntilBlocked() int {
	total := 0
	for !c.rx.Full() {
		span := c.rx.WritableSpan(c.rx.Free())
		n, err := unix.Read(c.fd, span)
		if n > 0 {
			c.rx.Commit(n)
			total += n
			metrics.AddCounterST(metrics.CounterBytesReceived, uint64(n))
			continue
		}
		if n == 0 {
			c.state = Draining
			return total
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return total
		}
		c.Abort(err)
		return total
	}
	return total
}

// flushUntilBlocked writes from TX to the socket until it would block or TX
// empties.
func (c *Channel) flushUntilBlocked() {
	for !c.tx.Empty() {
		span := c.tx.ReadableSpan(c.tx.Used())
		n, err := unix.Write(c.fd, span)
		if n > 0 {
			c.tx.Consume(n)
			metrics.AddCounterST(metrics.CounterBytesSent, uint64(n))
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			c.Abort(err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// recordSocketError increments the matching net.socket_error.* counter
// plus the total, based on the errno carried by err.
func recordSocketError(err error) {
	metrics.IncCounterST(metrics.CounterSocketErrorTotal)
	switch {
	case errors.Is(err, unix.ECONNRESET):
		metrics.IncCounterST(metrics.CounterSocketErrorECONNRESET)
	case errors.Is(err, unix.ETIMEDOUT):
		metrics.IncCounterST(metrics.CounterSocketErrorETIMEDOUT)
	case errors.Is(err, unix.EPIPE):
		metrics.IncCounterST(metrics.CounterSocketErrorEPIPE)
	case errors.Is(err, unix.ENETDOWN):
		metrics.IncCounterST(metrics.CounterSocketErrorENETDOWN)
	default:
		metrics.IncCounterST(metrics.CounterSocketErrorOther)
	}
}

// SocketError retrieves and clears the pending SO_ERROR on fd. It records no
// counter itself; the matching counter is recorded when the returned error
// is passed to HandleEvent and the channel aborts. Called by the reactor
// when a readiness batch reports EPOLLERR or EPOLLHUP.
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// channelIO adapts *Channel to the narrow IO surface handed to protocols.
type channelIO struct{ c *Channel }

func (io channelIO) RxSpan() []byte { return io.c.rx.ReadableSpan(io.c.rx.Used()) }

func (io channelIO) RxConsume(n int) { io.c.rx.Consume(n) }

func (io channelIO) Send(p []byte) (int, SendResult) {
	c := io.c
	if c.state == Closed || c.state == Aborting {
		return 0, Forbidden
	}
	n := c.tx.WriteFrom(p)
	if n == len(p) {
		return n, Full
	}
	return n, Partial
}
