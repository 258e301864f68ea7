// Package metrics implements the lock-reduced, sharded counter/gauge
// subsystem used by the reactor's hot path. Single-threaded (ST) keys are
// written only by the reactor thread and land directly in the global
// totals; multi-threaded (MT) keys are written from a per-writer Shard and
// folded into the global totals under one mutex.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/tskv/keyedarray"
)

// foldMu is the single global fold mutex: folds and reads are short and
// bounded, never held across I/O.
var foldMu sync.Mutex

var (
	globalCountersST = newAtomicArray[CounterKeyST](int(numCounterKeysST))
	globalGaugesST   = newAtomicArray[GaugeKeyST](int(numGaugeKeysST))

	globalCountersMT = keyedarray.New[CounterKeyMT, uint64](int(numCounterKeysMT))
	globalGaugesMT   = keyedarray.New[GaugeKeyMT, uint64](int(numGaugeKeysMT))
)

var (
	shardsMu sync.Mutex
	shards   []*Shard
)

// atomicArray is the ST realization of the keyed-array component: a single
// writer touches each slot, but get_counter/get_gauge read from arbitrary
// goroutines, so slots are atomics rather than plain scalars.
type atomicArray[K ~int] struct {
	values []atomic.Uint64
}

func newAtomicArray[K ~int](n int) *atomicArray[K] {
	return &atomicArray[K]{values: make([]atomic.Uint64, n)}
}

func (a *atomicArray[K]) Add(k K, n uint64) { a.values[k].Add(n) }
func (a *atomicArray[K]) Set(k K, v uint64) { a.values[k].Store(v) }
func (a *atomicArray[K]) Get(k K) uint64    { return a.values[k].Load() }
func (a *atomicArray[K]) Reset() {
	for i := range a.values {
		a.values[i].Store(0)
	}
}
func (a *atomicArray[K]) ForEach(fn func(K, uint64)) {
	for i := range a.values {
		fn(K(i), a.values[i].Load())
	}
}

// AddCounterST increments a single-threaded counter. Hot path: no locking.
func AddCounterST(k CounterKeyST, n uint64) { globalCountersST.Add(k, n) }

// IncCounterST increments a single-threaded counter by one.
func IncCounterST(k CounterKeyST) { AddCounterST(k, 1) }

// SetGaugeST stores a single-threaded additive gauge's current value.
func SetGaugeST(k GaugeKeyST, v uint64) { globalGaugesST.Set(k, v) }

// GetCounterST returns the current global value of an ST counter. Takes the
// global fold mutex for a consistent snapshot alongside MT reads; intended
// for testing and periodic reporting, not the hot path.
func GetCounterST(k CounterKeyST) uint64 {
	foldMu.Lock()
	defer foldMu.Unlock()
	return globalCountersST.Get(k)
}

// GetGaugeST returns the current global value of an ST gauge.
func GetGaugeST(k GaugeKeyST) uint64 {
	foldMu.Lock()
	defer foldMu.Unlock()
	return globalGaugesST.Get(k)
}

// GetCounterMT returns the current global value of an MT counter.
func GetCounterMT(k CounterKeyMT) uint64 {
	foldMu.Lock()
	defer foldMu.Unlock()
	return globalCountersMT.Get(k)
}

// GetGaugeMT returns the current global value of an MT gauge.
func GetGaugeMT(k GaugeKeyMT) uint64 {
	foldMu.Lock()
	defer foldMu.Unlock()
	return globalGaugesMT.Get(k)
}

// GlobalReset zeroes every global slot and every live shard. Intended for
// test isolation, not production use.
func GlobalReset() {
	foldMu.Lock()
	globalCountersST.Reset()
	globalGaugesST.Reset()
	globalCountersMT.Reset()
	globalGaugesMT.Reset()
	foldMu.Unlock()

	shardsMu.Lock()
	for _, s := range shards {
		s.counters.Reset()
		s.gaugesCur.Reset()
		s.gaugesSync.Reset()
	}
	shardsMu.Unlock()
}

// Shard is the Go realization of a thread-local metrics shard: Go has no
// true thread-local storage, so a writer acquires a Shard once (e.g. at
// worker-goroutine startup) and reuses the handle for its lifetime, the
// same way the teacher's BufferPoolManager hands out a per-resource pool
// handle rather than relying on ambient state.
type Shard struct {
	counters   *keyedarray.Array[CounterKeyMT, uint64]
	gaugesCur  *keyedarray.Array[GaugeKeyMT, uint64]
	gaugesSync *keyedarray.Array[GaugeKeyMT, uint64]
	lastFold   time.Time
}

// NewShard allocates and registers a new per-writer shard.
func NewShard() *Shard {
	s := &Shard{
		counters:   keyedarray.New[CounterKeyMT, uint64](int(numCounterKeysMT)),
		gaugesCur:  keyedarray.New[GaugeKeyMT, uint64](int(numGaugeKeysMT)),
		gaugesSync: keyedarray.New[GaugeKeyMT, uint64](int(numGaugeKeysMT)),
	}
	shardsMu.Lock()
	shards = append(shards, s)
	shardsMu.Unlock()
	return s
}

// AddCounter increments a multi-threaded counter in this shard. Hot path:
// no locking — only this shard's owner ever touches these fields between
// folds.
func (s *Shard) AddCounter(k CounterKeyMT, n uint64) { s.counters.Add(k, n) }

// IncCounter increments a multi-threaded counter in this shard by one.
func (s *Shard) IncCounter(k CounterKeyMT) { s.AddCounter(k, 1) }

// SetGauge stores this shard's current value for an additive gauge.
func (s *Shard) SetGauge(k GaugeKeyMT, v uint64) { s.gaugesCur.Set(k, v) }

// Flush is the cooperative per-thread fold: if less than minInterval has
// elapsed since this shard's last fold, it is a no-op. Otherwise it merges
// shard counters and gauge deltas into the global totals under the fold
// mutex, then resets the shard's counters and re-synchronizes its gauge
// baseline.
func (s *Shard) Flush(minInterval time.Duration) {
	now := time.Now()
	if minInterval > 0 && now.Sub(s.lastFold) < minInterval {
		return
	}

	foldMu.Lock()
	keyedarray.AddAll(globalCountersMT, s.counters)
	s.counters.Reset()

	s.gaugesCur.ForEach(func(k GaugeKeyMT, cur uint64) {
		last := s.gaugesSync.Get(k)
		delta := cur - last // signed-wrap arithmetic in unsigned form, intentional
		globalGaugesMT.Add(k, delta)
	})
	s.gaugesSync = s.gaugesCur.Clone()
	foldMu.Unlock()

	s.lastFold = now
}

// Close forces an unconditional fold (thread termination) and deregisters
// the shard.
func (s *Shard) Close() {
	s.Flush(0)

	shardsMu.Lock()
	defer shardsMu.Unlock()
	for i, o := range shards {
		if o == s {
			shards = append(shards[:i], shards[i+1:]...)
			return
		}
	}
}
