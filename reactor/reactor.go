//go:build linux

// Package reactor implements the single-threaded, edge-triggered readiness
// loop: one epoll set multiplexing the listener, a wake-up eventfd, a
// signalfd bridging SIGINT/SIGTERM, and every live channel.
package reactor

import (
	"encoding/binary"
	"net"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/tskv/channel"
	"github.com/momentics/tskv/config"
	"github.com/momentics/tskv/logging"
	"github.com/momentics/tskv/metrics"
	"github.com/momentics/tskv/pool"
)

const maxEpollEvents = 128

// Reactor is the readiness loop. It is not safe for concurrent use from
// more than one goroutine; cross-thread intents must go through Wake or
// RequestShutdown.
type Reactor struct {
	epfd   int
	wakeFd int
	sigFd  int

	listenerFd int
	newProto   func() channel.Protocol

	pool *pool.Pool
	log  *logging.Logger
	cfg  *config.Config

	shutdownRequested bool
}

// New builds a reactor: an epoll set, a non-blocking eventfd for wake-ups,
// and a signalfd bridging SIGINT/SIGTERM. SIGINT/SIGTERM are blocked
// process-wide before the signalfd is created, as required by signalfd(2).
func New(cfg *config.Config) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd")
	}

	var set unix.Sigset_t
	sigsetAdd(&set, unix.SIGINT)
	sigsetAdd(&set, unix.SIGTERM)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return nil, errors.Wrap(err, "pthread_sigmask")
	}

	sigFd, err := unix.Signalfd(-1, &set, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return nil, errors.Wrap(err, "signalfd")
	}

	r := &Reactor{
		epfd:       epfd,
		wakeFd:     wakeFd,
		sigFd:      sigFd,
		listenerFd: -1,
		pool:       pool.New(cfg.PoolChunkSize, cfg.RXBufferSize, cfg.TXBufferSize),
		log:        logging.Default(),
		cfg:        cfg,
	}

	if err := r.addLevelTriggered(wakeFd); err != nil {
		r.Close()
		return nil, errors.Wrap(err, "register wake eventfd")
	}
	if err := r.addLevelTriggered(sigFd); err != nil {
		r.Close()
		return nil, errors.Wrap(err, "register signalfd")
	}
	return r, nil
}

func (r *Reactor) addLevelTriggered(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func sigsetAdd(set *unix.Sigset_t, sig unix.Signal) {
	set.Val[(sig-1)/64] |= 1 << (uint(sig-1) % 64)
}

// ListenerFD dups the file descriptor backing ln and marks it non-blocking,
// so the reactor owns an independent descriptor it can register and later
// close without affecting ln.
func ListenerFD(ln *net.TCPListener) (int, error) {
	sc, err := ln.SyscallConn()
	if err != nil {
		return -1, err
	}

	var dupFd int
	var dupErr error
	if err := sc.Control(func(fd uintptr) {
		dupFd, dupErr = unix.Dup(int(fd))
	}); err != nil {
		return -1, err
	}
	if dupErr != nil {
		return -1, dupErr
	}
	if err := unix.SetNonblock(dupFd, true); err != nil {
		_ = unix.Close(dupFd)
		return -1, err
	}
	return dupFd, nil
}

// AddListener registers fd as the reactor's edge-triggered listening
// descriptor. newProto is invoked once per accepted connection to build
// that connection's protocol instance.
func (r *Reactor) AddListener(fd int, newProto func() channel.Protocol) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	r.listenerFd = fd
	r.newProto = newProto
	return nil
}

// Wake writes a non-zero value to the wake-up descriptor, unblocking a
// concurrent epoll_wait from any thread.
func (r *Reactor) Wake() {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	_, _ = unix.Write(r.wakeFd, buf)
}

// RequestShutdown is idempotent. It stops new work by unregistering and
// closing the listener, begins shutdown on every live channel, wakes the
// loop, and sweeps already-eligible channels.
func (r *Reactor) RequestShutdown() {
	if r.shutdownRequested {
		return
	}
	r.shutdownRequested = true

	if r.listenerFd >= 0 {
		_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, r.listenerFd, nil)
		_ = unix.Close(r.listenerFd)
		r.listenerFd = -1
	}

	r.pool.ForEach(func(_ int, ch *channel.Channel) { ch.BeginShutdown() })
	r.Wake()
	r.sweep()
}

// Run drives the readiness loop until a shutdown has been requested and
// every channel has closed.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, maxEpollEvents)

	for {
		if r.shutdownRequested && r.pool.Len() == 0 {
			return nil
		}

		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			r.log.Invariant(false, "epoll_wait failed", zap.Error(err))
			return err
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			mask := events[i].Events

			switch fd {
			case r.wakeFd:
				r.drainWake()
				r.sweep()
			case r.sigFd:
				r.drainSignals()
				r.sweep()
			case r.listenerFd:
				r.onListenerEvent()
			default:
				r.onChannelEvent(fd, mask)
			}
		}
	}
}

func (r *Reactor) drainWake() {
	buf := make([]byte, 8)
	for {
		_, err := unix.Read(r.wakeFd, buf)
		if err != nil {
			return
		}
	}
}

func (r *Reactor) drainSignals() {
	const sizeofSignalfdSiginfo = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	raw := make([]byte, sizeofSignalfdSiginfo)
	for {
		n, err := unix.Read(r.sigFd, raw)
		if err != nil || n != sizeofSignalfdSiginfo {
			return
		}
		info := (*unix.SignalfdSiginfo)(unsafe.Pointer(&raw[0]))
		sig := unix.Signal(info.Signo)
		if sig == unix.SIGINT || sig == unix.SIGTERM {
			r.RequestShutdown()
		}
	}
}

// onListenerEvent drains the accept queue until it would block, attaching
// a freshly acquired channel for each accepted connection.
func (r *Reactor) onListenerEvent() {
	for {
		connFd, _, err := unix.Accept4(r.listenerFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
				return
			case errors.Is(err, unix.EMFILE):
				metrics.IncCounterST(metrics.CounterAcceptErrorEMFILE)
				return
			case errors.Is(err, unix.ENFILE):
				metrics.IncCounterST(metrics.CounterAcceptErrorENFILE)
				return
			case errors.Is(err, unix.ENOBUFS):
				metrics.IncCounterST(metrics.CounterAcceptErrorENOBUFS)
				return
			default:
				metrics.IncCounterST(metrics.CounterAcceptErrorOther)
				continue
			}
		}

		ch := r.pool.Acquire(connFd, r.newProto())
		if err := r.registerChannel(connFd, ch); err != nil {
			ch.Notify()
			ch.Detach()
			r.pool.Release(connFd)
			_ = unix.Close(connFd)
			continue
		}
		metrics.SetGaugeST(metrics.GaugeActiveChannels, uint64(r.pool.Len()))
	}
}

func (r *Reactor) registerChannel(fd int, ch *channel.Channel) error {
	ev := unix.EpollEvent{Events: epollMask(ch), Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (r *Reactor) modifyChannel(fd int, ch *channel.Channel) {
	ev := unix.EpollEvent{Events: epollMask(ch), Fd: int32(fd)}
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func epollMask(ch *channel.Channel) uint32 {
	read, write := ch.DesiredEvents()
	mask := uint32(unix.EPOLLET | unix.EPOLLRDHUP)
	if read {
		mask |= unix.EPOLLIN
	}
	if write {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// onChannelEvent dispatches one readiness batch to the channel owning fd.
func (r *Reactor) onChannelEvent(fd int, mask uint32) {
	ch := r.pool.Lookup(fd)
	if ch == nil {
		return
	}

	if mask&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		err := channel.SocketError(fd)
		if err == nil {
			err = errors.New("reactor: readiness error with no pending SO_ERROR")
		}
		ch.HandleEvent(false, false, err)
	} else {
		readable := mask&unix.EPOLLIN != 0
		writable := mask&unix.EPOLLOUT != 0
		ch.HandleEvent(readable, writable, nil)
	}

	if ch.ShouldClose() {
		r.closeChannel(fd, ch)
		return
	}
	r.modifyChannel(fd, ch)
}

// sweep closes every channel currently eligible to close. It collects
// candidates before closing any of them, since ForEach forbids mutating
// pool membership from inside the visitor.
func (r *Reactor) sweep() {
	var closable []int
	r.pool.ForEach(func(fd int, ch *channel.Channel) {
		if ch.ShouldClose() {
			closable = append(closable, fd)
		}
	})
	for _, fd := range closable {
		if ch := r.pool.Lookup(fd); ch != nil {
			r.closeChannel(fd, ch)
		}
	}
}

func (r *Reactor) closeChannel(fd int, ch *channel.Channel) {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	ch.Notify()
	ch.Detach()
	r.pool.Release(fd)
	_ = unix.Close(fd)
	metrics.SetGaugeST(metrics.GaugeActiveChannels, uint64(r.pool.Len()))
}

// Stats reports the reactor's current channel occupancy.
func (r *Reactor) Stats() (activeChannels int) { return r.pool.Len() }

// Close tears down the epoll set, wake-up descriptor, and signal
// descriptor, and asserts the channel pool is empty.
func (r *Reactor) Close() {
	r.pool.Close()
	if r.listenerFd >= 0 {
		_ = unix.Close(r.listenerFd)
	}
	_ = unix.Close(r.sigFd)
	_ = unix.Close(r.wakeFd)
	_ = unix.Close(r.epfd)
}
