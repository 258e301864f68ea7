//go:build linux

package channel_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/tskv/channel"
)

type recorder struct {
	reads   int
	errs    []error
	closes  int
	onRead  func(io channel.IO)
	onError func(io channel.IO, err error)
}

func (r *recorder) OnRead(io channel.IO) {
	r.reads++
	if r.onRead != nil {
		r.onRead(io)
		return
	}
	io.RxConsume(len(io.RxSpan()))
}

func (r *recorder) OnError(io channel.IO, err error) {
	r.errs = append(r.errs, err)
	if r.onError != nil {
		r.onError(io, err)
	}
}
func (r *recorder) OnClose(io channel.IO) { r.closes++ }

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestDesiredEventsReflectsStateAndOccupancy(t *testing.T) {
	a, _ := socketpair(t)
	c := channel.New(64, 64)

	read, write := c.DesiredEvents()
	require.False(t, read)
	require.False(t, write)

	c.Attach(a, &recorder{})
	read, write = c.DesiredEvents()
	require.True(t, read)
	require.False(t, write)
}

func TestEchoRoundTripOverSocketpair(t *testing.T) {
	a, b := socketpair(t)

	proto := &recorder{}
	proto.onRead = func(io channel.IO) {
		p := io.RxSpan()
		n, _ := io.Send(p)
		io.RxConsume(n)
	}

	c := channel.New(64, 64)
	c.Attach(a, proto)

	_, err := unix.Write(b, []byte("ping"))
	require.NoError(t, err)

	c.HandleEvent(true, false, nil)
	require.Equal(t, 1, proto.reads)

	read, write := c.DesiredEvents()
	require.True(t, read)
	require.True(t, write)

	c.HandleEvent(false, true, nil)

	buf := make([]byte, 16)
	n, err := unix.Read(b, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestPeerEOFTransitionsToDrainingThenCloses(t *testing.T) {
	a, b := socketpair(t)

	proto := &recorder{}
	c := channel.New(64, 64)
	c.Attach(a, proto)

	require.NoError(t, unix.Close(b))

	c.HandleEvent(true, false, nil)
	require.Equal(t, channel.Draining, c.State())
	require.True(t, c.ShouldClose())
}

func TestReadinessErrorAbortsAndFiresOnError(t *testing.T) {
	a, _ := socketpair(t)

	proto := &recorder{}
	c := channel.New(64, 64)
	c.Attach(a, proto)

	c.HandleEvent(true, false, errors.New("simulated EPOLLERR"))
	require.Equal(t, channel.Aborting, c.State())
	require.True(t, c.ShouldClose())
	require.Len(t, proto.errs, 1)
}

func TestSendForbiddenWhenAborting(t *testing.T) {
	a, _ := socketpair(t)

	var n int
	var res channel.SendResult
	proto := &recorder{onError: func(io channel.IO, err error) {
		n, res = io.Send([]byte("x"))
	}}

	c := channel.New(64, 64)
	c.Attach(a, proto)
	c.Abort(errors.New("boom"))

	require.Equal(t, 0, n)
	require.Equal(t, channel.Forbidden, res)
}

func TestDetachResetsStateAndFD(t *testing.T) {
	a, b := socketpair(t)
	_ = b

	c := channel.New(64, 64)
	c.Attach(a, &recorder{})
	_, err := unix.Write(a, []byte("xx"))
	require.NoError(t, err)

	c.Detach()
	require.Equal(t, channel.Closed, c.State())
	require.Equal(t, -1, c.FD())
}
