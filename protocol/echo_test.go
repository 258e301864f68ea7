//go:build linux

package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/tskv/channel"
	"github.com/momentics/tskv/protocol"
)

func TestEchoWritesBackWhatItReads(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	c := channel.New(64, 64)
	c.Attach(fds[0], protocol.Echo{})

	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	c.HandleEvent(true, false, nil)

	buf := make([]byte, 16)
	n, err := unix.Read(fds[1], buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
}

func TestEchoThenPeerHalfCloseDrainsAndCloses(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fds[0]) })

	c := channel.New(64, 64)
	c.Attach(fds[0], protocol.Echo{})

	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)
	require.NoError(t, unix.Shutdown(fds[1], unix.SHUT_WR))

	c.HandleEvent(true, false, nil)

	buf := make([]byte, 16)
	n, err := unix.Read(fds[1], buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))

	require.Equal(t, channel.Draining, c.State())
	require.True(t, c.ShouldClose())

	require.NoError(t, unix.Close(fds[1]))
}
