//go:build linux

package reactor_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/tskv/channel"
	"github.com/momentics/tskv/config"
	"github.com/momentics/tskv/reactor"
)

type echo struct{}

func (echo) OnRead(io channel.IO) {
	n, _ := io.Send(io.RxSpan())
	io.RxConsume(n)
}
func (echo) OnError(channel.IO, error) {}
func (echo) OnClose(channel.IO)        {}

func newTestReactor(t *testing.T) (*reactor.Reactor, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tcpLn := ln.(*net.TCPListener)
	addr := tcpLn.Addr().String()

	fd, err := reactor.ListenerFD(tcpLn)
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	cfg := config.Default()
	r, err := reactor.New(cfg)
	require.NoError(t, err)

	require.NoError(t, r.AddListener(fd, func() channel.Protocol { return echo{} }))
	return r, addr
}

func TestEchoRoundTrip(t *testing.T) {
	r, addr := newTestReactor(t)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))

	require.NoError(t, conn.Close())

	r.RequestShutdown()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not shut down in time")
	}
}

func TestGracefulShutdownWithLiveChannels(t *testing.T) {
	r, addr := newTestReactor(t)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	const nclients = 5
	var conns []net.Conn
	for i := 0; i < nclients; i++ {
		c, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		conns = append(conns, c)
	}

	// give the reactor a moment to accept and register every connection
	time.Sleep(50 * time.Millisecond)

	r.RequestShutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reactor did not shut down in time")
	}

	require.Equal(t, 0, r.Stats())

	for _, c := range conns {
		_ = c.Close()
	}
}
