// Package protocol holds the reactor's built-in protocol plug-ins: small
// implementations of the channel.Protocol capability contract.
package protocol

import "github.com/momentics/tskv/channel"

// Echo writes back every byte it reads, one drain iteration at a time. It
// carries no per-connection state, so a single instance may be shared
// across every channel.
type Echo struct{}

// OnRead sends the entire readable span back to the peer and consumes
// exactly the bytes actually queued, leaving the remainder (if the TX
// buffer filled) for the next drain iteration.
func (Echo) OnRead(io channel.IO) {
	n, _ := io.Send(io.RxSpan())
	io.RxConsume(n)
}

// OnError is a no-op; the reactor has already recorded the failure and
// will close the channel on the next loop step.
func (Echo) OnError(channel.IO, error) {}

// OnClose is a no-op; Echo holds no per-connection resources to release.
func (Echo) OnClose(channel.IO) {}
