// Package transport implements the many-to-one completion channel between
// walkers and the coordinator. Every walker holds a Sender; the coordinator
// holds the single Receiver.
package transport

import (
	"context"
	"errors"

	"github.com/ahmadhassan44/random-walk/pkg/protocol"
)

// ErrClosed is returned by Receive once a transport has been shut down.
var ErrClosed = errors.New("transport closed")

// Sender delivers one completion signal. Send returns once the transport has
// accepted the signal.
type Sender interface {
	Send(ctx context.Context, sig protocol.CompletionSignal) error
}

// Receiver yields inbound messages from any sender in arrival order.
type Receiver interface {
	Receive(ctx context.Context) (protocol.Message, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, sig protocol.CompletionSignal) error

func (f SenderFunc) Send(ctx context.Context, sig protocol.CompletionSignal) error {
	return f(ctx, sig)
}
