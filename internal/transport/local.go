package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahmadhassan44/random-walk/pkg/protocol"
)

// Local is an in-process completion channel backed by a buffered Go channel.
type Local struct {
	inbox     chan protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewLocal creates a channel able to hold buffer signals without blocking senders.
func NewLocal(buffer int) *Local {
	if buffer < 0 {
		buffer = 0
	}
	return &Local{
		inbox: make(chan protocol.Message, buffer),
		done:  make(chan struct{}),
	}
}

// Sender returns a send handle labelled with source.
func (l *Local) Sender(source string) Sender {
	return SenderFunc(func(ctx context.Context, sig protocol.CompletionSignal) error {
		body, err := protocol.Encode(sig)
		if err != nil {
			return fmt.Errorf("failed to encode signal: %w", err)
		}
		return l.Deliver(ctx, protocol.Message{Source: source, Body: body})
	})
}

// Deliver pushes a raw message into the inbox.
func (l *Local) Deliver(ctx context.Context, msg protocol.Message) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	select {
	case l.inbox <- msg:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case msg := <-l.inbox:
		return msg, nil
	case <-l.done:
		return protocol.Message{}, ErrClosed
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

// Close unblocks pending senders and receivers. Safe to call more than once.
func (l *Local) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
