package bus

import (
	"context"
	"errors"
	"sync"
)

const DefaultBufferSize = 100

var ErrClosed = errors.New("message bus closed")

// MessageBus carries messages between channels and the gateway. Channels are
// never closed; Close signals done instead so publishers blocked on a full
// buffer are released.
type MessageBus struct {
	inbound   chan InboundMessage
	outbound  chan OutboundMessage
	done      chan struct{}
	closeOnce sync.Once
}

func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
		done:     make(chan struct{}),
	}
}

func (mb *MessageBus) isClosed() bool {
	select {
	case <-mb.done:
		return true
	default:
		return false
	}
}

// PublishInbound blocks until the message is buffered, ctx is done or the
// bus is closed.
func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	if mb.isClosed() {
		return ErrClosed
	}
	select {
	case mb.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mb.done:
		return ErrClosed
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-mb.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		return InboundMessage{}, false
	}
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	if mb.isClosed() {
		return ErrClosed
	}
	select {
	case mb.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mb.done:
		return ErrClosed
	}
}

// SubscribeOutbound prefers buffered messages over ctx and Close, so a
// dispatcher keeps draining replies that were queued before shutdown.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-mb.outbound:
		return msg, true
	default:
	}
	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-mb.done:
		return OutboundMessage{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)
	})
}
