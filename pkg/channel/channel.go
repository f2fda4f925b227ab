package channel

import (
	"context"

	"replybot/pkg/bus"
)

// Handler resolves one inbound channel message into the reply to send back.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external transport (for example Telegram) into the gateway.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
