// Package channels defines the transport boundary between muaddib's
// agentic dispatch core and the platform-specific gateways (IRC, Discord,
// Slack). Transports are opaque event sources and senders per spec §1
// "Out of scope" — this package fixes only the minimal shape the message
// handler needs to ingest RoomMessages and send replies back.
package channels

import (
	"context"
	"fmt"

	"github.com/pasky/muaddib-sub002/pkg/models"
)

// Outgoing is a reply the handler hands back to a transport for delivery.
type Outgoing struct {
	ChannelName string
	ThreadID    string
	Text        string

	// ReplyToPlatformID carries the platform id of the message being
	// answered. The IRC, Discord and Slack adapters here do not read it;
	// they send to ChannelName (and ThreadID where supported) only.
	ReplyToPlatformID string
}

// Status reports a transport's current connection state.
type Status struct {
	Connected bool
	Error     string
}

// Adapter is the contract every transport (irc/discord/slack) satisfies.
// Start begins delivering inbound messages on the Messages() channel;
// Stop disconnects and closes it. Send delivers one reply.
type Adapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, out Outgoing) error
	Messages() <-chan *models.RoomMessage
	Status() Status
}

// ConfigError reports an invalid transport configuration, caught at
// startup rather than surfacing as a runtime connection failure.
type ConfigError struct {
	Transport string
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("channels: %s: %s", e.Transport, e.Reason)
}

func NewConfigError(transport, reason string) error {
	return &ConfigError{Transport: transport, Reason: reason}
}
