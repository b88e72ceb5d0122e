// Package bus provides the event transport between the agent core and its
// hosts. Turn state transitions and confirmation requests are published as
// subjects; hosts subscribe to render them. The default implementation uses
// NATS, with an in-memory option for tests and single-process deployments.
package bus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a request times out waiting for a response.
	ErrTimeout = errors.New("request timeout")

	// ErrNoResponders is returned when no subscribers can handle a request.
	ErrNoResponders = errors.New("no responders available")

	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// Subject helpers. Turn events go to tally.turn.<conversationID>.<event>;
// confirmation requests to tally.confirmation.<conversationID>.
const (
	SubjectPrefix = "tally"
)

// TurnSubject returns the subject for a conversation's turn events.
func TurnSubject(conversationID, event string) string {
	return SubjectPrefix + ".turn." + conversationID + "." + event
}

// ConfirmationSubject returns the subject for a conversation's
// confirmation requests.
func ConfirmationSubject(conversationID string) string {
	return SubjectPrefix + ".confirmation." + conversationID
}

// MessageBus is the transport between the agent core and hosts.
// Implementations must be safe for concurrent use.
type MessageBus interface {
	// Publish sends a message to all subscribers of the given subject.
	// Returns immediately; does not wait for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The handler is called in a separate goroutine for each message.
	// Supports wildcards: "tally.turn.*.state" matches any conversation.
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a single response.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages. For request/reply, return
// data to send as the response; return nil for no response.
type MessageHandler func(msg *Message) []byte

// Message is an incoming message from the bus.
type Message struct {
	Subject string
	Data    []byte
	ReplyTo string // set if the sender expects a response
}

// Subscription is an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops receiving messages and cleans up resources.
	Unsubscribe() error

	// Subject returns the subject pattern this subscription is for.
	Subject() string
}
