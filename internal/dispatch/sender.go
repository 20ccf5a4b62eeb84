package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// ErrChannelUnconfigured is returned by UnconfiguredSender.
var ErrChannelUnconfigured = errors.New("channel not configured")

// Message is what a ChannelSender delivers to one destination.
type Message struct {
	AlertID       string          `json:"alertId"`
	DeliveryLogID string          `json:"deliveryLogId"`
	ContactID     string          `json:"contactId"`
	ContactName   string          `json:"contactName,omitempty"`
	Channel       domain.Channel  `json:"channel"`
	Destination   string          `json:"destination"`
	Severity      domain.Severity `json:"severity"`
	Subject       string          `json:"subject"`
	Body          string          `json:"body"`
}

// SendResult is a provider's acknowledgement. Delivered is true when the
// provider confirmed hand-off to the recipient rather than just acceptance.
type SendResult struct {
	MessageID string `json:"messageId"`
	Delivered bool   `json:"delivered"`
}

// ChannelSender delivers a message over one channel.
type ChannelSender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// SenderFunc adapts a function to ChannelSender.
type SenderFunc func(ctx context.Context, msg Message) (SendResult, error)

func (f SenderFunc) Send(ctx context.Context, msg Message) (SendResult, error) {
	return f(ctx, msg)
}

// UnconfiguredSender fails every send. It stands in for channels with no
// provider so their logs record the failure instead of disappearing.
type UnconfiguredSender struct {
	Channel domain.Channel
}

func (s UnconfiguredSender) Send(_ context.Context, _ Message) (SendResult, error) {
	return SendResult{}, fmt.Errorf("%s: %w", s.Channel, ErrChannelUnconfigured)
}

func newMessage(alert domain.Alert, log domain.DeliveryLog, contact domain.Contact) Message {
	return Message{
		AlertID:       alert.ID,
		DeliveryLogID: log.ID,
		ContactID:     contact.ID,
		ContactName:   contact.Name,
		Channel:       log.Channel,
		Destination:   log.Destination,
		Severity:      alert.Severity,
		Subject:       fmt.Sprintf("[%s] %s alert for %s", alert.Severity, alert.EventType, alert.AssetID),
		Body:          alert.Message + "\n" + alert.Recommendation,
	}
}
