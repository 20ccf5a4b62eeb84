// Package nats delivers alert messages to channel gateway workers over NATS
// request/reply. Each channel has its own subject, <prefix>.<channel>.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/couchcryptid/tsunami-alert-service/internal/dispatch"
	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// Connect opens a NATS connection that reconnects indefinitely.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("tsunami-alert-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Requester is the subset of *nats.Conn used by Sender.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// reply is the gateway worker's response body.
type reply struct {
	MessageID string `json:"messageId"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Sender is a dispatch.ChannelSender for one channel.
type Sender struct {
	conn    Requester
	subject string
}

// NewSender creates a sender publishing to <prefix>.<channel>.
func NewSender(conn Requester, prefix string, ch domain.Channel) *Sender {
	return &Sender{conn: conn, subject: prefix + "." + string(ch)}
}

// NewSenders creates one sender per channel.
func NewSenders(conn Requester, prefix string) map[domain.Channel]dispatch.ChannelSender {
	out := make(map[domain.Channel]dispatch.ChannelSender, len(domain.Channels))
	for _, ch := range domain.Channels {
		out[ch] = NewSender(conn, prefix, ch)
	}
	return out
}

// Subject returns the request subject.
func (s *Sender) Subject() string { return s.subject }

func (s *Sender) Send(ctx context.Context, msg dispatch.Message) (dispatch.SendResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return dispatch.SendResult{}, fmt.Errorf("encode message: %w", err)
	}

	resp, err := s.conn.RequestWithContext(ctx, s.subject, body)
	if errors.Is(err, nats.ErrNoResponders) {
		return dispatch.SendResult{}, fmt.Errorf("no gateway listening on %s: %w", s.subject, err)
	}
	if err != nil {
		return dispatch.SendResult{}, fmt.Errorf("request %s: %w", s.subject, err)
	}

	var r reply
	if err := json.Unmarshal(resp.Data, &r); err != nil {
		return dispatch.SendResult{}, fmt.Errorf("decode gateway reply: %w", err)
	}
	if r.Error != "" {
		return dispatch.SendResult{}, fmt.Errorf("gateway %s: %s", s.subject, r.Error)
	}
	return dispatch.SendResult{MessageID: r.MessageID, Delivered: r.Delivered}, nil
}
