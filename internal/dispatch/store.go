// Package dispatch fans an alert out to its contacts over every eligible
// channel and records each delivery attempt.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// ErrPersistence wraps store failures on the request path. It is the only
// error that aborts a dispatch after validation.
var ErrPersistence = errors.New("persistence failure")

// Store persists alerts and delivery logs.
//
// CreateAlert must return a *domain.ConflictError holding the stored record
// when an active alert already exists for the same asset and event.
// GetAlert returns domain.ErrNotFound for unknown ids.
type Store interface {
	CreateAlert(ctx context.Context, alert domain.Alert) error
	GetAlert(ctx context.Context, id string) (domain.Alert, error)
	UpdateAlertStatus(ctx context.Context, id string, status domain.AlertStatus, at time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int, error)

	CreateDeliveryLog(ctx context.Context, log domain.DeliveryLog) error
	UpdateDeliveryLog(ctx context.Context, log domain.DeliveryLog) error
	ListDeliveryLogs(ctx context.Context, alertID string) ([]domain.DeliveryLog, error)
}
