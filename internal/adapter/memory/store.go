// Package memory provides in-process implementations of the service's
// storage ports, used when no database or cache is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

type assetEvent struct {
	assetID string
	eventID string
}

// Store keeps alerts and delivery logs in maps. It enforces the same
// one-active-alert rule as the Postgres partial unique index.
type Store struct {
	mu     sync.RWMutex
	alerts map[string]domain.Alert
	active map[assetEvent]string
	logs   map[string]domain.DeliveryLog
	order  map[string][]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		alerts: make(map[string]domain.Alert),
		active: make(map[assetEvent]string),
		logs:   make(map[string]domain.DeliveryLog),
		order:  make(map[string][]string),
	}
}

func (s *Store) CreateAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[alert.ID]; ok {
		return fmt.Errorf("alert %s already stored", alert.ID)
	}
	key := assetEvent{alert.AssetID, alert.EventID}
	if id, ok := s.active[key]; ok {
		return &domain.ConflictError{Existing: s.alerts[id]}
	}
	s.alerts[alert.ID] = alert
	if alert.Status.Active() {
		s.active[key] = alert.ID
	}
	return nil
}

func (s *Store) GetAlert(_ context.Context, id string) (domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return domain.Alert{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateAlertStatus(_ context.Context, id string, status domain.AlertStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.setStatus(a, status, at)
	return nil
}

func (s *Store) setStatus(a domain.Alert, status domain.AlertStatus, at time.Time) {
	key := assetEvent{a.AssetID, a.EventID}
	a.Status = status
	a.UpdatedAt = at
	s.alerts[a.ID] = a
	if status.Active() {
		s.active[key] = a.ID
	} else if s.active[key] == a.ID {
		delete(s.active, key)
	}
}

func (s *Store) ExpireStale(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range s.active {
		if a := s.alerts[id]; a.ExpiredAt(now) {
			s.setStatus(a, domain.AlertExpired, now)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateDeliveryLog(_ context.Context, log domain.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[log.AlertID]; !ok {
		return fmt.Errorf("delivery log %s: alert %s: %w", log.ID, log.AlertID, domain.ErrNotFound)
	}
	if _, ok := s.logs[log.ID]; ok {
		return fmt.Errorf("delivery log %s already stored", log.ID)
	}
	s.logs[log.ID] = log
	s.order[log.AlertID] = append(s.order[log.AlertID], log.ID)
	return nil
}

func (s *Store) UpdateDeliveryLog(_ context.Context, log domain.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[log.ID]; !ok {
		return domain.ErrNotFound
	}
	s.logs[log.ID] = log
	return nil
}

func (s *Store) ListDeliveryLogs(_ context.Context, alertID string) ([]domain.DeliveryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[alertID]
	out := make([]domain.DeliveryLog, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.logs[id])
	}
	return out, nil
}

// Alerts returns every stored alert ordered by creation time.
func (s *Store) Alerts() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
