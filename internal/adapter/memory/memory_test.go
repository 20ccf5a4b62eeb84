package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

var t0 = time.Date(2026, time.March, 11, 6, 0, 0, 0, time.UTC)

func alert(id string, status domain.AlertStatus) domain.Alert {
	return domain.Alert{
		ID:        id,
		AssetID:   "vessel-1",
		EventID:   "eq-1",
		Severity:  domain.SeverityHigh,
		Status:    status,
		CreatedAt: t0,
		ExpiresAt: t0.Add(time.Hour),
	}
}

func TestStore_OneActiveAlertPerAssetEvent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.CreateAlert(ctx, alert("a-1", domain.AlertPending)))

	err := s.CreateAlert(ctx, alert("a-2", domain.AlertPending))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "a-1", conflict.Existing.ID)

	require.NoError(t, s.UpdateAlertStatus(ctx, "a-1", domain.AlertExpired, t0))
	require.NoError(t, s.CreateAlert(ctx, alert("a-2", domain.AlertPending)))

	other := alert("a-3", domain.AlertPending)
	other.EventID = "eq-2"
	require.NoError(t, s.CreateAlert(ctx, other))
}

func TestStore_InactiveAlertDoesNotBlock(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateAlert(ctx, alert("a-1", domain.AlertExpired)))
	require.NoError(t, s.CreateAlert(ctx, alert("a-2", domain.AlertPending)))
}

func TestStore_ExpireStale(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.CreateAlert(ctx, alert("a-1", domain.AlertSent)))

	n, err := s.ExpireStale(ctx, t0.Add(59*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.ExpireStale(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetAlert(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertExpired, got.Status)
	assert.Equal(t, t0.Add(time.Hour), got.UpdatedAt)
}

func TestStore_DeliveryLogs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := s.CreateDeliveryLog(ctx, domain.DeliveryLog{ID: "l-0", AlertID: "missing"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.CreateAlert(ctx, alert("a-1", domain.AlertPending)))
	for _, id := range []string{"l-1", "l-2"} {
		require.NoError(t, s.CreateDeliveryLog(ctx, domain.DeliveryLog{ID: id, AlertID: "a-1", Status: domain.DeliveryPending}))
	}

	require.NoError(t, s.UpdateDeliveryLog(ctx, domain.DeliveryLog{ID: "l-2", AlertID: "a-1", Status: domain.DeliverySent, Attempts: 1}))
	require.ErrorIs(t, s.UpdateDeliveryLog(ctx, domain.DeliveryLog{ID: "nope"}), domain.ErrNotFound)

	logs, err := s.ListDeliveryLogs(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "l-1", logs[0].ID)
	assert.Equal(t, domain.DeliverySent, logs[1].Status)
}

func TestStore_GetAlertNotFound(t *testing.T) {
	_, err := NewStore().GetAlert(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionsAndContacts(t *testing.T) {
	p := NewPositions(domain.VesselPosition{VesselID: "b"}, domain.VesselPosition{VesselID: "a"})
	p.Upsert(domain.VesselPosition{VesselID: "c", Lat: 1})

	got, err := p.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].VesselID, got[1].VesselID, got[2].VesselID})

	c := NewContacts()
	c.Set("a", domain.Contact{ID: "c-1"})
	contacts, err := c.ContactsForAsset(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, contacts, 1)

	none, err := c.ContactsForAsset(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadFleet(t *testing.T) {
	positions, contacts, err := LoadFleet(filepath.Join("..", "..", "..", "data", "mock", "fleet.json"))
	require.NoError(t, err)

	vessels, err := positions.Positions(context.Background())
	require.NoError(t, err)
	assert.Len(t, vessels, 8)
	for i := 1; i < len(vessels); i++ {
		assert.Less(t, vessels[i-1].VesselID, vessels[i].VesselID)
	}

	cs, err := contacts.ContactsForAsset(context.Background(), "imo-9321483")
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "ct-master-dawn", cs[0].ID)
}

func TestLoadFleet_RejectsInvalidPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"vessels":[{"vesselId":"v1","lat":95,"lon":0}]}`), 0o600))

	_, _, err := LoadFleet(path)
	require.ErrorIs(t, err, domain.ErrInvalidPosition)
}

func TestLoadFleet_MissingFile(t *testing.T) {
	_, _, err := LoadFleet(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
