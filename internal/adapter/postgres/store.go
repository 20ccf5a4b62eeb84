// Package postgres persists alerts, delivery logs and contacts in PostgreSQL
// through database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

const (
	uniqueViolation     = "23505"
	oneActiveConstraint = "alerts_one_active"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	asset_id        TEXT NOT NULL,
	event_id        TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	message         TEXT NOT NULL,
	recommendation  TEXT NOT NULL,
	status          TEXT NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	threat          JSONB
);

CREATE UNIQUE INDEX IF NOT EXISTS alerts_one_active
	ON alerts(asset_id, event_id)
	WHERE status IN ('pending', 'sent', 'acknowledged');

CREATE INDEX IF NOT EXISTS idx_alerts_expiry ON alerts(expires_at)
	WHERE status IN ('pending', 'sent', 'acknowledged');

CREATE TABLE IF NOT EXISTS delivery_logs (
	id                   TEXT PRIMARY KEY,
	alert_id             TEXT NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
	contact_id           TEXT NOT NULL,
	channel              TEXT NOT NULL,
	destination          TEXT NOT NULL,
	status               TEXT NOT NULL,
	attempts             INTEGER NOT NULL DEFAULT 0,
	last_attempt_at      TIMESTAMPTZ,
	delivered_at         TIMESTAMPTZ,
	error_message        TEXT,
	provider_message_id  TEXT NOT NULL DEFAULT '',
	seq                  BIGSERIAL
);

CREATE INDEX IF NOT EXISTS idx_delivery_logs_alert ON delivery_logs(alert_id, seq);

CREATE TABLE IF NOT EXISTS contacts (
	id               TEXT PRIMARY KEY,
	asset_id         TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	whatsapp         TEXT NOT NULL DEFAULT '',
	whatsapp_opt_in  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_contacts_asset ON contacts(asset_id);
`

// Store implements the dispatch store and the contact directory.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const alertColumns = `id, asset_id, event_id, event_type, severity, latitude, longitude,
	message, recommendation, status, expires_at, created_at, updated_at, threat`

func (s *Store) CreateAlert(ctx context.Context, a domain.Alert) error {
	threat, err := marshalThreat(a.Threat)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.AssetID, a.EventID, a.EventType, string(a.Severity),
		a.Coordinates.Lat, a.Coordinates.Lon, a.Message, a.Recommendation,
		string(a.Status), a.ExpiresAt, a.CreatedAt, a.UpdatedAt, threat,
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == oneActiveConstraint {
		existing, qerr := s.activeAlert(ctx, a.AssetID, a.EventID)
		if qerr != nil {
			return fmt.Errorf("load conflicting alert: %w", qerr)
		}
		return &domain.ConflictError{Existing: existing}
	}
	return fmt.Errorf("insert alert %s: %w", a.ID, err)
}

func (s *Store) activeAlert(ctx context.Context, assetID, eventID string) (domain.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE asset_id = $1 AND event_id = $2 AND status IN ('pending', 'sent', 'acknowledged')`,
		assetID, eventID)
	return scanAlert(row)
}

func (s *Store) GetAlert(ctx context.Context, id string) (domain.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	return scanAlert(row)
}

func (s *Store) UpdateAlertStatus(ctx context.Context, id string, status domain.AlertStatus, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("update alert %s: %w", id, err)
	}
	return expectRow(res, "alert "+id)
}

func (s *Store) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET status = 'expired', updated_at = $1
		WHERE status IN ('pending', 'sent', 'acknowledged') AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire alerts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire alerts: %w", err)
	}
	return int(n), nil
}

func (s *Store) CreateDeliveryLog(ctx context.Context, l domain.DeliveryLog) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO delivery_logs
		(id, alert_id, contact_id, channel, destination, status, attempts,
		 last_attempt_at, delivered_at, error_message, provider_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.AlertID, l.ContactID, string(l.Channel), l.Destination, string(l.Status), l.Attempts,
		nullTime(l.LastAttemptAt), nullTime(l.DeliveredAt), nullString(l.ErrorMessage), l.ProviderMessageID,
	)
	if err != nil {
		return fmt.Errorf("insert delivery log %s: %w", l.ID, err)
	}
	return nil
}

func (s *Store) UpdateDeliveryLog(ctx context.Context, l domain.DeliveryLog) error {
	res, err := s.db.ExecContext(ctx, `UPDATE delivery_logs SET
		status = $2, attempts = $3, last_attempt_at = $4, delivered_at = $5,
		error_message = $6, provider_message_id = $7
		WHERE id = $1`,
		l.ID, string(l.Status), l.Attempts, nullTime(l.LastAttemptAt), nullTime(l.DeliveredAt),
		nullString(l.ErrorMessage), l.ProviderMessageID,
	)
	if err != nil {
		return fmt.Errorf("update delivery log %s: %w", l.ID, err)
	}
	return expectRow(res, "delivery log "+l.ID)
}

func (s *Store) ListDeliveryLogs(ctx context.Context, alertID string) ([]domain.DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, alert_id, contact_id, channel, destination, status,
		attempts, last_attempt_at, delivered_at, error_message, provider_message_id
		FROM delivery_logs WHERE alert_id = $1 ORDER BY seq`, alertID)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.DeliveryLog
	for rows.Next() {
		var (
			l                      domain.DeliveryLog
			channel, status        string
			lastAttempt, delivered sql.NullTime
			errMsg                 sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.AlertID, &l.ContactID, &channel, &l.Destination, &status,
			&l.Attempts, &lastAttempt, &delivered, &errMsg, &l.ProviderMessageID); err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}
		l.Channel = domain.Channel(channel)
		l.Status = domain.DeliveryStatus(status)
		l.LastAttemptAt = timePtr(lastAttempt)
		l.DeliveredAt = timePtr(delivered)
		l.ErrorMessage = stringPtr(errMsg)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	return logs, nil
}

// ContactsForAsset returns the contacts registered for an asset.
func (s *Store) ContactsForAsset(ctx context.Context, assetID string) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, phone, email, whatsapp, whatsapp_opt_in
		FROM contacts WHERE asset_id = $1 ORDER BY id`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.WhatsApp, &c.WhatsAppOptIn); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (domain.Alert, error) {
	var (
		a                domain.Alert
		severity, status string
		threat           []byte
	)
	err := row.Scan(&a.ID, &a.AssetID, &a.EventID, &a.EventType, &severity,
		&a.Coordinates.Lat, &a.Coordinates.Lon, &a.Message, &a.Recommendation,
		&status, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt, &threat)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Alert{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Alert{}, fmt.Errorf("scan alert: %w", err)
	}
	a.Severity = domain.Severity(severity)
	a.Status = domain.AlertStatus(status)
	if len(threat) > 0 {
		var t domain.VesselThreatAssessment
		if err := json.Unmarshal(threat, &t); err != nil {
			return domain.Alert{}, fmt.Errorf("decode threat snapshot: %w", err)
		}
		a.Threat = &t
	}
	return a, nil
}

func marshalThreat(t *domain.VesselThreatAssessment) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode threat snapshot: %w", err)
	}
	return b, nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
