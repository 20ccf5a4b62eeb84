// Package redis reads tracked vessel positions from a Redis hash.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// Options holds the Redis connection settings.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client.
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Positions is a vessel position source over one hash: field = vessel id,
// value = JSON position written by the tracking service.
type Positions struct {
	client redis.Cmdable
	key    string
	logger *slog.Logger
}

// NewPositions creates a source reading the given hash key.
func NewPositions(client redis.Cmdable, key string, logger *slog.Logger) *Positions {
	return &Positions{client: client, key: key, logger: logger}
}

// Positions returns every decodable vessel position ordered by vessel id.
// Entries that fail to decode or carry invalid coordinates are skipped.
func (p *Positions) Positions(ctx context.Context) ([]domain.VesselPosition, error) {
	fields, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read positions %s: %w", p.key, err)
	}

	out := make([]domain.VesselPosition, 0, len(fields))
	for id, raw := range fields {
		var v domain.VesselPosition
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			p.logger.Warn("skipping undecodable vessel position", "vessel_id", id, "error", err)
			continue
		}
		if v.VesselID == "" {
			v.VesselID = id
		}
		if err := v.Validate(); err != nil {
			p.logger.Warn("skipping invalid vessel position", "vessel_id", id, "error", err)
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VesselID < out[j].VesselID })
	return out, nil
}

// Upsert writes the latest position of a vessel.
func (p *Positions) Upsert(ctx context.Context, v domain.VesselPosition) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode position %s: %w", v.VesselID, err)
	}
	if err := p.client.HSet(ctx, p.key, v.VesselID, string(b)).Err(); err != nil {
		return fmt.Errorf("write position %s: %w", v.VesselID, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (p *Positions) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
