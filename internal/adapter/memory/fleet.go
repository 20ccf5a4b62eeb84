package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// Positions is a vessel position source backed by a map.
type Positions struct {
	mu        sync.RWMutex
	positions map[string]domain.VesselPosition
}

// NewPositions returns a source seeded with the given positions.
func NewPositions(seed ...domain.VesselPosition) *Positions {
	p := &Positions{positions: make(map[string]domain.VesselPosition, len(seed))}
	for _, v := range seed {
		p.positions[v.VesselID] = v
	}
	return p
}

// Upsert stores the latest position for a vessel.
func (p *Positions) Upsert(v domain.VesselPosition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[v.VesselID] = v
}

// Positions returns every tracked vessel ordered by id.
func (p *Positions) Positions(_ context.Context) ([]domain.VesselPosition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.VesselPosition, 0, len(p.positions))
	for _, v := range p.positions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VesselID < out[j].VesselID })
	return out, nil
}

// Contacts maps asset ids to the contacts notified for them.
type Contacts struct {
	mu      sync.RWMutex
	byAsset map[string][]domain.Contact
}

// NewContacts returns an empty directory.
func NewContacts() *Contacts {
	return &Contacts{byAsset: make(map[string][]domain.Contact)}
}

// Set replaces the contacts of an asset.
func (c *Contacts) Set(assetID string, contacts ...domain.Contact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byAsset[assetID] = append([]domain.Contact(nil), contacts...)
}

// ContactsForAsset returns the contacts of an asset, or none.
func (c *Contacts) ContactsForAsset(_ context.Context, assetID string) ([]domain.Contact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Contact(nil), c.byAsset[assetID]...), nil
}
