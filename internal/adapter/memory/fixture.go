package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
)

// FleetFile is the on-disk fleet fixture: vessel positions plus the contacts
// of each vessel keyed by vessel id.
type FleetFile struct {
	Vessels  []domain.VesselPosition     `json:"vessels"`
	Contacts map[string][]domain.Contact `json:"contacts"`
}

// LoadFleet reads a fleet fixture and seeds in-memory sources from it.
// Invalid vessel positions reject the whole file.
func LoadFleet(path string) (*Positions, *Contacts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read fleet file: %w", err)
	}
	var f FleetFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("decode fleet file %s: %w", path, err)
	}
	for _, v := range f.Vessels {
		if err := v.Validate(); err != nil {
			return nil, nil, fmt.Errorf("fleet file %s: %w", path, err)
		}
	}

	contacts := NewContacts()
	for assetID, cs := range f.Contacts {
		contacts.Set(assetID, cs...)
	}
	return NewPositions(f.Vessels...), contacts, nil
}
