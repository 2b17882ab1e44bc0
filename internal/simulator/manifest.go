// Package simulator supervises one state machine and one queue consumer per
// parking spot.
package simulator

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/smart-parking/internal/model"
)

// Manifest is the on-disk list of spots to simulate, used when the central
// API should not be asked.
//
//	spots:
//	  - id: "1"
//	    floor_level: 1
//	    spot_number: 4
//	    status: vacant
type Manifest struct {
	Spots []model.Spot `yaml:"spots"`
}

// LoadManifest reads and validates a YAML manifest.  A missing status means
// vacant.
func LoadManifest(path string) ([]model.Spot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes a manifest and rejects unknown fields, blank or
// repeated ids and unknown statuses.
func ParseManifest(raw []byte) ([]model.Spot, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Spots) == 0 {
		return nil, errors.New("manifest lists no spots")
	}
	seen := make(map[string]bool, len(m.Spots))
	for i := range m.Spots {
		s := &m.Spots[i]
		if s.ID == "" {
			return nil, fmt.Errorf("manifest entry %d has no id", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("manifest repeats spot %q", s.ID)
		}
		seen[s.ID] = true
		if s.Status == "" {
			s.Status = model.StatusVacant
		}
		if !s.Status.Valid() {
			return nil, fmt.Errorf("spot %q: invalid status %q", s.ID, s.Status)
		}
	}
	return m.Spots, nil
}

// OnFloor keeps the spots on floor.  A nil floor keeps everything.
func OnFloor(spots []model.Spot, floor *int) []model.Spot {
	if floor == nil {
		return spots
	}
	var out []model.Spot
	for _, s := range spots {
		if s.FloorLevel == *floor {
			out = append(out, s)
		}
	}
	return out
}
