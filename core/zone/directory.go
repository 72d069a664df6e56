// Package zone resolves zone identifiers to their geometry.
package zone

import (
	"fmt"
	"sort"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

// Directory is a read-only lookup of zones by id.
type Directory interface {
	Lookup(id int) (model.Zone, bool)
	Zones() []model.Zone
}

// Static is an immutable in-memory Directory.
type Static struct {
	zones map[int]model.Zone
}

// NewStatic builds a directory from zones. Duplicate ids are rejected.
func NewStatic(zones []model.Zone) (*Static, error) {
	m := make(map[int]model.Zone, len(zones))
	for _, z := range zones {
		if _, dup := m[z.ID]; dup {
			return nil, fmt.Errorf("zone %d defined twice", z.ID)
		}
		m[z.ID] = z
	}
	return &Static{zones: m}, nil
}

func (s *Static) Lookup(id int) (model.Zone, bool) {
	z, ok := s.zones[id]
	return z, ok
}

// Zones returns every zone sorted by id.
func (s *Static) Zones() []model.Zone {
	out := make([]model.Zone, 0, len(s.zones))
	for _, z := range s.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
