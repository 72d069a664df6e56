// Package zones loads zone definitions from CSV or YAML files.
package zones

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adamsaleh11/DroneSystem/core/model"
)

// Load reads zones from path, choosing the parser by file extension.
func Load(path string) ([]model.Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ParseCSV(f)
	case ".yaml", ".yml":
		return ParseYAML(f)
	default:
		return nil, fmt.Errorf("unsupported zone file format: %s", filepath.Ext(path))
	}
}

// ParseCSV reads a header line followed by rows of the form
// "id,(x1;y1),(x2;y2)". The corners may be given in any order.
func ParseCSV(r io.Reader) ([]model.Zone, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("zone header: %w", err)
	}
	var out []model.Zone
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(rec) < 3 {
			return nil, fmt.Errorf("zone line %d: expected 3 fields, got %d", line, len(rec))
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("zone line %d: id: %w", line, err)
		}
		a, err := parseCorner(rec[1])
		if err != nil {
			return nil, fmt.Errorf("zone line %d: %w", line, err)
		}
		b, err := parseCorner(rec[2])
		if err != nil {
			return nil, fmt.Errorf("zone line %d: %w", line, err)
		}
		out = append(out, normalize(model.Zone{ID: id, Min: a, Max: b}))
	}
}

func parseCorner(s string) (model.Point, error) {
	s = strings.Trim(strings.TrimSpace(s), "()")
	xy := strings.Split(s, ";")
	if len(xy) != 2 {
		return model.Point{}, fmt.Errorf("corner %q: want (x;y)", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
	if err != nil {
		return model.Point{}, fmt.Errorf("corner %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
	if err != nil {
		return model.Point{}, fmt.Errorf("corner %q: %w", s, err)
	}
	return model.Point{X: x, Y: y}, nil
}

type yamlFile struct {
	Zones []model.Zone `yaml:"zones"`
}

// ParseYAML reads a document with a top-level "zones" list.
func ParseYAML(r io.Reader) ([]model.Zone, error) {
	var doc yamlFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("zones yaml: %w", err)
	}
	for i := range doc.Zones {
		doc.Zones[i] = normalize(doc.Zones[i])
	}
	return doc.Zones, nil
}

func normalize(z model.Zone) model.Zone {
	if z.Min.X > z.Max.X {
		z.Min.X, z.Max.X = z.Max.X, z.Min.X
	}
	if z.Min.Y > z.Max.Y {
		z.Min.Y, z.Max.Y = z.Max.Y, z.Min.Y
	}
	return z
}
