package model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Point is a position on the dispatch plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 2)
}

func (p Point) String() string { return fmt.Sprintf("(%g, %g)", p.X, p.Y) }

// Zone is a named rectangular region. Zones are immutable once loaded.
type Zone struct {
	ID  int   `json:"id" yaml:"id"`
	Min Point `json:"min" yaml:"min"`
	Max Point `json:"max" yaml:"max"`
}

// Center is the dispatch target of the zone.
func (z Zone) Center() Point {
	return Point{X: (z.Min.X + z.Max.X) / 2, Y: (z.Min.Y + z.Max.Y) / 2}
}

// Contains reports whether p lies inside the zone, borders included.
func (z Zone) Contains(p Point) bool {
	return p.X >= z.Min.X && p.X <= z.Max.X && p.Y >= z.Min.Y && p.Y <= z.Max.Y
}

func (z Zone) String() string {
	return fmt.Sprintf("Zone %d: %s to %s", z.ID, z.Min, z.Max)
}
