package space

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/SlimBron57/bitacora-sub000/internal/errs"
)

const twoPi = 2 * math.Pi

// Shape selects the coordinate policy.
type Shape uint8

const (
	ShapeSpherical Shape = iota + 1
	ShapeCubic
)

func (s Shape) String() string {
	switch s {
	case ShapeSpherical:
		return "spherical"
	case ShapeCubic:
		return "cubic"
	default:
		return fmt.Sprintf("shape(%d)", uint8(s))
	}
}

// ParseShape accepts "spherical" or "cubic" (case-insensitive).
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spherical":
		return ShapeSpherical, nil
	case "cubic":
		return ShapeCubic, nil
	}
	return 0, fmt.Errorf("unknown shape %q", s)
}

func (s Shape) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Shape) UnmarshalText(b []byte) error {
	v, err := ParseShape(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Coordinates is a position in one of the two shapes. For spherical shapes
// the components are (r, theta, phi); for cubic shapes (x, y, z).
// Values are only produced through validating constructors.
type Coordinates struct {
	shape Shape
	c     [3]float64
}

// NewSpherical validates r >= 0, theta in [0, 2pi) and phi in [0, pi].
func NewSpherical(r, theta, phi float64) (Coordinates, error) {
	c := Coordinates{shape: ShapeSpherical, c: [3]float64{r, theta, phi}}
	return c, c.Validate()
}

// NewCubic validates x, y and z in [0,1].
func NewCubic(x, y, z float64) (Coordinates, error) {
	c := Coordinates{shape: ShapeCubic, c: [3]float64{x, y, z}}
	return c, c.Validate()
}

// NewCoordinates dispatches to NewSpherical or NewCubic.
func NewCoordinates(shape Shape, a, b, c float64) (Coordinates, error) {
	switch shape {
	case ShapeSpherical:
		return NewSpherical(a, b, c)
	case ShapeCubic:
		return NewCubic(a, b, c)
	}
	return Coordinates{}, fmt.Errorf("%w: unknown shape %v", errs.ErrInvalidCoordinates, shape)
}

func (c Coordinates) Shape() Shape { return c.shape }

// Components returns the raw 3-tuple.
func (c Coordinates) Components() [3]float64 { return c.c }

func (c Coordinates) R() float64     { return c.c[0] }
func (c Coordinates) Theta() float64 { return c.c[1] }
func (c Coordinates) Phi() float64   { return c.c[2] }
func (c Coordinates) X() float64     { return c.c[0] }
func (c Coordinates) Y() float64     { return c.c[1] }
func (c Coordinates) Z() float64     { return c.c[2] }

// IsZero reports whether c was never constructed.
func (c Coordinates) IsZero() bool { return c.shape == 0 }

// Validate checks the domain constraints of the shape.
func (c Coordinates) Validate() error {
	for _, v := range c.c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has non-finite component", errs.ErrInvalidCoordinates, c)
		}
	}
	switch c.shape {
	case ShapeSpherical:
		r, theta, phi := c.c[0], c.c[1], c.c[2]
		if r < 0 || theta < 0 || theta >= twoPi || phi < 0 || phi > math.Pi {
			return fmt.Errorf("%w: %s", errs.ErrInvalidCoordinates, c)
		}
	case ShapeCubic:
		for _, v := range c.c {
			if v < 0 || v > 1 {
				return fmt.Errorf("%w: %s", errs.ErrInvalidCoordinates, c)
			}
		}
	default:
		return fmt.Errorf("%w: unknown shape %v", errs.ErrInvalidCoordinates, c.shape)
	}
	return nil
}

func (c Coordinates) String() string {
	if c.shape == ShapeSpherical {
		return fmt.Sprintf("spherical(r=%.4f, theta=%.4f, phi=%.4f)", c.c[0], c.c[1], c.c[2])
	}
	return fmt.Sprintf("%s(x=%.4f, y=%.4f, z=%.4f)", c.shape, c.c[0], c.c[1], c.c[2])
}

type coordsJSON struct {
	Shape Shape      `json:"shape"`
	V     [3]float64 `json:"v"`
}

func (c Coordinates) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(coordsJSON{Shape: c.shape, V: c.c})
}

// UnmarshalJSON validates the decoded value; persisted coordinates that
// violate their domain are rejected on load.
func (c *Coordinates) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = Coordinates{}
		return nil
	}
	var raw coordsJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := NewCoordinates(raw.Shape, raw.V[0], raw.V[1], raw.V[2])
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Point is a position in Cartesian space.
type Point struct {
	X, Y, Z float64
}

// Dist is the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// ToCartesian projects c into Cartesian space. Cubic coordinates are
// already Cartesian.
func ToCartesian(c Coordinates) Point {
	if c.shape == ShapeSpherical {
		r, theta, phi := c.c[0], c.c[1], c.c[2]
		return Point{
			X: r * math.Sin(phi) * math.Cos(theta),
			Y: r * math.Sin(phi) * math.Sin(theta),
			Z: r * math.Cos(phi),
		}
	}
	return Point{X: c.c[0], Y: c.c[1], Z: c.c[2]}
}

// FromCartesian is the inverse of ToCartesian. For spherical shapes the
// origin maps to (0,0,0) and points on the polar axis get theta = 0, the
// two places where the inverse is not unique.
func FromCartesian(shape Shape, p Point) (Coordinates, error) {
	switch shape {
	case ShapeSpherical:
		r := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
		if r == 0 {
			return NewSpherical(0, 0, 0)
		}
		theta := math.Atan2(p.Y, p.X)
		if theta < 0 {
			theta += twoPi
		}
		if theta >= twoPi {
			theta = 0
		}
		phi := math.Acos(clamp(p.Z/r, -1, 1))
		return NewSpherical(r, theta, phi)
	case ShapeCubic:
		return NewCubic(p.X, p.Y, p.Z)
	}
	return Coordinates{}, fmt.Errorf("%w: unknown shape %v", errs.ErrInvalidCoordinates, shape)
}

// Distance is symmetric and non-negative. Spherical pairs use the law of
// cosines, cubic pairs the Euclidean metric; mixed pairs fall back to the
// Euclidean distance of their Cartesian projections.
func Distance(a, b Coordinates) float64 {
	switch {
	case a.shape == ShapeSpherical && b.shape == ShapeSpherical:
		return sphericalDistance(a, b)
	case a.shape == ShapeCubic && b.shape == ShapeCubic:
		dx, dy, dz := a.c[0]-b.c[0], a.c[1]-b.c[1], a.c[2]-b.c[2]
		return math.Sqrt(dx*dx + dy*dy + dz*dz)
	default:
		return ToCartesian(a).Dist(ToCartesian(b))
	}
}

func sphericalDistance(a, b Coordinates) float64 {
	if a.c == b.c {
		return 0
	}
	r1, t1, p1 := a.c[0], a.c[1], a.c[2]
	r2, t2, p2 := b.c[0], b.c[1], b.c[2]
	cosAngle := clamp(math.Sin(p1)*math.Sin(p2)*math.Cos(t1-t2)+math.Cos(p1)*math.Cos(p2), -1, 1)
	d2 := r1*r1 + r2*r2 - 2*r1*r2*cosAngle
	if d2 <= 0 {
		return 0
	}
	return math.Sqrt(d2)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
