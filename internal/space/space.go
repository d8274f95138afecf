// Package space maps feature vectors onto a 3-axis coordinate system and
// measures distances within it.
//
// Two policies exist and are chosen once, at construction:
//
//	Spherical  r from two intensity axes, theta from two category axes,
//	           phi from one valence axis
//	Cubic      x, y and z each read one axis directly
//
// Both are pure: the same vector always yields bit-identical coordinates.
package space

import (
	"fmt"
	"math"
)

// Space converts feature vectors to coordinates for one shape.
type Space interface {
	Shape() Shape
	ToCoordinates(v FeatureVector) (Coordinates, error)
	Distance(a, b Coordinates) float64
	ToCartesian(c Coordinates) Point
	FromCartesian(p Point) (Coordinates, error)
	// Bounds is the Cartesian box that every coordinate produced from a
	// valid vector falls into.
	Bounds() (min, max Point)
}

// New returns the default policy for shape.
func New(shape Shape) (Space, error) {
	switch shape {
	case ShapeSpherical:
		return DefaultSpherical(), nil
	case ShapeCubic:
		return DefaultCubic(), nil
	}
	return nil, fmt.Errorf("unknown shape %v", shape)
}

// Spherical derives (r, theta, phi):
//
//	r     = sqrt(w0*v[I0]^2 + w1*v[I1]^2)
//	theta = (atan2(v[C0], v[C1]) + pi) mod 2pi
//	phi   = clamp(1 - v[V], 0, 1) * pi
type Spherical struct {
	IntensityAxes    [2]Axis
	IntensityWeights [2]float64
	CategoryAxes     [2]Axis
	ValenceAxis      Axis
}

// DefaultSpherical uses emotional+intentional for intensity,
// semantic/contextual for category and emotional for valence.
func DefaultSpherical() Spherical {
	return Spherical{
		IntensityAxes:    [2]Axis{AxisEmotional, AxisIntentional},
		IntensityWeights: [2]float64{0.5, 0.5},
		CategoryAxes:     [2]Axis{AxisSemantic, AxisContextual},
		ValenceAxis:      AxisEmotional,
	}
}

func (Spherical) Shape() Shape { return ShapeSpherical }

func (s Spherical) ToCoordinates(v FeatureVector) (Coordinates, error) {
	if err := v.Validate(); err != nil {
		return Coordinates{}, err
	}
	i0, i1 := v[s.IntensityAxes[0]], v[s.IntensityAxes[1]]
	r := math.Sqrt(s.IntensityWeights[0]*i0*i0 + s.IntensityWeights[1]*i1*i1)
	theta := math.Mod(math.Atan2(v[s.CategoryAxes[0]], v[s.CategoryAxes[1]])+math.Pi, twoPi)
	phi := clamp(1-v[s.ValenceAxis], 0, 1) * math.Pi
	return NewSpherical(r, theta, phi)
}

func (Spherical) Distance(a, b Coordinates) float64 { return Distance(a, b) }
func (Spherical) ToCartesian(c Coordinates) Point   { return ToCartesian(c) }

func (Spherical) FromCartesian(p Point) (Coordinates, error) {
	return FromCartesian(ShapeSpherical, p)
}

func (s Spherical) Bounds() (Point, Point) {
	r := math.Sqrt(math.Abs(s.IntensityWeights[0]) + math.Abs(s.IntensityWeights[1]))
	if r < 1 {
		r = 1
	}
	return Point{-r, -r, -r}, Point{r, r, r}
}

// Cubic maps x, y and z to one axis each, clamped to [0,1].
type Cubic struct {
	Axes [3]Axis
}

// DefaultCubic reads semantic, syntactic and relational. The relational
// axis doubles as the effectiveness score written by usage tracking.
func DefaultCubic() Cubic {
	return Cubic{Axes: [3]Axis{AxisSemantic, AxisSyntactic, AxisRelational}}
}

func (Cubic) Shape() Shape { return ShapeCubic }

func (c Cubic) ToCoordinates(v FeatureVector) (Coordinates, error) {
	if err := v.Validate(); err != nil {
		return Coordinates{}, err
	}
	return NewCubic(clamp(v[c.Axes[0]], 0, 1), clamp(v[c.Axes[1]], 0, 1), clamp(v[c.Axes[2]], 0, 1))
}

func (Cubic) Distance(a, b Coordinates) float64 { return Distance(a, b) }
func (Cubic) ToCartesian(c Coordinates) Point   { return ToCartesian(c) }

func (Cubic) FromCartesian(p Point) (Coordinates, error) {
	return FromCartesian(ShapeCubic, p)
}

func (Cubic) Bounds() (Point, Point) { return Point{0, 0, 0}, Point{1, 1, 1} }

// EffectivenessAxis returns the feature axis that carries a record's
// effectiveness score: the z axis of a cubic space. Spherical spaces have
// none, since every axis they read is caller input behind r, theta or phi.
func EffectivenessAxis(sp Space) (Axis, bool) {
	if c, ok := sp.(Cubic); ok {
		return c.Axes[2], true
	}
	return 0, false
}
