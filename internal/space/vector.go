package space

import (
	"fmt"
	"math"

	"github.com/SlimBron57/bitacora-sub000/internal/errs"
)

// Dimensions is the fixed length of every FeatureVector.
const Dimensions = 7

// Axis names one component of a FeatureVector.
type Axis int

const (
	AxisSemantic Axis = iota
	AxisSyntactic
	AxisEmotional
	AxisIntentional
	AxisContextual
	AxisBiographical
	AxisRelational
)

var axisNames = [Dimensions]string{
	"semantic",
	"syntactic",
	"emotional",
	"intentional",
	"contextual",
	"biographical",
	"relational",
}

func (a Axis) String() string {
	if a < 0 || int(a) >= Dimensions {
		return fmt.Sprintf("axis(%d)", int(a))
	}
	return axisNames[a]
}

// AxisNames returns the axis names in vector order. Diffs report per-axis
// deltas in exactly this order.
func AxisNames() []string {
	out := make([]string, Dimensions)
	copy(out, axisNames[:])
	return out
}

// ParseAxis resolves an axis by name.
func ParseAxis(name string) (Axis, error) {
	for i, n := range axisNames {
		if n == name {
			return Axis(i), nil
		}
	}
	return 0, fmt.Errorf("unknown axis %q", name)
}

// FeatureVector is a fixed-length vector of normalized components, each in
// [0,1]. It is a value type: copies never alias.
type FeatureVector [Dimensions]float64

// NewFeatureVector builds a FeatureVector from a slice, rejecting wrong
// dimensionality and out-of-range components.
func NewFeatureVector(vals []float64) (FeatureVector, error) {
	var v FeatureVector
	if len(vals) != Dimensions {
		return v, fmt.Errorf("%w: got %d components, want %d", errs.ErrInvalidFeatureVector, len(vals), Dimensions)
	}
	copy(v[:], vals)
	if err := v.Validate(); err != nil {
		return FeatureVector{}, err
	}
	return v, nil
}

// Validate reports whether every component is a finite value in [0,1].
func (v FeatureVector) Validate() error {
	for i, f := range v {
		if math.IsNaN(f) || f < 0 || f > 1 {
			return fmt.Errorf("%w: %s=%v outside [0,1]", errs.ErrInvalidFeatureVector, Axis(i), f)
		}
	}
	return nil
}

// Get returns the component for axis a.
func (v FeatureVector) Get(a Axis) float64 { return v[a] }

// With returns a copy of v with axis a set to val.
func (v FeatureVector) With(a Axis, val float64) FeatureVector {
	v[a] = val
	return v
}

// Slice returns the components as a new slice.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, Dimensions)
	copy(out, v[:])
	return out
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector is
// all zeros. The measure is symmetric.
func CosineSimilarity(a, b FeatureVector) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
