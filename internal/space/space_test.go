package space

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlimBron57/bitacora-sub000/internal/errs"
)

const eps = 1e-9

func randomVector(r *rand.Rand) FeatureVector {
	var v FeatureVector
	for i := range v {
		v[i] = r.Float64()
	}
	return v
}

func TestNewFeatureVector_Validation(t *testing.T) {
	_, err := NewFeatureVector([]float64{0.1, 0.2})
	require.ErrorIs(t, err, errs.ErrInvalidFeatureVector)

	_, err = NewFeatureVector([]float64{0.1, 0.2, 1.5, 0, 0, 0, 0})
	require.ErrorIs(t, err, errs.ErrInvalidFeatureVector)

	_, err = NewFeatureVector([]float64{0.1, math.NaN(), 0, 0, 0, 0, 0})
	require.ErrorIs(t, err, errs.ErrInvalidFeatureVector)

	v, err := NewFeatureVector([]float64{0, 1, 0.5, 0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Get(AxisSyntactic))
}

func TestSpherical_CoordinateDomain(t *testing.T) {
	sp := DefaultSpherical()
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 2000; i++ {
		c, err := sp.ToCoordinates(randomVector(rng))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c.R(), 0.0)
		assert.GreaterOrEqual(t, c.Theta(), 0.0)
		assert.Less(t, c.Theta(), 2*math.Pi)
		assert.GreaterOrEqual(t, c.Phi(), 0.0)
		assert.LessOrEqual(t, c.Phi(), math.Pi)
	}
}

func TestSpherical_Corners(t *testing.T) {
	sp := DefaultSpherical()

	zero, err := sp.ToCoordinates(FeatureVector{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, zero.R())
	// atan2(0,0)+pi = pi
	assert.InDelta(t, math.Pi, zero.Theta(), eps)
	assert.InDelta(t, math.Pi, zero.Phi(), eps)

	var ones FeatureVector
	for i := range ones {
		ones[i] = 1
	}
	c, err := sp.ToCoordinates(ones)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c.R(), eps)
	assert.InDelta(t, 0.0, c.Phi(), eps)
}

func TestSpherical_Deterministic(t *testing.T) {
	sp := DefaultSpherical()
	v := FeatureVector{0.3, 0.1, 0.9, 0.4, 0.7, 0.2, 0.5}
	a, err := sp.ToCoordinates(v)
	require.NoError(t, err)
	b, err := sp.ToCoordinates(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCubic_CoordinateDomain(t *testing.T) {
	cb := DefaultCubic()
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 1000; i++ {
		v := randomVector(rng)
		c, err := cb.ToCoordinates(v)
		require.NoError(t, err)
		assert.Equal(t, v[AxisSemantic], c.X())
		assert.Equal(t, v[AxisSyntactic], c.Y())
		assert.Equal(t, v[AxisRelational], c.Z())
	}
}

func TestToCoordinates_RejectsInvalidVector(t *testing.T) {
	bad := FeatureVector{0, 0, 2, 0, 0, 0, 0}
	_, err := DefaultSpherical().ToCoordinates(bad)
	require.ErrorIs(t, err, errs.ErrInvalidFeatureVector)
	_, err = DefaultCubic().ToCoordinates(bad)
	require.ErrorIs(t, err, errs.ErrInvalidFeatureVector)
}

func TestCoordinates_Validation(t *testing.T) {
	cases := []struct {
		name  string
		shape Shape
		a     [3]float64
	}{
		{"negative radius", ShapeSpherical, [3]float64{-0.1, 0, 0}},
		{"theta at 2pi", ShapeSpherical, [3]float64{1, 2 * math.Pi, 0}},
		{"phi above pi", ShapeSpherical, [3]float64{1, 0, math.Pi + 0.01}},
		{"cubic above one", ShapeCubic, [3]float64{0, 1.01, 0}},
		{"cubic negative", ShapeCubic, [3]float64{0, 0, -0.01}},
		{"nan", ShapeCubic, [3]float64{math.NaN(), 0, 0}},
		{"unknown shape", Shape(9), [3]float64{0, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCoordinates(tc.shape, tc.a[0], tc.a[1], tc.a[2])
			require.ErrorIs(t, err, errs.ErrInvalidCoordinates)
		})
	}
}

func TestDistance_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for _, sp := range []Space{DefaultSpherical(), DefaultCubic()} {
		t.Run(sp.Shape().String(), func(t *testing.T) {
			for i := 0; i < 500; i++ {
				a, err := sp.ToCoordinates(randomVector(rng))
				require.NoError(t, err)
				b, err := sp.ToCoordinates(randomVector(rng))
				require.NoError(t, err)

				assert.Equal(t, 0.0, sp.Distance(a, a))
				dab, dba := sp.Distance(a, b), sp.Distance(b, a)
				assert.GreaterOrEqual(t, dab, 0.0)
				assert.InDelta(t, dab, dba, eps)
				// law of cosines agrees with the Cartesian chord
				assert.InDelta(t, sp.ToCartesian(a).Dist(sp.ToCartesian(b)), dab, 1e-7)
			}
		})
	}
}

func TestCartesianRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	for _, sp := range []Space{DefaultSpherical(), DefaultCubic()} {
		t.Run(sp.Shape().String(), func(t *testing.T) {
			for i := 0; i < 500; i++ {
				c, err := sp.ToCoordinates(randomVector(rng))
				require.NoError(t, err)
				back, err := sp.FromCartesian(sp.ToCartesian(c))
				require.NoError(t, err)
				assert.InDelta(t, 0, sp.Distance(c, back), 1e-7)
			}
		})
	}
}

func TestFromCartesian_Degenerate(t *testing.T) {
	c, err := FromCartesian(ShapeSpherical, Point{})
	require.NoError(t, err)
	assert.Equal(t, [3]float64{0, 0, 0}, c.Components())

	// negative y lands in the upper half of [0, 2pi)
	c, err = FromCartesian(ShapeSpherical, Point{X: 0, Y: -1, Z: 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.5*math.Pi, c.Theta(), eps)
	assert.InDelta(t, math.Pi/2, c.Phi(), eps)
}

func TestBounds_ContainCartesianProjection(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	for _, sp := range []Space{DefaultSpherical(), DefaultCubic()} {
		lo, hi := sp.Bounds()
		for i := 0; i < 500; i++ {
			c, err := sp.ToCoordinates(randomVector(rng))
			require.NoError(t, err)
			p := sp.ToCartesian(c)
			assert.True(t, p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y && p.Z >= lo.Z && p.Z <= hi.Z, "point %v outside bounds", p)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := FeatureVector{1, 0, 0, 0, 0, 0, 0}
	b := FeatureVector{0, 1, 0, 0, 0, 0, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), eps)
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), eps)
	assert.Equal(t, 0.0, CosineSimilarity(a, FeatureVector{}))

	c := FeatureVector{0.2, 0.4, 0.1, 0.9, 0.3, 0.3, 0.6}
	d := FeatureVector{0.5, 0.1, 0.7, 0.2, 0.8, 0.1, 0.4}
	assert.InDelta(t, CosineSimilarity(c, d), CosineSimilarity(d, c), eps)
}

func TestCoordinatesJSON(t *testing.T) {
	c, err := NewSpherical(0.5, 1.25, 2)
	require.NoError(t, err)
	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shape":"spherical","v":[0.5,1.25,2]}`, string(b))

	var got Coordinates
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, c, got)

	err = json.Unmarshal([]byte(`{"shape":"cubic","v":[2,0,0]}`), &got)
	require.ErrorIs(t, err, errs.ErrInvalidCoordinates)
}

func TestParseShapeAndAxis(t *testing.T) {
	s, err := ParseShape("Cubic")
	require.NoError(t, err)
	assert.Equal(t, ShapeCubic, s)
	_, err = ParseShape("torus")
	assert.Error(t, err)

	a, err := ParseAxis("biographical")
	require.NoError(t, err)
	assert.Equal(t, AxisBiographical, a)
	assert.Equal(t, []string{"semantic", "syntactic", "emotional", "intentional", "contextual", "biographical", "relational"}, AxisNames())
}
