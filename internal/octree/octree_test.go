package octree

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

func unitTree(opts ...Option) *Tree {
	return New(space.Point{}, space.Point{X: 1, Y: 1, Z: 1}, opts...)
}

func bruteForce(pts map[string]space.Point, c space.Point, r float64) []string {
	var out []string
	for id, p := range pts {
		if p.Dist(c) <= r {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func sorted(ids []string) []string {
	sort.Strings(ids)
	return ids
}

func TestQuerySphere_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	tree := unitTree(WithCapacity(4))
	pts := make(map[string]space.Point)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("p%04d", i)
		p := space.Point{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
		pts[id] = p
		tree.Insert(id, p)
	}
	require.Equal(t, 1000, tree.Len())
	assert.Greater(t, tree.Stats().Leaves, 1)

	for i := 0; i < 50; i++ {
		c := space.Point{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
		r := rng.Float64() * 0.4
		assert.Equal(t, bruteForce(pts, c, r), sorted(tree.QuerySphere(c, r)))
	}
}

func TestQuerySphere_FiltersWithinLeaf(t *testing.T) {
	tree := unitTree()
	tree.Insert("near", space.Point{X: 0.1, Y: 0.1, Z: 0.1})
	tree.Insert("far", space.Point{X: 0.4, Y: 0.4, Z: 0.4})

	got := tree.QuerySphere(space.Point{X: 0.1, Y: 0.1, Z: 0.1}, 0.05)
	assert.Equal(t, []string{"near"}, got)
}

func TestRemoveAndMove(t *testing.T) {
	tree := unitTree(WithCapacity(2))
	for i := 0; i < 20; i++ {
		tree.Insert(fmt.Sprintf("p%d", i), space.Point{X: float64(i) / 20, Y: 0.5, Z: 0.5})
	}
	assert.True(t, tree.Remove("p3"))
	assert.False(t, tree.Remove("p3"))
	assert.Equal(t, 19, tree.Len())
	assert.NotContains(t, tree.QuerySphere(space.Point{X: 0.15, Y: 0.5, Z: 0.5}, 0.01), "p3")

	tree.Move("p4", space.Point{X: 0.9, Y: 0.9, Z: 0.9})
	assert.Equal(t, []string{"p4"}, tree.QuerySphere(space.Point{X: 0.9, Y: 0.9, Z: 0.9}, 0.01))
	assert.Equal(t, 19, tree.Len())
}

func TestOverflowPoints(t *testing.T) {
	tree := unitTree()
	tree.Insert("out", space.Point{X: 2, Y: 2, Z: 2})
	assert.Equal(t, 1, tree.Stats().Overflow)
	assert.Equal(t, []string{"out"}, tree.QuerySphere(space.Point{X: 2, Y: 2, Z: 2}, 0))

	// re-inserting inside bounds leaves the overflow list
	tree.Insert("out", space.Point{X: 0.5, Y: 0.5, Z: 0.5})
	assert.Equal(t, 0, tree.Stats().Overflow)
	assert.Equal(t, 1, tree.Len())
}

func TestDuplicatePointsRespectMaxDepth(t *testing.T) {
	tree := unitTree(WithCapacity(1), WithMaxDepth(3))
	p := space.Point{X: 0.3, Y: 0.3, Z: 0.3}
	for i := 0; i < 10; i++ {
		tree.Insert(fmt.Sprintf("d%d", i), p)
	}
	assert.LessOrEqual(t, tree.Stats().MaxDepth, 3)
	assert.Len(t, tree.QuerySphere(p, 0), 10)
}

func TestNegativeRadius(t *testing.T) {
	tree := unitTree()
	tree.Insert("a", space.Point{})
	assert.Empty(t, tree.QuerySphere(space.Point{}, -1))
}
