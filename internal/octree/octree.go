// Package octree is a point index over Cartesian space used to answer
// radius queries without scanning every record.
//
// The tree is not safe for concurrent use; callers hold their own lock.
package octree

import (
	"github.com/SlimBron57/bitacora-sub000/internal/space"
)

const (
	DefaultCapacity = 10
	DefaultMaxDepth = 8
)

type entry struct {
	id string
	p  space.Point
}

type box struct {
	min, max space.Point
}

func (b box) contains(p space.Point) bool {
	return p.X >= b.min.X && p.X <= b.max.X &&
		p.Y >= b.min.Y && p.Y <= b.max.Y &&
		p.Z >= b.min.Z && p.Z <= b.max.Z
}

func (b box) mid() space.Point {
	return space.Point{
		X: (b.min.X + b.max.X) / 2,
		Y: (b.min.Y + b.max.Y) / 2,
		Z: (b.min.Z + b.max.Z) / 2,
	}
}

// intersectsSphere reports whether any point of b lies within r of c.
func (b box) intersectsSphere(c space.Point, r float64) bool {
	var d2 float64
	for _, ax := range [3][3]float64{
		{c.X, b.min.X, b.max.X},
		{c.Y, b.min.Y, b.max.Y},
		{c.Z, b.min.Z, b.max.Z},
	} {
		v, lo, hi := ax[0], ax[1], ax[2]
		if v < lo {
			d2 += (lo - v) * (lo - v)
		} else if v > hi {
			d2 += (v - hi) * (v - hi)
		}
	}
	return d2 <= r*r
}

type node struct {
	bounds   box
	depth    int
	items    []entry
	children *[8]*node
}

func (n *node) octant(p space.Point) int {
	m := n.bounds.mid()
	i := 0
	if p.X >= m.X {
		i |= 1
	}
	if p.Y >= m.Y {
		i |= 2
	}
	if p.Z >= m.Z {
		i |= 4
	}
	return i
}

func (n *node) split() {
	m := n.bounds.mid()
	var ch [8]*node
	for i := range ch {
		b := box{min: n.bounds.min, max: m}
		if i&1 != 0 {
			b.min.X, b.max.X = m.X, n.bounds.max.X
		}
		if i&2 != 0 {
			b.min.Y, b.max.Y = m.Y, n.bounds.max.Y
		}
		if i&4 != 0 {
			b.min.Z, b.max.Z = m.Z, n.bounds.max.Z
		}
		ch[i] = &node{bounds: b, depth: n.depth + 1}
	}
	n.children = &ch
	items := n.items
	n.items = nil
	for _, e := range items {
		ch[n.octant(e.p)].items = append(ch[n.octant(e.p)].items, e)
	}
}

// Tree indexes points by id. Points outside the root bounds are kept in a
// flat overflow list that every query scans.
type Tree struct {
	root     *node
	capacity int
	maxDepth int
	where    map[string]space.Point
	outside  map[string]space.Point
}

// Option configures a Tree.
type Option func(*Tree)

// WithCapacity sets the number of points a leaf holds before splitting.
func WithCapacity(n int) Option {
	return func(t *Tree) {
		if n > 0 {
			t.capacity = n
		}
	}
}

// WithMaxDepth bounds the subdivision depth.
func WithMaxDepth(d int) Option {
	return func(t *Tree) {
		if d >= 0 {
			t.maxDepth = d
		}
	}
}

// New creates an empty tree covering [min, max].
func New(min, max space.Point, opts ...Option) *Tree {
	t := &Tree{
		root:     &node{bounds: box{min: min, max: max}},
		capacity: DefaultCapacity,
		maxDepth: DefaultMaxDepth,
		where:    make(map[string]space.Point),
		outside:  make(map[string]space.Point),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Len returns the number of indexed points.
func (t *Tree) Len() int { return len(t.where) + len(t.outside) }

// Insert indexes id at p, replacing any previous position for id.
func (t *Tree) Insert(id string, p space.Point) {
	t.Remove(id)
	if !t.root.bounds.contains(p) {
		t.outside[id] = p
		return
	}
	t.where[id] = p
	n := t.root
	for n.children != nil {
		n = n.children[n.octant(p)]
	}
	n.items = append(n.items, entry{id: id, p: p})
	for n.children == nil && len(n.items) > t.capacity && n.depth < t.maxDepth {
		n.split()
		// all points may have landed in one child; keep splitting there
		n = n.children[n.octant(p)]
	}
}

// Remove drops id from the index and reports whether it was present.
func (t *Tree) Remove(id string) bool {
	if _, ok := t.outside[id]; ok {
		delete(t.outside, id)
		return true
	}
	p, ok := t.where[id]
	if !ok {
		return false
	}
	delete(t.where, id)
	n := t.root
	for n.children != nil {
		n = n.children[n.octant(p)]
	}
	for i, e := range n.items {
		if e.id == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			break
		}
	}
	return true
}

// Move re-indexes id at p.
func (t *Tree) Move(id string, p space.Point) { t.Insert(id, p) }

// QuerySphere returns the ids of every point within radius of center,
// inclusive. Order is unspecified.
func (t *Tree) QuerySphere(center space.Point, radius float64) []string {
	if radius < 0 {
		return nil
	}
	var out []string
	stack := []*node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !n.bounds.intersectsSphere(center, radius) {
			continue
		}
		if n.children != nil {
			for _, c := range n.children {
				stack = append(stack, c)
			}
			continue
		}
		for _, e := range n.items {
			if e.p.Dist(center) <= radius {
				out = append(out, e.id)
			}
		}
	}
	for id, p := range t.outside {
		if p.Dist(center) <= radius {
			out = append(out, id)
		}
	}
	return out
}

// Stats describes the tree shape.
type Stats struct {
	Points   int
	Overflow int
	Nodes    int
	Leaves   int
	MaxDepth int
}

func (t *Tree) Stats() Stats {
	s := Stats{Points: t.Len(), Overflow: len(t.outside)}
	stack := []*node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		s.Nodes++
		if n.depth > s.MaxDepth {
			s.MaxDepth = n.depth
		}
		if n.children == nil {
			s.Leaves++
			continue
		}
		for _, c := range n.children {
			stack = append(stack, c)
		}
	}
	return s
}
