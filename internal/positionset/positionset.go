// Package positionset implements an ordered set of integer text positions
// as a persistent treap. Every operation returns a new Set that shares the
// untouched subtrees of its input; nodes reachable from a Set are never
// modified, so a published Set can be read from any goroutine without
// locking.
package positionset

import (
	"fmt"
	"math/rand/v2"
)

type node struct {
	key      int
	priority uint32
	size     int
	left     *node
	right    *node
}

func size(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

// with returns a copy of n carrying the given children.
func with(n, left, right *node) *node {
	return &node{
		key:      n.key,
		priority: n.priority,
		size:     1 + size(left) + size(right),
		left:     left,
		right:    right,
	}
}

// Set is an immutable ordered set of positions. The zero value is empty.
type Set struct {
	root *node
}

// Build constructs a Set in O(n) from keys that are already sorted in
// strictly increasing order.
func Build(sortedDistinctKeys []int) Set {
	if len(sortedDistinctKeys) == 0 {
		return Set{}
	}
	// Cartesian-tree construction along the right spine.
	stack := make([]*node, 0, 32)
	for _, k := range sortedDistinctKeys {
		n := &node{key: k, priority: rand.Uint32()}
		var last *node
		for len(stack) > 0 && stack[len(stack)-1].priority < n.priority {
			last = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}
		n.left = last
		if len(stack) > 0 {
			stack[len(stack)-1].right = n
		}
		stack = append(stack, n)
	}
	root := stack[0]
	fixSizes(root)
	return Set{root: root}
}

func fixSizes(n *node) int {
	if n == nil {
		return 0
	}
	n.size = 1 + fixSizes(n.left) + fixSizes(n.right)
	return n.size
}

// Split partitions s into the keys <= x and the keys > x.
func Split(s Set, x int) (Set, Set) {
	l, r := split(s.root, x)
	return Set{root: l}, Set{root: r}
}

func split(n *node, x int) (*node, *node) {
	if n == nil {
		return nil, nil
	}
	if n.key <= x {
		l, r := split(n.right, x)
		return with(n, n.left, l), r
	}
	l, r := split(n.left, x)
	return l, with(n, r, n.right)
}

// Merge joins two sets. Every key of left must be smaller than every key of
// right; builds tagged highlightdebug panic when it is not.
func Merge(left, right Set) Set {
	if debugChecks && left.root != nil && right.root != nil {
		lmax, _ := left.Max()
		rmin, _ := right.Min()
		if lmax >= rmin {
			panic(fmt.Sprintf("positionset: merge of unordered sets (left max %d >= right min %d)", lmax, rmin))
		}
	}
	return Set{root: merge(left.root, right.root)}
}

func merge(a, b *node) *node {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.priority >= b.priority {
		return with(a, a.left, merge(a.right, b))
	}
	return with(b, merge(a, b.left), b.right)
}

// Insert returns s with x added.
func (s Set) Insert(x int) Set {
	if s.Contains(x) {
		return s
	}
	l, r := Split(s, x)
	single := Set{root: &node{key: x, priority: rand.Uint32(), size: 1}}
	return Merge(Merge(l, single), r)
}

// Remove returns s without x.
func (s Set) Remove(x int) Set {
	l, rest := Split(s, x-1)
	mid, r := Split(rest, x)
	if mid.root == nil {
		return s
	}
	return Merge(l, r)
}

// Contains reports whether x is in s.
func (s Set) Contains(x int) bool {
	n := s.root
	for n != nil {
		switch {
		case x < n.key:
			n = n.left
		case x > n.key:
			n = n.right
		default:
			return true
		}
	}
	return false
}

// Len returns the number of keys.
func (s Set) Len() int {
	return size(s.root)
}

// Empty reports whether s has no keys.
func (s Set) Empty() bool {
	return s.root == nil
}

// Min returns the smallest key; ok is false when s is empty.
func (s Set) Min() (key int, ok bool) {
	n := s.root
	if n == nil {
		return 0, false
	}
	for n.left != nil {
		n = n.left
	}
	return n.key, true
}

// Max returns the largest key; ok is false when s is empty.
func (s Set) Max() (key int, ok bool) {
	n := s.root
	if n == nil {
		return 0, false
	}
	for n.right != nil {
		n = n.right
	}
	return n.key, true
}

// Floor returns the greatest key <= x.
func (s Set) Floor(x int) (key int, ok bool) {
	n := s.root
	for n != nil {
		if n.key <= x {
			key, ok = n.key, true
			n = n.right
		} else {
			n = n.left
		}
	}
	return key, ok
}

// ForEachInRange calls visit for every key in [lo, hi] in ascending order
// until visit returns false. It reports whether the walk ran to completion.
func (s Set) ForEachInRange(lo, hi int, visit func(key int) bool) bool {
	if lo > hi {
		return true
	}
	return forEach(s.root, lo, hi, visit)
}

func forEach(n *node, lo, hi int, visit func(int) bool) bool {
	if n == nil {
		return true
	}
	if n.key > lo {
		if !forEach(n.left, lo, hi, visit) {
			return false
		}
	}
	if n.key >= lo && n.key <= hi {
		if !visit(n.key) {
			return false
		}
	}
	if n.key < hi {
		return forEach(n.right, lo, hi, visit)
	}
	return true
}

// Keys returns all keys in ascending order.
func (s Set) Keys() []int {
	keys := make([]int, 0, s.Len())
	appendKeys(s.root, &keys)
	return keys
}

func appendKeys(n *node, keys *[]int) {
	if n == nil {
		return
	}
	appendKeys(n.left, keys)
	*keys = append(*keys, n.key)
	appendKeys(n.right, keys)
}

// Shift returns a set of the same shape with delta added to every key.
func (s Set) Shift(delta int) Set {
	if delta == 0 {
		return s
	}
	return Set{root: shift(s.root, delta)}
}

func shift(n *node, delta int) *node {
	if n == nil {
		return nil
	}
	return &node{
		key:      n.key + delta,
		priority: n.priority,
		size:     n.size,
		left:     shift(n.left, delta),
		right:    shift(n.right, delta),
	}
}
