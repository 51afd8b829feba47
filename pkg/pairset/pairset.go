// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pairset provides a generic bidirectional many-to-many relation.
//
// A PairSet is a deduplicated set of (left, right) pairs that can be
// queried from either side: all rights for a left, all lefts for a right.
// Both directions stay consistent because the set of pairs is the single
// source of truth; there are no separate per-direction maps to drift apart.
//
// Iteration order is deterministic (pairs sorted by left, then right),
// which keeps serialized output reproducible.
//
// # Basic Usage
//
//	groups := pairset.New[string, int]()
//	groups.Insert("ring", 0)
//	groups.Insert("ring", 1)
//	groups.Insert("tail", 1)
//
//	groups.Left("ring")  // [0, 1]
//	groups.Right(1)      // ["ring", "tail"]
//
// # Thread Safety
//
// PairSet is not safe for concurrent mutation. Callers that share a
// PairSet across goroutines must synchronize externally or treat it as
// immutable after construction.
package pairset

import (
	"cmp"
	"encoding/json"
	"slices"
)

// Pair is one (left, right) element of the relation.
type Pair[L, R cmp.Ordered] struct {
	Left  L `json:"left"`
	Right R `json:"right"`
}

// PairSet is a deduplicated, ordered set of (left, right) pairs.
//
// The zero value is an empty, usable relation.
type PairSet[L, R cmp.Ordered] struct {
	pairs []Pair[L, R]
}

// New returns an empty PairSet.
func New[L, R cmp.Ordered]() *PairSet[L, R] {
	return &PairSet[L, R]{}
}

// FromPairs builds a PairSet from a pair slice, deduplicating as it goes.
func FromPairs[L, R cmp.Ordered](pairs []Pair[L, R]) *PairSet[L, R] {
	s := New[L, R]()
	for _, p := range pairs {
		s.Insert(p.Left, p.Right)
	}
	return s
}

func comparePairs[L, R cmp.Ordered](a, b Pair[L, R]) int {
	if c := cmp.Compare(a.Left, b.Left); c != 0 {
		return c
	}
	return cmp.Compare(a.Right, b.Right)
}

// Len returns the number of distinct pairs.
func (s *PairSet[L, R]) Len() int {
	return len(s.pairs)
}

// Insert adds a pair to the relation.
//
// Returns true if the pair was not already present.
func (s *PairSet[L, R]) Insert(left L, right R) bool {
	p := Pair[L, R]{Left: left, Right: right}
	i, found := slices.BinarySearchFunc(s.pairs, p, comparePairs)
	if found {
		return false
	}
	s.pairs = slices.Insert(s.pairs, i, p)
	return true
}

// InsertLeft associates one left value with every right in rights.
func (s *PairSet[L, R]) InsertLeft(left L, rights ...R) {
	for _, r := range rights {
		s.Insert(left, r)
	}
}

// InsertRight associates one right value with every left in lefts.
func (s *PairSet[L, R]) InsertRight(right R, lefts ...L) {
	for _, l := range lefts {
		s.Insert(l, right)
	}
}

// Remove deletes a single pair. Returns true if it was present.
func (s *PairSet[L, R]) Remove(left L, right R) bool {
	p := Pair[L, R]{Left: left, Right: right}
	i, found := slices.BinarySearchFunc(s.pairs, p, comparePairs)
	if !found {
		return false
	}
	s.pairs = slices.Delete(s.pairs, i, i+1)
	return true
}

// RemoveLeft deletes every pair with the given left value.
func (s *PairSet[L, R]) RemoveLeft(left L) {
	s.pairs = slices.DeleteFunc(s.pairs, func(p Pair[L, R]) bool {
		return p.Left == left
	})
}

// RemoveRight deletes every pair with the given right value.
func (s *PairSet[L, R]) RemoveRight(right R) {
	s.pairs = slices.DeleteFunc(s.pairs, func(p Pair[L, R]) bool {
		return p.Right == right
	})
}

// Contains reports whether the pair is present.
func (s *PairSet[L, R]) Contains(left L, right R) bool {
	_, found := slices.BinarySearchFunc(s.pairs, Pair[L, R]{Left: left, Right: right}, comparePairs)
	return found
}

// Left returns all rights associated with the given left, in order.
func (s *PairSet[L, R]) Left(left L) []R {
	var rights []R
	for _, p := range s.pairs {
		if p.Left == left {
			rights = append(rights, p.Right)
		}
	}
	return rights
}

// Right returns all lefts associated with the given right, in order.
func (s *PairSet[L, R]) Right(right R) []L {
	var lefts []L
	for _, p := range s.pairs {
		if p.Right == right {
			lefts = append(lefts, p.Left)
		}
	}
	return lefts
}

// Lefts returns the distinct left values, in order.
func (s *PairSet[L, R]) Lefts() []L {
	var lefts []L
	for _, p := range s.pairs {
		if len(lefts) == 0 || lefts[len(lefts)-1] != p.Left {
			lefts = append(lefts, p.Left)
		}
	}
	return lefts
}

// Rights returns the distinct right values, in order.
func (s *PairSet[L, R]) Rights() []R {
	seen := make(map[R]struct{}, len(s.pairs))
	var rights []R
	for _, p := range s.pairs {
		if _, ok := seen[p.Right]; !ok {
			seen[p.Right] = struct{}{}
			rights = append(rights, p.Right)
		}
	}
	slices.Sort(rights)
	return rights
}

// Pairs returns a copy of all pairs in deterministic order.
func (s *PairSet[L, R]) Pairs() []Pair[L, R] {
	return slices.Clone(s.pairs)
}

// Extend inserts every pair from other into s.
func (s *PairSet[L, R]) Extend(other *PairSet[L, R]) {
	if other == nil {
		return
	}
	for _, p := range other.pairs {
		s.Insert(p.Left, p.Right)
	}
}

// Map returns a new PairSet with fn applied to every pair.
//
// Used for index shifting: pairs that map to the same value collapse.
func (s *PairSet[L, R]) Map(fn func(L, R) (L, R)) *PairSet[L, R] {
	out := New[L, R]()
	for _, p := range s.pairs {
		l, r := fn(p.Left, p.Right)
		out.Insert(l, r)
	}
	return out
}

// Filter returns a new PairSet containing only pairs accepted by keep.
func (s *PairSet[L, R]) Filter(keep func(L, R) bool) *PairSet[L, R] {
	out := New[L, R]()
	for _, p := range s.pairs {
		if keep(p.Left, p.Right) {
			out.Insert(p.Left, p.Right)
		}
	}
	return out
}

// Clone returns an independent copy of the relation.
func (s *PairSet[L, R]) Clone() *PairSet[L, R] {
	return &PairSet[L, R]{pairs: slices.Clone(s.pairs)}
}

// MarshalJSON encodes the relation as a sorted array of pairs.
func (s *PairSet[L, R]) MarshalJSON() ([]byte, error) {
	if s.pairs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.pairs)
}

// UnmarshalJSON decodes a pair array, restoring sorted dedup order.
func (s *PairSet[L, R]) UnmarshalJSON(data []byte) error {
	var pairs []Pair[L, R]
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	s.pairs = nil
	for _, p := range pairs {
		s.Insert(p.Left, p.Right)
	}
	return nil
}
