/*
 *	Copyright 2024 Cale Lewis
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package perm implements axis permutations.
//
// A Permutation is a bijection on {0..n-1} stored as its image sequence:
// applying p to a coordinate tuple x produces y with y[p[i]] = x[i]. The
// empty permutation is the distinguished identity value; every function that
// accepts a permutation treats it as a no-op.
package perm

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
)

// Permutation is the image sequence of a bijection on {0..n-1}. The zero
// value (nil) is the identity.
type Permutation []int

// Identity returns the identity permutation.
func Identity() Permutation { return nil }

// New builds a permutation from its image sequence and validates that it is
// a bijection. Panics on a non-bijective image.
func New(image ...int) Permutation {
	seen := make([]bool, len(image))
	for _, to := range image {
		if to < 0 || to >= len(image) || seen[to] {
			exceptions.Panicf("perm.New(%v): image is not a bijection on {0..%d}", image, len(image)-1)
		}
		seen[to] = true
	}
	return Permutation(image)
}

// IsIdentity reports whether p is the distinguished identity value.
//
// A permutation whose image happens to be 0,1,..,n-1 is not normalized to
// the identity; use Normalize for that.
func (p Permutation) IsIdentity() bool { return len(p) == 0 }

// Normalize returns the identity value when p's image is the trivial
// sequence, and p unchanged otherwise.
func (p Permutation) Normalize() Permutation {
	for i, to := range p {
		if to != i {
			return p
		}
	}
	return Identity()
}

// Size returns the number of axes p acts on. Zero for the identity.
func (p Permutation) Size() int { return len(p) }

// Equal reports whether both permutations have the same image sequence.
func (p Permutation) Equal(other Permutation) bool {
	if len(p) != len(other) {
		return false
	}
	for i, to := range p {
		if other[i] != to {
			return false
		}
	}
	return true
}

// Apply permutes a coordinate tuple: result[p[i]] = coords[i]. The identity
// returns a copy of coords. Panics when the tuple length does not match.
func (p Permutation) Apply(coords []int) []int {
	out := make([]int, len(coords))
	if p.IsIdentity() {
		copy(out, coords)
		return out
	}
	if len(coords) != len(p) {
		exceptions.Panicf("Permutation.Apply: %d coordinates for a %d-axis permutation", len(coords), len(p))
	}
	for i, c := range coords {
		out[p[i]] = c
	}
	return out
}

// Compose returns the permutation equivalent to applying q first and then p.
func (p Permutation) Compose(q Permutation) Permutation {
	if p.IsIdentity() {
		return q
	}
	if q.IsIdentity() {
		return p
	}
	if len(p) != len(q) {
		exceptions.Panicf("Permutation.Compose: size mismatch %d vs %d", len(p), len(q))
	}
	out := make(Permutation, len(p))
	for i := range q {
		out[i] = p[q[i]]
	}
	return out.Normalize()
}

// Inverse returns the permutation q with q.Apply(p.Apply(x)) == x.
func (p Permutation) Inverse() Permutation {
	if p.IsIdentity() {
		return Identity()
	}
	out := make(Permutation, len(p))
	for from, to := range p {
		out[to] = from
	}
	return out
}

// String renders the image sequence, e.g. "{0->2, 1->0, 2->1}".
func (p Permutation) String() string {
	if p.IsIdentity() {
		return "{identity}"
	}
	parts := make([]string, len(p))
	for i, to := range p {
		parts[i] = fmt.Sprintf("%d->%d", i, to)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
