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

// Package ranges defines the integer boxes that index tiles and elements.
//
// Range is a contiguous d-dimensional half-open box; TiledRange1 partitions a
// 1-D interval into tiles; TiledRange is the Cartesian product of one
// TiledRange1 per axis. Ordinals are row-major throughout this module: the
// last axis varies fastest.
package ranges

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/calewis/tiledarray/types/perm"
)

// Range is a contiguous integer box in d dimensions: half-open per axis,
// with row-major strides for ordinal<->coordinate conversion.
//
// The zero value has rank 0 and volume 0; New(nil, nil) builds the rank-0
// range with volume 1 (a scalar box).
type Range struct {
	lo, hi []int
	stride []int
	volume int
}

// New builds a range from lower and upper bounds. Panics when the bounds
// disagree in rank or any axis is inverted.
func New(lo, hi []int) Range {
	if len(lo) != len(hi) {
		exceptions.Panicf("ranges.New: rank mismatch between bounds %v and %v", lo, hi)
	}
	r := Range{
		lo:     append([]int(nil), lo...),
		hi:     append([]int(nil), hi...),
		stride: make([]int, len(lo)),
		volume: 1,
	}
	for axis := len(lo) - 1; axis >= 0; axis-- {
		if hi[axis] < lo[axis] {
			exceptions.Panicf("ranges.New: inverted bounds on axis %d: [%d,%d)", axis, lo[axis], hi[axis])
		}
		r.stride[axis] = r.volume
		r.volume *= hi[axis] - lo[axis]
	}
	return r
}

// NewFromExtents builds a zero-based range with the given extents.
func NewFromExtents(extents ...int) Range {
	lo := make([]int, len(extents))
	return New(lo, extents)
}

// Rank returns the number of dimensions.
func (r Range) Rank() int { return len(r.lo) }

// Lobound returns a copy of the lower bound.
func (r Range) Lobound() []int { return append([]int(nil), r.lo...) }

// Upbound returns a copy of the upper bound.
func (r Range) Upbound() []int { return append([]int(nil), r.hi...) }

// Extent returns the per-axis sizes.
func (r Range) Extent() []int {
	out := make([]int, len(r.lo))
	for i := range r.lo {
		out[i] = r.hi[i] - r.lo[i]
	}
	return out
}

// Volume returns the number of points in the box.
func (r Range) Volume() int { return r.volume }

// Includes reports whether the coordinate lies inside the box.
func (r Range) Includes(coords []int) bool {
	if len(coords) != len(r.lo) {
		return false
	}
	for i, c := range coords {
		if c < r.lo[i] || c >= r.hi[i] {
			return false
		}
	}
	return true
}

// Ordinal maps a coordinate inside the box to its row-major ordinal in
// [0, Volume). Panics on a coordinate outside the box.
func (r Range) Ordinal(coords []int) int {
	if !r.Includes(coords) {
		exceptions.Panicf("Range.Ordinal: coordinate %v outside %s", coords, r)
	}
	ord := 0
	for i, c := range coords {
		ord += (c - r.lo[i]) * r.stride[i]
	}
	return ord
}

// Coord maps a row-major ordinal back to its coordinate.
func (r Range) Coord(ordinal int) []int {
	if ordinal < 0 || ordinal >= r.volume {
		exceptions.Panicf("Range.Coord: ordinal %d outside volume %d", ordinal, r.volume)
	}
	coords := make([]int, len(r.lo))
	for i := range coords {
		coords[i] = r.lo[i] + ordinal/r.stride[i]
		ordinal %= r.stride[i]
	}
	return coords
}

// Permute returns the range with its axes reordered by p.
func (r Range) Permute(p perm.Permutation) Range {
	if p.IsIdentity() {
		return r
	}
	return New(p.Apply(r.lo), p.Apply(r.hi))
}

// Equal reports whether both ranges span the same box.
func (r Range) Equal(other Range) bool {
	if len(r.lo) != len(other.lo) {
		return false
	}
	for i := range r.lo {
		if r.lo[i] != other.lo[i] || r.hi[i] != other.hi[i] {
			return false
		}
	}
	return true
}

// String renders the box as a product of half-open intervals.
func (r Range) String() string {
	parts := make([]string, len(r.lo))
	for i := range r.lo {
		parts[i] = fmt.Sprintf("[%d,%d)", r.lo[i], r.hi[i])
	}
	return strings.Join(parts, "x")
}
