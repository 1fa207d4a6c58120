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

// Package shapes answers the structural question "is this tile zero?".
//
// A Shape is either dense — every tile may be nonzero — or sparse: a
// replicated tensor of tile norms plus a threshold τ, with the invariant
// IsZero(t) ⇔ norm[t] < τ. Sparse shapes are built collectively: each rank
// contributes the norms of its local tiles (zero elsewhere) and an
// element-wise all-reduce sum replicates the full norm tensor. Shapes are
// immutable after construction and freely shared.
package shapes

import (
	"math"

	"github.com/gomlx/exceptions"

	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/types/perm"
	"github.com/calewis/tiledarray/types/ranges"
)

// Shape is an immutable tile-sparsity descriptor. The zero value is dense.
type Shape struct {
	sparse    bool
	tiles     ranges.Range
	norms     []float64
	threshold float64
}

// Dense returns the shape under which every tile may be nonzero.
func Dense() Shape { return Shape{} }

// machineEpsilon is the float64 unit roundoff.
var machineEpsilon = math.Nextafter(1, 2) - 1

// DefaultThreshold derives τ from the floating-point epsilon scaled by the
// total element volume: 1e3 * eps * sqrt(volume). Used wherever a caller
// leaves the threshold unset.
func DefaultThreshold(volume int) float64 {
	if volume < 1 {
		volume = 1
	}
	return 1e3 * machineEpsilon * math.Sqrt(float64(volume))
}

// NewSparse builds a sparse shape collectively. localNorms holds one entry
// per tile of tilesRange (row-major), with nonzero entries only for tiles
// local to the calling rank; the constructor all-reduces the tensor so every
// rank holds the same replicated norms.
func NewSparse(w *runtime.World, tilesRange ranges.Range, localNorms []float64, threshold float64) Shape {
	if len(localNorms) != tilesRange.Volume() {
		exceptions.Panicf("shapes.NewSparse: %d norms for tile grid %s of volume %d",
			len(localNorms), tilesRange, tilesRange.Volume())
	}
	if threshold < 0 || math.IsNaN(threshold) {
		exceptions.Panicf("shapes.NewSparse: invalid threshold %v", threshold)
	}
	norms := w.AllReduceSum(localNorms)
	return Replicated(tilesRange, norms, threshold)
}

// Replicated builds a sparse shape from an already-replicated norm tensor.
func Replicated(tilesRange ranges.Range, norms []float64, threshold float64) Shape {
	if len(norms) != tilesRange.Volume() {
		exceptions.Panicf("shapes.Replicated: %d norms for tile grid %s of volume %d",
			len(norms), tilesRange, tilesRange.Volume())
	}
	return Shape{sparse: true, tiles: tilesRange, norms: norms, threshold: threshold}
}

// IsDense reports whether every tile may be nonzero.
func (s Shape) IsDense() bool { return !s.sparse }

// Threshold returns τ; zero for dense shapes.
func (s Shape) Threshold() float64 { return s.threshold }

// TilesRange returns the tile grid of a sparse shape.
func (s Shape) TilesRange() ranges.Range { return s.tiles }

// Norm returns the norm of tile t; +Inf for dense shapes.
func (s Shape) Norm(t int) float64 {
	if !s.sparse {
		return math.Inf(1)
	}
	s.check(t)
	return s.norms[t]
}

// IsZero reports whether tile t is structurally zero: norm[t] < τ.
func (s Shape) IsZero(t int) bool {
	if !s.sparse {
		return false
	}
	s.check(t)
	return s.norms[t] < s.threshold
}

func (s Shape) check(t int) {
	if t < 0 || t >= len(s.norms) {
		exceptions.Panicf("shapes: tile ordinal %d outside grid of %d tiles", t, len(s.norms))
	}
}

// NonzeroCount returns the number of structurally nonzero tiles, or the grid
// volume for dense shapes over the given grid.
func (s Shape) NonzeroCount(gridVolume int) int {
	if !s.sparse {
		return gridVolume
	}
	n := 0
	for t := range s.norms {
		if !s.IsZero(t) {
			n++
		}
	}
	return n
}

// Permute returns the shape with its norm tensor permuted by p. τ is
// preserved.
func (s Shape) Permute(p perm.Permutation) Shape {
	if !s.sparse || p.IsIdentity() {
		return s
	}
	target := s.tiles.Permute(p)
	norms := make([]float64, len(s.norms))
	for ord := range s.norms {
		norms[target.Ordinal(p.Apply(s.tiles.Coord(ord)))] = s.norms[ord]
	}
	return Shape{sparse: true, tiles: target, norms: norms, threshold: s.threshold}
}

// Scale scales every norm by |factor|, re-thresholding implicitly.
func (s Shape) Scale(factor float64) Shape {
	if !s.sparse {
		return s
	}
	factor = math.Abs(factor)
	norms := make([]float64, len(s.norms))
	for i, n := range s.norms {
		norms[i] = n * factor
	}
	return Shape{sparse: true, tiles: s.tiles, norms: norms, threshold: s.threshold}
}

// Add combines shapes under addition (or subtraction): tile norms add. The
// result is dense when either input is dense.
func (s Shape) Add(other Shape) Shape {
	if !s.sparse || !other.sparse {
		return Dense()
	}
	s.checkGrid(other)
	norms := make([]float64, len(s.norms))
	for i, n := range s.norms {
		norms[i] = n + other.norms[i]
	}
	return Shape{sparse: true, tiles: s.tiles, norms: norms, threshold: s.threshold}
}

// Mult combines shapes under the Hadamard product: tile norms multiply. The
// result is sparse when either input is sparse (a zero factor zeroes the
// tile).
func (s Shape) Mult(other Shape) Shape {
	if !s.sparse {
		return other
	}
	if !other.sparse {
		return s
	}
	s.checkGrid(other)
	norms := make([]float64, len(s.norms))
	for i, n := range s.norms {
		norms[i] = n * other.norms[i]
	}
	return Shape{sparse: true, tiles: s.tiles, norms: norms, threshold: s.threshold}
}

// Contract combines shapes under contraction over a tile grid folded to
// (m × k) · (k × n): result norms accumulate products over the contracted
// index. Dense inputs give a dense result.
func (s Shape) Contract(other Shape, m, k, n int) Shape {
	if !s.sparse || !other.sparse {
		return Dense()
	}
	if len(s.norms) != m*k || len(other.norms) != k*n {
		exceptions.Panicf("shapes.Contract: grids %d and %d do not fold to (%dx%d)·(%dx%d)",
			len(s.norms), len(other.norms), m, k, k, n)
	}
	norms := make([]float64, m*n)
	for i := 0; i < m; i++ {
		for kk := 0; kk < k; kk++ {
			l := s.norms[i*k+kk]
			if l == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				norms[i*n+j] += l * other.norms[kk*n+j]
			}
		}
	}
	return Shape{
		sparse:    true,
		tiles:     ranges.NewFromExtents(m, n),
		norms:     norms,
		threshold: s.threshold,
	}
}

func (s Shape) checkGrid(other Shape) {
	if !s.tiles.Equal(other.tiles) {
		exceptions.Panicf("shapes: tile grid mismatch %s vs %s", s.tiles, other.tiles)
	}
}

// Norms returns a copy of the replicated norm tensor; nil for dense shapes.
func (s Shape) Norms() []float64 {
	if !s.sparse {
		return nil
	}
	return append([]float64(nil), s.norms...)
}
