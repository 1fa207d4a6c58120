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

package ranges

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/calewis/tiledarray/types/perm"
)

// TiledRange1 partitions a 1-D half-open interval into contiguous tiles by a
// strictly increasing boundary sequence: tile i spans
// [boundaries[i], boundaries[i+1]).
type TiledRange1 struct {
	boundaries []int
}

// NewTiledRange1 builds a 1-D tiling from its boundaries. At least two
// boundaries are required and they must be strictly increasing.
func NewTiledRange1(boundaries ...int) TiledRange1 {
	if len(boundaries) < 2 {
		exceptions.Panicf("ranges.NewTiledRange1(%v): at least two boundaries required", boundaries)
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			exceptions.Panicf("ranges.NewTiledRange1(%v): boundaries must be strictly increasing", boundaries)
		}
	}
	return TiledRange1{boundaries: append([]int(nil), boundaries...)}
}

// Uniform partitions [0, extent) into tiles of the given block size; when
// block does not divide extent, the last tile holds the shorter remainder.
func Uniform(extent, block int) TiledRange1 {
	if extent <= 0 || block <= 0 {
		exceptions.Panicf("ranges.Uniform(%d, %d): extent and block must be positive", extent, block)
	}
	boundaries := []int{0}
	for b := block; b < extent; b += block {
		boundaries = append(boundaries, b)
	}
	return NewTiledRange1(append(boundaries, extent)...)
}

// TileCount returns the number of tiles.
func (t TiledRange1) TileCount() int { return len(t.boundaries) - 1 }

// ElementCount returns the number of elements spanned.
func (t TiledRange1) ElementCount() int {
	return t.boundaries[len(t.boundaries)-1] - t.boundaries[0]
}

// ElementStart returns the first element of the interval.
func (t TiledRange1) ElementStart() int { return t.boundaries[0] }

// ElementFinish returns the past-the-end element of the interval.
func (t TiledRange1) ElementFinish() int { return t.boundaries[len(t.boundaries)-1] }

// Tile returns the half-open element interval of tile i.
func (t TiledRange1) Tile(i int) (lo, hi int) {
	if i < 0 || i >= t.TileCount() {
		exceptions.Panicf("TiledRange1.Tile(%d): tile index outside [0,%d)", i, t.TileCount())
	}
	return t.boundaries[i], t.boundaries[i+1]
}

// ElementToTile returns the tile whose half-open interval contains element k.
func (t TiledRange1) ElementToTile(k int) int {
	if k < t.ElementStart() || k >= t.ElementFinish() {
		exceptions.Panicf("TiledRange1.ElementToTile(%d): element outside [%d,%d)", k, t.ElementStart(), t.ElementFinish())
	}
	// First boundary strictly greater than k, minus one.
	return sort.SearchInts(t.boundaries, k+1) - 1
}

// Equal reports whether both tilings have identical boundaries.
func (t TiledRange1) Equal(other TiledRange1) bool {
	if len(t.boundaries) != len(other.boundaries) {
		return false
	}
	for i, b := range t.boundaries {
		if other.boundaries[i] != b {
			return false
		}
	}
	return true
}

// String renders the boundary sequence.
func (t TiledRange1) String() string {
	parts := make([]string, len(t.boundaries))
	for i, b := range t.boundaries {
		parts[i] = fmt.Sprint(b)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// TiledRange is the Cartesian product of one TiledRange1 per axis. It exposes
// the box of tile indices, the box of element indices, and the element range
// of each tile.
type TiledRange struct {
	dims     []TiledRange1
	tiles    Range
	elements Range
}

// NewTiledRange builds a tiled range from per-axis tilings.
func NewTiledRange(dims ...TiledRange1) TiledRange {
	tileHi := make([]int, len(dims))
	elemLo := make([]int, len(dims))
	elemHi := make([]int, len(dims))
	for i, d := range dims {
		tileHi[i] = d.TileCount()
		elemLo[i] = d.ElementStart()
		elemHi[i] = d.ElementFinish()
	}
	return TiledRange{
		dims:     append([]TiledRange1(nil), dims...),
		tiles:    New(make([]int, len(dims)), tileHi),
		elements: New(elemLo, elemHi),
	}
}

// Rank returns the number of axes.
func (t TiledRange) Rank() int { return len(t.dims) }

// Dim returns the tiling of the given axis.
func (t TiledRange) Dim(axis int) TiledRange1 { return t.dims[axis] }

// TilesRange returns the box of tile indices.
func (t TiledRange) TilesRange() Range { return t.tiles }

// ElementsRange returns the box of element indices.
func (t TiledRange) ElementsRange() Range { return t.elements }

// MakeTileRange composes the element Range of the tile with the given
// row-major ordinal in the tile grid.
func (t TiledRange) MakeTileRange(ordinal int) Range {
	coords := t.tiles.Coord(ordinal)
	lo := make([]int, len(coords))
	hi := make([]int, len(coords))
	for axis, c := range coords {
		lo[axis], hi[axis] = t.dims[axis].Tile(c)
	}
	return New(lo, hi)
}

// ElementToTile maps an element coordinate to the coordinate of its tile.
func (t TiledRange) ElementToTile(coords []int) []int {
	if len(coords) != len(t.dims) {
		exceptions.Panicf("TiledRange.ElementToTile: %d coordinates for rank %d", len(coords), len(t.dims))
	}
	tile := make([]int, len(coords))
	for axis, c := range coords {
		tile[axis] = t.dims[axis].ElementToTile(c)
	}
	return tile
}

// Permute returns the tiled range with its axes reordered by p.
func (t TiledRange) Permute(p perm.Permutation) TiledRange {
	if p.IsIdentity() {
		return t
	}
	if p.Size() != len(t.dims) {
		exceptions.Panicf("TiledRange.Permute: %d-axis permutation for rank %d", p.Size(), len(t.dims))
	}
	dims := make([]TiledRange1, len(t.dims))
	for from, d := range t.dims {
		dims[p[from]] = d
	}
	return NewTiledRange(dims...)
}

// Equal reports whether both tiled ranges have identical per-axis tilings.
func (t TiledRange) Equal(other TiledRange) bool {
	if len(t.dims) != len(other.dims) {
		return false
	}
	for i, d := range t.dims {
		if !d.Equal(other.dims[i]) {
			return false
		}
	}
	return true
}

// String renders the per-axis tilings.
func (t TiledRange) String() string {
	parts := make([]string, len(t.dims))
	for i, d := range t.dims {
		parts[i] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
