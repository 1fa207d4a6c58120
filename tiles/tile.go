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

// Package tiles implements the dense numeric blocks the engine moves around,
// and the element-wise and contraction kernels over them.
//
// A Tile is a value type: a float64 buffer bound to an element Range, laid
// out row-major. Ownership of the buffer transfers into the task graph; the
// *To kernel variants mutate their first argument, all others allocate.
// Every kernel is reentrant and free of global state.
package tiles

import (
	"fmt"

	"github.com/gomlx/exceptions"

	"github.com/calewis/tiledarray/types/perm"
	"github.com/calewis/tiledarray/types/ranges"
)

// Tile is a dense float64 block bound to an element range.
type Tile struct {
	rng  ranges.Range
	data []float64
}

// New returns a zero-filled tile over rng.
func New(rng ranges.Range) *Tile {
	return &Tile{rng: rng, data: make([]float64, rng.Volume())}
}

// NewFilled returns a tile over rng with every element set to value.
func NewFilled(rng ranges.Range, value float64) *Tile {
	t := New(rng)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// FromSlice wraps an existing buffer. The buffer length must equal the range
// volume; ownership transfers to the tile.
func FromSlice(rng ranges.Range, data []float64) *Tile {
	if len(data) != rng.Volume() {
		exceptions.Panicf("tiles.FromSlice: %d elements for range %s of volume %d", len(data), rng, rng.Volume())
	}
	return &Tile{rng: rng, data: data}
}

// Range returns the element range the tile is bound to.
func (t *Tile) Range() ranges.Range { return t.rng }

// Data returns the backing buffer (row-major).
func (t *Tile) Data() []float64 { return t.data }

// Volume returns the number of elements.
func (t *Tile) Volume() int { return len(t.data) }

// At returns the element at the given coordinate.
func (t *Tile) At(coords ...int) float64 { return t.data[t.rng.Ordinal(coords)] }

// SetAt stores an element at the given coordinate.
func (t *Tile) SetAt(value float64, coords ...int) { t.data[t.rng.Ordinal(coords)] = value }

// Clone returns a deep copy.
func (t *Tile) Clone() *Tile {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Tile{rng: t.rng, data: data}
}

// Equal reports element-wise equality over equal ranges.
func (t *Tile) Equal(other *Tile) bool {
	if !t.rng.Equal(other.rng) {
		return false
	}
	for i, v := range t.data {
		if other.data[i] != v {
			return false
		}
	}
	return true
}

// Permute returns the tile with axes reordered by p. The identity returns a
// clone, so the result is always safe to consume.
func Permute(t *Tile, p perm.Permutation) *Tile {
	if p.IsIdentity() {
		return t.Clone()
	}
	out := New(t.rng.Permute(p))
	src := t.rng
	for ord := 0; ord < len(t.data); ord++ {
		coords := src.Coord(ord)
		out.data[out.rng.Ordinal(p.Apply(coords))] = t.data[ord]
	}
	return out
}

// String renders the tile range and a volume summary.
func (t *Tile) String() string {
	return fmt.Sprintf("Tile{%s, %d elements}", t.rng, len(t.data))
}

func assertSameVolume(op string, a, b *Tile) {
	if a.Volume() != b.Volume() {
		exceptions.Panicf("tiles.%s: volume mismatch %s vs %s", op, a.rng, b.rng)
	}
}
