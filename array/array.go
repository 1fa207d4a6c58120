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

// Package array implements the distributed tiled array: a TiledRange, a
// shape, a process map and a distributed store of tile futures.
//
// Tile slots are write-once per evaluation; assignment of a new expression
// result replaces the array wholesale. Reading a structurally zero tile is
// undefined — callers consult the shape first.
package array

import (
	"math"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/ranges"
)

// Array is a distributed tiled tensor. Construction is collective: every
// rank of the world must construct the same array in the same order.
type Array struct {
	world  *runtime.World
	trange ranges.TiledRange
	shape  shapes.Shape
	pmap   pmaps.Pmap
	store  *runtime.Store[*tiles.Tile]
}

// New creates a distributed array. A nil pmap defaults to a blocked
// distribution over the tile grid.
func New(world *runtime.World, trange ranges.TiledRange, shape shapes.Shape, pmap pmaps.Pmap) *Array {
	if pmap == nil {
		pmap = pmaps.NewBlocked(world, trange.TilesRange().Volume())
	}
	if pmap.Size() != trange.TilesRange().Volume() {
		exceptions.Panicf("array.New: pmap of %d tiles for grid %s", pmap.Size(), trange.TilesRange())
	}
	return &Array{
		world:  world,
		trange: trange,
		shape:  shape,
		pmap:   pmap,
		store:  runtime.NewStore[*tiles.Tile](world, "array"),
	}
}

// Shell returns an uninitialized array bound to a world: a valid assignment
// target whose contents arrive with the first expression assignment.
func Shell(world *runtime.World) *Array {
	return &Array{world: world}
}

// IsInitialized reports whether the array holds a tile store yet.
func (a *Array) IsInitialized() bool { return a.store != nil }

// World returns the world the array lives in.
func (a *Array) World() *runtime.World { return a.world }

// TRange returns the tiled range.
func (a *Array) TRange() ranges.TiledRange { return a.trange }

// Shape returns the sparsity shape.
func (a *Array) Shape() shapes.Shape { return a.shape }

// Pmap returns the process map.
func (a *Array) Pmap() pmaps.Pmap { return a.pmap }

// Store returns the distributed tile store.
func (a *Array) Store() *runtime.Store[*tiles.Tile] { return a.store }

// IsZero reports whether the tile is structurally zero.
func (a *Array) IsZero(ordinal int) bool { return a.shape.IsZero(ordinal) }

// IsLocal reports whether the tile is owned by the calling rank.
func (a *Array) IsLocal(ordinal int) bool { return a.pmap.IsLocal(ordinal) }

// Locals returns the calling rank's tile ordinals in increasing order.
func (a *Array) Locals() []int { return a.pmap.Locals() }

// SetTile binds the local tile slot to a future. Write-once; only the owner
// rank may set a tile.
func (a *Array) SetTile(ordinal int, f *runtime.Future[*tiles.Tile]) {
	if !a.pmap.IsLocal(ordinal) {
		exceptions.Panicf("Array.SetTile: tile %d is owned by rank %d, not %d",
			ordinal, a.pmap.Owner(ordinal), a.world.Rank())
	}
	a.store.Set(ordinal, f)
}

// SetTileValue binds the local tile slot to an already-computed tile.
func (a *Array) SetTileValue(ordinal int, t *tiles.Tile) {
	a.SetTile(ordinal, runtime.Ready(t))
}

// Tile returns the future of the given tile; a remote ordinal triggers an
// eager fetch. Panics on a structurally zero tile.
func (a *Array) Tile(ordinal int) *runtime.Future[*tiles.Tile] {
	if a.shape.IsZero(ordinal) {
		exceptions.Panicf("Array.Tile: tile %d is structurally zero", ordinal)
	}
	return a.store.Get(ordinal)
}

// Fill sets every local, structurally nonzero tile to the given constant and
// fences. Collective.
func (a *Array) Fill(value float64) {
	a.FillLocal(func(_ int, rng ranges.Range) *tiles.Tile {
		return tiles.NewFilled(rng, value)
	})
}

// FillLocal populates every local, structurally nonzero tile from gen and
// fences. Collective.
func (a *Array) FillLocal(gen func(ordinal int, rng ranges.Range) *tiles.Tile) {
	n := 0
	for _, ordinal := range a.pmap.Locals() {
		if a.shape.IsZero(ordinal) {
			continue
		}
		a.SetTileValue(ordinal, gen(ordinal, a.trange.MakeTileRange(ordinal)))
		n++
	}
	klog.V(2).Infof("rank %d: filled %d local tiles", a.world.Rank(), n)
	a.world.Fence()
}

// Norm returns the Frobenius norm of the whole array. Collective.
func (a *Array) Norm() float64 {
	local := 0.0
	for _, ordinal := range a.pmap.Locals() {
		if a.shape.IsZero(ordinal) {
			continue
		}
		t := a.store.Get(ordinal).Must()
		local += tiles.SquaredNorm(t)
	}
	return math.Sqrt(a.world.AllReduceSum([]float64{local})[0])
}

// Clone returns a deep copy with the same distribution. Collective.
func (a *Array) Clone() *Array {
	out := New(a.world, a.trange, a.shape, a.pmap)
	for _, ordinal := range a.pmap.Locals() {
		if a.shape.IsZero(ordinal) {
			continue
		}
		out.SetTileValue(ordinal, a.store.Get(ordinal).Must().Clone())
	}
	a.world.Fence()
	return out
}

// Equal compares two arrays tile-wise: equal tiled ranges, the same
// structurally zero tiles in both, and equal tile data wherever both are
// nonzero. Collective over a.World().
func (a *Array) Equal(b *Array) bool {
	localEqual := a.trange.Equal(b.trange)
	if localEqual {
		for _, ordinal := range a.pmap.Locals() {
			az, bz := a.shape.IsZero(ordinal), b.shape.IsZero(ordinal)
			if az != bz {
				localEqual = false
				break
			}
			if az {
				continue
			}
			at, err := a.store.Get(ordinal).Get()
			if err != nil {
				localEqual = false
				break
			}
			bt, err := b.store.Get(ordinal).Get()
			if err != nil {
				localEqual = false
				break
			}
			if !at.Equal(bt) {
				localEqual = false
				break
			}
		}
	}
	agree := runtime.AllReduce(a.world, "array-equal", localEqual, func(x, y bool) bool { return x && y })
	return agree
}

// Swap exchanges the contents of two arrays. Used by assignment to publish
// a fully evaluated result atomically.
func (a *Array) Swap(b *Array) { *a, *b = *b, *a }
