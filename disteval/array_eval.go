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

package disteval

import (
	"github.com/calewis/tiledarray/array"
	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/ranges"
)

// ArrayEval sources tiles from a materialized array's store. It is the leaf
// of every evaluator tree; Consumable marks the array as a dead temporary
// whose tiles downstream ops may reuse in place.
type ArrayEval struct {
	arr        *array.Array
	consumable bool
}

// NewArrayEval wraps an array.
func NewArrayEval(arr *array.Array, consumable bool) *ArrayEval {
	return &ArrayEval{arr: arr, consumable: consumable}
}

// World returns the array's world.
func (e *ArrayEval) World() *runtime.World { return e.arr.World() }

// TRange returns the array's tiled range.
func (e *ArrayEval) TRange() ranges.TiledRange { return e.arr.TRange() }

// Shape returns the array's shape.
func (e *ArrayEval) Shape() shapes.Shape { return e.arr.Shape() }

// Pmap returns the array's distribution.
func (e *ArrayEval) Pmap() pmaps.Pmap { return e.arr.Pmap() }

// Get returns the stored tile future.
func (e *ArrayEval) Get(ordinal int) *runtime.Future[*tiles.Tile] {
	return e.arr.Store().Get(ordinal)
}

// Consumable reports whether downstream ops may reuse the tiles' storage.
func (e *ArrayEval) Consumable() bool { return e.consumable }

// Eval is a no-op: the tiles already exist.
func (e *ArrayEval) Eval() {}

// Wait is a no-op: the source array is already materialized.
func (e *ArrayEval) Wait() error { return nil }

// consumableOf reports whether an evaluator's output tiles may be consumed.
// Intermediate results always may: each output future has exactly one
// consumer inside one expression tree. Array leaves may only when flagged.
func consumableOf(e Eval) bool {
	if a, ok := e.(*ArrayEval); ok {
		return a.Consumable()
	}
	return true
}
