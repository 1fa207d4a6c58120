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
	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tileops"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/perm"
)

// UnaryEval applies a tile op to every nonzero tile of its child, optionally
// remapping tile coordinates by a permutation. The op's own permutation (if
// any) must match the coordinate remap so tile data and tile position move
// together.
type UnaryEval struct {
	node
	child Eval
	op    tileops.Unary
	perm  perm.Permutation
}

// NewUnaryEval builds a unary evaluator. p maps child tile coordinates onto
// output coordinates; the output trange, shape and pmap are the engine's.
func NewUnaryEval(child Eval, op tileops.Unary, p perm.Permutation,
	shape shapes.Shape, pmap pmaps.Pmap) *UnaryEval {
	e := &UnaryEval{child: child, op: op, perm: p}
	e.init(child.World(), child.TRange().Permute(p), shape, pmap, "unary")
	return e
}

// childOrdinal maps an output tile ordinal back to the child's grid.
func (e *UnaryEval) childOrdinal(ordinal int) int {
	if e.perm.IsIdentity() {
		return ordinal
	}
	coords := e.trange.TilesRange().Coord(ordinal)
	inv := e.perm.Inverse()
	return e.child.TRange().TilesRange().Ordinal(inv.Apply(coords))
}

// Eval schedules one task per local nonzero output tile, chained on the
// child tile's future.
func (e *UnaryEval) Eval() {
	e.once.Do(func() {
		e.child.Eval()
		consumable := consumableOf(e.child)
		scheduled := 0
		for _, ordinal := range e.pmap.Locals() {
			if e.shape.IsZero(ordinal) {
				continue
			}
			childOrd := e.childOrdinal(ordinal)
			if e.child.Shape().IsZero(childOrd) {
				// The op widened the shape; materialize an explicit zero.
				e.publish(ordinal, runtime.Ready(tiles.New(e.trange.MakeTileRange(ordinal))))
				continue
			}
			src := e.child.Get(childOrd)
			out := runtime.NewFuture[*tiles.Tile]()
			e.publish(ordinal, out)
			src.OnReady(func() {
				e.world.Submit(func() {
					t, err := src.Get()
					if err != nil {
						out.SetError(err)
						return
					}
					result, err := e.op.Apply(tileops.Arg{Tile: t, Consumable: consumable})
					if err != nil {
						out.SetError(err)
						return
					}
					out.Set(result)
				})
			})
			scheduled++
		}
		logSchedule("unary", e.world, scheduled)
	})
}

// Wait blocks until the child and the local unary tasks retire.
func (e *UnaryEval) Wait() error { return e.wait(e.child) }
