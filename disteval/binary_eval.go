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
	"sync/atomic"

	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tileops"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/perm"
)

// BinaryEval applies a binary tile op pairwise over two children with equal
// tiled ranges. Where one child's tile is structurally zero the op's zero
// variant applies; where both are zero the output is an explicit zero tile
// (reachable only when the combined shape widened).
type BinaryEval struct {
	node
	left, right Eval
	op          tileops.Binary
	perm        perm.Permutation
}

// NewBinaryEval builds a binary element-wise evaluator. p maps child tile
// coordinates onto output coordinates.
func NewBinaryEval(left, right Eval, op tileops.Binary, p perm.Permutation,
	shape shapes.Shape, pmap pmaps.Pmap) *BinaryEval {
	e := &BinaryEval{left: left, right: right, op: op, perm: p}
	e.init(left.World(), left.TRange().Permute(p), shape, pmap, "binary")
	return e
}

func (e *BinaryEval) childOrdinal(ordinal int) int {
	if e.perm.IsIdentity() {
		return ordinal
	}
	coords := e.trange.TilesRange().Coord(ordinal)
	inv := e.perm.Inverse()
	return e.left.TRange().TilesRange().Ordinal(inv.Apply(coords))
}

// Eval schedules one task per local nonzero output tile, chained on the
// readiness of whichever child tiles are nonzero.
func (e *BinaryEval) Eval() {
	e.once.Do(func() {
		e.left.Eval()
		e.right.Eval()
		leftConsumable := consumableOf(e.left)
		rightConsumable := consumableOf(e.right)
		scheduled := 0
		for _, ordinal := range e.pmap.Locals() {
			if e.shape.IsZero(ordinal) {
				continue
			}
			childOrd := e.childOrdinal(ordinal)
			leftZero := e.left.Shape().IsZero(childOrd)
			rightZero := e.right.Shape().IsZero(childOrd)
			if leftZero && rightZero {
				e.publish(ordinal, runtime.Ready(tiles.New(e.trange.MakeTileRange(ordinal))))
				continue
			}
			out := runtime.NewFuture[*tiles.Tile]()
			e.publish(ordinal, out)
			e.schedule(childOrd, leftZero, rightZero, leftConsumable, rightConsumable, out)
			scheduled++
		}
		logSchedule("binary", e.world, scheduled)
	})
}

// schedule spawns the tile task once the needed child futures resolve.
func (e *BinaryEval) schedule(childOrd int, leftZero, rightZero, leftConsumable, rightConsumable bool,
	out *runtime.Future[*tiles.Tile]) {
	var leftFut, rightFut *runtime.Future[*tiles.Tile]
	needed := int32(0)
	if !leftZero {
		leftFut = e.left.Get(childOrd)
		needed++
	}
	if !rightZero {
		rightFut = e.right.Get(childOrd)
		needed++
	}
	var remaining atomic.Int32
	remaining.Store(needed)
	run := func() {
		e.world.Submit(func() {
			leftArg := tileops.ZeroArg()
			if leftFut != nil {
				t, err := leftFut.Get()
				if err != nil {
					out.SetError(err)
					return
				}
				leftArg = tileops.Arg{Tile: t, Consumable: leftConsumable}
			}
			rightArg := tileops.ZeroArg()
			if rightFut != nil {
				t, err := rightFut.Get()
				if err != nil {
					out.SetError(err)
					return
				}
				rightArg = tileops.Arg{Tile: t, Consumable: rightConsumable}
			}
			result, err := e.op.Apply(leftArg, rightArg)
			if err != nil {
				out.SetError(err)
				return
			}
			out.Set(result)
		})
	}
	notify := func() {
		if remaining.Add(-1) == 0 {
			run()
		}
	}
	if leftFut != nil {
		leftFut.OnReady(notify)
	}
	if rightFut != nil {
		rightFut.OnReady(notify)
	}
}

// Wait blocks until both children and the local binary tasks retire.
func (e *BinaryEval) Wait() error { return e.wait(e.left, e.right) }
