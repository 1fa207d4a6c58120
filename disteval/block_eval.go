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
	"github.com/calewis/tiledarray/errors"
	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/ranges"
)

// BlockEval restricts a child to a half-open box of tile coordinates. The
// result's TiledRange re-bases to element zero, so each source tile is
// rebound to its shifted element range.
type BlockEval struct {
	node
	child Eval
	lo    []int
}

// NewBlockEval builds a block evaluator over child tiles [lo, hi).
func NewBlockEval(child Eval, lo, hi []int) (*BlockEval, error) {
	grid := child.TRange().TilesRange()
	if len(lo) != grid.Rank() || len(hi) != grid.Rank() {
		return nil, errors.E(errors.Range, "block bounds of rank %d/%d for a rank-%d tensor",
			len(lo), len(hi), grid.Rank())
	}
	gridLo, gridHi := grid.Lobound(), grid.Upbound()
	dims := make([]ranges.TiledRange1, grid.Rank())
	for axis := range lo {
		if lo[axis] < gridLo[axis] || hi[axis] > gridHi[axis] || lo[axis] >= hi[axis] {
			return nil, errors.E(errors.Range, "block tiles [%d,%d) outside axis %d of grid %s",
				lo[axis], hi[axis], axis, grid)
		}
		boundaries := []int{0}
		offset := 0
		for t := lo[axis]; t < hi[axis]; t++ {
			tileLo, tileHi := child.TRange().Dim(axis).Tile(t)
			offset += tileHi - tileLo
			boundaries = append(boundaries, offset)
		}
		dims[axis] = ranges.NewTiledRange1(boundaries...)
	}
	trange := ranges.NewTiledRange(dims...)

	shape := child.Shape()
	if !shape.IsDense() {
		norms := make([]float64, trange.TilesRange().Volume())
		for ordinal := range norms {
			norms[ordinal] = shape.Norm(sourceOrdinal(child, trange, lo, ordinal))
		}
		shape = shapes.Replicated(trange.TilesRange(), norms, shape.Threshold())
	}

	world := child.World()
	e := &BlockEval{child: child, lo: append([]int(nil), lo...)}
	e.init(world, trange, shape, pmaps.NewBlocked(world, trange.TilesRange().Volume()), "block")
	return e, nil
}

func sourceOrdinal(child Eval, trange ranges.TiledRange, lo []int, ordinal int) int {
	coords := trange.TilesRange().Coord(ordinal)
	for axis := range coords {
		coords[axis] += lo[axis]
	}
	return child.TRange().TilesRange().Ordinal(coords)
}

// Eval schedules a rebasing copy of every local nonzero tile of the block.
func (e *BlockEval) Eval() {
	e.once.Do(func() {
		e.child.Eval()
		scheduled := 0
		for _, ordinal := range e.pmap.Locals() {
			if e.shape.IsZero(ordinal) {
				continue
			}
			src := e.child.Get(sourceOrdinal(e.child, e.trange, e.lo, ordinal))
			target := e.trange.MakeTileRange(ordinal)
			out := runtime.NewFuture[*tiles.Tile]()
			e.publish(ordinal, out)
			src.OnReady(func() {
				e.world.Submit(func() {
					t, err := src.Get()
					if err != nil {
						out.SetError(err)
						return
					}
					data := make([]float64, len(t.Data()))
					copy(data, t.Data())
					out.Set(tiles.FromSlice(target, data))
				})
			})
			scheduled++
		}
		logSchedule("block", e.world, scheduled)
	})
}

// Wait blocks until the child and the local rebasing tasks retire.
func (e *BlockEval) Wait() error { return e.wait(e.child) }
