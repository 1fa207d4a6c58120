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
	"math"
	"slices"

	"golang.org/x/exp/maps"

	"github.com/calewis/tiledarray/errors"
	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/reduce"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/ranges"
)

// ContractionEval contracts two tensors over a 2-D process grid in the SUMMA
// style. The engine arranges the left child as (outer…, contracted…) and the
// right child as (contracted…, outer…), so the tile grids fold to an
// (M × K) · (K × N) matrix product. The result is distributed 2-D
// cyclically over the process grid; the schedule walks the contracted index
// in k-steps, prefetching the left column-panel and right row-panel of each
// step and folding partial GEMM products into per-output-tile reduce tasks.
// Fetches are registered eagerly, so each remote tile moves at most once per
// consuming rank and computation overlaps communication.
type ContractionEval struct {
	node
	left, right Eval
	factor      float64
	helper      tiles.GemmHelper

	mTiles, kTiles, nTiles int
}

// NewContractionEval builds a contraction evaluator. numContract is the
// number of trailing left / leading right axes contracted away.
func NewContractionEval(left, right Eval, numContract int, factor float64) (*ContractionEval, error) {
	leftRank := left.TRange().Rank()
	rightRank := right.TRange().Rank()
	if numContract < 0 || numContract > leftRank || numContract > rightRank {
		return nil, errors.E(errors.Range, "cannot contract %d axes of rank-%d and rank-%d tensors",
			numContract, leftRank, rightRank)
	}
	outer := leftRank - numContract

	dims := make([]ranges.TiledRange1, 0, outer+rightRank-numContract)
	mTiles, kTiles, nTiles := 1, 1, 1
	for axis := 0; axis < outer; axis++ {
		d := left.TRange().Dim(axis)
		mTiles *= d.TileCount()
		dims = append(dims, d)
	}
	for i := 0; i < numContract; i++ {
		l := left.TRange().Dim(outer + i)
		r := right.TRange().Dim(i)
		if !l.Equal(r) {
			return nil, errors.E(errors.Range, "contracted axis %d tiled as %s on the left but %s on the right",
				i, l, r)
		}
		kTiles *= l.TileCount()
	}
	for axis := numContract; axis < rightRank; axis++ {
		d := right.TRange().Dim(axis)
		nTiles *= d.TileCount()
		dims = append(dims, d)
	}
	trange := ranges.NewTiledRange(dims...)

	shape := left.Shape().Contract(right.Shape(), mTiles, kTiles, nTiles)
	if !shape.IsDense() {
		// Rebind the folded (M x N) norms to the true result tile grid.
		shape = shapes.Replicated(trange.TilesRange(), shape.Norms(), shape.Threshold())
	}

	world := left.World()
	procRows, procCols := processGrid(world.Size())
	pmap, err := pmaps.NewCyclic2D(world, mTiles, nTiles, procRows, procCols)
	if err != nil {
		return nil, err
	}

	e := &ContractionEval{
		left:   left,
		right:  right,
		factor: factor,
		helper: tiles.MakeGemmHelper(leftRank, rightRank, trange.Rank()),
		mTiles: mTiles,
		kTiles: kTiles,
		nTiles: nTiles,
	}
	e.init(world, trange, shape, pmap, "contraction")
	return e, nil
}

// processGrid picks the most square process grid that tiles nprocs exactly.
func processGrid(nprocs int) (rows, cols int) {
	rows = int(math.Sqrt(float64(nprocs)))
	for nprocs%rows != 0 {
		rows--
	}
	return rows, nprocs / rows
}

// gemmOp folds tile pairs of one output tile into a partial-product
// accumulator. The identity is nil: the first fold allocates via Gemm, later
// folds accumulate via GemmInto, and a contribution-free output finalizes to
// an explicit zero tile.
type gemmOp struct {
	factor float64
	helper tiles.GemmHelper
	result ranges.Range
}

func (op gemmOp) Identity() *tiles.Tile { return nil }

func (op gemmOp) FoldPair(acc, left, right *tiles.Tile) *tiles.Tile {
	if acc == nil {
		return tiles.Gemm(left, right, op.factor, op.helper)
	}
	tiles.GemmInto(acc, left, right, op.factor, op.helper)
	return acc
}

func (op gemmOp) Combine(acc, other *tiles.Tile) *tiles.Tile {
	if acc == nil {
		return other
	}
	if other == nil {
		return acc
	}
	tiles.AddTo(acc, other, 1)
	return acc
}

func (op gemmOp) Finalize(acc *tiles.Tile) *tiles.Tile {
	if acc == nil {
		return tiles.New(op.result)
	}
	return acc
}

// Eval lays out one pair-reduce task per local nonzero output tile, then
// streams the contraction k-step by k-step.
func (e *ContractionEval) Eval() {
	e.once.Do(func() {
		e.left.Eval()
		e.right.Eval()

		tasks := make(map[int]*reduce.PairTask[*tiles.Tile, *tiles.Tile, *tiles.Tile])
		for _, ordinal := range e.pmap.Locals() {
			if e.shape.IsZero(ordinal) {
				continue
			}
			op := gemmOp{factor: e.factor, helper: e.helper, result: e.trange.MakeTileRange(ordinal)}
			tasks[ordinal] = reduce.NewPairTask(e.world, reduce.PairOp[*tiles.Tile, *tiles.Tile, *tiles.Tile](op), nil)
		}

		// Panel-ordered schedule: all of step k's fetches are registered
		// before step k+1's, in ascending tile order.
		ordinals := maps.Keys(tasks)
		slices.Sort(ordinals)
		for k := 0; k < e.kTiles; k++ {
			for _, ordinal := range ordinals {
				i := ordinal / e.nTiles
				j := ordinal % e.nTiles
				leftOrd := i*e.kTiles + k
				rightOrd := k*e.nTiles + j
				if e.left.Shape().IsZero(leftOrd) || e.right.Shape().IsZero(rightOrd) {
					continue
				}
				tasks[ordinal].Add(e.left.Get(leftOrd), e.right.Get(rightOrd), nil)
			}
		}

		for ordinal, task := range tasks {
			e.publish(ordinal, task.Submit())
		}
		logSchedule("contraction", e.world, len(tasks))
	})
}

// Wait blocks until both children and the local contraction tasks retire.
func (e *ContractionEval) Wait() error { return e.wait(e.left, e.right) }
