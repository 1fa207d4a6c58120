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

package expr

import (
	"math"

	"github.com/calewis/tiledarray/disteval"
	"github.com/calewis/tiledarray/errors"
	"github.com/calewis/tiledarray/reduce"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/tiles"
)

// scalarOp adapts per-tile folds to the reduce engine. Finalize passes
// through: post-processing happens after the cross-rank all-reduce, not per
// rank.
type scalarOp struct {
	identity float64
	fold     func(acc float64, t *tiles.Tile) float64
	combine  func(a, b float64) float64
	post     func(v float64) float64
}

func (op scalarOp) Identity() float64 { return op.identity }

func (op scalarOp) Fold(acc float64, t *tiles.Tile) float64 { return op.fold(acc, t) }

func (op scalarOp) Combine(acc, other float64) float64 { return op.combine(acc, other) }

func (op scalarOp) Finalize(acc float64) float64 { return acc }

// reduceScalar drives a unary reduction: one evaluator, its local nonzero
// tiles seeded into a reduce task, the local result all-reduced across
// ranks, then post-processed. Structurally zero tiles contribute nothing;
// an all-zero shape yields the operation's identity. Collective.
func reduceScalar(world *runtime.World, e Expr, op scalarOp, accept func(ev disteval.Eval, ordinal int) bool) (float64, error) {
	eng, err := e.buildEngine()
	if err != nil {
		return 0, err
	}
	if err := eng.initVars(eng.natural()); err != nil {
		return 0, err
	}
	ev, err := eng.makeEval(world, nil)
	if err != nil {
		return 0, err
	}
	ev.Eval()

	task := reduce.NewTask[float64, *tiles.Tile](world, op, nil)
	for _, ordinal := range ev.Pmap().Locals() {
		if ev.Shape().IsZero(ordinal) {
			continue
		}
		if accept != nil && !accept(ev, ordinal) {
			continue
		}
		task.Add(ev.Get(ordinal), nil)
	}
	local, err := task.Submit().Get()
	waitErr := ev.Wait()
	world.Fence()
	if err == nil {
		err = waitErr
	}
	return finishReduction(world, local, err, op)
}

// finishReduction agrees on failure across ranks, combines the local
// accumulators and applies the post-processing step.
func finishReduction(world *runtime.World, local float64, err error, op scalarOp) (float64, error) {
	failed := runtime.AllReduce(world, "reduce-outcome", err != nil,
		func(a, b bool) bool { return a || b })
	if failed {
		if err == nil {
			err = errors.E(errors.Other, "reduction failed on a remote rank")
		}
		return 0, err
	}
	global := runtime.AllReduce(world, "reduce-combine", local, op.combine)
	if op.post != nil {
		global = op.post(global)
	}
	return global, nil
}

func sum2(a, b float64) float64 { return a + b }

// Sum returns the sum of all elements of the expression.
func Sum(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		fold:    func(acc float64, t *tiles.Tile) float64 { return acc + tiles.Sum(t) },
		combine: sum2,
	}, nil)
}

// Product returns the product of the elements of all structurally nonzero
// tiles.
func Product(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		identity: 1,
		fold:     func(acc float64, t *tiles.Tile) float64 { return acc * tiles.Product(t) },
		combine:  func(a, b float64) float64 { return a * b },
	}, nil)
}

// Min returns the smallest element over the nonzero tiles.
func Min(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		identity: math.Inf(1),
		fold:     func(acc float64, t *tiles.Tile) float64 { return math.Min(acc, tiles.Min(t)) },
		combine:  math.Min,
	}, nil)
}

// Max returns the largest element over the nonzero tiles.
func Max(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		identity: math.Inf(-1),
		fold:     func(acc float64, t *tiles.Tile) float64 { return math.Max(acc, tiles.Max(t)) },
		combine:  math.Max,
	}, nil)
}

// AbsMin returns the smallest absolute value over the nonzero tiles.
func AbsMin(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		identity: math.Inf(1),
		fold:     func(acc float64, t *tiles.Tile) float64 { return math.Min(acc, tiles.AbsMin(t)) },
		combine:  math.Min,
	}, nil)
}

// AbsMax returns the largest absolute value over the nonzero tiles.
func AbsMax(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		fold:    func(acc float64, t *tiles.Tile) float64 { return math.Max(acc, tiles.AbsMax(t)) },
		combine: math.Max,
	}, nil)
}

// SquaredNorm returns the sum of squared elements.
func SquaredNorm(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		fold:    func(acc float64, t *tiles.Tile) float64 { return acc + tiles.SquaredNorm(t) },
		combine: sum2,
	}, nil)
}

// Norm returns the Frobenius norm.
func Norm(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		fold:    func(acc float64, t *tiles.Tile) float64 { return acc + tiles.SquaredNorm(t) },
		combine: sum2,
		post:    math.Sqrt,
	}, nil)
}

// Trace returns the sum of the diagonal of a square matrix expression with
// symmetric tiling: only diagonal tiles contribute.
func Trace(world *runtime.World, e Expr) (float64, error) {
	return reduceScalar(world, e, scalarOp{
		fold:    func(acc float64, t *tiles.Tile) float64 { return acc + tiles.Trace(t) },
		combine: sum2,
	}, func(ev disteval.Eval, ordinal int) bool {
		coords := ev.TRange().TilesRange().Coord(ordinal)
		return len(coords) == 2 && coords[0] == coords[1]
	})
}

// dotOp folds tile pairs into a scalar inner product.
type dotOp struct{}

func (dotOp) Identity() float64 { return 0 }

func (dotOp) FoldPair(acc float64, left, right *tiles.Tile) float64 {
	return acc + tiles.Dot(left, right)
}

func (dotOp) Combine(acc, other float64) float64 { return acc + other }

func (dotOp) Finalize(acc float64) float64 { return acc }

// Dot returns the inner product of two expressions with equal tiled ranges.
// Pairs where either side is structurally zero contribute nothing.
// Collective.
func Dot(world *runtime.World, left, right Expr) (float64, error) {
	le, err := left.buildEngine()
	if err != nil {
		return 0, err
	}
	re, err := right.buildEngine()
	if err != nil {
		return 0, err
	}
	if !le.natural().PermutationEquivalent(re.natural()) {
		return 0, errors.E(errors.Variable, "dot of %q against %q", le.natural(), re.natural())
	}
	if err := le.initVars(le.natural()); err != nil {
		return 0, err
	}
	if err := re.initVars(le.outVars()); err != nil {
		return 0, err
	}
	lev, err := le.makeEval(world, nil)
	if err != nil {
		return 0, err
	}
	rev, err := re.makeEval(world, nil)
	if err != nil {
		return 0, err
	}
	// Equality of the tiled ranges, not any ordering of them.
	if !lev.TRange().Equal(rev.TRange()) {
		return 0, errors.E(errors.Range, "tiled ranges %s and %s do not match", lev.TRange(), rev.TRange())
	}
	lev.Eval()
	rev.Eval()

	task := reduce.NewPairTask[float64, *tiles.Tile, *tiles.Tile](world, dotOp{}, nil)
	for _, ordinal := range lev.Pmap().Locals() {
		if lev.Shape().IsZero(ordinal) || rev.Shape().IsZero(ordinal) {
			continue
		}
		task.Add(lev.Get(ordinal), rev.Get(ordinal), nil)
	}
	local, err := task.Submit().Get()
	waitErr := lev.Wait()
	if waitErr == nil {
		waitErr = rev.Wait()
	}
	world.Fence()
	if err == nil {
		err = waitErr
	}
	return finishReduction(world, local, err, scalarOp{combine: sum2})
}
