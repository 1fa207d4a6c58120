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
	"k8s.io/klog/v2"

	"github.com/calewis/tiledarray/disteval"
	"github.com/calewis/tiledarray/errors"
	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/tileops"
	"github.com/calewis/tiledarray/types/perm"
	"github.com/calewis/tiledarray/types/vars"
)

// engine compiles one expression node into a distributed evaluator.
//
// Initialization is two-phase: initVars fixes each engine's output variable
// layout, choosing layouts that minimize permutations (a node adopts the
// target layout only when it is permutation-equivalent to its natural one,
// and otherwise leaves the permuting to its consumer); makeEval then
// instantiates the evaluator tree, propagating shapes, tiled ranges and
// process maps bottom-up.
type engine interface {
	// natural returns the layout the node produces with no permutation.
	natural() vars.VariableList
	// initVars fixes the output layout given the consumer's target; an
	// empty target means "whatever is natural".
	initVars(target vars.VariableList) error
	// outVars returns the layout fixed by initVars.
	outVars() vars.VariableList
	// makeEval instantiates the evaluator. A non-nil pmap is the
	// consumer's preferred distribution for the output.
	makeEval(world *runtime.World, pmap pmaps.Pmap) (disteval.Eval, error)
}

// chooseOut adopts the target layout when reachable by pure permutation.
func chooseOut(natural, target vars.VariableList) vars.VariableList {
	if target.Count() > 0 && natural.PermutationEquivalent(target) {
		return target
	}
	return natural
}

// pmapOr returns the preferred pmap when it covers the grid, else a blocked
// default.
func pmapOr(world *runtime.World, preferred pmaps.Pmap, volume int) pmaps.Pmap {
	if preferred != nil && preferred.Size() == volume {
		return preferred
	}
	return pmaps.NewBlocked(world, volume)
}

// tsrEngine binds a tensor reference, permuting its output to the fixed
// layout when needed.
type tsrEngine struct {
	tsr *TsrExpr
	out vars.VariableList
	p   perm.Permutation
}

func newTsrEngine(t *TsrExpr) (engine, error) {
	if t.arr == nil || !t.arr.IsInitialized() {
		return nil, errors.E(errors.Variable, "annotation %q references an uninitialized array", t.vars)
	}
	if t.vars.Count() != t.arr.TRange().Rank() {
		return nil, errors.E(errors.Variable, "%d labels (%q) for a rank-%d array",
			t.vars.Count(), t.vars, t.arr.TRange().Rank())
	}
	return &tsrEngine{tsr: t}, nil
}

func (e *tsrEngine) natural() vars.VariableList { return e.tsr.vars }

func (e *tsrEngine) initVars(target vars.VariableList) error {
	e.out = chooseOut(e.tsr.vars, target)
	e.p = e.tsr.vars.PermutationTo(e.out)
	return nil
}

func (e *tsrEngine) outVars() vars.VariableList { return e.out }

func (e *tsrEngine) makeEval(world *runtime.World, pmap pmaps.Pmap) (disteval.Eval, error) {
	base := disteval.NewArrayEval(e.tsr.arr, e.tsr.consume)
	if e.p.IsIdentity() {
		return base, nil
	}
	volume := base.TRange().TilesRange().Volume()
	return disteval.NewUnaryEval(base, tileops.NoopOp{Perm: e.p}, e.p,
		base.Shape().Permute(e.p), pmapOr(world, pmap, volume)), nil
}

// binary op kinds.
type binaryKind int

const (
	opAdd binaryKind = iota
	opSubt
	opHadamard
)

// binaryEngine evaluates an element-wise op over two permutation-equivalent
// children. Children are steered to a common inner layout (the left child's
// natural one); any final permutation folds into the tile op.
type binaryEngine struct {
	kind        binaryKind
	left, right engine
	inner, out  vars.VariableList
	p           perm.Permutation
}

func newBinaryEngine(kind binaryKind, left, right Expr) (engine, error) {
	le, err := left.buildEngine()
	if err != nil {
		return nil, err
	}
	re, err := right.buildEngine()
	if err != nil {
		return nil, err
	}
	if !le.natural().PermutationEquivalent(re.natural()) {
		return nil, errors.E(errors.Variable, "annotations %q and %q are not permutation equivalent",
			le.natural(), re.natural())
	}
	return &binaryEngine{kind: kind, left: le, right: re}, nil
}

func (e *binaryEngine) natural() vars.VariableList { return e.left.natural() }

func (e *binaryEngine) initVars(target vars.VariableList) error {
	e.inner = e.left.natural()
	if err := e.left.initVars(e.inner); err != nil {
		return err
	}
	if err := e.right.initVars(e.inner); err != nil {
		return err
	}
	e.out = chooseOut(e.inner, target)
	e.p = e.inner.PermutationTo(e.out)
	return nil
}

func (e *binaryEngine) outVars() vars.VariableList { return e.out }

func (e *binaryEngine) makeEval(world *runtime.World, pmap pmaps.Pmap) (disteval.Eval, error) {
	lev, err := e.left.makeEval(world, nil)
	if err != nil {
		return nil, err
	}
	rev, err := e.right.makeEval(world, nil)
	if err != nil {
		return nil, err
	}
	if !lev.TRange().Equal(rev.TRange()) {
		return nil, errors.E(errors.Range, "tiled ranges %s and %s do not match",
			lev.TRange(), rev.TRange())
	}

	var op tileops.Binary
	var shape = lev.Shape()
	switch e.kind {
	case opAdd:
		op = tileops.NewAdd(e.p, 1)
		shape = shape.Add(rev.Shape())
	case opSubt:
		op = tileops.NewSubt(e.p, 1)
		shape = shape.Add(rev.Shape())
	case opHadamard:
		op = tileops.NewMult(e.p, 1)
		shape = shape.Mult(rev.Shape())
	}
	shape = shape.Permute(e.p)

	volume := lev.TRange().TilesRange().Volume()
	return disteval.NewBinaryEval(lev, rev, op, e.p, shape, pmapOr(world, pmap, volume)), nil
}

// newMultEngine builds a Hadamard engine when the operand layouts are
// permutation equivalent and a contraction engine otherwise.
func newMultEngine(left, right Expr) (engine, error) {
	le, err := left.buildEngine()
	if err != nil {
		return nil, err
	}
	re, err := right.buildEngine()
	if err != nil {
		return nil, err
	}
	if le.natural().PermutationEquivalent(re.natural()) {
		return &binaryEngine{kind: opHadamard, left: le, right: re}, nil
	}
	return &contractionEngine{left: le, right: re}, nil
}

// contractionEngine sums shared labels away over a 2-D process grid. The
// children are steered to (outer…, contracted…) and (contracted…, outer…)
// layouts so their tile grids fold to a matrix product.
type contractionEngine struct {
	left, right engine
	contracted  []string
	inner, out  vars.VariableList
	p           perm.Permutation
}

func (e *contractionEngine) natural() vars.VariableList {
	return e.left.natural().Mul(e.right.natural())
}

func (e *contractionEngine) initVars(target vars.VariableList) error {
	lNat, rNat := e.left.natural(), e.right.natural()
	e.contracted = lNat.ContractedWith(rNat)

	var leftOuter, rightOuter []string
	for _, l := range lNat.Labels() {
		if !rNat.Contains(l) {
			leftOuter = append(leftOuter, l)
		}
	}
	for _, l := range rNat.Labels() {
		if !lNat.Contains(l) {
			rightOuter = append(rightOuter, l)
		}
	}
	if len(leftOuter)+len(rightOuter) == 0 {
		return errors.E(errors.Variable, "contraction of %q and %q leaves no result axes", lNat, rNat)
	}

	if err := e.left.initVars(vars.FromLabels(append(append([]string{}, leftOuter...), e.contracted...)...)); err != nil {
		return err
	}
	if err := e.right.initVars(vars.FromLabels(append(append([]string{}, e.contracted...), rightOuter...)...)); err != nil {
		return err
	}
	e.inner = vars.FromLabels(append(append([]string{}, leftOuter...), rightOuter...)...)
	e.out = chooseOut(e.inner, target)
	e.p = e.inner.PermutationTo(e.out)
	return nil
}

func (e *contractionEngine) outVars() vars.VariableList { return e.out }

func (e *contractionEngine) makeEval(world *runtime.World, pmap pmaps.Pmap) (disteval.Eval, error) {
	lev, err := e.left.makeEval(world, nil)
	if err != nil {
		return nil, err
	}
	rev, err := e.right.makeEval(world, nil)
	if err != nil {
		return nil, err
	}
	ce, err := disteval.NewContractionEval(lev, rev, len(e.contracted), 1)
	if err != nil {
		return nil, err
	}
	if e.p.IsIdentity() {
		return ce, nil
	}
	klog.V(2).Infof("contraction output permuted %s -> %s", e.inner, e.out)
	volume := ce.TRange().TilesRange().Volume()
	return disteval.NewUnaryEval(ce, tileops.NoopOp{Perm: e.p}, e.p,
		ce.Shape().Permute(e.p), pmapOr(world, pmap, volume)), nil
}

// scaleEngine folds a scalar factor over its child's tiles.
type scaleEngine struct {
	child  engine
	factor float64
	out    vars.VariableList
}

func newScaleEngine(child Expr, factor float64) (engine, error) {
	ce, err := child.buildEngine()
	if err != nil {
		return nil, err
	}
	return &scaleEngine{child: ce, factor: factor}, nil
}

func (e *scaleEngine) natural() vars.VariableList { return e.child.natural() }

func (e *scaleEngine) initVars(target vars.VariableList) error {
	if err := e.child.initVars(target); err != nil {
		return err
	}
	e.out = e.child.outVars()
	return nil
}

func (e *scaleEngine) outVars() vars.VariableList { return e.out }

func (e *scaleEngine) makeEval(world *runtime.World, pmap pmaps.Pmap) (disteval.Eval, error) {
	cev, err := e.child.makeEval(world, pmap)
	if err != nil {
		return nil, err
	}
	volume := cev.TRange().TilesRange().Volume()
	return disteval.NewUnaryEval(cev, tileops.ScaleOp{Factor: e.factor}, perm.Identity(),
		cev.Shape().Scale(e.factor), pmapOr(world, pmap, volume)), nil
}

// blockEngine restricts a tensor reference to a tile box, permuting after
// the restriction when the target asks for it.
type blockEngine struct {
	block *BlockExpr
	tsr   engine
	out   vars.VariableList
	p     perm.Permutation
}

func newBlockEngine(b *BlockExpr) (engine, error) {
	te, err := newTsrEngine(b.tsr)
	if err != nil {
		return nil, err
	}
	return &blockEngine{block: b, tsr: te}, nil
}

func (e *blockEngine) natural() vars.VariableList { return e.tsr.natural() }

func (e *blockEngine) initVars(target vars.VariableList) error {
	// The restriction happens in the source layout; any permutation is
	// applied to the re-based block.
	if err := e.tsr.initVars(e.tsr.natural()); err != nil {
		return err
	}
	e.out = chooseOut(e.tsr.natural(), target)
	e.p = e.tsr.natural().PermutationTo(e.out)
	return nil
}

func (e *blockEngine) outVars() vars.VariableList { return e.out }

func (e *blockEngine) makeEval(world *runtime.World, pmap pmaps.Pmap) (disteval.Eval, error) {
	base, err := e.tsr.makeEval(world, nil)
	if err != nil {
		return nil, err
	}
	be, err := disteval.NewBlockEval(base, e.block.lo, e.block.hi)
	if err != nil {
		return nil, err
	}
	if e.p.IsIdentity() {
		return be, nil
	}
	volume := be.TRange().TilesRange().Volume()
	return disteval.NewUnaryEval(be, tileops.NoopOp{Perm: e.p}, e.p,
		be.Shape().Permute(e.p), pmapOr(world, pmap, volume)), nil
}
