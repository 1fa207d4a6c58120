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

	"github.com/calewis/tiledarray/array"
	"github.com/calewis/tiledarray/errors"
	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/types/vars"
)

// Assign evaluates rhs into the annotated array: lhs("m,n") = rhs.
//
// The world comes from the left-hand array, and its process map is offered
// to the evaluator tree as the preferred distribution. Permuting,
// element-wise and scaling nodes distribute their result with it; an
// unpermuted tensor reference keeps the source array's process map and an
// unpermuted contraction keeps its 2-D cyclic map, so in those two cases the
// left-hand map is not reused. The annotation fixes the target layout. The result is
// built into a fresh array and swapped in only after the whole evaluator
// tree retires cleanly, so no partial result is ever observable. Collective;
// a fence completes the expression on every rank.
func (t *TsrExpr) Assign(rhs Expr) error {
	if t.arr == nil {
		return errors.E(errors.Variable, "assignment to a nil array")
	}
	world := t.arr.World()
	var preferred pmaps.Pmap
	if t.arr.IsInitialized() {
		preferred = t.arr.Pmap()
	}
	result, err := makeArray(world, rhs, t.vars, preferred)
	if err != nil {
		return err
	}
	t.arr.Swap(result)
	return nil
}

// AddAssign desugars lhs += rhs into lhs = lhs + rhs.
func (t *TsrExpr) AddAssign(rhs Expr) error {
	if err := t.requireInitialized("+="); err != nil {
		return err
	}
	return t.Assign(Add(Tsr(t.arr, t.vars.String()), rhs))
}

// SubAssign desugars lhs -= rhs into lhs = lhs - rhs.
func (t *TsrExpr) SubAssign(rhs Expr) error {
	if err := t.requireInitialized("-="); err != nil {
		return err
	}
	return t.Assign(Subt(Tsr(t.arr, t.vars.String()), rhs))
}

// MulAssign desugars lhs *= rhs into the Hadamard product lhs = lhs .* rhs.
func (t *TsrExpr) MulAssign(rhs Expr) error {
	if err := t.requireInitialized("*="); err != nil {
		return err
	}
	return t.Assign(Mult(Tsr(t.arr, t.vars.String()), rhs))
}

func (t *TsrExpr) requireInitialized(op string) error {
	if t.arr == nil || !t.arr.IsInitialized() {
		return errors.E(errors.Variable, "%s requires an initialized left-hand array", op)
	}
	return nil
}

// Make evaluates an expression into a fresh array with the given target
// annotation. Collective.
func Make(world *runtime.World, rhs Expr, annotation string) (*array.Array, error) {
	return makeArray(world, rhs, vars.Parse(annotation), nil)
}

func makeArray(world *runtime.World, rhs Expr, target vars.VariableList, preferred pmaps.Pmap) (*array.Array, error) {
	eng, err := rhs.buildEngine()
	if err != nil {
		return nil, err
	}
	if err := eng.initVars(target); err != nil {
		return nil, err
	}
	if !eng.outVars().Equal(target) {
		return nil, errors.E(errors.Variable, "expression produces %q, target is %q", eng.outVars(), target)
	}
	ev, err := eng.makeEval(world, preferred)
	if err != nil {
		return nil, err
	}
	ev.Eval()

	result := array.New(world, ev.TRange(), ev.Shape(), ev.Pmap())
	assigned := 0
	for _, ordinal := range result.Locals() {
		if result.IsZero(ordinal) {
			continue
		}
		result.SetTile(ordinal, ev.Get(ordinal))
		assigned++
	}
	klog.V(1).Infof("rank %d: assignment of %q captured %d local tiles", world.Rank(), target, assigned)

	// Fence even on error so the ranks stay in step, then agree on the
	// outcome: either every rank publishes the result or none does.
	err = ev.Wait()
	world.Fence()
	failed := runtime.AllReduce(world, "assign-outcome", err != nil,
		func(a, b bool) bool { return a || b })
	if failed {
		if err == nil {
			err = errors.E(errors.Other, "expression failed on a remote rank")
		}
		return nil, err
	}
	return result, nil
}
