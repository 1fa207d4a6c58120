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

// Package expr implements the index-notation expression layer: annotated
// tensor references composed into value-typed expression trees, compiled by
// per-node engines into distributed evaluators, and assigned back into
// arrays.
//
// An expression is built bottom-up from Tsr references:
//
//	c := array.Shell(world)
//	err := expr.Tsr(c, "m,n").Assign(expr.Mult(expr.Tsr(a, "m,k"), expr.Tsr(b, "k,n")))
//
// Nothing evaluates until an assignment or a reduction drives the tree: the
// engines then pick output layouts to minimize permutations, propagate
// shapes and process maps, and instantiate one distributed evaluator per
// node. Every rank of the world must drive the same expressions in the same
// order.
package expr

import (
	"github.com/calewis/tiledarray/array"
	"github.com/calewis/tiledarray/types/vars"
)

// Expr is a node of an expression tree.
type Expr interface {
	// buildEngine mirrors the node with its evaluation engine.
	buildEngine() (engine, error)
}

// TsrExpr is an annotated tensor reference, e.g. a("m,k").
type TsrExpr struct {
	arr     *array.Array
	vars    vars.VariableList
	consume bool
}

// Tsr annotates an array with index labels.
func Tsr(a *array.Array, annotation string) *TsrExpr {
	return &TsrExpr{arr: a, vars: vars.Parse(annotation)}
}

// Consume marks the reference as the last live one: downstream tile ops may
// reuse the array's tile storage in place. The array must not be read again
// afterwards.
func (t *TsrExpr) Consume() *TsrExpr {
	return &TsrExpr{arr: t.arr, vars: t.vars, consume: true}
}

// Array returns the referenced array.
func (t *TsrExpr) Array() *array.Array { return t.arr }

// Vars returns the annotation.
func (t *TsrExpr) Vars() vars.VariableList { return t.vars }

func (t *TsrExpr) buildEngine() (engine, error) { return newTsrEngine(t) }

// AddExpr is the sum of two subexpressions.
type AddExpr struct{ left, right Expr }

// Add builds left + right. The operand annotations must be permutation
// equivalent.
func Add(left, right Expr) Expr { return &AddExpr{left: left, right: right} }

func (e *AddExpr) buildEngine() (engine, error) { return newBinaryEngine(opAdd, e.left, e.right) }

// SubtExpr is the difference of two subexpressions.
type SubtExpr struct{ left, right Expr }

// Subt builds left - right. The operand annotations must be permutation
// equivalent.
func Subt(left, right Expr) Expr { return &SubtExpr{left: left, right: right} }

func (e *SubtExpr) buildEngine() (engine, error) { return newBinaryEngine(opSubt, e.left, e.right) }

// MultExpr multiplies two subexpressions: a Hadamard product when the
// annotations are permutation equivalent, a contraction otherwise (shared
// labels are summed away).
type MultExpr struct{ left, right Expr }

// Mult builds left * right.
func Mult(left, right Expr) Expr { return &MultExpr{left: left, right: right} }

func (e *MultExpr) buildEngine() (engine, error) { return newMultEngine(e.left, e.right) }

// ScaleExpr scales a subexpression by a constant factor.
type ScaleExpr struct {
	child  Expr
	factor float64
}

// Scale builds factor * child. Nested scalings fold into one factor.
func Scale(child Expr, factor float64) Expr {
	switch c := child.(type) {
	case *ScaleExpr:
		return &ScaleExpr{child: c.child, factor: c.factor * factor}
	case *NegExpr:
		return &ScaleExpr{child: c.child, factor: -factor}
	}
	return &ScaleExpr{child: child, factor: factor}
}

func (e *ScaleExpr) buildEngine() (engine, error) { return newScaleEngine(e.child, e.factor) }

// NegExpr negates a subexpression.
type NegExpr struct{ child Expr }

// Neg builds -child. Negating a scaling folds into its factor.
func Neg(child Expr) Expr {
	switch c := child.(type) {
	case *ScaleExpr:
		return &ScaleExpr{child: c.child, factor: -c.factor}
	case *NegExpr:
		return c.child
	}
	return &NegExpr{child: child}
}

func (e *NegExpr) buildEngine() (engine, error) { return newScaleEngine(e.child, -1) }

// BlockExpr restricts a tensor reference to a half-open box of tile
// coordinates.
type BlockExpr struct {
	tsr    *TsrExpr
	lo, hi []int
}

// Block restricts t to the tiles in [lo, hi). The result re-bases its
// element range to zero.
func Block(t *TsrExpr, lo, hi []int) Expr {
	return &BlockExpr{tsr: t, lo: append([]int(nil), lo...), hi: append([]int(nil), hi...)}
}

func (e *BlockExpr) buildEngine() (engine, error) { return newBlockEngine(e) }
