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

// Package tileops dispatches tile-level algebra onto the kernels of package
// tiles.
//
// An op carries a permutation and a scaling factor; its arguments carry a
// zero flag (the tile is structurally zero and its pointer is nil) and a
// consumability flag (the reference is the last live one and the op may
// reuse its storage). Dispatch picks, in order: the permuting out-of-place
// kernel when a permutation is present; an in-place kernel into a consumable
// argument (into the right one only for commutative folds, with subtraction
// reusing the right tile through its fused reversed kernel); and the plain
// out-of-place kernel otherwise. Zero arguments resolve to algebraic
// identities where one exists and to a ZeroOperand error where none does.
package tileops

import (
	"github.com/calewis/tiledarray/errors"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/perm"
)

// Arg is one operand of a tile op.
type Arg struct {
	// Tile is the operand storage; nil iff Zero.
	Tile *tiles.Tile
	// Zero marks a structurally zero operand.
	Zero bool
	// Consumable marks the reference as the last live one.
	Consumable bool
}

// Value wraps a live, non-consumable tile.
func Value(t *tiles.Tile) Arg { return Arg{Tile: t} }

// Consumed wraps a live tile whose storage the op may reuse.
func Consumed(t *tiles.Tile) Arg { return Arg{Tile: t, Consumable: true} }

// ZeroArg is the structurally zero operand.
func ZeroArg() Arg { return Arg{Zero: true} }

func (a Arg) validate() error {
	if a.Zero {
		if a.Tile != nil {
			return errors.E(errors.Shape, "zero operand carries a tile")
		}
		return nil
	}
	if a.Tile == nil {
		if a.Consumable {
			return errors.E(errors.Consumability, "consumable flag asserted on a dead reference")
		}
		return errors.E(errors.Shape, "nonzero operand carries no tile")
	}
	return nil
}

// Binary evaluates one output tile from two operands.
type Binary interface {
	Apply(left, right Arg) (*tiles.Tile, error)
}

// Unary evaluates one output tile from one operand.
type Unary interface {
	Apply(arg Arg) (*tiles.Tile, error)
}

// AddOp computes perm((left + right) * factor).
type AddOp struct {
	Perm   perm.Permutation
	Factor float64
}

// NewAdd returns an addition op. A zero factor request is normalized to 1.
func NewAdd(p perm.Permutation, factor float64) AddOp {
	if factor == 0 {
		factor = 1
	}
	return AddOp{Perm: p, Factor: factor}
}

// Apply dispatches the addition.
func (op AddOp) Apply(left, right Arg) (*tiles.Tile, error) {
	if err := validatePair(left, right); err != nil {
		return nil, err
	}
	switch {
	case left.Zero && right.Zero:
		return nil, errors.E(errors.ZeroOperand, "add of two zero tiles")
	case left.Zero:
		return scaleArg(right, op.Factor, op.Perm), nil
	case right.Zero:
		return scaleArg(left, op.Factor, op.Perm), nil
	}
	if !op.Perm.IsIdentity() {
		return tiles.AddPermuted(left.Tile, right.Tile, op.Factor, op.Perm), nil
	}
	if left.Consumable {
		tiles.AddTo(left.Tile, right.Tile, op.Factor)
		return left.Tile, nil
	}
	if right.Consumable {
		// Addition commutes, so the right tile can absorb the fold.
		tiles.AddTo(right.Tile, left.Tile, op.Factor)
		return right.Tile, nil
	}
	return tiles.AddScaled(left.Tile, right.Tile, op.Factor), nil
}

// SubtOp computes perm((left - right) * factor).
type SubtOp struct {
	Perm   perm.Permutation
	Factor float64
}

// NewSubt returns a subtraction op.
func NewSubt(p perm.Permutation, factor float64) SubtOp {
	if factor == 0 {
		factor = 1
	}
	return SubtOp{Perm: p, Factor: factor}
}

// Apply dispatches the subtraction.
func (op SubtOp) Apply(left, right Arg) (*tiles.Tile, error) {
	if err := validatePair(left, right); err != nil {
		return nil, err
	}
	switch {
	case left.Zero && right.Zero:
		return nil, errors.E(errors.ZeroOperand, "subtract of two zero tiles")
	case left.Zero:
		return scaleArg(right, -op.Factor, op.Perm), nil
	case right.Zero:
		return scaleArg(left, op.Factor, op.Perm), nil
	}
	if !op.Perm.IsIdentity() {
		return tiles.SubtPermuted(left.Tile, right.Tile, op.Factor, op.Perm), nil
	}
	if left.Consumable {
		tiles.SubtTo(left.Tile, right.Tile, op.Factor)
		return left.Tile, nil
	}
	if right.Consumable {
		// Not commutative, but the reversed fused kernel still reuses the
		// right tile's storage.
		tiles.SubtRight(left.Tile, right.Tile, op.Factor)
		return right.Tile, nil
	}
	return tiles.SubtScaled(left.Tile, right.Tile, op.Factor), nil
}

// MultOp computes perm((left .* right) * factor), the Hadamard product.
type MultOp struct {
	Perm   perm.Permutation
	Factor float64
}

// NewMult returns a Hadamard product op.
func NewMult(p perm.Permutation, factor float64) MultOp {
	if factor == 0 {
		factor = 1
	}
	return MultOp{Perm: p, Factor: factor}
}

// Apply dispatches the product. A zero operand has no multiplicative
// identity here: under correct shapes the zero branches are never evaluated,
// so reaching one is an error.
func (op MultOp) Apply(left, right Arg) (*tiles.Tile, error) {
	if err := validatePair(left, right); err != nil {
		return nil, err
	}
	if left.Zero || right.Zero {
		return nil, errors.E(errors.ZeroOperand, "multiply received a zero operand")
	}
	if !op.Perm.IsIdentity() {
		return tiles.MultPermuted(left.Tile, right.Tile, op.Factor, op.Perm), nil
	}
	if left.Consumable {
		tiles.MultTo(left.Tile, right.Tile, op.Factor)
		return left.Tile, nil
	}
	if right.Consumable {
		tiles.MultTo(right.Tile, left.Tile, op.Factor)
		return right.Tile, nil
	}
	return tiles.MultScaled(left.Tile, right.Tile, op.Factor), nil
}

func validatePair(left, right Arg) error {
	if err := left.validate(); err != nil {
		return err
	}
	return right.validate()
}

// scaleArg realizes factor * perm(arg) for a single surviving operand,
// reusing its storage when consumable and nothing else forces a copy.
func scaleArg(a Arg, factor float64, p perm.Permutation) *tiles.Tile {
	if !p.IsIdentity() {
		return tiles.ScalePermuted(a.Tile, factor, p)
	}
	if a.Consumable {
		if factor != 1 {
			tiles.ScaleTo(a.Tile, factor)
		}
		return a.Tile
	}
	if factor == 1 {
		return a.Tile.Clone()
	}
	return tiles.Scale(a.Tile, factor)
}

// NoopOp clones or permutes its argument; a consumable argument with no
// permutation passes straight through.
type NoopOp struct {
	Perm perm.Permutation
}

// Apply dispatches the no-op.
func (op NoopOp) Apply(arg Arg) (*tiles.Tile, error) {
	if err := arg.validate(); err != nil {
		return nil, err
	}
	if arg.Zero {
		return nil, errors.E(errors.ZeroOperand, "noop of a zero tile")
	}
	if !op.Perm.IsIdentity() {
		return tiles.Permute(arg.Tile, op.Perm), nil
	}
	if arg.Consumable {
		return arg.Tile, nil
	}
	return arg.Tile.Clone(), nil
}

// ScaleOp computes perm(arg * factor).
type ScaleOp struct {
	Perm   perm.Permutation
	Factor float64
}

// Apply dispatches the scaling.
func (op ScaleOp) Apply(arg Arg) (*tiles.Tile, error) {
	if err := arg.validate(); err != nil {
		return nil, err
	}
	if arg.Zero {
		return nil, errors.E(errors.ZeroOperand, "scale of a zero tile")
	}
	return scaleArg(arg, op.Factor, op.Perm), nil
}

// NegOp computes perm(-arg).
type NegOp struct {
	Perm perm.Permutation
}

// Apply dispatches the negation.
func (op NegOp) Apply(arg Arg) (*tiles.Tile, error) {
	return ScaleOp{Perm: op.Perm, Factor: -1}.Apply(arg)
}
