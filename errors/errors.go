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

// Package errors provides the kinded error values used throughout the tiled
// array engine. Each error carries a Kind so that callers observing a failed
// future can dispatch on the class of failure without parsing messages.
//
// Package errors provides Errorf and New as convenience constructors so users
// need import only one error package.
package errors

import (
	goerrors "errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind denotes the class of an error. The kind is used both to render the
// error message and for interpretation by callers.
type Kind int

const (
	// Other denotes an unclassified error.
	Other Kind = iota
	// Shape denotes a zero tile used where a nonzero operand is required,
	// or a shape mismatch between operands.
	Shape
	// Range denotes a TiledRange mismatch, a dimension count mismatch, or an
	// out-of-range tile ordinal.
	Range
	// Variable denotes duplicate, empty or missing index labels, a dimension
	// count that differs from the label count, or annotations that are not
	// permutation-equivalent where the operation requires them.
	Variable
	// Permutation denotes a non-bijective image sequence or a dimension
	// mismatch on apply.
	Permutation
	// Pmap denotes an invalid process grid.
	Pmap
	// Consumability denotes a runtime consumable flag asserting a reference
	// that is not the last live one.
	Consumability
	// ZeroOperand denotes an operation with no zero identity receiving a
	// zero argument.
	ZeroOperand

	maxKind
)

// String renders a human-readable description of kind k.
func (k Kind) String() string {
	switch k {
	case Shape:
		return "shape error"
	case Range:
		return "range error"
	case Variable:
		return "variable error"
	case Permutation:
		return "permutation error"
	case Pmap:
		return "process map error"
	case Consumability:
		return "consumability error"
	case ZeroOperand:
		return "invalid zero operand"
	default:
		return "error"
	}
}

// Error is the concrete error type. Use E to construct one and Match to
// interpret one; the fields are exported for tests.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

// Unwrap returns the chained error.
func (e *Error) Unwrap() error { return e.Err }

// E constructs a kinded error. The format and arguments follow fmt.Errorf;
// with an empty format, a trailing error argument is chained instead of
// formatted.
func E(kind Kind, format string, args ...any) error {
	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok && len(format) == 0 {
			return &Error{Kind: kind, Err: err}
		}
	}
	return &Error{Kind: kind, Err: pkgerrors.Errorf(format, args...)}
}

// Chain wraps err with a kind, preserving the original chain.
func Chain(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// New returns an unclassified error with the given message.
func New(msg string) error { return pkgerrors.New(msg) }

// Errorf returns an unclassified formatted error.
func Errorf(format string, args ...any) error { return pkgerrors.Errorf(format, args...) }

// Match reports whether err (or any error in its chain) is an Error of the
// given kind.
func Match(kind Kind, err error) bool {
	var e *Error
	for {
		if !goerrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
}

// KindOf returns the kind of err, or Other if err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Kind
	}
	return Other
}
