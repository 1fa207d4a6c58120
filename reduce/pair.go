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

package reduce

import (
	"github.com/calewis/tiledarray/runtime"
)

// PairOp folds two-sided arguments (e.g. the tile pairs of a dot product)
// into an accumulator. Same algebra contract as Op.
type PairOp[R, L, Rt any] interface {
	// Identity returns an empty accumulator.
	Identity() R
	// FoldPair folds one argument pair into the accumulator.
	FoldPair(acc R, left L, right Rt) R
	// Combine merges two accumulators.
	Combine(acc, other R) R
	// Finalize post-processes the accumulator.
	Finalize(acc R) R
}

// Pair carries one two-sided argument.
type Pair[L, Rt any] struct {
	Left  L
	Right Rt
}

// pairOpAdapter converts a pair-wise reduction into a standard reduction.
type pairOpAdapter[R, L, Rt any] struct {
	op PairOp[R, L, Rt]
}

func (a pairOpAdapter[R, L, Rt]) Identity() R { return a.op.Identity() }

func (a pairOpAdapter[R, L, Rt]) Fold(acc R, arg Pair[L, Rt]) R {
	return a.op.FoldPair(acc, arg.Left, arg.Right)
}

func (a pairOpAdapter[R, L, Rt]) Combine(acc, other R) R { return a.op.Combine(acc, other) }

func (a pairOpAdapter[R, L, Rt]) Finalize(acc R) R { return a.op.Finalize(acc) }

// PairTask reduces a stream of future pairs. A pair becomes ready only when
// both halves have resolved; the engine registers a two-count callback so
// neither half blocks a worker.
type PairTask[R, L, Rt any] struct {
	task *Task[R, Pair[L, Rt]]
}

// NewPairTask creates an idle pair-reduction task.
func NewPairTask[R, L, Rt any](world *runtime.World, op PairOp[R, L, Rt], callback func()) *PairTask[R, L, Rt] {
	return &PairTask[R, L, Rt]{
		task: NewTask[R, Pair[L, Rt]](world, pairOpAdapter[R, L, Rt]{op: op}, callback),
	}
}

// Add attaches one argument pair. The optional callback fires once the pair
// has been folded.
func (t *PairTask[R, L, Rt]) Add(left *runtime.Future[L], right *runtime.Future[Rt], callback func()) {
	obj := t.task.newObject(callback, 2, func() (Pair[L, Rt], error) {
		l, err := left.Get()
		if err != nil {
			return Pair[L, Rt]{}, err
		}
		r, err := right.Get()
		if err != nil {
			return Pair[L, Rt]{}, err
		}
		return Pair[L, Rt]{Left: l, Right: r}, nil
	})
	left.OnReady(obj.notify)
	right.OnReady(obj.notify)
}

// Submit closes the argument set and returns the result future.
func (t *PairTask[R, L, Rt]) Submit() *runtime.Future[R] { return t.task.Submit() }

// Result returns the result future without closing the argument set.
func (t *PairTask[R, L, Rt]) Result() *runtime.Future[R] { return t.task.Result() }
