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
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/calewis/tiledarray/runtime"
)

// sumOp reduces ints by addition, counting Finalize calls.
type sumOp struct {
	finalized *atomic.Int32
}

func (op sumOp) Identity() int          { return 0 }
func (op sumOp) Fold(acc, arg int) int  { return acc + arg }
func (op sumOp) Combine(acc, b int) int { return acc + b }
func (op sumOp) Finalize(acc int) int {
	if op.finalized != nil {
		op.finalized.Add(1)
	}
	return acc
}

func TestEmptyReduction(t *testing.T) {
	err := runtime.Run(1, func(w *runtime.World) error {
		task := NewTask[int, int](w, sumOp{}, nil)
		got, err := task.Submit().Get()
		if err != nil {
			return err
		}
		if got != 0 {
			return fmt.Errorf("empty reduction = %d, want the identity", got)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestReductionFoldsEachArgumentOnce(t *testing.T) {
	err := runtime.Run(1, func(w *runtime.World) error {
		const n = 100
		task := NewTask[int, int](w, sumOp{}, nil)
		var folded atomic.Int32
		futs := make([]*runtime.Future[int], n)
		for i := range futs {
			futs[i] = runtime.NewFuture[int]()
			task.Add(futs[i], func() { folded.Add(1) })
		}
		for i, f := range futs {
			f.Set(i + 1)
		}
		got, err := task.Submit().Get()
		if err != nil {
			return err
		}
		if got != n*(n+1)/2 {
			return fmt.Errorf("sum = %d, want %d", got, n*(n+1)/2)
		}
		if folded.Load() != n {
			return fmt.Errorf("%d per-argument callbacks fired, want %d", folded.Load(), n)
		}
		return nil
	})
	require.NoError(t, err)
}

// TestArrivalOrderInvariance drives the same argument multiset through many
// permuted, concurrent resolution schedules; every schedule must produce the
// same result.
func TestArrivalOrderInvariance(t *testing.T) {
	const n = 50
	want := n * (n + 1) / 2
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 20; trial++ {
		order := rng.Perm(n)
		err := runtime.Run(2, func(w *runtime.World) error {
			var finalized atomic.Int32
			task := NewTask[int, int](w, sumOp{finalized: &finalized}, nil)
			futs := make([]*runtime.Future[int], n)
			for i := range futs {
				futs[i] = runtime.NewFuture[int]()
				task.Add(futs[i], nil)
			}
			// Resolve in a permuted order from concurrent tasks.
			for _, i := range order {
				w.Submit(func() { futs[i].Set(i + 1) })
			}
			got, err := task.Submit().Get()
			if err != nil {
				return err
			}
			if got != want {
				return fmt.Errorf("trial sum = %d, want %d", got, want)
			}
			if finalized.Load() != 1 {
				return fmt.Errorf("finalize ran %d times", finalized.Load())
			}
			w.Fence()
			return nil
		})
		require.NoError(t, err)
	}
}

func TestPreResolvedArguments(t *testing.T) {
	err := runtime.Run(1, func(w *runtime.World) error {
		task := NewTask[int, int](w, sumOp{}, nil)
		for i := 1; i <= 5; i++ {
			task.Add(runtime.Ready(i), nil)
		}
		got, err := task.Submit().Get()
		if err != nil {
			return err
		}
		if got != 15 {
			return fmt.Errorf("sum = %d", got)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestCompletionCallback(t *testing.T) {
	err := runtime.Run(1, func(w *runtime.World) error {
		done := make(chan struct{})
		task := NewTask[int, int](w, sumOp{}, func() { close(done) })
		task.Add(runtime.Ready(1), nil)
		if _, err := task.Submit().Get(); err != nil {
			return err
		}
		<-done
		return nil
	})
	require.NoError(t, err)
}

func TestErrorPoisonsResult(t *testing.T) {
	err := runtime.Run(1, func(w *runtime.World) error {
		task := NewTask[int, int](w, sumOp{}, nil)
		task.Add(runtime.Ready(1), nil)
		task.Add(runtime.Failed[int](errors.New("bad tile")), nil)
		task.Add(runtime.Ready(2), nil)
		_, err := task.Submit().Get()
		if err == nil {
			return errors.New("poisoned reduction returned a value")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestAddAfterSubmitPanics(t *testing.T) {
	err := runtime.Run(1, func(w *runtime.World) error {
		task := NewTask[int, int](w, sumOp{}, nil)
		task.Submit()
		panicked := false
		func() {
			defer func() { panicked = recover() != nil }()
			task.Add(runtime.Ready(1), nil)
		}()
		if !panicked {
			return errors.New("Add after Submit did not panic")
		}
		return nil
	})
	require.NoError(t, err)
}

// dotPairOp multiplies pairs and sums the products.
type dotPairOp struct{}

func (dotPairOp) Identity() int              { return 0 }
func (dotPairOp) FoldPair(acc, l, r int) int { return acc + l*r }
func (dotPairOp) Combine(acc, other int) int { return acc + other }
func (dotPairOp) Finalize(acc int) int       { return acc }

func TestPairReduction(t *testing.T) {
	err := runtime.Run(2, func(w *runtime.World) error {
		task := NewPairTask[int, int, int](w, dotPairOp{}, nil)
		const n = 20
		lefts := make([]*runtime.Future[int], n)
		rights := make([]*runtime.Future[int], n)
		for i := range lefts {
			lefts[i] = runtime.NewFuture[int]()
			rights[i] = runtime.NewFuture[int]()
			task.Add(lefts[i], rights[i], nil)
		}
		// A pair is ready only when both halves resolve; resolve halves on
		// different schedules.
		for i := range lefts {
			w.Submit(func() { lefts[i].Set(i) })
		}
		for i := range rights {
			w.Submit(func() { rights[i].Set(2) })
		}
		got, err := task.Submit().Get()
		if err != nil {
			return err
		}
		want := n * (n - 1) // sum of 2*i
		if got != want {
			return fmt.Errorf("pair reduction = %d, want %d", got, want)
		}
		w.Fence()
		return nil
	})
	require.NoError(t, err)
}

func TestPairErrorPropagates(t *testing.T) {
	err := runtime.Run(1, func(w *runtime.World) error {
		task := NewPairTask[int, int, int](w, dotPairOp{}, nil)
		task.Add(runtime.Ready(1), runtime.Failed[int](errors.New("bad half")), nil)
		if _, err := task.Submit().Get(); err == nil {
			return errors.New("poisoned pair reduction returned a value")
		}
		return nil
	})
	require.NoError(t, err)
}
