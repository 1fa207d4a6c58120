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

// Package reduce implements a dependency-driven fan-in over a stream of
// futures of unknown size and arrival order.
//
// Arguments are folded as they become ready, so the fold order is
// non-deterministic; the operation must be associative and commutative. The
// engine keeps one ready-accumulator slot and one ready-argument slot under a
// single short-critical-section lock: an arriving argument pairs with
// whichever slot is occupied and spawns a fold task, or parks when both are
// empty, so no argument ever waits for a specific partner. Kernel work always
// runs outside the lock.
package reduce

import (
	"sync"
	"sync/atomic"

	"github.com/gomlx/exceptions"

	"github.com/calewis/tiledarray/runtime"
)

// Op is a reduction operation. All methods must be safe for concurrent use;
// Fold and Combine must together be associative and commutative up to
// Finalize.
type Op[R, A any] interface {
	// Identity returns an empty accumulator.
	Identity() R
	// Fold folds one argument into the accumulator.
	Fold(acc R, arg A) R
	// Combine merges two accumulators.
	Combine(acc, other R) R
	// Finalize post-processes the accumulator (e.g. a final sqrt).
	Finalize(acc R) R
}

// Task reduces an arbitrary number of future-valued arguments with an Op.
//
// Arguments are attached with Add before Submit is called; Submit closes the
// argument set and returns the future of the finalized result. Each added
// argument is folded exactly once; the result is independent of arrival
// order. An argument future that resolves to an error poisons the result
// (first error wins) while still letting the task retire.
type Task[R, A any] struct {
	world *runtime.World
	op    Op[R, A]

	mu          sync.Mutex
	readyResult *R
	readyObject *object[R, A]

	count     atomic.Int64
	submitted atomic.Bool
	result    *runtime.Future[R]
	callback  func()

	errMu sync.Mutex
	err   error
}

// object holds one pending argument. It signals the task when all the
// futures it depends on have resolved.
type object[R, A any] struct {
	task     *Task[R, A]
	arg      A
	fetch    func() (A, error)
	pending  atomic.Int32
	callback func()
}

// NewTask creates an idle reduction task. The optional callback runs when
// the result future resolves.
func NewTask[R, A any](world *runtime.World, op Op[R, A], callback func()) *Task[R, A] {
	t := &Task[R, A]{
		world:    world,
		op:       op,
		result:   runtime.NewFuture[R](),
		callback: callback,
	}
	// The identity accumulator starts parked in the ready slot; the count
	// of 1 is released by Submit.
	acc := op.Identity()
	t.readyResult = &acc
	t.count.Store(1)
	return t
}

// Add attaches an argument future. The optional callback runs once the
// argument has been folded. Panics when called after Submit.
func (t *Task[R, A]) Add(f *runtime.Future[A], callback func()) {
	obj := t.newObject(callback, 1, f.Get)
	f.OnReady(obj.notify)
}

func (t *Task[R, A]) newObject(callback func(), deps int32, fetch func() (A, error)) *object[R, A] {
	if t.submitted.Load() {
		exceptions.Panicf("reduce.Task: Add after Submit")
	}
	t.count.Add(1)
	obj := &object[R, A]{task: t, fetch: fetch, callback: callback}
	obj.pending.Store(deps)
	return obj
}

// notify records one resolved dependency; the last one makes the argument
// ready.
func (o *object[R, A]) notify() {
	if o.pending.Add(-1) != 0 {
		return
	}
	arg, err := o.fetch()
	if err != nil {
		o.task.fail(err)
		o.destroy()
		o.task.dec()
		return
	}
	o.arg = arg
	o.task.ready(o)
}

// destroy releases the argument: its completion callback fires once.
func (o *object[R, A]) destroy() {
	if o.callback != nil {
		o.callback()
		o.callback = nil
	}
}

// ready places an argument in the ready state. If an accumulator or another
// argument is already parked, the pair spawns a fold task; otherwise the
// argument parks.
func (t *Task[R, A]) ready(obj *object[R, A]) {
	t.mu.Lock()
	if t.readyResult != nil {
		acc := t.readyResult
		t.readyResult = nil
		t.mu.Unlock()
		t.world.Submit(func() { t.reduceResultObject(acc, obj) })
	} else if t.readyObject != nil {
		other := t.readyObject
		t.readyObject = nil
		t.mu.Unlock()
		t.world.Submit(func() { t.reduceObjectObject(obj, other) })
	} else {
		t.readyObject = obj
		t.mu.Unlock()
	}
}

// reduceResultObject folds one argument into a parked accumulator, then
// drains any further ready work.
func (t *Task[R, A]) reduceResultObject(acc *R, obj *object[R, A]) {
	*acc = t.op.Fold(*acc, obj.arg)
	obj.destroy()
	t.reduceLoop(acc)
	// Decrement after the loop re-parks the accumulator to keep the final
	// run from racing with it.
	t.dec()
}

// reduceObjectObject builds a fresh accumulator from two ready arguments.
func (t *Task[R, A]) reduceObjectObject(obj1, obj2 *object[R, A]) {
	acc := t.op.Identity()
	acc = t.op.Fold(acc, obj1.arg)
	acc = t.op.Fold(acc, obj2.arg)
	obj1.destroy()
	obj2.destroy()
	t.reduceLoop(&acc)
	t.dec()
	t.dec()
}

// reduceLoop folds ready slots into acc until nothing is ready, then parks
// acc. The lock covers only slot manipulation.
func (t *Task[R, A]) reduceLoop(acc *R) {
	for {
		t.mu.Lock()
		if t.readyObject != nil {
			obj := t.readyObject
			t.readyObject = nil
			t.mu.Unlock()
			*acc = t.op.Fold(*acc, obj.arg)
			obj.destroy()
			t.dec()
			continue
		}
		if t.readyResult != nil {
			other := t.readyResult
			t.readyResult = nil
			t.mu.Unlock()
			*acc = t.op.Combine(*acc, *other)
			continue
		}
		t.readyResult = acc
		t.mu.Unlock()
		return
	}
}

func (t *Task[R, A]) fail(err error) {
	t.errMu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.errMu.Unlock()
}

// dec retires one dependency; the last one finalizes the result.
func (t *Task[R, A]) dec() {
	if t.count.Add(-1) != 0 {
		return
	}
	t.errMu.Lock()
	err := t.err
	t.errMu.Unlock()
	if err != nil {
		t.result.SetError(err)
	} else {
		t.mu.Lock()
		acc := t.readyResult
		t.readyResult = nil
		t.mu.Unlock()
		if acc == nil {
			exceptions.Panicf("reduce.Task: no accumulator at finalization")
		}
		t.result.Set(t.op.Finalize(*acc))
	}
	if t.callback != nil {
		t.callback()
	}
}

// Submit closes the argument set and returns the result future. The future
// resolves once every argument has been folded and the finalization applied.
func (t *Task[R, A]) Submit() *runtime.Future[R] {
	if t.submitted.Swap(true) {
		exceptions.Panicf("reduce.Task: submitted twice")
	}
	t.dec()
	return t.result
}

// Result returns the result future without closing the argument set.
func (t *Task[R, A]) Result() *runtime.Future[R] { return t.result }
