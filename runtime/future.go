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

package runtime

import (
	"sync"

	"github.com/gomlx/exceptions"
)

// Future is a single-assignment slot holding a value or an error.
//
// A Future resolves exactly once, through Set or SetError. Get blocks until
// resolution; Probe never blocks; OnReady registers a callback that runs
// exactly once, immediately when the future is already resolved. Tasks inside
// the pool must never Get an unready future; they chain through OnReady.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	value     T
	err       error
	callbacks []func()
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Ready returns a future already resolved to value.
func Ready[T any](value T) *Future[T] {
	f := NewFuture[T]()
	f.Set(value)
	return f
}

// Failed returns a future already resolved to err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.SetError(err)
	return f
}

// Set resolves the future to value. Resolving twice panics: tile slots are
// write-once.
func (f *Future[T]) Set(value T) {
	f.mu.Lock()
	if f.resolvedLocked() {
		f.mu.Unlock()
		exceptions.Panicf("runtime.Future: resolved twice")
	}
	f.value = value
	callbacks := f.finishLocked()
	f.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

// SetError resolves the future to an error.
func (f *Future[T]) SetError(err error) {
	f.mu.Lock()
	if f.resolvedLocked() {
		f.mu.Unlock()
		exceptions.Panicf("runtime.Future: resolved twice")
	}
	f.err = err
	callbacks := f.finishLocked()
	f.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

func (f *Future[T]) resolvedLocked() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Future[T]) finishLocked() []func() {
	close(f.done)
	callbacks := f.callbacks
	f.callbacks = nil
	return callbacks
}

// Get blocks until the future resolves and returns its value or error.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// Must returns the resolved value and panics on error. For use after a
// fence, when the value is known to be present.
func (f *Future[T]) Must() T {
	v, err := f.Get()
	if err != nil {
		exceptions.Panicf("runtime.Future: %v", err)
	}
	return v
}

// Probe reports whether the future has resolved.
func (f *Future[T]) Probe() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the error of a resolved future, nil before resolution.
func (f *Future[T]) Err() error {
	if !f.Probe() {
		return nil
	}
	return f.err
}

// OnReady registers fn to run once the future resolves. If the future is
// already resolved, fn runs synchronously before OnReady returns.
func (f *Future[T]) OnReady(fn func()) {
	f.mu.Lock()
	if !f.resolvedLocked() {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn()
}

// Forward resolves dst from f once f resolves.
func Forward[T any](f *Future[T], dst *Future[T]) {
	f.OnReady(func() {
		v, err := f.Get()
		if err != nil {
			dst.SetError(err)
			return
		}
		dst.Set(v)
	})
}
