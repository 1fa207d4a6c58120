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
	"k8s.io/klog/v2"
)

// Store is a distributed ordinal-keyed map of futures, identified across
// ranks by a shared id. The owner of a key calls Set exactly once; any rank
// may call Get and receives a future that resolves when the owner's entry
// does. Creation is collective.
type Store[T any] struct {
	id    string
	shard *storeShard[T]
}

type storeShard[T any] struct {
	mu    sync.Mutex
	slots map[int]*storeSlot[T]
}

type storeSlot[T any] struct {
	future *Future[T]
	set    bool
}

// NewStore creates (collectively) a distributed store. The tag scopes the id
// exchange; every rank must create its stores in the same order.
func NewStore[T any](w *World, tag string) *Store[T] {
	id := w.SharedID("store-" + tag)
	c := w.comm
	c.mu.Lock()
	shared, ok := c.stores[id]
	if !ok {
		shared = &storeShard[T]{slots: make(map[int]*storeSlot[T])}
		c.stores[id] = shared
	}
	c.mu.Unlock()
	shard, ok := shared.(*storeShard[T])
	if !ok {
		exceptions.Panicf("runtime.NewStore: store %q re-created with a different element type", id)
	}
	return &Store[T]{id: id, shard: shard}
}

// ID returns the shared store id.
func (s *Store[T]) ID() string { return s.id }

func (s *Store[T]) slot(ordinal int) *storeSlot[T] {
	s.shard.mu.Lock()
	slot, ok := s.shard.slots[ordinal]
	if !ok {
		slot = &storeSlot[T]{future: NewFuture[T]()}
		s.shard.slots[ordinal] = slot
	}
	s.shard.mu.Unlock()
	return slot
}

// Set binds the entry for ordinal to the given future. Write-once per key;
// only the owner rank may call it.
func (s *Store[T]) Set(ordinal int, f *Future[T]) {
	slot := s.slot(ordinal)
	s.shard.mu.Lock()
	if slot.set {
		s.shard.mu.Unlock()
		exceptions.Panicf("runtime.Store: ordinal %d set twice", ordinal)
	}
	slot.set = true
	s.shard.mu.Unlock()
	Forward(f, slot.future)
}

// SetValue binds the entry for ordinal to an already-computed value.
func (s *Store[T]) SetValue(ordinal int, value T) {
	s.Set(ordinal, Ready(value))
}

// Get returns a future for the entry at ordinal. Callable from any rank; the
// future resolves when the owner sets the entry. Reading an ordinal that is
// never set blocks forever — callers consult the shape first.
func (s *Store[T]) Get(ordinal int) *Future[T] {
	slot := s.slot(ordinal)
	if klog.V(3).Enabled() && !slot.future.Probe() {
		klog.Infof("store %s: pending fetch of ordinal %d", s.id[:8], ordinal)
	}
	return slot.future
}
