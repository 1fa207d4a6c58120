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
	"sync/atomic"

	"k8s.io/klog/v2"
)

// taskPool runs a rank's tasks on a small set of workers. Submit never
// blocks; tasks spawn further tasks freely. The pool counts spawned and
// completed tasks so the fence can detect quiescence.
type taskPool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	running int
	closed  bool

	spawned   atomic.Int64
	completed atomic.Int64
}

func newTaskPool(workers int) *taskPool {
	p := &taskPool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Submit enqueues a task. Never blocks.
func (p *taskPool) Submit(task func()) {
	p.spawned.Add(1)
	p.mu.Lock()
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	// Broadcast rather than Signal: drain waiters share the condition
	// variable with the workers.
	p.cond.Broadcast()
}

func (p *taskPool) work() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed && len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		p.run(task)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
		p.completed.Add(1)
		p.cond.Broadcast()
	}
}

func (p *taskPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking task would otherwise take down the whole rank;
			// errors are expected to travel through futures instead.
			klog.Errorf("task panicked: %v", r)
		}
	}()
	task()
}

// drain blocks until the queue is empty and no task is running.
func (p *taskPool) drain() {
	p.mu.Lock()
	for len(p.queue) > 0 || p.running > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// close stops the workers after the queue empties.
func (p *taskPool) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}
