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

// Package runtime provides the execution fabric the tensor engine runs on:
// an SPMD world of ranks, a per-rank task pool, single-assignment futures,
// collective operations (barrier, all-reduce, broadcast) and a distributed
// future-valued store.
//
// Ranks are goroutines inside one process and the fabric is shared memory,
// standing in for an MPI transport: every operation is expressed through the
// same rank/owner discipline a wire transport would need, and remote tile
// access always goes through a Store.
package runtime

import (
	stdruntime "runtime"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Comm is the communication fabric shared by the ranks of one Run.
type Comm struct {
	nprocs int
	pools  []*taskPool

	mu     sync.Mutex
	cond   *sync.Cond
	rounds map[string]*round
	seq    map[string][]int
	stores map[string]any
}

// round is one in-flight collective operation. A round completes when all
// ranks have contributed, and is reclaimed when all ranks have read the
// result.
type round struct {
	values  []any
	arrived int
	done    bool
	result  any
	readers int
}

func newComm(nprocs int) *Comm {
	workers := stdruntime.NumCPU() / nprocs
	if workers < 2 {
		workers = 2
	}
	c := &Comm{
		nprocs: nprocs,
		pools:  make([]*taskPool, nprocs),
		rounds: make(map[string]*round),
		seq:    make(map[string][]int),
		stores: make(map[string]any),
	}
	c.cond = sync.NewCond(&c.mu)
	for i := range c.pools {
		c.pools[i] = newTaskPool(workers)
	}
	return c
}

// Size returns the number of ranks.
func (c *Comm) Size() int { return c.nprocs }

// collective runs one step of a collective operation for the calling rank.
// Matching across ranks is by (tag, per-rank call count), so every rank must
// issue collectives for a given tag in the same order.
func (c *Comm) collective(rank int, tag string, value any, finish func(values []any) any) any {
	c.mu.Lock()
	seq, ok := c.seq[tag]
	if !ok {
		seq = make([]int, c.nprocs)
		c.seq[tag] = seq
	}
	key := tag + "#" + itoa(seq[rank])
	seq[rank]++
	rd, ok := c.rounds[key]
	if !ok {
		rd = &round{values: make([]any, c.nprocs)}
		c.rounds[key] = rd
	}
	rd.values[rank] = value
	rd.arrived++
	if rd.arrived == c.nprocs {
		rd.result = finish(rd.values)
		rd.done = true
		c.cond.Broadcast()
	} else {
		for !rd.done {
			c.cond.Wait()
		}
	}
	result := rd.result
	rd.readers++
	if rd.readers == c.nprocs {
		delete(c.rounds, key)
	}
	c.mu.Unlock()
	return result
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// World is one rank's handle onto the fabric: rank identity, the local task
// pool and the collective operations.
type World struct {
	comm *Comm
	rank int
	pool *taskPool
}

// Run launches an SPMD region: nprocs ranks, each running body with its own
// World, joined at the end. Run waits for every rank to return and then
// returns the first non-nil error; an error on one rank does not interrupt
// the others.
func Run(nprocs int, body func(*World) error) error {
	if nprocs < 1 {
		exceptions.Panicf("runtime.Run: nprocs must be positive, got %d", nprocs)
	}
	comm := newComm(nprocs)
	defer func() {
		for _, p := range comm.pools {
			p.close()
		}
	}()
	var g errgroup.Group
	for rank := 0; rank < nprocs; rank++ {
		world := &World{comm: comm, rank: rank, pool: comm.pools[rank]}
		g.Go(func() error { return body(world) })
	}
	return g.Wait()
}

// Rank returns the calling rank's id.
func (w *World) Rank() int { return w.rank }

// Size returns the number of ranks in the world.
func (w *World) Size() int { return w.comm.nprocs }

// Comm returns the shared fabric.
func (w *World) Comm() *Comm { return w.comm }

// Submit schedules a task on this rank's pool. Never blocks.
func (w *World) Submit(task func()) { w.pool.Submit(task) }

// Barrier blocks until every rank has reached the same barrier call.
func (w *World) Barrier() {
	w.comm.collective(w.rank, "barrier", nil, func([]any) any { return nil })
}

// AllReduceSum element-wise sums the local vectors of all ranks and returns
// the replicated result on every rank. All ranks must pass equal lengths.
func (w *World) AllReduceSum(local []float64) []float64 {
	result := w.comm.collective(w.rank, "allreduce-sum", local, func(values []any) any {
		first := values[0].([]float64)
		sum := make([]float64, len(first))
		for _, v := range values {
			vec := v.([]float64)
			if len(vec) != len(sum) {
				exceptions.Panicf("World.AllReduceSum: rank contributions differ in length (%d vs %d)", len(vec), len(sum))
			}
			for i, x := range vec {
				sum[i] += x
			}
		}
		return sum
	})
	return result.([]float64)
}

// AllReduce folds the per-rank values with combine and returns the replicated
// result. combine must be associative and commutative.
func AllReduce[T any](w *World, tag string, local T, combine func(a, b T) T) T {
	result := w.comm.collective(w.rank, "allreduce-"+tag, local, func(values []any) any {
		acc := values[0].(T)
		for _, v := range values[1:] {
			acc = combine(acc, v.(T))
		}
		return acc
	})
	return result.(T)
}

// Broadcast returns root's value on every rank.
func Broadcast[T any](w *World, tag string, root int, local T) T {
	if root < 0 || root >= w.comm.nprocs {
		exceptions.Panicf("runtime.Broadcast: root %d outside [0,%d)", root, w.comm.nprocs)
	}
	result := w.comm.collective(w.rank, "bcast-"+tag, local, func(values []any) any {
		return values[root]
	})
	return result.(T)
}

// SharedID returns an id generated once on rank 0 and replicated everywhere,
// used to key distributed stores.
func (w *World) SharedID(tag string) string {
	var id string
	if w.rank == 0 {
		id = uuid.NewString()
	}
	return Broadcast(w, "id-"+tag, 0, id)
}

// Fence blocks until the task pools of every rank have quiesced: all spawned
// tasks completed and no new ones appearing. Results produced before a rank
// enters the fence are visible on every rank after it returns.
//
// Spawn counters are monotonic, so two equal global samples taken with local
// drains in between imply nothing was in flight.
func (w *World) Fence() {
	for iter := 0; ; iter++ {
		w.pool.drain()
		before := w.globalSpawned()
		w.pool.drain()
		after := w.globalSpawned()
		if before == after {
			if iter > 0 {
				klog.V(2).Infof("rank %d: fence converged after %d rounds", w.rank, iter+1)
			}
			return
		}
	}
}

func (w *World) globalSpawned() int64 {
	local := w.pool.spawned.Load()
	return AllReduce(w, "fence", local, func(a, b int64) int64 { return a + b })
}
