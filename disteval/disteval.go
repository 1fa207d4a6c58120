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

// Package disteval implements distributed evaluators: lazy, tile-indexed
// asynchronous tensors.
//
// An evaluator owns a TiledRange, a shape, a process map and a distributed
// store of output tile futures. Eval launches the work for every local,
// structurally nonzero tile; Get hands out the tile futures (any rank may
// ask — a remote ordinal is an eager fetch through the store); Wait blocks
// until the evaluator's local work has retired. For a given output tile all
// contributions are folded before its future resolves; between output tiles
// there is no ordering.
package disteval

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/ranges"
)

// Eval is a lazy distributed tensor node.
type Eval interface {
	// World returns the world the evaluator runs in.
	World() *runtime.World
	// TRange returns the tiled range of the output.
	TRange() ranges.TiledRange
	// Shape returns the output sparsity shape.
	Shape() shapes.Shape
	// Pmap returns the output distribution.
	Pmap() pmaps.Pmap
	// Get returns the future of an output tile. Valid for any rank and any
	// structurally nonzero ordinal; the fetch is initiated eagerly.
	Get(ordinal int) *runtime.Future[*tiles.Tile]
	// Eval launches the evaluator tree's work. Idempotent.
	Eval()
	// Wait blocks until all local work has retired and returns the first
	// evaluation error, if any.
	Wait() error
}

// node carries the state shared by the computing evaluators.
type node struct {
	world  *runtime.World
	trange ranges.TiledRange
	shape  shapes.Shape
	pmap   pmaps.Pmap
	store  *runtime.Store[*tiles.Tile]

	once    sync.Once
	pending sync.WaitGroup

	errMu sync.Mutex
	err   error
}

func (n *node) init(world *runtime.World, trange ranges.TiledRange, shape shapes.Shape, pmap pmaps.Pmap, tag string) {
	n.world = world
	n.trange = trange
	n.shape = shape
	n.pmap = pmap
	n.store = runtime.NewStore[*tiles.Tile](world, tag)
}

func (n *node) World() *runtime.World     { return n.world }
func (n *node) TRange() ranges.TiledRange { return n.trange }
func (n *node) Shape() shapes.Shape       { return n.shape }
func (n *node) Pmap() pmaps.Pmap          { return n.pmap }

func (n *node) Get(ordinal int) *runtime.Future[*tiles.Tile] { return n.store.Get(ordinal) }

// publish binds an output slot and tracks its retirement.
func (n *node) publish(ordinal int, f *runtime.Future[*tiles.Tile]) {
	n.pending.Add(1)
	n.store.Set(ordinal, f)
	f.OnReady(func() {
		if err := f.Err(); err != nil {
			n.fail(err)
		}
		n.pending.Done()
	})
}

func (n *node) fail(err error) {
	n.errMu.Lock()
	if n.err == nil {
		n.err = err
	}
	n.errMu.Unlock()
}

func (n *node) localErr() error {
	n.errMu.Lock()
	defer n.errMu.Unlock()
	return n.err
}

// wait blocks on local retirement after waiting out the children.
func (n *node) wait(children ...Eval) error {
	for _, c := range children {
		if err := c.Wait(); err != nil {
			return err
		}
	}
	n.pending.Wait()
	return n.localErr()
}

func logSchedule(kind string, world *runtime.World, scheduled int) {
	klog.V(2).Infof("rank %d: %s evaluator scheduled %d local tiles", world.Rank(), kind, scheduled)
}
