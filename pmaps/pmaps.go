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

// Package pmaps maps tile ordinals to owner ranks.
//
// A Pmap is a pure function owner(tile) → rank plus a precomputed, ascending
// list of the calling rank's local tiles. Blocked, cyclic and 2-D cyclic
// distributions are provided; all are deterministic in (rank, nprocs, size)
// so every rank computes an identical map.
package pmaps

import (
	"github.com/gomlx/exceptions"

	"github.com/calewis/tiledarray/errors"
	"github.com/calewis/tiledarray/runtime"
)

// Pmap maps each tile ordinal in [0, Size) to its owner rank.
type Pmap interface {
	// Owner returns the rank that owns the tile.
	Owner(tile int) int
	// IsLocal reports whether the tile is owned by the calling rank.
	IsLocal(tile int) bool
	// Locals returns the calling rank's tile ordinals in increasing order.
	Locals() []int
	// Size returns the number of tiles mapped.
	Size() int
	// Rank returns the calling rank.
	Rank() int
	// Procs returns the number of ranks tiles are mapped over.
	Procs() int
}

// base carries the fields shared by all map variants.
type base struct {
	rank  int
	procs int
	size  int
	local []int
}

func (b *base) Locals() []int { return b.local }
func (b *base) Size() int     { return b.size }
func (b *base) Rank() int     { return b.rank }
func (b *base) Procs() int    { return b.procs }

func (b *base) check(tile int) {
	if tile < 0 || tile >= b.size {
		exceptions.Panicf("pmaps: tile ordinal %d outside [0,%d)", tile, b.size)
	}
}

// Blocked assigns each rank one contiguous block of ordinals.
type Blocked struct {
	base
	blockSize int
	remainder int
}

// NewBlocked builds a blocked map of size tiles over the world's ranks.
func NewBlocked(w *runtime.World, size int) *Blocked {
	if size < 0 {
		exceptions.Panicf("pmaps.NewBlocked: negative size %d", size)
	}
	p := &Blocked{
		base:      base{rank: w.Rank(), procs: w.Size(), size: size},
		blockSize: size / w.Size(),
		remainder: size % w.Size(),
	}
	lo, hi := p.block(p.rank)
	for t := lo; t < hi; t++ {
		p.local = append(p.local, t)
	}
	return p
}

// block returns the half-open ordinal interval of the given rank. The first
// remainder ranks carry one extra tile.
func (p *Blocked) block(rank int) (lo, hi int) {
	lo = rank*p.blockSize + min(rank, p.remainder)
	hi = lo + p.blockSize
	if rank < p.remainder {
		hi++
	}
	return lo, hi
}

// Owner returns the rank whose block contains the tile.
func (p *Blocked) Owner(tile int) int {
	p.check(tile)
	if p.blockSize == 0 {
		return tile
	}
	// Guess assuming all blocks carry the extra tile, then correct.
	rank := tile / (p.blockSize + 1)
	if lo, hi := p.block(rank); tile >= lo && tile < hi {
		return rank
	}
	return (tile - p.remainder) / p.blockSize
}

// IsLocal reports whether the tile falls in this rank's block.
func (p *Blocked) IsLocal(tile int) bool { return p.Owner(tile) == p.rank }

// Cyclic assigns ordinals round-robin over the ranks.
type Cyclic struct {
	base
}

// NewCyclic builds a 1-D cyclic map of size tiles over the world's ranks.
func NewCyclic(w *runtime.World, size int) *Cyclic {
	if size < 0 {
		exceptions.Panicf("pmaps.NewCyclic: negative size %d", size)
	}
	p := &Cyclic{base: base{rank: w.Rank(), procs: w.Size(), size: size}}
	for t := p.rank; t < size; t += p.procs {
		p.local = append(p.local, t)
	}
	return p
}

// Owner returns tile mod nprocs.
func (p *Cyclic) Owner(tile int) int {
	p.check(tile)
	return tile % p.procs
}

// IsLocal reports whether tile mod nprocs is the calling rank.
func (p *Cyclic) IsLocal(tile int) bool { return p.Owner(tile) == p.rank }

// Cyclic2D distributes a 2-D grid of tiles cyclically over a 2-D grid of
// processes: owner(r,c) = (r mod Pr)*Pc + (c mod Pc). Ranks outside the
// process subgrid hold no tiles but answer all queries.
type Cyclic2D struct {
	base
	rows, cols         int
	procRows, procCols int
}

// NewCyclic2D builds the 2-D cyclic map. The process grid must be nonempty
// and fit inside the world: procRows*procCols ≤ nprocs.
func NewCyclic2D(w *runtime.World, rows, cols, procRows, procCols int) (*Cyclic2D, error) {
	if rows < 1 || cols < 1 {
		return nil, errors.E(errors.Pmap, "tile grid %dx%d must be nonempty", rows, cols)
	}
	if procRows < 1 || procCols < 1 || procRows*procCols > w.Size() {
		return nil, errors.E(errors.Pmap, "process grid %dx%d invalid for %d ranks", procRows, procCols, w.Size())
	}
	p := &Cyclic2D{
		base:     base{rank: w.Rank(), procs: w.Size(), size: rows * cols},
		rows:     rows,
		cols:     cols,
		procRows: procRows,
		procCols: procCols,
	}
	if p.rank < procRows*procCols {
		rankRow := p.rank / procCols
		rankCol := p.rank % procCols
		for i := rankRow; i < rows; i += procRows {
			rowEnd := (i + 1) * cols
			for tile := i*cols + rankCol; tile < rowEnd; tile += procCols {
				p.local = append(p.local, tile)
			}
		}
	}
	return p, nil
}

// Owner maps the tile's grid coordinate onto the process grid.
func (p *Cyclic2D) Owner(tile int) int {
	p.check(tile)
	tileRow := tile / p.cols
	tileCol := tile % p.cols
	return (tileRow%p.procRows)*p.procCols + (tileCol % p.procCols)
}

// IsLocal reports whether the tile maps to the calling rank.
func (p *Cyclic2D) IsLocal(tile int) bool { return p.Owner(tile) == p.rank }

// ProcRows returns the process grid row count.
func (p *Cyclic2D) ProcRows() int { return p.procRows }

// ProcCols returns the process grid column count.
func (p *Cyclic2D) ProcCols() int { return p.procCols }
