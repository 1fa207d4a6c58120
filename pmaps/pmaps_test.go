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

package pmaps

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calewis/tiledarray/errors"
	"github.com/calewis/tiledarray/runtime"
)

// checkPartition verifies that the per-rank local sets partition [0, size)
// and agree with Owner on every rank.
func checkPartition(w *runtime.World, p Pmap, size int) error {
	for _, tile := range p.Locals() {
		if p.Owner(tile) != w.Rank() {
			return fmt.Errorf("rank %d: local tile %d owned by %d", w.Rank(), tile, p.Owner(tile))
		}
		if !p.IsLocal(tile) {
			return fmt.Errorf("rank %d: local tile %d not IsLocal", w.Rank(), tile)
		}
	}
	if !sort.IntsAreSorted(p.Locals()) {
		return fmt.Errorf("rank %d: local list not ascending: %v", w.Rank(), p.Locals())
	}
	all := runtime.AllReduce(w, "partition", append([]int(nil), p.Locals()...),
		func(a, b []int) []int { return append(a, b...) })
	if len(all) != size {
		return fmt.Errorf("union of local sets has %d tiles, want %d", len(all), size)
	}
	sort.Ints(all)
	for i, tile := range all {
		if tile != i {
			return fmt.Errorf("union of local sets is not a partition: %v", all)
		}
	}
	for tile := 0; tile < size; tile++ {
		owner := p.Owner(tile)
		if owner < 0 || owner >= w.Size() {
			return fmt.Errorf("owner(%d) = %d outside [0,%d)", tile, owner, w.Size())
		}
	}
	return nil
}

func TestBlockedPartition(t *testing.T) {
	for _, size := range []int{0, 1, 7, 16, 23} {
		err := runtime.Run(4, func(w *runtime.World) error {
			return checkPartition(w, NewBlocked(w, size), size)
		})
		require.NoError(t, err, "size %d", size)
	}
}

func TestBlockedContiguous(t *testing.T) {
	err := runtime.Run(3, func(w *runtime.World) error {
		p := NewBlocked(w, 10)
		locals := p.Locals()
		for i := 1; i < len(locals); i++ {
			if locals[i] != locals[i-1]+1 {
				return fmt.Errorf("rank %d: block not contiguous: %v", w.Rank(), locals)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestCyclicPartition(t *testing.T) {
	err := runtime.Run(4, func(w *runtime.World) error {
		p := NewCyclic(w, 11)
		for _, tile := range p.Locals() {
			if tile%w.Size() != w.Rank() {
				return fmt.Errorf("rank %d: local tile %d", w.Rank(), tile)
			}
		}
		return checkPartition(w, p, 11)
	})
	require.NoError(t, err)
}

func TestCyclic2DOwnership(t *testing.T) {
	// rows=cols=6 over a 2x3 process grid: rank 4 is process (1,1), so its
	// tiles are {(r,c) : r odd, c ≡ 1 (mod 3)} — rows 1,3,5 crossed with
	// columns 1,4.
	err := runtime.Run(6, func(w *runtime.World) error {
		p, err := NewCyclic2D(w, 6, 6, 2, 3)
		if err != nil {
			return err
		}
		if w.Rank() == 4 {
			want := []int{7, 10, 19, 22, 31, 34}
			got := p.Locals()
			if len(got) != len(want) {
				return fmt.Errorf("rank 4 locals: %v", got)
			}
			for i := range want {
				if got[i] != want[i] {
					return fmt.Errorf("rank 4 locals: %v, want %v", got, want)
				}
			}
		}
		return checkPartition(w, p, 36)
	})
	require.NoError(t, err)
}

func TestCyclic2DSubgridRank(t *testing.T) {
	// A rank outside the process subgrid holds nothing but answers queries.
	err := runtime.Run(5, func(w *runtime.World) error {
		p, err := NewCyclic2D(w, 4, 4, 2, 2)
		if err != nil {
			return err
		}
		if w.Rank() == 4 && len(p.Locals()) != 0 {
			return fmt.Errorf("rank 4 should hold no tiles: %v", p.Locals())
		}
		return checkPartition(w, p, 16)
	})
	require.NoError(t, err)
}

func TestCyclic2DInvalidGrid(t *testing.T) {
	err := runtime.Run(2, func(w *runtime.World) error {
		if _, err := NewCyclic2D(w, 4, 4, 2, 2); !errors.Match(errors.Pmap, err) {
			return fmt.Errorf("2x2 grid on 2 ranks: got %v", err)
		}
		if _, err := NewCyclic2D(w, 0, 4, 1, 1); !errors.Match(errors.Pmap, err) {
			return fmt.Errorf("empty tile grid: got %v", err)
		}
		if _, err := NewCyclic2D(w, 4, 4, 0, 1); !errors.Match(errors.Pmap, err) {
			return fmt.Errorf("zero process rows: got %v", err)
		}
		return nil
	})
	require.NoError(t, err)
}
