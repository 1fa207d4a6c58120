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

package disteval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calewis/tiledarray/array"
	"github.com/calewis/tiledarray/pmaps"
	"github.com/calewis/tiledarray/runtime"
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tileops"
	"github.com/calewis/tiledarray/tiles"
	"github.com/calewis/tiledarray/types/perm"
	"github.com/calewis/tiledarray/types/ranges"
)

func trange2x2() ranges.TiledRange {
	tr1 := ranges.NewTiledRange1(0, 4, 8)
	return ranges.NewTiledRange(tr1, tr1)
}

// collect materializes an evaluator into an array.
func collect(ev Eval) (*array.Array, error) {
	ev.Eval()
	out := array.New(ev.World(), ev.TRange(), ev.Shape(), ev.Pmap())
	for _, ordinal := range ev.Pmap().Locals() {
		if ev.Shape().IsZero(ordinal) {
			continue
		}
		out.SetTile(ordinal, ev.Get(ordinal))
	}
	if err := ev.Wait(); err != nil {
		return nil, err
	}
	ev.World().Fence()
	return out, nil
}

func TestArrayEvalRoundTrip(t *testing.T) {
	// Array -> DistEval(identity) -> Array is tile-wise equal to the input.
	for _, nprocs := range []int{1, 4} {
		err := runtime.Run(nprocs, func(w *runtime.World) error {
			a := array.New(w, trange2x2(), shapes.Dense(), nil)
			a.FillLocal(func(ordinal int, rng ranges.Range) *tiles.Tile {
				return tiles.NewFilled(rng, float64(ordinal+1))
			})
			ev := NewUnaryEval(NewArrayEval(a, false), tileops.NoopOp{}, perm.Identity(),
				a.Shape(), a.Pmap())
			out, err := collect(ev)
			if err != nil {
				return err
			}
			if !out.Equal(a) {
				return fmt.Errorf("identity evaluation changed the array")
			}
			return nil
		})
		require.NoError(t, err, "nprocs=%d", nprocs)
	}
}

func TestUnaryPermutation(t *testing.T) {
	err := runtime.Run(2, func(w *runtime.World) error {
		tr := ranges.NewTiledRange(ranges.Uniform(4, 2), ranges.Uniform(6, 3))
		a := array.New(w, tr, shapes.Dense(), nil)
		a.FillLocal(func(ordinal int, rng ranges.Range) *tiles.Tile {
			t := tiles.New(rng)
			lo := rng.Lobound()
			for i := lo[0]; i < rng.Upbound()[0]; i++ {
				for j := lo[1]; j < rng.Upbound()[1]; j++ {
					t.SetAt(float64(i*10+j), i, j)
				}
			}
			return t
		})
		p := perm.New(1, 0)
		base := NewArrayEval(a, false)
		ev := NewUnaryEval(base, tileops.NoopOp{Perm: p}, p,
			a.Shape().Permute(p), pmaps.NewBlocked(w, 4))
		out, err := collect(ev)
		if err != nil {
			return err
		}
		if out.TRange().Dim(0).ElementCount() != 6 || out.TRange().Dim(1).ElementCount() != 4 {
			return fmt.Errorf("transposed trange %s", out.TRange())
		}
		for _, ordinal := range out.Locals() {
			tl, err := out.Tile(ordinal).Get()
			if err != nil {
				return err
			}
			rng := tl.Range()
			lo := rng.Lobound()
			for j := lo[0]; j < rng.Upbound()[0]; j++ {
				for i := lo[1]; i < rng.Upbound()[1]; i++ {
					if got := tl.At(j, i); got != float64(i*10+j) {
						return fmt.Errorf("b(%d,%d) = %v, want %v", j, i, got, i*10+j)
					}
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestBinaryAddWithSparseZeros(t *testing.T) {
	err := runtime.Run(2, func(w *runtime.World) error {
		tr := ranges.NewTiledRange(ranges.NewTiledRange1(0, 2, 4))
		grid := tr.TilesRange()
		// a has tile 0 only; b has tile 1 only.
		sa := shapes.Replicated(grid, []float64{5, 0}, 0.5)
		sb := shapes.Replicated(grid, []float64{0, 5}, 0.5)
		a := array.New(w, tr, sa, nil)
		b := array.New(w, tr, sb, nil)
		a.FillLocal(func(ordinal int, rng ranges.Range) *tiles.Tile {
			return tiles.NewFilled(rng, 1)
		})
		b.FillLocal(func(ordinal int, rng ranges.Range) *tiles.Tile {
			return tiles.NewFilled(rng, 2)
		})

		ev := NewBinaryEval(NewArrayEval(a, false), NewArrayEval(b, false),
			tileops.NewAdd(perm.Identity(), 1), perm.Identity(),
			sa.Add(sb), pmaps.NewBlocked(w, 2))
		out, err := collect(ev)
		if err != nil {
			return err
		}
		for _, ordinal := range out.Locals() {
			tl, err := out.Tile(ordinal).Get()
			if err != nil {
				return err
			}
			want := 1.0
			if ordinal == 1 {
				want = 2.0
			}
			if tl.Data()[0] != want {
				return fmt.Errorf("tile %d = %v, want %v", ordinal, tl.Data()[0], want)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestContractionDenseGemm(t *testing.T) {
	for _, nprocs := range []int{1, 4} {
		err := runtime.Run(nprocs, func(w *runtime.World) error {
			a := array.New(w, trange2x2(), shapes.Dense(), nil)
			b := array.New(w, trange2x2(), shapes.Dense(), nil)
			a.Fill(1)
			b.Fill(1)
			ev, err := NewContractionEval(NewArrayEval(a, false), NewArrayEval(b, false), 1, 1)
			if err != nil {
				return err
			}
			c, err := collect(ev)
			if err != nil {
				return err
			}
			// Every element of the 8x8 product of ones is 8.
			for _, ordinal := range c.Locals() {
				tl, err := c.Tile(ordinal).Get()
				if err != nil {
					return err
				}
				for _, v := range tl.Data() {
					if v != 8 {
						return fmt.Errorf("product element = %v, want 8", v)
					}
				}
			}
			if got := c.Norm(); got != 64 {
				return fmt.Errorf("||c|| = %v, want 64", got)
			}
			return nil
		})
		require.NoError(t, err, "nprocs=%d", nprocs)
	}
}

func TestContractionSparse(t *testing.T) {
	err := runtime.Run(2, func(w *runtime.World) error {
		tr := trange2x2()
		grid := tr.TilesRange()
		// Diagonal times diagonal stays diagonal.
		diag := shapes.Replicated(grid, []float64{8, 0, 0, 8}, 0.5)
		a := array.New(w, tr, diag, nil)
		b := array.New(w, tr, diag, nil)
		a.Fill(1)
		b.Fill(1)
		ev, err := NewContractionEval(NewArrayEval(a, false), NewArrayEval(b, false), 1, 1)
		if err != nil {
			return err
		}
		c, err := collect(ev)
		if err != nil {
			return err
		}
		if c.Shape().IsDense() {
			return fmt.Errorf("sparse contraction produced a dense shape")
		}
		wantZero := []bool{false, true, true, false}
		for ordinal, want := range wantZero {
			if c.IsZero(ordinal) != want {
				return fmt.Errorf("IsZero(%d) = %v", ordinal, c.IsZero(ordinal))
			}
		}
		// Nonzero tiles: 4x4 blocks of ones times ones over k=4 -> 4.
		for _, ordinal := range c.Locals() {
			if c.IsZero(ordinal) {
				continue
			}
			tl, err := c.Tile(ordinal).Get()
			if err != nil {
				return err
			}
			for _, v := range tl.Data() {
				if v != 4 {
					return fmt.Errorf("tile %d element = %v, want 4", ordinal, v)
				}
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestBlockEval(t *testing.T) {
	err := runtime.Run(2, func(w *runtime.World) error {
		a := array.New(w, trange2x2(), shapes.Dense(), nil)
		a.FillLocal(func(ordinal int, rng ranges.Range) *tiles.Tile {
			return tiles.NewFilled(rng, float64(ordinal))
		})
		// Select the bottom-right tile.
		ev, err := NewBlockEval(NewArrayEval(a, false), []int{1, 1}, []int{2, 2})
		if err != nil {
			return err
		}
		out, err := collect(ev)
		if err != nil {
			return err
		}
		if out.TRange().ElementsRange().Volume() != 16 {
			return fmt.Errorf("block volume %d", out.TRange().ElementsRange().Volume())
		}
		lo := out.TRange().ElementsRange().Lobound()
		if lo[0] != 0 || lo[1] != 0 {
			return fmt.Errorf("block not re-based: lobound %v", lo)
		}
		tl, err := out.Tile(0).Get()
		if err != nil {
			return err
		}
		if tl.Data()[0] != 3 {
			return fmt.Errorf("block tile holds %v, want 3", tl.Data()[0])
		}
		return nil
	})
	require.NoError(t, err)

	// Out-of-bounds blocks are rejected.
	err = runtime.Run(1, func(w *runtime.World) error {
		a := array.New(w, trange2x2(), shapes.Dense(), nil)
		a.Fill(1)
		if _, err := NewBlockEval(NewArrayEval(a, false), []int{0, 0}, []int{3, 1}); err == nil {
			return fmt.Errorf("out-of-bounds block accepted")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestProcessGrid(t *testing.T) {
	cases := map[int][2]int{
		1:  {1, 1},
		2:  {1, 2},
		4:  {2, 2},
		6:  {2, 3},
		12: {3, 4},
	}
	for nprocs, want := range cases {
		r, c := processGrid(nprocs)
		require.Equal(t, want[0], r, "nprocs=%d", nprocs)
		require.Equal(t, want[1], c, "nprocs=%d", nprocs)
		require.LessOrEqual(t, r*c, nprocs)
	}
}
