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

package ranges

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calewis/tiledarray/types/perm"
)

func TestRange(t *testing.T) {
	r := New([]int{1, 2}, []int{4, 6})
	require.Equal(t, 2, r.Rank())
	require.Equal(t, 12, r.Volume())
	require.Equal(t, []int{3, 4}, r.Extent())
	require.True(t, r.Includes([]int{1, 2}))
	require.True(t, r.Includes([]int{3, 5}))
	require.False(t, r.Includes([]int{4, 2}))

	require.Panics(t, func() { New([]int{0}, []int{1, 2}) })
	require.Panics(t, func() { New([]int{3}, []int{1}) })
}

func TestRangeOrdinalRoundTrip(t *testing.T) {
	r := New([]int{1, 2, 0}, []int{3, 5, 4})
	// Row-major: the last axis varies fastest.
	require.Equal(t, 0, r.Ordinal([]int{1, 2, 0}))
	require.Equal(t, 1, r.Ordinal([]int{1, 2, 1}))
	for ord := 0; ord < r.Volume(); ord++ {
		require.Equal(t, ord, r.Ordinal(r.Coord(ord)))
	}
	require.Panics(t, func() { r.Ordinal([]int{0, 0, 0}) })
	require.Panics(t, func() { r.Coord(r.Volume()) })
}

func TestRangePermute(t *testing.T) {
	r := NewFromExtents(2, 3, 4)
	p := perm.New(2, 0, 1)
	pr := r.Permute(p)
	require.Equal(t, []int{3, 4, 2}, pr.Extent())
	require.True(t, pr.Permute(p.Inverse()).Equal(r))
	require.True(t, r.Permute(perm.Identity()).Equal(r))
}

func TestTiledRange1(t *testing.T) {
	tr := NewTiledRange1(0, 4, 8)
	require.Equal(t, 2, tr.TileCount())
	require.Equal(t, 8, tr.ElementCount())
	lo, hi := tr.Tile(1)
	require.Equal(t, 4, lo)
	require.Equal(t, 8, hi)

	require.Panics(t, func() { NewTiledRange1(0) })
	require.Panics(t, func() { NewTiledRange1(0, 4, 4) })
	require.Panics(t, func() { tr.Tile(2) })
}

func TestElementToTile(t *testing.T) {
	tr := NewTiledRange1(2, 5, 6, 10)
	for k := tr.ElementStart(); k < tr.ElementFinish(); k++ {
		tile := tr.ElementToTile(k)
		lo, hi := tr.Tile(tile)
		require.GreaterOrEqual(t, k, lo)
		require.Less(t, k, hi)
	}
	require.Panics(t, func() { tr.ElementToTile(1) })
	require.Panics(t, func() { tr.ElementToTile(10) })
}

func TestUniform(t *testing.T) {
	tr := Uniform(10, 4)
	require.Equal(t, 3, tr.TileCount())
	lo, hi := tr.Tile(2)
	require.Equal(t, 8, lo)
	require.Equal(t, 10, hi)
}

func TestTiledRange(t *testing.T) {
	tr := NewTiledRange(NewTiledRange1(0, 4, 8), NewTiledRange1(0, 4, 8))
	require.Equal(t, 2, tr.Rank())
	require.Equal(t, 4, tr.TilesRange().Volume())
	require.Equal(t, 64, tr.ElementsRange().Volume())

	// Tile ordinal 3 is tile (1,1): elements [4,8)x[4,8).
	r := tr.MakeTileRange(3)
	require.Equal(t, []int{4, 4}, r.Lobound())
	require.Equal(t, []int{8, 8}, r.Upbound())

	require.Equal(t, []int{1, 0}, tr.ElementToTile([]int{6, 3}))
}

func TestTiledRangePermute(t *testing.T) {
	tr := NewTiledRange(Uniform(6, 2), Uniform(8, 4))
	p := perm.New(1, 0)
	pt := tr.Permute(p)
	require.Equal(t, 2, pt.Dim(0).TileCount())
	require.Equal(t, 3, pt.Dim(1).TileCount())
	require.True(t, pt.Permute(p).Equal(tr))
	require.True(t, tr.Equal(tr.Permute(perm.Identity())))
	require.False(t, tr.Equal(pt))
}
