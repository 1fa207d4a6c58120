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

package array

import (
	"github.com/calewis/tiledarray/shapes"
	"github.com/calewis/tiledarray/tiles"
)

// ToSparse converts a dense array into a block-sparse one: the norm of each
// local tile feeds a sparse shape (replicated by the shape's all-reduce) and
// the surviving tiles are cloned over. A threshold <= 0 falls back to
// shapes.DefaultThreshold over the array's element volume. An already sparse
// array is returned unchanged. Collective.
func ToSparse(a *Array, threshold float64) *Array {
	if !a.Shape().IsDense() {
		return a
	}
	if threshold <= 0 {
		threshold = shapes.DefaultThreshold(a.TRange().ElementsRange().Volume())
	}
	grid := a.TRange().TilesRange()
	norms := make([]float64, grid.Volume())
	for _, ordinal := range a.Locals() {
		norms[ordinal] = tiles.Norm(a.Store().Get(ordinal).Must())
	}
	shape := shapes.NewSparse(a.World(), grid, norms, threshold)

	out := New(a.World(), a.TRange(), shape, a.Pmap())
	for _, ordinal := range a.Locals() {
		if shape.IsZero(ordinal) {
			continue
		}
		// Clone so the sparse array does not alias the dense tiles.
		out.SetTileValue(ordinal, a.Store().Get(ordinal).Must().Clone())
	}
	a.World().Fence()
	return out
}

// ToDense converts a block-sparse array into a dense one, materializing
// explicit zero tiles where the shape dropped them. An already dense array
// is returned unchanged. Collective.
func ToDense(a *Array) *Array {
	if a.Shape().IsDense() {
		return a
	}
	out := New(a.World(), a.TRange(), shapes.Dense(), a.Pmap())
	for _, ordinal := range a.Locals() {
		if a.Shape().IsZero(ordinal) {
			out.SetTileValue(ordinal, tiles.New(a.TRange().MakeTileRange(ordinal)))
			continue
		}
		out.SetTileValue(ordinal, a.Store().Get(ordinal).Must().Clone())
	}
	a.World().Fence()
	return out
}
