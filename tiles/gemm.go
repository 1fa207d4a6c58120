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

package tiles

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/gomlx/exceptions"

	"github.com/calewis/tiledarray/types/ranges"
)

// GemmHelper describes how a tensor contraction folds into a matrix product:
// the last NumContract axes of the left argument contract against the first
// NumContract axes of the right argument; the surviving outer axes become the
// rows and columns of the product, in left-then-right order.
type GemmHelper struct {
	LeftRank    int
	RightRank   int
	ResultRank  int
	NumContract int
}

// MakeGemmHelper derives the helper from argument and result ranks. The
// contraction order is (left + right - result) / 2 and must be integral and
// non-negative.
func MakeGemmHelper(leftRank, rightRank, resultRank int) GemmHelper {
	// A zero contraction order is the outer product.
	sum := leftRank + rightRank - resultRank
	if sum < 0 || sum%2 != 0 {
		exceptions.Panicf("tiles.MakeGemmHelper: ranks (%d,%d)->%d do not describe a contraction", leftRank, rightRank, resultRank)
	}
	return GemmHelper{
		LeftRank:    leftRank,
		RightRank:   rightRank,
		ResultRank:  resultRank,
		NumContract: sum / 2,
	}
}

// fold computes the matrix dimensions (m, k, n) of the product and the
// result's element range.
func (h GemmHelper) fold(a, b *Tile) (m, k, n int, result ranges.Range) {
	aExt := a.rng.Extent()
	bExt := b.rng.Extent()
	if len(aExt) != h.LeftRank || len(bExt) != h.RightRank {
		exceptions.Panicf("tiles.Gemm: tile ranks (%d,%d) disagree with helper (%d,%d)",
			len(aExt), len(bExt), h.LeftRank, h.RightRank)
	}
	m, k, n = 1, 1, 1
	outer := h.LeftRank - h.NumContract
	for _, e := range aExt[:outer] {
		m *= e
	}
	for i, e := range aExt[outer:] {
		k *= e
		if bExt[i] != e {
			exceptions.Panicf("tiles.Gemm: inner extents mismatch: %v vs %v", aExt, bExt)
		}
	}
	for _, e := range bExt[h.NumContract:] {
		n *= e
	}
	lo := append(a.rng.Lobound()[:outer:outer], b.rng.Lobound()[h.NumContract:]...)
	hi := append(a.rng.Upbound()[:outer:outer], b.rng.Upbound()[h.NumContract:]...)
	return m, k, n, ranges.New(lo, hi)
}

// Gemm returns factor * (a · b) with the contraction described by h.
func Gemm(a, b *Tile, factor float64, h GemmHelper) *Tile {
	m, k, n, rng := h.fold(a, b)
	out := New(rng)
	gemm(m, k, n, factor, a.data, b.data, 0, out.data)
	return out
}

// GemmInto accumulates factor * (a · b) into c: c += factor * a·b.
func GemmInto(c, a, b *Tile, factor float64, h GemmHelper) {
	m, k, n, rng := h.fold(a, b)
	if !c.rng.Equal(rng) {
		exceptions.Panicf("tiles.GemmInto: result range %s does not match product range %s", c.rng, rng)
	}
	gemm(m, k, n, factor, a.data, b.data, 1, c.data)
}

func gemm(m, k, n int, alpha float64, a, b []float64, beta float64, c []float64) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 {
		// Degenerate contraction: the product is all zeros.
		if beta == 0 {
			for i := range c {
				c[i] = 0
			}
		}
		return
	}
	blas64.Gemm(blas.NoTrans, blas.NoTrans, alpha,
		blas64.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas64.General{Rows: k, Cols: n, Stride: n, Data: b},
		beta,
		blas64.General{Rows: m, Cols: n, Stride: n, Data: c})
}
