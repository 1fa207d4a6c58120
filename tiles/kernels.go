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
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/calewis/tiledarray/types/perm"
)

// Add returns a + b.
func Add(a, b *Tile) *Tile { return AddScaled(a, b, 1) }

// AddScaled returns (a + b) * factor.
func AddScaled(a, b *Tile, factor float64) *Tile {
	assertSameVolume("Add", a, b)
	out := a.Clone()
	floats.Add(out.data, b.data)
	if factor != 1 {
		floats.Scale(factor, out.data)
	}
	return out
}

// AddPermuted returns perm((a + b) * factor).
func AddPermuted(a, b *Tile, factor float64, p perm.Permutation) *Tile {
	return Permute(AddScaled(a, b, factor), p)
}

// AddTo folds b into a: a = (a + b) * factor.
func AddTo(a, b *Tile, factor float64) {
	assertSameVolume("AddTo", a, b)
	floats.Add(a.data, b.data)
	if factor != 1 {
		floats.Scale(factor, a.data)
	}
}

// Subt returns a - b.
func Subt(a, b *Tile) *Tile { return SubtScaled(a, b, 1) }

// SubtScaled returns (a - b) * factor.
func SubtScaled(a, b *Tile, factor float64) *Tile {
	assertSameVolume("Subt", a, b)
	out := a.Clone()
	floats.Sub(out.data, b.data)
	if factor != 1 {
		floats.Scale(factor, out.data)
	}
	return out
}

// SubtPermuted returns perm((a - b) * factor).
func SubtPermuted(a, b *Tile, factor float64, p perm.Permutation) *Tile {
	return Permute(SubtScaled(a, b, factor), p)
}

// SubtTo folds b into a: a = (a - b) * factor.
func SubtTo(a, b *Tile, factor float64) {
	assertSameVolume("SubtTo", a, b)
	floats.Sub(a.data, b.data)
	if factor != 1 {
		floats.Scale(factor, a.data)
	}
}

// SubtRight folds a into b reusing b's storage: b = (a - b) * factor.
func SubtRight(a, b *Tile, factor float64) {
	assertSameVolume("SubtRight", a, b)
	for i, v := range b.data {
		b.data[i] = (a.data[i] - v) * factor
	}
}

// Mult returns the Hadamard product a .* b.
func Mult(a, b *Tile) *Tile { return MultScaled(a, b, 1) }

// MultScaled returns (a .* b) * factor.
func MultScaled(a, b *Tile, factor float64) *Tile {
	assertSameVolume("Mult", a, b)
	out := a.Clone()
	floats.Mul(out.data, b.data)
	if factor != 1 {
		floats.Scale(factor, out.data)
	}
	return out
}

// MultPermuted returns perm((a .* b) * factor).
func MultPermuted(a, b *Tile, factor float64, p perm.Permutation) *Tile {
	return Permute(MultScaled(a, b, factor), p)
}

// MultTo folds b into a: a = (a .* b) * factor.
func MultTo(a, b *Tile, factor float64) {
	assertSameVolume("MultTo", a, b)
	floats.Mul(a.data, b.data)
	if factor != 1 {
		floats.Scale(factor, a.data)
	}
}

// Scale returns a * factor.
func Scale(a *Tile, factor float64) *Tile {
	out := a.Clone()
	floats.Scale(factor, out.data)
	return out
}

// ScalePermuted returns perm(a * factor).
func ScalePermuted(a *Tile, factor float64, p perm.Permutation) *Tile {
	out := Permute(a, p)
	floats.Scale(factor, out.data)
	return out
}

// ScaleTo scales a in place.
func ScaleTo(a *Tile, factor float64) { floats.Scale(factor, a.data) }

// Neg returns -a.
func Neg(a *Tile) *Tile { return Scale(a, -1) }

// NegPermuted returns perm(-a).
func NegPermuted(a *Tile, p perm.Permutation) *Tile { return ScalePermuted(a, -1, p) }

// NegTo negates a in place.
func NegTo(a *Tile) { floats.Scale(-1, a.data) }

// Sum returns the sum of all elements.
func Sum(a *Tile) float64 { return floats.Sum(a.data) }

// Product returns the product of all elements.
func Product(a *Tile) float64 {
	p := 1.0
	for _, v := range a.data {
		p *= v
	}
	return p
}

// Min returns the smallest element.
func Min(a *Tile) float64 { return floats.Min(a.data) }

// Max returns the largest element.
func Max(a *Tile) float64 { return floats.Max(a.data) }

// AbsMin returns the smallest absolute value.
func AbsMin(a *Tile) float64 {
	m := math.Inf(1)
	for _, v := range a.data {
		if av := math.Abs(v); av < m {
			m = av
		}
	}
	return m
}

// AbsMax returns the largest absolute value.
func AbsMax(a *Tile) float64 {
	m := 0.0
	for _, v := range a.data {
		if av := math.Abs(v); av > m {
			m = av
		}
	}
	return m
}

// SquaredNorm returns the sum of squared elements.
func SquaredNorm(a *Tile) float64 { return floats.Dot(a.data, a.data) }

// Norm returns the Frobenius norm.
func Norm(a *Tile) float64 { return math.Sqrt(SquaredNorm(a)) }

// Dot returns the element-wise inner product of two tiles.
func Dot(a, b *Tile) float64 {
	assertSameVolume("Dot", a, b)
	return floats.Dot(a.data, b.data)
}

// Trace returns the sum of the diagonal of a square rank-2 tile.
func Trace(a *Tile) float64 {
	ext := a.rng.Extent()
	if len(ext) != 2 || ext[0] != ext[1] {
		return math.NaN()
	}
	lo := a.rng.Lobound()
	tr := 0.0
	for i := 0; i < ext[0]; i++ {
		tr += a.At(lo[0]+i, lo[1]+i)
	}
	return tr
}
