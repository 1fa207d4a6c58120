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

package vars

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	v := Parse("m, k,n")
	require.Equal(t, 3, v.Count())
	require.Equal(t, []string{"m", "k", "n"}, v.Labels())
	require.Equal(t, "m,k,n", v.String())
	require.True(t, v.Contains("k"))
	require.Equal(t, 2, v.Index("n"))
	require.Equal(t, -1, v.Index("z"))

	require.Panics(t, func() { Parse("i,,j") })
	require.Panics(t, func() { Parse("i,i") })
	require.Panics(t, func() { Parse("i,1j") })
	require.Panics(t, func() { Parse("i,j k") })
}

func TestEquivalence(t *testing.T) {
	a := Parse("i,j,k")
	b := Parse("k,i,j")
	require.True(t, a.PermutationEquivalent(b))
	require.False(t, a.Equal(b))
	require.True(t, a.Equal(Parse("i, j, k")))
	require.False(t, a.PermutationEquivalent(Parse("i,j")))
	require.False(t, a.PermutationEquivalent(Parse("i,j,l")))
}

func TestPermutationTo(t *testing.T) {
	c := Parse("m,k")
	target := Parse("k,m")
	p := c.PermutationTo(target)
	require.Equal(t, target.Labels(), applyLabels(p.Apply, c.Labels()))

	require.True(t, c.PermutationTo(c).IsIdentity())
	require.Panics(t, func() { c.PermutationTo(Parse("k,n")) })
}

// applyLabels permutes a label slice through an int-coordinate permutation.
func applyLabels(apply func([]int) []int, labels []string) []string {
	idx := make([]int, len(labels))
	for i := range idx {
		idx[i] = i
	}
	// apply(idx)[j] holds the source axis that lands at j.
	out := make([]string, len(labels))
	for j, orig := range apply(idx) {
		out[j] = labels[orig]
	}
	return out
}

func TestMul(t *testing.T) {
	a := Parse("m,k")
	b := Parse("k,n")
	require.Equal(t, "m,n", a.Mul(b).String())

	// Permutation-equivalent lists multiply element-wise: nothing contracts.
	require.Equal(t, "m,k", a.Mul(Parse("k,m")).String())

	// Disjoint lists concatenate (outer product).
	require.Equal(t, "m,k,p,q", a.Mul(Parse("p,q")).String())

	require.Equal(t, []string{"k"}, a.ContractedWith(b))
	require.True(t, a.Common(b))
	require.False(t, a.Common(Parse("p,q")))
}
