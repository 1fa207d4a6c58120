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

package perm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p := New(2, 0, 1)
	require.Equal(t, 3, p.Size())
	require.False(t, p.IsIdentity())

	require.Panics(t, func() { New(0, 0, 1) })
	require.Panics(t, func() { New(0, 3, 1) })
	require.Panics(t, func() { New(-1, 0, 1) })
}

func TestIdentity(t *testing.T) {
	id := Identity()
	require.True(t, id.IsIdentity())
	require.Equal(t, []int{4, 5, 6}, id.Apply([]int{4, 5, 6}))
	require.True(t, New(0, 1, 2).Normalize().IsIdentity())
	require.False(t, New(1, 0).Normalize().IsIdentity())
}

func TestApply(t *testing.T) {
	p := New(2, 0, 1)
	// result[p[i]] = x[i]
	require.Equal(t, []int{20, 30, 10}, p.Apply([]int{10, 20, 30}))
	require.Panics(t, func() { p.Apply([]int{1, 2}) })
}

func TestInverseRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 100; iter++ {
		n := 1 + rng.Intn(6)
		p := New(rng.Perm(n)...)
		inv := p.Inverse()
		coords := make([]int, n)
		for i := range coords {
			coords[i] = rng.Intn(100)
		}
		require.Equal(t, coords, inv.Apply(p.Apply(coords)))
		require.Equal(t, coords, p.Apply(inv.Apply(coords)))
	}
}

func TestCompose(t *testing.T) {
	p := New(1, 2, 0)
	q := New(2, 0, 1)
	coords := []int{3, 5, 7}
	require.Equal(t, p.Apply(q.Apply(coords)), p.Compose(q).Apply(coords))
	require.True(t, p.Compose(p.Inverse()).IsIdentity())
	require.Equal(t, p, p.Compose(Identity()))
	require.Equal(t, p, Identity().Compose(p))
}

func TestEqual(t *testing.T) {
	require.True(t, New(1, 0).Equal(New(1, 0)))
	require.False(t, New(1, 0).Equal(New(0, 1)))
	require.False(t, New(1, 0).Equal(Identity()))
}
