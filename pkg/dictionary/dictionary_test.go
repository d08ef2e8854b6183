// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dictionary

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGetFind(t *testing.T) {
	d := New[int](8, 0.75)

	require.True(t, d.Add("alpha", 1, false))
	require.True(t, d.Add("beta", 2, false))

	v, err := d.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, ok := d.Find("missing")
	assert.False(t, ok)

	_, err = d.Get("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestAddUniqueRefusesOverwrite(t *testing.T) {
	d := New[int](8, 0.75)
	require.True(t, d.Add("k", 1, true))
	assert.False(t, d.Add("k", 2, true))

	v, _ := d.Get("k")
	assert.Equal(t, 1, v)
}

func TestAddOverwriteReplacesValue(t *testing.T) {
	d := New[int](8, 0.75)
	require.True(t, d.Add("k", 1, false))
	require.True(t, d.Add("k", 2, false))

	v, _ := d.Get("k")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, d.Len())
}

func TestManagedDictionaryReleasesOnOverwriteAndRemove(t *testing.T) {
	var released []string
	d := NewManaged[string](8, 0.75, func(v string) {
		released = append(released, v)
	})

	d.Add("k", "v1", false)
	d.Add("k", "v2", false)
	assert.Equal(t, []string{"v1"}, released)

	d.Remove("k")
	assert.Equal(t, []string{"v1", "v2"}, released)
}

func TestRemoveRenumbersChain(t *testing.T) {
	// Force collisions by using a tiny hash size.
	d := New[int](1, 0.99)
	keys := []string{"a", "b", "c", "d", "e"}
	for i, k := range keys {
		require.True(t, d.Add(k, i, true))
	}

	require.True(t, d.Remove("a"))
	assert.Equal(t, len(keys)-1, d.Len())

	for i, k := range keys {
		if k == "a" {
			_, ok := d.Find(k)
			assert.False(t, ok)
			continue
		}
		v, ok := d.Find(k)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestRehashPreservesAllEntries(t *testing.T) {
	d := New[int](2, 0.75)
	const n = 500
	for i := 0; i < n; i++ {
		require.True(t, d.Add(fmt.Sprintf("key-%d", i), i, true))
	}

	assert.Equal(t, n, d.Len())
	assert.Greater(t, d.HashSize(), 2)

	for i := 0; i < n; i++ {
		v, err := d.Get(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestWalkVisitsEveryEntryExactlyOnce(t *testing.T) {
	d := New[int](4, 0.75)
	want := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}
	for k, v := range want {
		d.Add(k, v, true)
	}

	got := map[string]int{}
	for k, v, ok := d.First(); ok; k, v, ok = d.Next() {
		got[k] = v
	}
	assert.Equal(t, want, got)
}

func TestIteratorRandomAccess(t *testing.T) {
	d := New[int](4, 0.75)
	for i := 0; i < 20; i++ {
		d.Add(fmt.Sprintf("k%d", i), i, true)
	}

	it := NewIterator[int](d)
	require.Equal(t, 20, it.Length)

	seen := map[string]bool{}
	// Access out of order to exercise both forward and backward cursor moves.
	for _, i := range []int{5, 6, 0, 19, 10, 11} {
		kv, err := it.At(i)
		require.NoError(t, err)
		seen[kv.Key] = true
	}
	assert.Len(t, seen, 6)

	_, err := it.At(20)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}
