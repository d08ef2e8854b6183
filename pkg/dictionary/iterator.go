// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dictionary

import "fmt"

// ErrIndexOutOfRange is returned by Iterator.At for an index outside [0, Length).
var ErrIndexOutOfRange = fmt.Errorf("dictionary: iterator index out of range")

// KV is a single key/value pair returned by an Iterator.
type KV[T any] struct {
	Key   string
	Value T
}

// Iterator gives random-access, by sparse index, over a Dictionary's live
// entries in bucket-storage order. It caches the last scanned bucket so
// that sequential access (the common case: a for-loop over 0..Length) is
// O(1) amortized rather than O(n) per step.
//
// An Iterator is a snapshot view: mutating the source Dictionary while an
// Iterator is in use is undefined, matching Dictionary's own walk methods.
type Iterator[T any] struct {
	source *Dictionary[T]

	// Length is the entry count observed at Iterator construction.
	Length int

	tableIndex int // bucket the cursor currently sits at (-1 = not yet scanned)
	currIndex  int // logical position (0-based) of tableIndex among live entries
}

// NewIterator builds an Iterator over d's current contents.
func NewIterator[T any](d *Dictionary[T]) *Iterator[T] {
	return &Iterator[T]{
		source:     d,
		Length:     int(d.numEntries),
		tableIndex: -1,
		currIndex:  -1,
	}
}

// At returns the key/value pair at logical index i (0 <= i < Length),
// walking forward or backward from the cached cursor as needed.
func (it *Iterator[T]) At(i int) (KV[T], error) {
	if i < 0 || i >= it.Length {
		return KV[T]{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}

	for it.currIndex < i {
		it.tableIndex++
		if it.source.table[it.tableIndex].chain != 0 {
			it.currIndex++
		}
	}
	for it.currIndex > i {
		it.tableIndex--
		if it.source.table[it.tableIndex].chain != 0 {
			it.currIndex--
		}
	}

	b := &it.source.table[it.tableIndex]
	return KV[T]{Key: b.key, Value: b.value}, nil
}
