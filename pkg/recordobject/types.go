// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package recordobject implements SlideRule's self-describing, versioned,
// endian-aware binary record format together with its registry of record
// definitions.
//
// A Definition is an immutable-after-publication schema: a type name, an
// optional id field, a fixed data size, and a set of named fields (each a
// typed, possibly bit-packed, possibly nested slice of the payload). A
// Record is a live instance: a contiguous buffer holding a wire-format
// header, the type name, and the payload, either owned by the Record or
// aliasing memory supplied by a queue node.
//
// See RECORD WIRE FORMAT in record.go for the exact byte layout.
package recordobject

import (
	"encoding/binary"
	"errors"
	"unsafe"
)

// FieldType identifies the wire representation of a field.
type FieldType int

const (
	Int8 FieldType = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Bitfield
	FloatType  // 32-bit IEEE 754
	DoubleType // 64-bit IEEE 754
	Time8      // 64-bit GPS time, stored as Uint64
	StringType
	UserType // nested record; ExtType names the sub-definition
	BoolType
	Invalid
)

// ValueType is the coercion family used by the Get/Set Value* accessors.
type ValueType int

const (
	TextValue ValueType = iota
	RealValue
	IntegerValue
	InvalidValue
)

// SerialMode selects how Record.Serialize hands back bytes.
type SerialMode int

const (
	// Allocate copies the record into a freshly allocated buffer.
	Allocate SerialMode = iota
	// Reference exposes the record's own backing buffer; the caller must
	// not retain it past the record's lifetime or mutate it destructively.
	Reference
	// Copy copies the record into a caller-supplied buffer.
	Copy
	// TakeOwnership exposes the record's own buffer and detaches it from
	// the record: the record is invalidated and the caller now owns the
	// single allocation (the pattern used to post directly to a queue
	// without a second copy).
	TakeOwnership
)

// FieldFlag is a bitmask of per-field semantic and wire-layout markers.
type FieldFlag uint32

const (
	BigEndian FieldFlag = 1 << iota
	PointerFlag
	AuxFlag
	BatchFlag
	XCoordFlag
	YCoordFlag
	ZCoordFlag
	TimeFlag
	IndexFlag
)

// FieldCapacityCalc, passed as maxFields to DefineRecord, requests the
// "CALC" sizing rule from spec.md §4.2.1: 1.5x the field count actually
// supplied.
const FieldCapacityCalc = -1

// nativeBigEndian reports whether the running process is big-endian. It is
// the Go equivalent of the original's NATIVE_FLAGS compile-time constant.
var nativeBigEndian = func() bool {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	return b[0] == 0
}()

// NativeFlags is the default BIGENDIAN bit for a field defined without an
// explicit endianness: it matches the host's own byte order, exactly as
// spec.md §3.1 describes ("Host endianness is encoded in the default value
// of BIGENDIAN").
var NativeFlags FieldFlag = func() FieldFlag {
	if nativeBigEndian {
		return BigEndian
	}
	return 0
}()

func byteOrderFor(flags FieldFlag) binary.ByteOrder {
	isBig := flags&BigEndian != 0
	if isBig {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Registration errors (spec.md §7, "returned" taxonomy).
var (
	ErrDuplicateDefinition = errors.New("recordobject: duplicate record definition")
	ErrDefinitionNotFound  = errors.New("recordobject: record definition not found")
	ErrTooManyFields       = errors.New("recordobject: num_fields exceeds max_fields")
	ErrFieldDefinition     = errors.New("recordobject: invalid field definition")
	ErrFieldExists         = errors.New("recordobject: duplicate field name")
)

// Runtime access errors (spec.md §7, "typed exception" taxonomy — modeled
// here as typed errors rather than panics/exceptions, since record and
// queue loops must never let a failure on one record kill a worker).
var (
	ErrOutOfRange            = errors.New("recordobject: field element index out of range")
	ErrInvalidField          = errors.New("recordobject: invalid or unknown field")
	ErrPointerNull           = errors.New("recordobject: dereference of null pointer field")
	ErrPointerOutOfBounds    = errors.New("recordobject: pointer field target out of bounds")
	ErrBufferTooSmall        = errors.New("recordobject: buffer smaller than required record size")
	ErrDefinitionMismatch    = errors.New("recordobject: buffer's record type does not match this record's definition")
	ErrRecordTooLarge        = errors.New("recordobject: requested size exceeds allocated capacity")
	ErrRecordAlreadyTaken    = errors.New("recordobject: record memory ownership already relinquished")
	ErrUnsupportedLEBitfield = errors.New("recordobject: little-endian bit-fields are not supported")
)
