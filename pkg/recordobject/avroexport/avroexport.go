// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package avroexport publishes a recordobject.Definition as an Avro schema
// (grounded on internal/avro's AvroSchema/AvroField JSON shape and
// internal/memorystore/avroCheckpoint.go's use of linkedin/goavro/v2) and
// rebuilds a Definition's field list from one, so that a record type
// defined in one SlideRule process can be shared with another over the
// wire instead of hardcoded on both ends.
package avroexport

import (
	"encoding/json"
	"fmt"

	"github.com/linkedin/goavro/v2"

	"github.com/sliderule-earth/sliderule-core/pkg/recordobject"
)

// AvroField mirrors internal/avro's AvroField: name, type, and an optional
// default, exactly the shape goavro.NewCodec expects as JSON. Doc carries
// this field's recordobject layout (offset, size, ext type, role flags) as
// an opaque JSON string, the standard Avro "doc" attribute repurposed the
// way spec §8's round-trip requires: readable by any Avro consumer as a
// plain comment, but enough for Import to rebuild the exact FieldInit.
type AvroField struct {
	Name    string      `json:"name"`
	Type    interface{} `json:"type"`
	Doc     string      `json:"doc,omitempty"`
	Default interface{} `json:"default,omitempty"`
}

// AvroSchema mirrors internal/avro's AvroSchema, with the record-level Doc
// carrying the Definition's id field, data size, and field capacity.
type AvroSchema struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Doc    string      `json:"doc,omitempty"`
	Fields []AvroField `json:"fields"`
}

// fieldLayout is the JSON payload stored in an AvroField's Doc: everything
// Import needs to reconstruct the FieldInit compileField would have
// produced, beyond what the Avro type name itself conveys.
type fieldLayout struct {
	FieldType int    `json:"field_type"`
	Offset    int    `json:"offset"`
	Size      int    `json:"size"`
	ExtType   string `json:"ext_type,omitempty"`
	Flags     uint32 `json:"flags"`
}

// definitionLayout is the JSON payload stored in an AvroSchema's Doc.
type definitionLayout struct {
	IDField   string `json:"id_field"`
	DataSize  int    `json:"data_size"`
	MaxFields int    `json:"max_fields"`
}

var avroTypeNames = map[recordobject.FieldType]string{
	recordobject.Int8:       "int",
	recordobject.Int16:      "int",
	recordobject.Int32:      "int",
	recordobject.Int64:      "long",
	recordobject.Uint8:      "int",
	recordobject.Uint16:     "int",
	recordobject.Uint32:     "long",
	recordobject.Uint64:     "long",
	recordobject.FloatType:  "float",
	recordobject.DoubleType: "double",
	recordobject.Time8:      "long",
	recordobject.StringType: "string",
	recordobject.BoolType:   "boolean",
}

// Export renders def's field table as an Avro record schema. Bitfield,
// pointer, and nested UserType fields have no native Avro representation
// and are widened to their backing integer/bytes width for the Type Avro
// consumers see, but every field's exact offset, size, ext type, and role
// flags travel along in its Doc so that Import can rebuild the identical
// FieldInit compileField would have produced — the Avro Type carries
// readability, the Doc carries the layout. Fields are kept in declaration
// order, so a Definition rebuilt from Import lists its Fields() in the same
// order as the original.
func Export(def *recordobject.Definition) (AvroSchema, error) {
	docBytes, err := json.Marshal(definitionLayout{
		IDField:   def.IDField,
		DataSize:  def.DataSize,
		MaxFields: def.MaxFields,
	})
	if err != nil {
		return AvroSchema{}, fmt.Errorf("avroexport: marshaling definition layout: %w", err)
	}
	schema := AvroSchema{Type: "record", Name: def.TypeName, Doc: string(docBytes)}

	for _, f := range def.Fields() {
		var avroType string
		switch {
		case f.Flags&recordobject.PointerFlag != 0:
			avroType = "long"
		case f.Type == recordobject.Bitfield:
			avroType = "long"
		case f.Type == recordobject.UserType:
			avroType = "bytes"
		default:
			t, ok := avroTypeNames[f.Type]
			if !ok {
				return AvroSchema{}, fmt.Errorf("avroexport: no Avro mapping for field %q", f.Name)
			}
			avroType = t
		}

		layout := fieldLayout{FieldType: int(f.Type), ExtType: f.ExtType, Flags: uint32(f.Flags)}
		if f.Type == recordobject.Bitfield {
			layout.Offset = f.OffsetBits
			layout.Size = f.SizeBits
		} else {
			layout.Offset = f.OffsetBytes()
			layout.Size = f.Elements
		}
		fieldDoc, err := json.Marshal(layout)
		if err != nil {
			return AvroSchema{}, fmt.Errorf("avroexport: marshaling field %q layout: %w", f.Name, err)
		}

		schema.Fields = append(schema.Fields, AvroField{Name: f.Name, Type: avroType, Doc: string(fieldDoc)})
	}

	return schema, nil
}

// Codec marshals schema and builds a goavro.Codec from it, the same two
// calls internal/memorystore/avroCheckpoint.go makes before writing an OCF
// file.
func Codec(schema AvroSchema) (*goavro.Codec, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("avroexport: marshaling schema: %w", err)
	}
	codec, err := goavro.NewCodec(string(raw))
	if err != nil {
		return nil, fmt.Errorf("avroexport: building codec: %w", err)
	}
	return codec, nil
}

// Import rebuilds the exact recordobject.FieldInit list, id field, data
// size, and field capacity that produced schema, by reading the layout each
// Export call stored in the schema's and each field's Doc. The result is
// what the caller passes straight to
// recordobject.DefineRecord(schema.Name, idField, dataSize, fields,
// maxFields) to get back a Definition indistinguishable from the one
// Export started from (spec §8's export-then-re-ingest round trip).
func Import(schema AvroSchema) (idField string, dataSize int, fields []recordobject.FieldInit, maxFields int, err error) {
	var def definitionLayout
	if err := json.Unmarshal([]byte(schema.Doc), &def); err != nil {
		return "", 0, nil, 0, fmt.Errorf("avroexport: unmarshaling definition layout: %w", err)
	}

	fields = make([]recordobject.FieldInit, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		var layout fieldLayout
		if err := json.Unmarshal([]byte(f.Doc), &layout); err != nil {
			return "", 0, nil, 0, fmt.Errorf("avroexport: unmarshaling field %q layout: %w", f.Name, err)
		}
		ftype := recordobject.FieldType(layout.FieldType)
		if ftype < 0 || ftype >= recordobject.Invalid {
			return "", 0, nil, 0, fmt.Errorf("avroexport: field %q has unsupported field type %d", f.Name, layout.FieldType)
		}

		fields = append(fields, recordobject.FieldInit{
			Name:    f.Name,
			Type:    ftype,
			Offset:  layout.Offset,
			Size:    layout.Size,
			ExtType: layout.ExtType,
			Flags:   recordobject.FieldFlag(layout.Flags),
		})
	}

	return def.IDField, def.DataSize, fields, def.MaxFields, nil
}
