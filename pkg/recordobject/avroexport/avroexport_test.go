package avroexport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sliderule-earth/sliderule-core/pkg/recordobject"
)

func TestExportThenCodecBuildsUsableCodec(t *testing.T) {
	def, err := recordobject.DefineRecord("AvroSample", "id", 12, []recordobject.FieldInit{
		{Name: "id", Type: recordobject.Uint32, Offset: 0, Size: 1, Flags: recordobject.NativeFlags},
		{Name: "value", Type: recordobject.DoubleType, Offset: 4, Size: 1, Flags: recordobject.NativeFlags},
	}, 0)
	require.NoError(t, err)

	schema, err := Export(def)
	require.NoError(t, err)
	assert.Equal(t, "AvroSample", schema.Name)
	assert.Len(t, schema.Fields, 2)
	assert.NotEmpty(t, schema.Doc)
	for _, f := range schema.Fields {
		assert.NotEmpty(t, f.Doc)
	}

	codec, err := Codec(schema)
	require.NoError(t, err)
	assert.NotNil(t, codec)
}

func TestExportThenImportReproducesIdenticalDefinition(t *testing.T) {
	orig, err := recordobject.DefineRecord("AvroRoundTrip", "id", 13, []recordobject.FieldInit{
		{Name: "id", Type: recordobject.Uint32, Offset: 0, Size: 1, Flags: recordobject.NativeFlags},
		{Name: "value", Type: recordobject.DoubleType, Offset: 4, Size: 1, Flags: recordobject.NativeFlags},
		{Name: "flag", Type: recordobject.BoolType, Offset: 12, Size: 1, Flags: recordobject.NativeFlags},
	}, 0)
	require.NoError(t, err)

	schema, err := Export(orig)
	require.NoError(t, err)

	idField, dataSize, fields, maxFields, err := Import(schema)
	require.NoError(t, err)
	assert.Equal(t, orig.IDField, idField)
	assert.Equal(t, orig.DataSize, dataSize)
	assert.Equal(t, orig.MaxFields, maxFields)

	rebuilt, err := recordobject.DefineRecord("AvroRoundTripRebuilt", idField, dataSize, fields, maxFields)
	require.NoError(t, err)

	assert.Equal(t, orig.DataSize, rebuilt.DataSize)
	assert.Equal(t, orig.IDField, rebuilt.IDField)
	for _, want := range orig.Fields() {
		got, ok := rebuilt.Field(want.Name)
		require.True(t, ok, "field %q missing after round trip", want.Name)
		assert.Equal(t, want.Type, got.Type, "field %q type", want.Name)
		assert.Equal(t, want.OffsetBits, got.OffsetBits, "field %q offset", want.Name)
		assert.Equal(t, want.SizeBits, got.SizeBits, "field %q size", want.Name)
		assert.Equal(t, want.Elements, got.Elements, "field %q elements", want.Name)
		assert.Equal(t, want.Flags, got.Flags, "field %q flags", want.Name)
	}
}

func TestImportRejectsUnknownFieldType(t *testing.T) {
	schema := AvroSchema{
		Type: "record",
		Name: "BadField",
		Doc:  `{"id_field":"","data_size":1,"max_fields":0}`,
		Fields: []AvroField{
			{Name: "s", Type: "string", Doc: `{"field_type":999,"offset":0,"size":1}`},
		},
	}
	_, _, _, _, err := Import(schema)
	assert.Error(t, err)
}

func TestImportRejectsMalformedDefinitionDoc(t *testing.T) {
	schema := AvroSchema{Type: "record", Name: "BadDoc", Doc: "not json"}
	_, _, _, _, err := Import(schema)
	assert.Error(t, err)
}
