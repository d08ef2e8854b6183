package recordobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeaderDef(t *testing.T, r *Registry) *Definition {
	t.Helper()
	def, err := r.DefineRecord("Header", "seq", 4, []FieldInit{
		{Name: "seq", Type: Uint32, Offset: 0, Size: 1, Flags: NativeFlags | IndexFlag},
	}, FieldCapacityCalc)
	require.NoError(t, err)
	return def
}

func TestDefineRecordRejectsFieldPastDataSize(t *testing.T) {
	r := NewRegistry()
	_, err := r.DefineRecord("TooSmall", "", 4, []FieldInit{
		{Name: "a", Type: Uint64, Offset: 0, Size: 1, Flags: NativeFlags},
	}, 0)
	require.ErrorIs(t, err, ErrFieldDefinition)
}

func TestDefineRecordRejectsDuplicateTypeName(t *testing.T) {
	r := NewRegistry()
	newHeaderDef(t, r)
	_, err := r.DefineRecord("Header", "", 4, nil, 0)
	assert.ErrorIs(t, err, ErrDuplicateDefinition)
}

func TestDefineRecordRejectsTooManyFields(t *testing.T) {
	r := NewRegistry()
	_, err := r.DefineRecord("Cramped", "", 8, []FieldInit{
		{Name: "a", Type: Uint32, Offset: 0, Size: 1, Flags: NativeFlags},
		{Name: "b", Type: Uint32, Offset: 4, Size: 1, Flags: NativeFlags},
	}, 1)
	assert.ErrorIs(t, err, ErrTooManyFields)
}

func TestDefineRecordCachesRoleFlags(t *testing.T) {
	r := NewRegistry()
	def := newHeaderDef(t, r)
	assert.Equal(t, "seq", def.Meta.IndexField)
}

// TestDefineRecordCachesFirstFieldPerRoleEvenWithMultipleFlagsOnOneField
// checks two things cacheRole's earlier switch-based implementation got
// wrong: a field carrying two role flags must be cached under both roles,
// and a later field sharing a role with an earlier one must not displace
// the earlier field.
func TestDefineRecordCachesFirstFieldPerRoleEvenWithMultipleFlagsOnOneField(t *testing.T) {
	r := NewRegistry()
	def, err := r.DefineRecord("Position", "", 12, []FieldInit{
		{Name: "origin", Type: FloatType, Offset: 0, Size: 1, Flags: NativeFlags | XCoordFlag | YCoordFlag},
		{Name: "alt", Type: FloatType, Offset: 4, Size: 1, Flags: NativeFlags | ZCoordFlag},
		{Name: "backup_x", Type: FloatType, Offset: 8, Size: 1, Flags: NativeFlags | XCoordFlag},
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, "origin", def.Meta.XCoordField)
	assert.Equal(t, "origin", def.Meta.YCoordField)
	assert.Equal(t, "alt", def.Meta.ZCoordField)
}

func TestBitfieldMustBeBigEndian(t *testing.T) {
	r := NewRegistry()
	_, err := r.DefineRecord("Bad", "", 4, []FieldInit{
		{Name: "flags", Type: Bitfield, Offset: 0, Size: 8, Flags: 0},
	}, 0)
	assert.ErrorIs(t, err, ErrUnsupportedLEBitfield)
}

func TestGetDefinitionNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetDefinition("Nope")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)
}
