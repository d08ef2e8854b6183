package recordobject

import (
	"fmt"
	"sync"

	"github.com/sliderule-earth/sliderule-core/pkg/dictionary"
)

// typeSizeBits is the fixed wire width of each non-bitfield, non-user type,
// in bits. Bitfield and User fields compute their own width.
var typeSizeBits = map[FieldType]int{
	Int8: 8, Uint8: 8, BoolType: 8,
	Int16: 16, Uint16: 16,
	Int32: 32, Uint32: 32, FloatType: 32,
	Int64: 64, Uint64: 64, DoubleType: 64, Time8: 64,
}

// FieldSpec is a single field's compiled layout and metadata, equivalent to
// the original's field_t. All offsets and sizes are stored in bits so that
// bitfields and byte-aligned fields share one representation.
type FieldSpec struct {
	Name       string
	Type       FieldType
	OffsetBits int
	SizeBits   int // only meaningful for Bitfield
	Elements   int // array length for non-bitfield types; 0 means "variable trailing"
	ExtType    string
	Flags      FieldFlag
}

// OffsetBytes returns the field's byte offset. Only valid for non-bitfield
// fields, which are always defined on a byte boundary.
func (f FieldSpec) OffsetBytes() int { return f.OffsetBits / 8 }

// ElementSizeBytes returns the wire width of one element of the field (not
// counting Elements multiplicity). Pointer fields are always 4 bytes.
func (f FieldSpec) ElementSizeBytes() int {
	switch {
	case f.Flags&PointerFlag != 0:
		return 4
	case f.Type == Bitfield:
		return (f.SizeBits + 7) / 8
	case f.Type == UserType:
		nested, err := GetDefinition(f.ExtType)
		if err != nil {
			return 0
		}
		return nested.DataSize
	case f.Type == StringType:
		return 1
	default:
		return typeSizeBits[f.Type] / 8
	}
}

// FieldInit is the caller-supplied description passed to DefineRecord, the
// Go analogue of calling defineField repeatedly against a freshly created
// recordDefinition in the original.
type FieldInit struct {
	Name string
	Type FieldType
	// Offset is in bytes for every type except Bitfield, where it is in
	// bits (matching spec.md §4.2.1's BITFIELD offset/size convention).
	Offset int
	// Size is the element count for array/string fields (0 means a single
	// scalar, or for StringType a variable-length trailing field), or the
	// bit width for Bitfield fields.
	Size    int
	ExtType string
	Flags   FieldFlag
}

// RoleMeta caches the (at most one each) field carrying each role flag, so
// that dispatch-key extraction and spatial indexing never need to rescan a
// Definition's field table.
type RoleMeta struct {
	IndexField  string
	TimeField   string
	XCoordField string
	YCoordField string
	ZCoordField string
	BatchField  string
}

// Definition is a published record schema: a type name, optional id field,
// fixed data size, and compiled field table.
type Definition struct {
	TypeName   string
	IDField    string
	TypeSize   int // bytes, including the trailing NUL
	DataSize   int // bytes of the fixed-size payload portion
	MaxFields  int
	fields     map[string]FieldSpec
	fieldOrder []string
	Meta       RoleMeta
}

// HeaderSize is the fixed wire header: u16 version, u16 type_size, u32 data_size.
const HeaderSize = 8

// RecordVersion is the wire format version written into every header.
const RecordVersion = 2

// RecordSize returns the total wire size of a record carrying extra bytes
// of trailing variable-length payload beyond DataSize.
func (d *Definition) RecordSize(extra int) int {
	return HeaderSize + d.TypeSize + d.DataSize + extra
}

// Field looks up a field by its exact defined name (no dotted/bracket/
// immediate-syntax resolution; see ResolveField for that).
func (d *Definition) Field(name string) (FieldSpec, bool) {
	f, ok := d.fields[name]
	return f, ok
}

// Fields returns the definition's fields in declaration order.
func (d *Definition) Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(d.fieldOrder))
	for _, n := range d.fieldOrder {
		out = append(out, d.fields[n])
	}
	return out
}

// Registry is a named collection of record definitions, backed by a
// dictionary.Dictionary the same way the original kept a static Dictionary
// of recordDefinition* at file scope.
type Registry struct {
	mu   sync.RWMutex
	defs *dictionary.Dictionary[*Definition]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: dictionary.New[*Definition](dictionary.DefaultHashSize, dictionary.DefaultLoadFactor)}
}

// global is the process-wide registry used by the package-level DefineRecord
// and GetDefinition helpers, mirroring the original's single global
// definition table.
var global = NewRegistry()

// DefineRecord registers typeName in the global Registry. See
// Registry.DefineRecord.
func DefineRecord(typeName, idField string, dataSize int, fields []FieldInit, maxFields int) (*Definition, error) {
	return global.DefineRecord(typeName, idField, dataSize, fields, maxFields)
}

// GetDefinition looks up a previously defined record type in the global Registry.
func GetDefinition(typeName string) (*Definition, error) {
	return global.GetDefinition(typeName)
}

// DefineRecord validates and compiles fields into a new Definition and
// stores it under typeName. maxFields bounds how many fields the type may
// carry; pass FieldCapacityCalc to size it at 1.5x len(fields), rounded
// down, instead (spec.md §4.2.1's "CALC" sizing rule). The capacity is
// recorded in MaxFields; no call adds fields to a Definition after
// DefineRecord returns.
func (r *Registry) DefineRecord(typeName, idField string, dataSize int, fields []FieldInit, maxFields int) (*Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs.Find(typeName); ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateDefinition, typeName)
	}

	if maxFields == FieldCapacityCalc {
		maxFields = len(fields) + len(fields)/2
	}
	if maxFields > 0 && len(fields) > maxFields {
		return nil, fmt.Errorf("%w: %q wants %d fields, max %d", ErrTooManyFields, typeName, len(fields), maxFields)
	}

	def := &Definition{
		TypeName:  typeName,
		IDField:   idField,
		TypeSize:  len(typeName) + 1,
		DataSize:  dataSize,
		MaxFields: maxFields,
		fields:    make(map[string]FieldSpec, len(fields)),
	}

	for _, in := range fields {
		spec, err := compileField(def, in)
		if err != nil {
			return nil, err
		}
		if _, exists := def.fields[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %q.%q", ErrFieldExists, typeName, spec.Name)
		}
		def.fields[spec.Name] = spec
		def.fieldOrder = append(def.fieldOrder, spec.Name)
		cacheRole(&def.Meta, spec)
	}

	if idField != "" {
		if _, ok := def.fields[idField]; !ok {
			return nil, fmt.Errorf("%w: id field %q not defined on %q", ErrFieldDefinition, idField, typeName)
		}
	}

	r.defs.Add(typeName, def, true)
	return def, nil
}

// GetDefinition looks up typeName, or returns ErrDefinitionNotFound.
func (r *Registry) GetDefinition(typeName string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs.Find(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDefinitionNotFound, typeName)
	}
	return def, nil
}

// cacheRole records f under every role flag it carries, keeping only the
// first field seen for each role: a field can carry more than one role
// flag at once (e.g. both XCoordFlag and YCoordFlag), and a later field
// sharing a role with an earlier one must not overwrite it.
func cacheRole(m *RoleMeta, f FieldSpec) {
	if f.Flags&IndexFlag != 0 && m.IndexField == "" {
		m.IndexField = f.Name
	}
	if f.Flags&TimeFlag != 0 && m.TimeField == "" {
		m.TimeField = f.Name
	}
	if f.Flags&XCoordFlag != 0 && m.XCoordField == "" {
		m.XCoordField = f.Name
	}
	if f.Flags&YCoordFlag != 0 && m.YCoordField == "" {
		m.YCoordField = f.Name
	}
	if f.Flags&ZCoordFlag != 0 && m.ZCoordField == "" {
		m.ZCoordField = f.Name
	}
	if f.Flags&BatchFlag != 0 && m.BatchField == "" {
		m.BatchField = f.Name
	}
}

// compileField validates one FieldInit against the end-of-field bound
// implied by def.DataSize, producing a FieldSpec with its offset normalized
// to bits. Duplicate field names are checked by DefineRecord, not here.
func compileField(def *Definition, in FieldInit) (FieldSpec, error) {
	if in.Name == "" {
		return FieldSpec{}, fmt.Errorf("%w: empty field name on %q", ErrFieldDefinition, def.TypeName)
	}
	if in.Type < 0 || in.Type >= Invalid {
		return FieldSpec{}, fmt.Errorf("%w: %q.%q has unknown type", ErrFieldDefinition, def.TypeName, in.Name)
	}
	if in.Type == Bitfield && in.Flags&BigEndian == 0 {
		return FieldSpec{}, fmt.Errorf("%w: %q.%q", ErrUnsupportedLEBitfield, def.TypeName, in.Name)
	}

	spec := FieldSpec{
		Name:     in.Name,
		Type:     in.Type,
		ExtType:  in.ExtType,
		Flags:    in.Flags,
		Elements: in.Size,
	}
	if spec.Elements == 0 && in.Type != StringType && in.Type != UserType {
		spec.Elements = 1 // Size 0 declares a single scalar
	}

	if in.Type == Bitfield {
		spec.OffsetBits = in.Offset
		spec.SizeBits = in.Size
		spec.Elements = 1
	} else {
		spec.OffsetBits = in.Offset * 8
	}

	end, err := endOfField(def, spec)
	if err != nil {
		return FieldSpec{}, err
	}
	if end > def.DataSize && spec.Elements != 0 {
		return FieldSpec{}, fmt.Errorf("%w: %q.%q ends at byte %d, beyond data_size %d", ErrFieldDefinition, def.TypeName, in.Name, end, def.DataSize)
	}

	return spec, nil
}

// endOfField returns the byte offset one past f's last occupied byte,
// following spec.md §4.2.1's end-of-field rule: pointer fields always
// occupy 4 bytes regardless of declared size; bit-fields round their bit
// span up to the enclosing byte; everything else is offset + elements *
// element size. A zero Elements on a StringType/UserType field (an
// open-ended trailing field) is given a pass: callers size it at
// serialization time via Record.SetUsed.
func endOfField(def *Definition, f FieldSpec) (int, error) {
	switch {
	case f.Flags&PointerFlag != 0:
		return f.OffsetBytes() + 4, nil
	case f.Type == Bitfield:
		return (f.OffsetBits + f.SizeBits + 7) / 8, nil
	case f.Type == UserType:
		// Nested records are embedded inline: only the sub-definition's
		// payload is stored, not its own wire header/type name, since the
		// enclosing record's definition already pins the nested type.
		nested, err := def.resolveExt(f.ExtType)
		if err != nil {
			return 0, err
		}
		elems := f.Elements
		if elems == 0 {
			elems = 1
		}
		return f.OffsetBytes() + elems*nested.DataSize, nil
	case f.Type == StringType:
		if f.Elements == 0 {
			return f.OffsetBytes(), nil // open-ended trailing field, sized at serialize time
		}
		return f.OffsetBytes() + f.Elements, nil
	default:
		elems := f.Elements
		if elems == 0 {
			return f.OffsetBytes(), nil
		}
		return f.OffsetBytes() + elems*(typeSizeBits[f.Type]/8), nil
	}
}

// resolveExt looks up a nested record type named by a UserType field's
// ExtType. It consults the global registry: user fields may reference any
// previously published definition, not just ones in the same Registry.
func (d *Definition) resolveExt(extType string) (*Definition, error) {
	return GetDefinition(extType)
}
