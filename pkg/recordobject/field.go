package recordobject

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// immediatePattern matches the "#TYPE(offset,size)" immediate field syntax:
// it lets a caller address raw bytes of a record without a predefined field, e.g.
// to peek at a header the definition doesn't otherwise model.
var immediatePattern = regexp.MustCompile(`^#([A-Za-z0-9]+)\((\d+),(\d+)\)$`)

var immediateTypeNames = map[string]FieldType{
	"INT8": Int8, "INT16": Int16, "INT32": Int32, "INT64": Int64,
	"UINT8": Uint8, "UINT16": Uint16, "UINT32": Uint32, "UINT64": Uint64,
	"BITFIELD": Bitfield, "FLOAT": FloatType, "DOUBLE": DoubleType,
	"TIME8": Time8, "STRING": StringType, "BOOL": BoolType,
}

// ResolveField compiles a field reference against d into an absolute
// FieldSpec (offsets measured from the start of a record's payload). name
// may be:
//   - a plain field name ("altitude")
//   - a bracketed array element ("samples[3]")
//   - a dotted path through nested UserType fields ("header.sequence")
//   - an immediate "#TYPE(offset,size)" reference, bypassing the field
//     table entirely
func (d *Definition) ResolveField(name string) (FieldSpec, error) {
	if strings.HasPrefix(name, "#") {
		return parseImmediate(name)
	}

	segments := strings.Split(name, ".")
	cur := d
	var spec FieldSpec
	offsetBits := 0

	for i, seg := range segments {
		base, idx, hasIdx := parseBracket(seg)
		f, ok := cur.fields[base]
		if !ok {
			return FieldSpec{}, fmt.Errorf("%w: %q (segment %q)", ErrInvalidField, name, base)
		}

		segOffsetBits := f.OffsetBits
		if hasIdx {
			if f.Elements != 0 && idx >= f.Elements {
				return FieldSpec{}, fmt.Errorf("%w: %q[%d]", ErrOutOfRange, base, idx)
			}
			segOffsetBits += idx * f.ElementSizeBytes() * 8
			f.Elements = 1
		}

		offsetBits += segOffsetBits
		spec = f
		spec.OffsetBits = offsetBits

		if i < len(segments)-1 {
			if f.Type != UserType {
				return FieldSpec{}, fmt.Errorf("%w: %q is not a nested record", ErrInvalidField, base)
			}
			nested, err := cur.resolveExt(f.ExtType)
			if err != nil {
				return FieldSpec{}, err
			}
			cur = nested
		}
	}

	return spec, nil
}

func parseBracket(seg string) (base string, idx int, hasIdx bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	base = seg[:open]
	n, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}
	return base, n, true
}

func parseImmediate(name string) (FieldSpec, error) {
	m := immediatePattern.FindStringSubmatch(name)
	if m == nil {
		return FieldSpec{}, fmt.Errorf("%w: malformed immediate field %q", ErrInvalidField, name)
	}
	ftype, ok := immediateTypeNames[strings.ToUpper(m[1])]
	if !ok {
		return FieldSpec{}, fmt.Errorf("%w: unknown immediate type %q", ErrInvalidField, m[1])
	}
	offset, _ := strconv.Atoi(m[2])
	size, _ := strconv.Atoi(m[3])

	spec := FieldSpec{Name: name, Type: ftype, Flags: NativeFlags}
	if ftype == Bitfield {
		spec.OffsetBits = offset
		spec.SizeBits = size
		spec.Flags |= BigEndian
		spec.Elements = 1
	} else {
		spec.OffsetBits = offset * 8
		spec.Elements = size
	}
	return spec, nil
}

// GetValueInteger reads name as a signed 64-bit integer, sign-extending (or
// zero-extending, for unsigned and BOOL types) as needed. Floating types
// are truncated toward zero.
func (r *Record) GetValueInteger(name string) (int64, error) {
	spec, payload, err := r.field(name)
	if err != nil {
		return 0, err
	}
	if spec.Type == FloatType || spec.Type == DoubleType {
		f, err := readFloat(spec, payload)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	}
	return readInteger(spec, payload)
}

// SetValueInteger writes v into name, narrowing to the field's wire width.
func (r *Record) SetValueInteger(name string, v int64) error {
	spec, payload, err := r.field(name)
	if err != nil {
		return err
	}
	return writeInteger(spec, payload, v)
}

// GetValueReal reads name as a float64, promoting integer types.
func (r *Record) GetValueReal(name string) (float64, error) {
	spec, payload, err := r.field(name)
	if err != nil {
		return 0, err
	}
	if spec.Type == FloatType || spec.Type == DoubleType {
		return readFloat(spec, payload)
	}
	iv, err := readInteger(spec, payload)
	if err != nil {
		return 0, err
	}
	return float64(iv), nil
}

// SetValueReal writes v into name, narrowing integer fields via truncation.
func (r *Record) SetValueReal(name string, v float64) error {
	spec, payload, err := r.field(name)
	if err != nil {
		return err
	}
	if spec.Type == FloatType || spec.Type == DoubleType {
		return writeFloat(spec, payload, v)
	}
	return writeInteger(spec, payload, int64(v))
}

// GetValueText renders name as text: the field's string contents for
// StringType, or a decimal/float rendering for numeric fields.
func (r *Record) GetValueText(name string) (string, error) {
	spec, payload, err := r.field(name)
	if err != nil {
		return "", err
	}
	if spec.Type == StringType {
		n := spec.Elements
		if n == 0 {
			n = len(payload) - spec.OffsetBytes()
		}
		return cString(payload[spec.OffsetBytes() : spec.OffsetBytes()+n]), nil
	}
	if spec.Type == FloatType || spec.Type == DoubleType {
		f, err := readFloat(spec, payload)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	iv, err := readInteger(spec, payload)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(iv, 10), nil
}

// SetValueText parses and writes name's text representation.
func (r *Record) SetValueText(name, text string) error {
	spec, payload, err := r.field(name)
	if err != nil {
		return err
	}
	if spec.Type == StringType {
		n := spec.Elements
		if n == 0 {
			n = len(payload) - spec.OffsetBytes()
		}
		if len(text)+1 > n {
			return fmt.Errorf("%w: text %d bytes, field holds %d", ErrRecordTooLarge, len(text)+1, n)
		}
		dst := payload[spec.OffsetBytes() : spec.OffsetBytes()+n]
		clear(dst)
		copy(dst, text)
		return nil
	}
	if spec.Type == FloatType || spec.Type == DoubleType {
		f, perr := strconv.ParseFloat(text, 64)
		if perr != nil {
			return fmt.Errorf("%w: %v", ErrInvalidField, perr)
		}
		return writeFloat(spec, payload, f)
	}
	iv, perr := strconv.ParseInt(text, 10, 64)
	if perr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidField, perr)
	}
	return writeInteger(spec, payload, iv)
}

// field resolves name and returns both the compiled spec and the payload
// slice it indexes into: always the record's own live payload. Pointer
// fields are not followed here; Dereference does that explicitly.
func (r *Record) field(name string) (FieldSpec, []byte, error) {
	if r.memory == nil {
		return FieldSpec{}, nil, ErrRecordAlreadyTaken
	}
	spec, err := r.def.ResolveField(name)
	if err != nil {
		return FieldSpec{}, nil, err
	}
	return spec, r.Payload(), nil
}

func readInteger(spec FieldSpec, payload []byte) (int64, error) {
	if spec.Type == Bitfield {
		u, err := unpackBitField(payload, spec.OffsetBits, spec.SizeBits)
		if err != nil {
			return 0, err
		}
		return int64(u), nil
	}

	off := spec.OffsetBytes()
	size := typeSizeBits[spec.Type] / 8
	if off+size > len(payload) {
		return 0, ErrOutOfRange
	}
	order := byteOrderFor(spec.Flags)

	switch spec.Type {
	case Int8:
		return int64(int8(payload[off])), nil
	case Uint8, BoolType:
		return int64(payload[off]), nil
	case Int16:
		return int64(int16(order.Uint16(payload[off : off+2]))), nil
	case Uint16:
		return int64(order.Uint16(payload[off : off+2])), nil
	case Int32:
		return int64(int32(order.Uint32(payload[off : off+4]))), nil
	case Uint32:
		return int64(order.Uint32(payload[off : off+4])), nil
	case Int64:
		return int64(order.Uint64(payload[off : off+8])), nil
	case Uint64, Time8:
		return int64(order.Uint64(payload[off : off+8])), nil
	default:
		return 0, fmt.Errorf("%w: %q is not an integer type", ErrInvalidField, spec.Name)
	}
}

func writeInteger(spec FieldSpec, payload []byte, v int64) error {
	if spec.Type == Bitfield {
		return packBitField(payload, spec.OffsetBits, spec.SizeBits, uint64(v))
	}

	off := spec.OffsetBytes()
	size := typeSizeBits[spec.Type] / 8
	if off+size > len(payload) {
		return ErrOutOfRange
	}
	order := byteOrderFor(spec.Flags)

	switch spec.Type {
	case Int8, Uint8, BoolType:
		payload[off] = byte(v)
	case Int16, Uint16:
		order.PutUint16(payload[off:off+2], uint16(v))
	case Int32, Uint32:
		order.PutUint32(payload[off:off+4], uint32(v))
	case Int64, Uint64, Time8:
		order.PutUint64(payload[off:off+8], uint64(v))
	default:
		return fmt.Errorf("%w: %q is not an integer type", ErrInvalidField, spec.Name)
	}
	return nil
}

func readFloat(spec FieldSpec, payload []byte) (float64, error) {
	off := spec.OffsetBytes()
	order := byteOrderFor(spec.Flags)
	switch spec.Type {
	case FloatType:
		if off+4 > len(payload) {
			return 0, ErrOutOfRange
		}
		return float64(math.Float32frombits(order.Uint32(payload[off : off+4]))), nil
	case DoubleType:
		if off+8 > len(payload) {
			return 0, ErrOutOfRange
		}
		return math.Float64frombits(order.Uint64(payload[off : off+8])), nil
	default:
		return 0, fmt.Errorf("%w: %q is not a floating type", ErrInvalidField, spec.Name)
	}
}

func writeFloat(spec FieldSpec, payload []byte, v float64) error {
	off := spec.OffsetBytes()
	order := byteOrderFor(spec.Flags)
	switch spec.Type {
	case FloatType:
		if off+4 > len(payload) {
			return ErrOutOfRange
		}
		order.PutUint32(payload[off:off+4], math.Float32bits(float32(v)))
	case DoubleType:
		if off+8 > len(payload) {
			return ErrOutOfRange
		}
		order.PutUint64(payload[off:off+8], math.Float64bits(v))
	default:
		return fmt.Errorf("%w: %q is not a floating type", ErrInvalidField, spec.Name)
	}
	return nil
}
