package recordobject

import (
	"encoding/binary"
	"fmt"
)

// RECORD WIRE FORMAT
//
//	offset  size  field
//	0       2     version (always RecordVersion), big-endian
//	2       2     type_size: length of the type name including its NUL, big-endian
//	4       4     data_size: length of the payload actually in use, big-endian
//	8       type_size   NUL-terminated type name
//	8+type_size ...      payload
//
// The header is always big-endian regardless of any field's own BIGENDIAN
// flag: it must be parseable before the reader even knows which
// definition's field table applies.
var headerOrder = binary.BigEndian

// Record is a live instance of a Definition: a header, the type name, and a
// payload buffer. A Record either owns its backing memory (allocated by
// New) or aliases memory handed to it by Deserialize/FromBuffer with
// alias=true, matching the queue's post-by-reference path.
type Record struct {
	def      *Definition
	memory   []byte // header | type name + NUL | payload capacity
	used     int    // bytes of payload currently considered live
	capacity int    // bytes of payload allocated
	owned    bool
}

// New allocates a Record for def with extra bytes of additional trailing
// payload capacity beyond def.DataSize (for a variable-length array/string
// tail). The fixed portion of the payload is zeroed.
func New(def *Definition, extra int) (*Record, error) {
	if extra < 0 {
		extra = 0
	}
	capacity := def.DataSize + extra
	memory := make([]byte, HeaderSize+def.TypeSize+capacity)

	r := &Record{def: def, memory: memory, used: def.DataSize, capacity: capacity, owned: true}
	r.writeHeader(def.DataSize)
	copy(r.memory[HeaderSize:HeaderSize+def.TypeSize-1], def.TypeName)
	return r, nil
}

// FromBuffer parses buf as a wire-format record and binds it to its
// definition (looked up by the type name embedded in the header). If alias
// is true the Record's payload is a view over buf itself (the queue
// zero-copy path); otherwise the payload is copied into a fresh allocation.
func FromBuffer(buf []byte, alias bool) (*Record, error) {
	if len(buf) < HeaderSize {
		return nil, ErrBufferTooSmall
	}
	typeSize := int(headerOrder.Uint16(buf[2:4]))
	dataSize := int(headerOrder.Uint32(buf[4:8]))
	if len(buf) < HeaderSize+typeSize+dataSize {
		return nil, ErrBufferTooSmall
	}

	typeName := cString(buf[HeaderSize : HeaderSize+typeSize])
	def, err := GetDefinition(typeName)
	if err != nil {
		return nil, err
	}

	total := HeaderSize + typeSize + dataSize
	var memory []byte
	if alias {
		memory = buf[:total]
	} else {
		memory = make([]byte, total)
		copy(memory, buf[:total])
	}

	return &Record{def: def, memory: memory, used: dataSize, capacity: dataSize, owned: !alias}, nil
}

// Definition returns the Record's backing schema.
func (r *Record) Definition() *Definition { return r.def }

// Used returns the number of payload bytes currently considered live.
func (r *Record) Used() int { return r.used }

// SetUsed marks n bytes of the payload as live, for producers filling a
// trailing variable-length field after construction. n must not exceed the
// allocated capacity.
func (r *Record) SetUsed(n int) error {
	if n < 0 || n > r.capacity {
		return fmt.Errorf("%w: used=%d capacity=%d", ErrRecordTooLarge, n, r.capacity)
	}
	r.used = n
	return nil
}

// Payload returns the live portion of the record's payload.
func (r *Record) Payload() []byte {
	base := HeaderSize + r.def.TypeSize
	return r.memory[base : base+r.used]
}

func (r *Record) writeHeader(dataSize int) {
	headerOrder.PutUint16(r.memory[0:2], RecordVersion)
	headerOrder.PutUint16(r.memory[2:4], uint16(r.def.TypeSize))
	headerOrder.PutUint32(r.memory[4:8], uint32(dataSize))
}

// Serialize hands back the record's wire bytes per mode. size, if >= 0,
// overrides Used() as the payload length written into the header (used by
// producers that compute their final trailing length only at serialize
// time); pass -1 to use Used(). dst is only consulted for Copy mode.
func (r *Record) Serialize(mode SerialMode, size int, dst []byte) ([]byte, error) {
	if r.memory == nil {
		return nil, ErrRecordAlreadyTaken
	}

	n := size
	if n < 0 {
		n = r.used
	}
	if n > r.capacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, n, r.capacity)
	}

	r.writeHeader(n)
	total := HeaderSize + r.def.TypeSize + n

	switch mode {
	case Allocate:
		out := make([]byte, total)
		copy(out, r.memory[:total])
		return out, nil

	case Reference:
		return r.memory[:total], nil

	case Copy:
		if len(dst) < total {
			return nil, ErrBufferTooSmall
		}
		copy(dst, r.memory[:total])
		return dst[:total], nil

	case TakeOwnership:
		out := r.memory[:total]
		r.memory = nil
		r.def = nil
		r.owned = false
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown serial mode %d", ErrInvalidField, mode)
	}
}

// Deserialize overwrites the Record's payload from buf, which must carry
// the same definition (by type name). The Record must still own (or have
// capacity for) its memory; use FromBuffer to bind to a brand-new
// definition instead.
func (r *Record) Deserialize(buf []byte) error {
	if r.memory == nil {
		return ErrRecordAlreadyTaken
	}
	if len(buf) < HeaderSize {
		return ErrBufferTooSmall
	}

	typeSize := int(headerOrder.Uint16(buf[2:4]))
	dataSize := int(headerOrder.Uint32(buf[4:8]))
	if len(buf) < HeaderSize+typeSize+dataSize {
		return ErrBufferTooSmall
	}
	if cString(buf[HeaderSize:HeaderSize+typeSize]) != r.def.TypeName {
		return ErrDefinitionMismatch
	}
	if dataSize > r.capacity {
		return fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, dataSize, r.capacity)
	}

	base := HeaderSize + r.def.TypeSize
	copy(r.memory[base:base+dataSize], buf[HeaderSize+typeSize:HeaderSize+typeSize+dataSize])
	r.used = dataSize
	return nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
