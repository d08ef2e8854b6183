package recordobject

import "fmt"

// Dereference resolves a pointer field (one defined with PointerFlag) and
// returns the slice of the record's own payload it addresses. Pointer
// fields are self-relative: the stored uint32 is a byte offset from the
// start of the record's payload, not an absolute memory address, so that a
// record remains meaningful after being copied or sent over a queue.
//
// A zero offset is the field's "null" sentinel and yields ErrPointerNull.
func (r *Record) Dereference(name string) ([]byte, error) {
	spec, payload, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if spec.Flags&PointerFlag == 0 {
		return nil, fmt.Errorf("%w: %q is not a pointer field", ErrInvalidField, name)
	}

	off := spec.OffsetBytes()
	if off+4 > len(payload) {
		return nil, ErrOutOfRange
	}
	target := byteOrderFor(spec.Flags).Uint32(payload[off : off+4])
	if target == 0 {
		return nil, ErrPointerNull
	}
	if int(target) >= len(payload) {
		return nil, ErrPointerOutOfBounds
	}
	return payload[target:], nil
}

// SetPointer writes targetOffset (a byte offset into the record's own
// payload, or 0 for null) into a pointer field.
func (r *Record) SetPointer(name string, targetOffset uint32) error {
	spec, payload, err := r.field(name)
	if err != nil {
		return err
	}
	if spec.Flags&PointerFlag == 0 {
		return fmt.Errorf("%w: %q is not a pointer field", ErrInvalidField, name)
	}

	off := spec.OffsetBytes()
	if off+4 > len(payload) {
		return ErrOutOfRange
	}
	if targetOffset != 0 && int(targetOffset) >= len(payload) {
		return ErrPointerOutOfBounds
	}
	byteOrderFor(spec.Flags).PutUint32(payload[off:off+4], targetOffset)
	return nil
}
