// Package codebuf implements the VM's code heap: a fixed-size,
// append-only byte arena that the block compiler writes opcode streams
// into. Addresses into it are plain byte offsets — stable for the life
// of the process, since the backing array is allocated once at the
// configured size and never grown or relocated.
package codebuf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/deepnoodle-ai/zimvm/object"
	"github.com/deepnoodle-ai/zimvm/op"
	"github.com/deepnoodle-ai/zimvm/vmerr"
)

// DefaultSize matches the spec's suggested 1 MiB code heap.
const DefaultSize = 1 << 20

// Addr is a byte offset into a CodeBuffer.
type Addr int

// Buffer is the bump-allocated code heap.
type Buffer struct {
	bytes []byte
	alloc int
}

// New allocates a code buffer of the given fixed size.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{bytes: make([]byte, size)}
}

// Alloc returns the address of the next byte to be written — the "mark
// the block start/end" operation the block compiler uses to delimit a
// BlockVersion's extent.
func (b *Buffer) Alloc() Addr { return Addr(b.alloc) }

// Len reports how many bytes have been written so far.
func (b *Buffer) Len() int { return b.alloc }

// Cap reports the buffer's fixed total size.
func (b *Buffer) Cap() int { return len(b.bytes) }

// Contains reports whether addr lies within the buffer's fixed capacity
// ([0, Cap())), whether or not that byte has been written yet. The
// interpreter does not use it to tell patched branch targets from
// unpatched ones; it tests the pending-reference tag bit instead.
func (b *Buffer) Contains(addr Addr) bool {
	return addr >= 0 && int(addr) < len(b.bytes)
}

func (b *Buffer) reserve(n int) (int, error) {
	if b.alloc+n > len(b.bytes) {
		return 0, vmerr.New(vmerr.CodeBufferExhausted,
			"code buffer exhausted: need %d more bytes, %d available", n, len(b.bytes)-b.alloc)
	}
	start := b.alloc
	b.alloc += n
	return start, nil
}

// WriteOpcode appends a 2-byte opcode tag and returns its address —
// needed by the block compiler so call/throw/abort sites can be keyed
// into the instruction-to-version map.
func (b *Buffer) WriteOpcode(c op.Code) (Addr, error) {
	start, err := b.reserve(2)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint16(b.bytes[start:], uint16(c))
	return Addr(start), nil
}

func (b *Buffer) WriteU16(v uint16) error {
	start, err := b.reserve(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b.bytes[start:], v)
	return nil
}

func (b *Buffer) WriteI32(v int32) error {
	start, err := b.reserve(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.bytes[start:], uint32(v))
	return nil
}

func (b *Buffer) WriteByte(v byte) error {
	start, err := b.reserve(1)
	if err != nil {
		return err
	}
	b.bytes[start] = v
	return nil
}

// WriteAddr appends an 8-byte word used for branch/call targets and
// returns its address so the interpreter can patch it in place later.
func (b *Buffer) WriteAddr(v uint64) (Addr, error) {
	start, err := b.reserve(8)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint64(b.bytes[start:], v)
	return Addr(start), nil
}

// PatchAddr overwrites a previously written 8-byte word in place. This
// is the only form of mutation a compiled BlockVersion's bytes ever
// undergo: rewriting a stub's target from a pending-version reference to
// a direct code address.
func (b *Buffer) PatchAddr(at Addr, v uint64) {
	binary.LittleEndian.PutUint64(b.bytes[at:], v)
}

// PatchOpcode overwrites a previously written 2-byte opcode tag in
// place, used to turn JumpStub into Jump on first traversal.
func (b *Buffer) PatchOpcode(at Addr, c op.Code) {
	binary.LittleEndian.PutUint16(b.bytes[at:], uint16(c))
}

// WriteValue appends a PUSH immediate: a tag byte followed by a
// fixed-width payload for scalar tags, or a length-prefixed byte run for
// strings. Only scalar and string constants are valid PUSH immediates —
// Object/Array/HostFn values only ever arise at runtime.
func (b *Buffer) WriteValue(v object.Value) error {
	if err := b.WriteByte(byte(v.Tag())); err != nil {
		return err
	}
	switch v.Tag() {
	case object.UNDEF:
		return nil
	case object.INT32:
		return b.WriteI32(v.AsInt32())
	case object.FLOAT32:
		return b.WriteI32(int32(math.Float32bits(v.AsFloat32())))
	case object.BOOL:
		if v.AsBool() {
			return b.WriteByte(1)
		}
		return b.WriteByte(0)
	case object.STRING:
		s := v.AsString()
		if err := b.WriteU16(uint16(len(s))); err != nil {
			return err
		}
		start, err := b.reserve(len(s))
		if err != nil {
			return err
		}
		copy(b.bytes[start:], s)
		return nil
	default:
		return fmt.Errorf("codebuf: %s is not a valid push immediate", v.Tag())
	}
}

// Reader walks the compiled bytes of one or more BlockVersions. It holds
// no state beyond the current instruction pointer, matching the
// original interpreter's bare `instrPtr` cursor.
type Reader struct {
	buf *Buffer
	ip  Addr
}

// NewReader creates a reader positioned at addr.
func (b *Buffer) NewReader(addr Addr) *Reader {
	return &Reader{buf: b, ip: addr}
}

func (r *Reader) IP() Addr        { return r.ip }
func (r *Reader) Seek(addr Addr)  { r.ip = addr }

func (r *Reader) ReadOpcode() op.Code {
	c := op.Code(binary.LittleEndian.Uint16(r.buf.bytes[r.ip:]))
	r.ip += 2
	return c
}

func (r *Reader) ReadU16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf.bytes[r.ip:])
	r.ip += 2
	return v
}

func (r *Reader) ReadI32() int32 {
	v := int32(binary.LittleEndian.Uint32(r.buf.bytes[r.ip:]))
	r.ip += 4
	return v
}

func (r *Reader) ReadByte() byte {
	v := r.buf.bytes[r.ip]
	r.ip++
	return v
}

// ReadAddrAt reads the 8-byte word at addr without moving the reader's
// own cursor. It returns only the word; addr itself is what a later
// PatchAddr takes.
func (r *Reader) ReadAddrAt(addr Addr) uint64 {
	return binary.LittleEndian.Uint64(r.buf.bytes[addr:])
}

// ReadAddr reads the next 8-byte word, advancing the cursor, and returns
// both the value and the address it was read from (for in-place patching).
func (r *Reader) ReadAddr() (uint64, Addr) {
	at := r.ip
	v := binary.LittleEndian.Uint64(r.buf.bytes[r.ip:])
	r.ip += 8
	return v, at
}

func (r *Reader) ReadValue() object.Value {
	tag := object.Tag(r.ReadByte())
	switch tag {
	case object.UNDEF:
		return object.Undef
	case object.INT32:
		return object.Int32(r.ReadI32())
	case object.FLOAT32:
		return object.Float32(math.Float32frombits(uint32(r.ReadI32())))
	case object.BOOL:
		return object.Bool(r.ReadByte() != 0)
	case object.STRING:
		n := int(r.ReadU16())
		s := string(r.buf.bytes[r.ip : r.ip+Addr(n)])
		r.ip += Addr(n)
		return object.String(s)
	default:
		panic(fmt.Sprintf("codebuf: unreadable push immediate tag %s", tag))
	}
}

// PatchOpcode rewrites the opcode tag at addr in place.
func (r *Reader) PatchOpcode(at Addr, c op.Code) { r.buf.PatchOpcode(at, c) }

// PatchAddr rewrites the 8-byte word at addr in place.
func (r *Reader) PatchAddr(at Addr, v uint64) { r.buf.PatchAddr(at, v) }

// Contains reports whether addr lies within the buffer's fixed capacity.
func (r *Reader) Contains(addr Addr) bool { return r.buf.Contains(addr) }
