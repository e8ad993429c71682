package codec

import (
	"encoding/binary"

	"github.com/liangmanlin/netsync/bpool"
)

const defaultPayloadSize = 64

// BytePayload is one growable little-endian byte sequence. Writes append to
// the end, reads consume from the read cursor. After Pack no write succeeds
// until Reset.
type BytePayload struct {
	buf    *bpool.Buff
	off    int
	packed bool
	reg    *Registry
}

func NewPayload(reg *Registry) *BytePayload {
	return NewPayloadSize(reg, defaultPayloadSize)
}

func NewPayloadSize(reg *Registry, size int) *BytePayload {
	return &BytePayload{buf: bpool.New(size), reg: reg}
}

// FromBytes copies b into a packed payload ready for reading
func FromBytes(reg *Registry, b []byte) *BytePayload {
	return &BytePayload{buf: bpool.NewBuf(b), reg: reg, packed: true}
}

func (p *BytePayload) Registry() *Registry {
	return p.reg
}

// Len is the number of bytes written
func (p *BytePayload) Len() int {
	return p.buf.Size()
}

// Offset is the read cursor
func (p *BytePayload) Offset() int {
	return p.off
}

func (p *BytePayload) Remaining() int {
	return p.buf.Size() - p.off
}

func (p *BytePayload) Packed() bool {
	return p.packed
}

// Bytes returns the written bytes without packing, the slice is only valid
// until the next write
func (p *BytePayload) Bytes() []byte {
	return p.buf.ToBytes()
}

// Pack finalizes the payload, the returned bytes stay valid until Reset or Free
func (p *BytePayload) Pack() []byte {
	p.packed = true
	return p.buf.ToBytes()
}

func (p *BytePayload) Reset() {
	p.buf.Reset()
	p.off = 0
	p.packed = false
}

// Free gives the buffer back to bpool, the payload must not be used afterwards
func (p *BytePayload) Free() {
	if p.buf != nil {
		p.buf.Free()
		p.buf = nil
	}
	p.reg = nil
}

// Slot returns a window of n bytes at the write end without committing it,
// Advance commits
func (p *BytePayload) Slot(n int) ([]byte, error) {
	if p.packed {
		return nil, ErrPacked
	}
	p.buf = p.buf.Grow(n)
	b := p.buf.ToBytes()
	size := len(b)
	return b[size : size+n], nil
}

func (p *BytePayload) Advance(n int) {
	p.buf.SetSize(p.buf.Size() + n)
}

func (p *BytePayload) WriteByte(c byte) error {
	w, err := p.Slot(1)
	if err != nil {
		return err
	}
	w[0] = c
	p.Advance(1)
	return nil
}

func (p *BytePayload) Write(b []byte) (int, error) {
	w, err := p.Slot(len(b))
	if err != nil {
		return 0, err
	}
	copy(w, b)
	p.Advance(len(b))
	return len(b), nil
}

func (p *BytePayload) WriteUint16(v uint16) error {
	w, err := p.Slot(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(w, v)
	p.Advance(2)
	return nil
}

func (p *BytePayload) WriteUint32(v uint32) error {
	w, err := p.Slot(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(w, v)
	p.Advance(4)
	return nil
}

// Peek returns the next n unread bytes without moving the cursor
func (p *BytePayload) Peek(n int) ([]byte, error) {
	if n < 0 || p.Remaining() < n {
		return nil, ErrShortBuffer
	}
	return p.buf.ToBytes()[p.off : p.off+n], nil
}

func (p *BytePayload) Skip(n int) {
	p.off += n
}

// Next reads n bytes, the slice aliases the payload
func (p *BytePayload) Next(n int) ([]byte, error) {
	b, err := p.Peek(n)
	if err != nil {
		return nil, err
	}
	p.off += n
	return b, nil
}

func (p *BytePayload) ReadByte() (byte, error) {
	if p.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	c := p.buf.ToBytes()[p.off]
	p.off++
	return c, nil
}

func (p *BytePayload) ReadUint16() (uint16, error) {
	b, err := p.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (p *BytePayload) ReadUint32() (uint32, error) {
	b, err := p.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Truncate cuts written bytes back to size, used to drop a half written record
func (p *BytePayload) Truncate(size int) {
	if size < p.buf.Size() && !p.packed {
		p.truncate(size)
	}
}

func (p *BytePayload) truncate(size int) {
	p.buf.SetSize(size)
}

func (p *BytePayload) seek(off int) {
	p.off = off
}
