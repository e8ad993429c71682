package codec

import (
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayload(t *testing.T) *BytePayload {
	t.Helper()
	p := NewPayload(NewDefault(DefaultOptions()).Freeze())
	t.Cleanup(p.Free)
	return p
}

// roundTrip writes v, reads it back and checks nothing is left over
func roundTrip[T any](t *testing.T, v T) T {
	t.Helper()
	p := newTestPayload(t)
	require.NoError(t, Write(p, v))
	out, res := Read[T](p)
	require.Equal(t, Success, res, "%T %v", v, v)
	assert.Equal(t, 0, p.Remaining())
	return out
}

func TestNumericRoundTrip(t *testing.T) {
	assert.Equal(t, true, roundTrip(t, true))
	assert.Equal(t, int8(-128), roundTrip(t, int8(-128)))
	assert.Equal(t, uint8(255), roundTrip(t, uint8(255)))
	assert.Equal(t, int16(-12345), roundTrip(t, int16(-12345)))
	assert.Equal(t, uint16(65535), roundTrip(t, uint16(65535)))
	assert.Equal(t, int32(math.MinInt32), roundTrip(t, int32(math.MinInt32)))
	assert.Equal(t, uint32(math.MaxUint32), roundTrip(t, uint32(math.MaxUint32)))
	assert.Equal(t, int64(math.MinInt64), roundTrip(t, int64(math.MinInt64)))
	assert.Equal(t, uint64(math.MaxUint64), roundTrip(t, uint64(math.MaxUint64)))
	assert.Equal(t, float32(-1.5e-7), roundTrip(t, float32(-1.5e-7)))
	assert.Equal(t, math.Pi, roundTrip(t, math.Pi))
	assert.Equal(t, -7, roundTrip(t, -7))
}

func TestLittleEndian(t *testing.T) {
	p := newTestPayload(t)
	require.NoError(t, Write(p, int32(0x01020304)))
	require.NoError(t, Write(p, uint16(0xA0B0)))
	assert.Equal(t, []byte{4, 3, 2, 1, 0xB0, 0xA0}, p.Bytes())
}

func TestIntOutOfRange(t *testing.T) {
	if math.MaxInt == math.MaxInt32 {
		t.Skip("int is 32 bit")
	}
	p := newTestPayload(t)
	wide := int64(math.MaxInt32) + 1
	err := Write(p, int(wide))
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, 0, p.Len())
}

func TestDecimal(t *testing.T) {
	assert.Equal(t, Decimal(3.1416), roundTrip(t, Decimal(3.14159)))
	assert.Equal(t, Decimal(-2.5), roundTrip(t, Decimal(-2.5)))

	p := newTestPayload(t)
	require.NoError(t, Write(p, Decimal(3.14159)))
	assert.Equal(t, []byte{0xB8, 0x7A, 0, 0}, p.Bytes()) // 31416

	p.Reset()
	assert.ErrorIs(t, Write(p, Decimal(1e9)), ErrOutOfRange)
	assert.ErrorIs(t, Write(p, Decimal(math.NaN())), ErrOutOfRange)
	assert.Equal(t, 0, p.Len())
}

func TestDecimalPrecision(t *testing.T) {
	r := NewDefault(Options{DecimalPrecision: 2}).Freeze()
	p := NewPayload(r)
	defer p.Free()
	require.NoError(t, Write(p, Decimal(1.005001)))
	v, res := Read[Decimal](p)
	require.Equal(t, Success, res)
	assert.Equal(t, Decimal(1.01), v)
}

func TestShortReadFails(t *testing.T) {
	reg := NewDefault(DefaultOptions()).Freeze()
	p := FromBytes(reg, []byte{1, 2, 3})
	defer p.Free()
	_, res := Read[int32](p)
	assert.Equal(t, Failed, res)
	assert.Equal(t, 0, p.Offset())

	v, res := Read[int16](p)
	assert.Equal(t, Success, res)
	assert.Equal(t, int16(0x0201), v)
	assert.Equal(t, 2, p.Offset())
}

func TestPackThenReset(t *testing.T) {
	p := newTestPayload(t)
	require.NoError(t, Write(p, uint8(9)))
	out := p.Pack()
	assert.Equal(t, []byte{9}, out)
	assert.True(t, p.Packed())
	assert.ErrorIs(t, Write(p, uint8(1)), ErrPacked)
	assert.ErrorIs(t, p.WriteByte(1), ErrPacked)

	p.Reset()
	assert.False(t, p.Packed())
	require.NoError(t, Write(p, uint8(1)))
	assert.Equal(t, []byte{1}, p.Bytes())
}

func TestNoCodec(t *testing.T) {
	type unknown struct{ A int32 }
	p := newTestPayload(t)
	assert.ErrorIs(t, Write(p, unknown{}), ErrNoCodec)
	assert.ErrorIs(t, Write(p, map[string]int32{"a": 1}), ErrNoCodec)
	assert.ErrorIs(t, Write[any](p, nil), ErrNoCodec)
	assert.Equal(t, 0, p.Len())

	_, res := Read[unknown](p)
	assert.Equal(t, Failed, res)
}

func TestRegistryFreeze(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Erase(Int32)))
	assert.ErrorIs(t, r.Register(Erase(Int32)), ErrDuplicate)
	r.Freeze()
	assert.ErrorIs(t, r.Register(Erase(Int64)), ErrFrozen)
	assert.Panics(t, func() { r.MustRegister(Erase(Int64)) })

	c, ok := r.Lookup(reflect.TypeOf(int32(0)))
	require.True(t, ok)
	assert.Equal(t, 4, c.Size())
	assert.True(t, c.AutoAdvance())
	assert.Equal(t, []reflect.Type{reflect.TypeOf(int32(0))}, r.Types())
}

func TestReadResultString(t *testing.T) {
	assert.Equal(t, "failed", Failed.String())
	assert.True(t, SuccessDelta.Ok())
	assert.False(t, Failed.Ok())
}
