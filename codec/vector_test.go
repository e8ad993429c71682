package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitXIsOneByte(t *testing.T) {
	p := newTestPayload(t)
	require.NoError(t, Write(p, Vector3{1, 0, 0}))
	assert.Equal(t, []byte{64}, p.Bytes())
	v, res := Read[Vector3](p)
	require.Equal(t, Success, res)
	assert.Equal(t, Vector3{1, 0, 0}, v)
}

func TestVectorMinimality(t *testing.T) {
	tests := []struct {
		name   string
		v      any
		expect byte
	}{
		{"zero2", Vector2{}, 0},
		{"zero3", Vector3{}, 0},
		{"zero4", Vector4{}, 0},
		{"y2", Vector2{0, 1}, 65},
		{"z3", Vector3{0, 0, 1}, 66},
		{"w4", Vector4{0, 0, 0, 1}, 67},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPayload(t)
			require.NoError(t, p.Registry().Write(p, tc.v))
			assert.Equal(t, []byte{tc.expect}, p.Bytes())
		})
	}
}

func TestVectorWidth(t *testing.T) {
	tests := []struct {
		name string
		v    Vector3
		typ  compType
		size int
	}{
		{"int8", Vector3{1, -2, 127}, compInt8, 4},
		{"int16", Vector3{1, 300, 0}, compInt16, 7},
		{"int32", Vector3{70000, 0, -1}, compInt32, 13},
		{"fraction forces float", Vector3{1, 2, 0.5}, compFloat, 13},
		{"too wide", Vector3{3e9, 0, 0}, compFloat, 13},
		{"minus unit", Vector3{-1, 0, 0}, compInt8, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPayload(t)
			require.NoError(t, Write(p, tc.v))
			b := p.Bytes()
			require.Len(t, b, tc.size)
			h, ok := decodeVecHeader(b[0])
			require.True(t, ok)
			assert.True(t, h.absolute)
			assert.Equal(t, tc.typ, h.typ)

			v, res := Read[Vector3](p)
			require.Equal(t, Success, res)
			assert.Equal(t, tc.v, v)
		})
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vs := []Vector4{
		{1.25, -3, 8, 0},
		{float32(math.MaxFloat32), -float32(math.SmallestNonzeroFloat32), 0, 1},
		{-128, 127, -32768, 32767},
		{1, 1, 0, 0},
	}
	for _, v := range vs {
		assert.Equal(t, v, roundTrip(t, v))
	}
	assert.Equal(t, Vector2{-0.5, 9}, roundTrip(t, Vector2{-0.5, 9}))
}

func TestVectorDelta(t *testing.T) {
	pairs := [][2]Vector3{
		{{10, 20, 30}, {10, 20, 30}},
		{{10, 21, 30}, {10, 20, 30}},
		{{1.5, 2, -7}, {0, 2, 0}},
		{{100000, 0, 0}, {0, 0, 0}},
		{{1, 0, 0}, {0, 0, 0}},
	}
	c := Vector3Codec.(vectorResolver[Vector3])
	for _, pr := range pairs {
		a, b := pr[0], pr[1]
		p := newTestPayload(t)
		d := c.Sub(a, b)
		require.NoError(t, p.Registry().WriteDelta(p, d))
		got, res := Read[Vector3](p)
		require.Equal(t, SuccessDelta, res, "%v - %v", a, b)
		assert.Equal(t, a, c.Add(got, b))
		assert.Equal(t, 0, p.Remaining())
	}
}

func TestVectorDeltaBytes(t *testing.T) {
	p := newTestPayload(t)
	require.NoError(t, p.Registry().WriteDelta(p, Vector3{}))
	assert.Equal(t, []byte{0x80}, p.Bytes())

	p.Reset()
	// only y changed by 1: mask 0b0010, int8
	require.NoError(t, p.Registry().WriteDelta(p, Vector3{0, 1, 0}))
	assert.Equal(t, []byte{0x80 | 2<<3, 1}, p.Bytes())

	p.Reset()
	assert.ErrorIs(t, p.Registry().WriteDelta(p, int32(1)), ErrNoCodec)
}

func TestVectorHeaderBijection(t *testing.T) {
	valid := 0
	for i := 0; i < 256; i++ {
		b := byte(i)
		h, ok := decodeVecHeader(b)
		if !ok {
			continue
		}
		valid++
		assert.Equal(t, b, encodeVecHeader(h), "header %d", i)
	}
	// zero, four units, four absolute types, one empty delta, 15 masks * 4 types
	assert.Equal(t, 1+4+4+1+15*4, valid)

	seen := map[byte]vecHeader{}
	add := func(h vecHeader) {
		b := encodeVecHeader(h)
		prev, dup := seen[b]
		assert.False(t, dup, "header %d for %+v and %+v", b, prev, h)
		seen[b] = h
		back, ok := decodeVecHeader(b)
		assert.True(t, ok)
		assert.Equal(t, h, back)
	}
	add(vecHeader{special: true, axis: -1})
	for axis := 0; axis < 4; axis++ {
		add(vecHeader{special: true, axis: axis})
	}
	for typ := compInt8; typ <= compFloat; typ++ {
		add(vecHeader{absolute: true, typ: typ})
		for mask := uint8(1); mask < 16; mask++ {
			add(vecHeader{typ: typ, mask: mask})
		}
	}
	add(vecHeader{})
	assert.Len(t, seen, valid)
}

func TestVectorReadRejects(t *testing.T) {
	reg := NewDefault(DefaultOptions()).Freeze()
	for _, b := range [][]byte{
		{67},          // unit W on a Vector3
		{0x80 | 8<<3}, // W in a Vector3 delta
		{3, 1, 0},     // truncated int16 payload
		{2},           // not a header
		{},
	} {
		p := FromBytes(reg, b)
		_, res := Read[Vector3](p)
		assert.Equal(t, Failed, res, "%v", b)
		assert.Equal(t, 0, p.Offset())
		p.Free()
	}
}
