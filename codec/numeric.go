package codec

import (
	"encoding/binary"
	"math"

	"github.com/go-faster/errors"
	"github.com/liangmanlin/netsync/gutil"
)

// fixed is an auto advancing resolver over a window of size bytes
type fixed[T any] struct {
	size int
	put  func(b []byte, v T) error
	get  func(b []byte) T
}

func (f fixed[T]) Size() int { return f.size }

func (f fixed[T]) AutoAdvance() bool { return true }

func (f fixed[T]) Write(p *BytePayload, v T) error {
	w, err := p.Slot(f.size)
	if err != nil {
		return err
	}
	return f.put(w, v)
}

func (f fixed[T]) Read(p *BytePayload) (v T, res ReadResult) {
	b, err := p.Peek(f.size)
	if err != nil {
		return v, Failed
	}
	return f.get(b), Success
}

var le = binary.LittleEndian

var (
	Bool Resolver[bool] = fixed[bool]{1,
		func(b []byte, v bool) error {
			b[0] = 0
			if v {
				b[0] = 1
			}
			return nil
		},
		func(b []byte) bool { return b[0] != 0 }}

	Int8 Resolver[int8] = fixed[int8]{1,
		func(b []byte, v int8) error { b[0] = byte(v); return nil },
		func(b []byte) int8 { return int8(b[0]) }}

	Uint8 Resolver[uint8] = fixed[uint8]{1,
		func(b []byte, v uint8) error { b[0] = v; return nil },
		func(b []byte) uint8 { return b[0] }}

	Int16 Resolver[int16] = fixed[int16]{2,
		func(b []byte, v int16) error { le.PutUint16(b, uint16(v)); return nil },
		func(b []byte) int16 { return int16(le.Uint16(b)) }}

	Uint16 Resolver[uint16] = fixed[uint16]{2,
		func(b []byte, v uint16) error { le.PutUint16(b, v); return nil },
		le.Uint16}

	Int32 Resolver[int32] = fixed[int32]{4,
		func(b []byte, v int32) error { le.PutUint32(b, uint32(v)); return nil },
		func(b []byte) int32 { return int32(le.Uint32(b)) }}

	Uint32 Resolver[uint32] = fixed[uint32]{4,
		func(b []byte, v uint32) error { le.PutUint32(b, v); return nil },
		le.Uint32}

	Int64 Resolver[int64] = fixed[int64]{8,
		func(b []byte, v int64) error { le.PutUint64(b, uint64(v)); return nil },
		func(b []byte) int64 { return int64(le.Uint64(b)) }}

	Uint64 Resolver[uint64] = fixed[uint64]{8,
		func(b []byte, v uint64) error { le.PutUint64(b, v); return nil },
		le.Uint64}

	Float32 Resolver[float32] = fixed[float32]{4,
		func(b []byte, v float32) error { le.PutUint32(b, math.Float32bits(v)); return nil },
		func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }}

	Float64 Resolver[float64] = fixed[float64]{8,
		func(b []byte, v float64) error { le.PutUint64(b, math.Float64bits(v)); return nil },
		func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) }}

	// Int travels as int32, wider values are refused
	Int Resolver[int] = fixed[int]{4,
		func(b []byte, v int) error {
			if v < math.MinInt32 || v > math.MaxInt32 {
				return errors.Wrapf(ErrOutOfRange, "int %d does not fit int32", v)
			}
			le.PutUint32(b, uint32(int32(v)))
			return nil
		},
		func(b []byte) int { return int(int32(le.Uint32(b))) }}
)

// Decimal is a float sent as int32 of round(v*10^precision)
type Decimal float64

func DecimalCodec(precision int) Resolver[Decimal] {
	scale := gutil.Pow10(precision)
	return fixed[Decimal]{4,
		func(b []byte, v Decimal) error {
			s := math.Round(float64(v) * scale)
			if math.IsNaN(s) || s < math.MinInt32 || s > math.MaxInt32 {
				return errors.Wrapf(ErrOutOfRange, "decimal %v at precision %d", float64(v), precision)
			}
			le.PutUint32(b, uint32(int32(s)))
			return nil
		},
		func(b []byte) Decimal {
			return Decimal(float64(int32(le.Uint32(b))) / scale)
		}}
}
