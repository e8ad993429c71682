package codec

import (
	"reflect"
)

type ReadResult uint8

const (
	Failed ReadResult = iota
	Success
	// SuccessDelta means the value is a delta, the caller adds it to a base value
	SuccessDelta
)

func (r ReadResult) Ok() bool {
	return r != Failed
}

func (r ReadResult) String() string {
	switch r {
	case Success:
		return "success"
	case SuccessDelta:
		return "success_delta"
	default:
		return "failed"
	}
}

// Resolver encodes exactly one value type T.
//
// Size is the fixed wire size or -1. When AutoAdvance is true Write and Read
// work on a window of Size bytes at the cursor and the caller moves the
// cursor, see Put and Get. Variable sized resolvers move the cursor themselves.
type Resolver[T any] interface {
	Size() int
	AutoAdvance() bool
	Write(p *BytePayload, v T) error
	Read(p *BytePayload) (T, ReadResult)
}

// Put writes v with r and commits auto advancing windows
func Put[T any](p *BytePayload, r Resolver[T], v T) error {
	if err := r.Write(p, v); err != nil {
		return err
	}
	if r.AutoAdvance() {
		p.Advance(r.Size())
	}
	return nil
}

// Get reads one value with r and consumes auto advancing windows
func Get[T any](p *BytePayload, r Resolver[T]) (T, ReadResult) {
	v, res := r.Read(p)
	if res != Failed && r.AutoAdvance() {
		p.Skip(r.Size())
	}
	return v, res
}

// Codec is a Resolver with its type erased, the registry keys it by Type
type Codec interface {
	Type() reflect.Type
	Size() int
	AutoAdvance() bool
	WriteAny(p *BytePayload, v any) error
	ReadAny(p *BytePayload) (any, ReadResult)
}

// DeltaCodec is implemented by codecs that can send a value as a delta
// against a base value
type DeltaCodec interface {
	Codec
	WriteDeltaAny(p *BytePayload, delta any) error
	Sub(a, b any) any
	Add(base, delta any) any
}

func Erase[T any](r Resolver[T]) Codec {
	e := erased[T]{r: r, t: typeOf[T]()}
	if d, ok := r.(deltaResolver[T]); ok {
		return erasedDelta[T]{erased: e, d: d}
	}
	return e
}

type deltaResolver[T any] interface {
	WriteDelta(p *BytePayload, delta T) error
	Sub(a, b T) T
	Add(a, b T) T
}

type erased[T any] struct {
	r Resolver[T]
	t reflect.Type
}

func (e erased[T]) Type() reflect.Type { return e.t }

func (e erased[T]) Size() int { return e.r.Size() }

func (e erased[T]) AutoAdvance() bool { return e.r.AutoAdvance() }

func (e erased[T]) WriteAny(p *BytePayload, v any) error {
	tv, ok := v.(T)
	if !ok {
		return ErrNoCodec
	}
	return Put(p, e.r, tv)
}

func (e erased[T]) ReadAny(p *BytePayload) (any, ReadResult) {
	v, res := Get(p, e.r)
	if res == Failed {
		return nil, Failed
	}
	return v, res
}

type erasedDelta[T any] struct {
	erased[T]
	d deltaResolver[T]
}

func (e erasedDelta[T]) WriteDeltaAny(p *BytePayload, delta any) error {
	tv, ok := delta.(T)
	if !ok {
		return ErrNoCodec
	}
	return e.d.WriteDelta(p, tv)
}

func (e erasedDelta[T]) Sub(a, b any) any {
	return e.d.Sub(a.(T), b.(T))
}

func (e erasedDelta[T]) Add(base, delta any) any {
	return e.d.Add(base.(T), delta.(T))
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
