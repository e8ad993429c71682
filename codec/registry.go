package codec

import (
	"fmt"
	"log"
	"reflect"

	"github.com/go-faster/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Registry maps a value type to its codec. It is filled at startup and only
// read after Freeze, concurrent reads need no lock.
type Registry struct {
	codecs map[reflect.Type]Codec
	order  []reflect.Type
	frozen bool
	text   encoding.Encoding
}

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[reflect.Type]Codec), text: unicode.UTF8}
}

func (r *Registry) Register(c Codec) error {
	if r.frozen {
		return ErrFrozen
	}
	t := c.Type()
	if _, ok := r.codecs[t]; ok {
		return errors.Wrap(ErrDuplicate, t.String())
	}
	r.codecs[t] = c
	r.order = append(r.order, t)
	return nil
}

// MustRegister panics on error, codecs are registered once at startup
func (r *Registry) MustRegister(cs ...Codec) *Registry {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			log.Panic(fmt.Errorf("register codec %s: %w", c.Type(), err))
		}
	}
	return r
}

func (r *Registry) Freeze() *Registry {
	r.frozen = true
	return r
}

func (r *Registry) Frozen() bool {
	return r.frozen
}

// TextEncoding is the encoding the string codecs of this registry were built with
func (r *Registry) TextEncoding() encoding.Encoding {
	return r.text
}

func (r *Registry) Lookup(t reflect.Type) (Codec, bool) {
	c, ok := r.codecs[t]
	return c, ok
}

// Types lists registered types in registration order
func (r *Registry) Types() []reflect.Type {
	return r.order
}

// Supports reports whether t has a codec or is a collection of supported elements
func (r *Registry) Supports(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if _, ok := r.codecs[t]; ok {
		return true
	}
	if et, ok := collectionElem(t); ok {
		return r.Supports(et)
	}
	return false
}

// Write appends v. On error the payload is cut back to where it was.
func (r *Registry) Write(p *BytePayload, v any) error {
	if p.packed {
		return ErrPacked
	}
	mark := p.Len()
	if err := r.write(p, reflect.TypeOf(v), v); err != nil {
		p.truncate(mark)
		return err
	}
	return nil
}

// WriteDelta writes delta with the delta form of its codec
func (r *Registry) WriteDelta(p *BytePayload, delta any) error {
	if p.packed {
		return ErrPacked
	}
	c, ok := r.codecs[reflect.TypeOf(delta)].(DeltaCodec)
	if !ok {
		return errors.Wrapf(ErrNoCodec, "no delta codec for %T", delta)
	}
	mark := p.Len()
	if err := c.WriteDeltaAny(p, delta); err != nil {
		p.truncate(mark)
		return err
	}
	return nil
}

// Read decodes one value of type t. On failure the read cursor is restored.
func (r *Registry) Read(p *BytePayload, t reflect.Type) (any, ReadResult) {
	mark := p.Offset()
	v, res := r.read(p, t)
	if res == Failed {
		p.seek(mark)
	}
	return v, res
}

func (r *Registry) write(p *BytePayload, t reflect.Type, v any) error {
	if t == nil {
		return errors.Wrap(ErrNoCodec, "nil value")
	}
	if c, ok := r.codecs[t]; ok {
		return c.WriteAny(p, v)
	}
	if err := r.writeCollection(p, t, reflect.ValueOf(v)); err != nil {
		return err
	}
	return nil
}

func (r *Registry) read(p *BytePayload, t reflect.Type) (any, ReadResult) {
	if t == nil {
		return nil, Failed
	}
	if c, ok := r.codecs[t]; ok {
		return c.ReadAny(p)
	}
	return r.readCollection(p, t)
}

// Write encodes v with the registry of p
func Write[T any](p *BytePayload, v T) error {
	return p.reg.Write(p, v)
}

// Read decodes a T with the registry of p
func Read[T any](p *BytePayload) (v T, res ReadResult) {
	var a any
	a, res = p.reg.Read(p, typeOf[T]())
	if res == Failed {
		return
	}
	v, _ = a.(T)
	return v, res
}
