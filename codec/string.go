package codec

import (
	"math"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Str8 is a string with a 1 byte length prefix, at most 255 encoded bytes
type Str8 string

// Str16 is a string with a 2 byte little-endian length prefix, plain Go
// strings use the same framing
type Str16 string

// LookupEncoding resolves a text encoding label such as "utf-8" or "gbk"
func LookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown string encoding %q", name)
	}
	return enc, nil
}

type stringResolver[T ~string] struct {
	lenSize int
	max     int
	enc     encoding.Encoding
}

func StringCodec[T ~string](lenSize int, enc encoding.Encoding) Resolver[T] {
	if enc == nil {
		enc = unicode.UTF8
	}
	limit := math.MaxUint8
	if lenSize == 2 {
		limit = math.MaxUint16
	}
	return stringResolver[T]{lenSize: lenSize, max: limit, enc: enc}
}

func (s stringResolver[T]) Size() int { return -1 }

func (s stringResolver[T]) AutoAdvance() bool { return false }

func (s stringResolver[T]) Write(p *BytePayload, v T) error {
	b, err := s.encode(string(v))
	if err != nil {
		return err
	}
	if len(b) > s.max {
		return errors.Wrapf(ErrOutOfRange, "string of %d bytes, limit %d", len(b), s.max)
	}
	w, err := p.Slot(s.lenSize + len(b))
	if err != nil {
		return err
	}
	if s.lenSize == 1 {
		w[0] = byte(len(b))
	} else {
		le.PutUint16(w, uint16(len(b)))
	}
	copy(w[s.lenSize:], b)
	p.Advance(len(w))
	return nil
}

func (s stringResolver[T]) Read(p *BytePayload) (v T, res ReadResult) {
	mark := p.Offset()
	var n int
	if s.lenSize == 1 {
		c, err := p.ReadByte()
		if err != nil {
			return v, Failed
		}
		n = int(c)
	} else {
		l, err := p.ReadUint16()
		if err != nil {
			return v, Failed
		}
		n = int(l)
	}
	b, err := p.Next(n)
	if err != nil {
		p.seek(mark)
		return v, Failed
	}
	str, err := s.decode(b)
	if err != nil {
		p.seek(mark)
		return v, Failed
	}
	return T(str), Success
}

func (s stringResolver[T]) encode(str string) ([]byte, error) {
	if s.enc == unicode.UTF8 {
		return []byte(str), nil
	}
	b, err := s.enc.NewEncoder().Bytes([]byte(str))
	if err != nil {
		return nil, errors.Wrap(ErrOutOfRange, err.Error())
	}
	return b, nil
}

func (s stringResolver[T]) decode(b []byte) (string, error) {
	if s.enc == unicode.UTF8 {
		return string(b), nil
	}
	out, err := s.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
