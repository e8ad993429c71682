package datagram

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/codec"
)

// Header is the first byte of every datagram and names its registered type
type Header uint8

type Channel uint8

const (
	// ChannelControl carries connectivity traffic and is handled on receipt
	ChannelControl Channel = iota
	ChannelReliable
	ChannelSnapshot
)

func (c Channel) String() string {
	switch c {
	case ChannelControl:
		return "control"
	case ChannelReliable:
		return "reliable"
	case ChannelSnapshot:
		return "snapshot"
	}
	return "unknown"
}

type Reliability uint8

const (
	Unreliable Reliability = iota
	Reliable
)

// ReliabilityOf is the delivery a channel asks the transport for
func ReliabilityOf(c Channel) Reliability {
	if c == ChannelSnapshot {
		return Unreliable
	}
	return Reliable
}

// Datagram is one self-contained wire message. WriteTo and ReadFrom handle
// the payload after the header byte.
type Datagram interface {
	Header() Header
	Channel() Channel
	WriteTo(p *codec.BytePayload) error
	ReadFrom(p *codec.BytePayload) error
}

// Connection is the transport seen from this layer
type Connection interface {
	Send(d Datagram, r Reliability) error
	IsServer() bool
	ID() uuid.UUID
}

var (
	ErrUnknownType = errors.New("datagram: unknown type")
	ErrDecode      = errors.New("datagram: decode failed")
	ErrEmpty       = errors.New("datagram: empty")
)

// Encode writes the header byte and the payload of d into a packed payload,
// the caller frees it after sending
func Encode(reg *codec.Registry, d Datagram) (*codec.BytePayload, error) {
	p := codec.NewPayload(reg)
	if err := p.WriteByte(byte(d.Header())); err != nil {
		p.Free()
		return nil, err
	}
	if err := d.WriteTo(p); err != nil {
		p.Free()
		return nil, errors.Wrapf(err, "encode datagram %d", d.Header())
	}
	p.Pack()
	return p, nil
}

// get reads one T into dst, ok stays false once any read failed
func get[T any](p *codec.BytePayload, dst *T, ok *bool) {
	if !*ok {
		return
	}
	v, res := codec.Read[T](p)
	if res != codec.Success {
		*ok = false
		return
	}
	*dst = v
}

// put writes each value, stopping at the first error
func put(p *codec.BytePayload, vs ...any) error {
	reg := p.Registry()
	for _, v := range vs {
		if err := reg.Write(p, v); err != nil {
			return err
		}
	}
	return nil
}
