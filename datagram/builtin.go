package datagram

import (
	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/codec"
)

const (
	HeaderHello Header = iota + 1
	HeaderSpawn
	HeaderDespawn
	HeaderObjectUpdate
	HeaderObjectState
)

// Hello is sent on connect with one fingerprint per registered object type
type Hello struct {
	Types        []string
	Fingerprints []string
}

func (*Hello) Header() Header   { return HeaderHello }
func (*Hello) Channel() Channel { return ChannelControl }

func (h *Hello) WriteTo(p *codec.BytePayload) error {
	return put(p, h.Types, h.Fingerprints)
}

func (h *Hello) ReadFrom(p *codec.BytePayload) error {
	ok := true
	get(p, &h.Types, &ok)
	get(p, &h.Fingerprints, &ok)
	if !ok || len(h.Types) != len(h.Fingerprints) {
		return ErrDecode
	}
	return nil
}

// Spawn announces a new object to clients
type Spawn struct {
	ObjectID int32
	Type     codec.Str8
	Owner    uuid.UUID
}

func (*Spawn) Header() Header   { return HeaderSpawn }
func (*Spawn) Channel() Channel { return ChannelReliable }

func (s *Spawn) WriteTo(p *codec.BytePayload) error {
	return put(p, s.ObjectID, s.Type, s.Owner)
}

func (s *Spawn) ReadFrom(p *codec.BytePayload) error {
	ok := true
	get(p, &s.ObjectID, &ok)
	get(p, &s.Type, &ok)
	get(p, &s.Owner, &ok)
	if !ok {
		return ErrDecode
	}
	return nil
}

type Despawn struct {
	ObjectID int32
}

func (*Despawn) Header() Header   { return HeaderDespawn }
func (*Despawn) Channel() Channel { return ChannelReliable }

func (d *Despawn) WriteTo(p *codec.BytePayload) error {
	return put(p, d.ObjectID)
}

func (d *Despawn) ReadFrom(p *codec.BytePayload) error {
	ok := true
	get(p, &d.ObjectID, &ok)
	if !ok {
		return ErrDecode
	}
	return nil
}

// ObjectUpdate carries Count encoded update records for one object. The
// records need the object's member table to decode, so they stay raw here.
type ObjectUpdate struct {
	ObjectID int32
	Count    uint8
	Records  []byte
	Lane     Channel
}

func (*ObjectUpdate) Header() Header { return HeaderObjectUpdate }

func (u *ObjectUpdate) Channel() Channel {
	if u.Lane == ChannelSnapshot {
		return ChannelSnapshot
	}
	return ChannelReliable
}

func (u *ObjectUpdate) WriteTo(p *codec.BytePayload) error {
	if err := put(p, u.ObjectID, u.Count); err != nil {
		return err
	}
	_, err := p.Write(u.Records)
	return err
}

func (u *ObjectUpdate) ReadFrom(p *codec.BytePayload) error {
	ok := true
	get(p, &u.ObjectID, &ok)
	get(p, &u.Count, &ok)
	if !ok {
		return ErrDecode
	}
	u.Records = restOf(p)
	return nil
}

// ObjectState is the full state of one object at Time, records use the
// update record layout
type ObjectState struct {
	ObjectID int32
	Time     int64
	Snapshot uint16
	Count    uint8
	Records  []byte
}

func (*ObjectState) Header() Header   { return HeaderObjectState }
func (*ObjectState) Channel() Channel { return ChannelReliable }

func (s *ObjectState) WriteTo(p *codec.BytePayload) error {
	if err := put(p, s.ObjectID, s.Time, s.Snapshot, s.Count); err != nil {
		return err
	}
	_, err := p.Write(s.Records)
	return err
}

func (s *ObjectState) ReadFrom(p *codec.BytePayload) error {
	ok := true
	get(p, &s.ObjectID, &ok)
	get(p, &s.Time, &ok)
	get(p, &s.Snapshot, &ok)
	get(p, &s.Count, &ok)
	if !ok {
		return ErrDecode
	}
	s.Records = restOf(p)
	return nil
}

// restOf copies the unread bytes, the payload buffer goes back to the pool
func restOf(p *codec.BytePayload) []byte {
	b, _ := p.Next(p.Remaining())
	return append([]byte(nil), b...)
}
