package netobj

import (
	"github.com/go-faster/errors"

	"github.com/liangmanlin/netsync/codec"
)

type SnapshotValue struct {
	Member *MemberDefinition
	Value  any
}

// ObjectSnapshot is the value of every property and snapshot method of one
// object at Time (ms). It is never changed after capture.
type ObjectSnapshot struct {
	Header   uint16
	Time     int64
	ObjectID int32
	values   []SnapshotValue
}

func (s *ObjectSnapshot) Values() []SnapshotValue {
	return s.values
}

func (s *ObjectSnapshot) Len() int {
	return len(s.values)
}

// Value finds the captured value of member name
func (s *ObjectSnapshot) Value(name string) (any, bool) {
	for _, v := range s.values {
		if v.Member.Name == name {
			return v.Value, true
		}
	}
	return nil, false
}

// WriteRecords encodes the values as update records and returns how many
// were written
func (s *ObjectSnapshot) WriteRecords(p *codec.BytePayload) (uint8, error) {
	n, err := WriteValues(p, s.values)
	if err != nil {
		return 0, errors.Wrapf(err, "object %d", s.ObjectID)
	}
	return n, nil
}

// WriteValues encodes one single argument record per value, a stored record
// or a full state reads back with ObjectAgent.ApplyRecords
func WriteValues(p *codec.BytePayload, values []SnapshotValue) (uint8, error) {
	if len(values) > MaxStateValues {
		return 0, errors.Errorf("%d values in one state", len(values))
	}
	reg := p.Registry()
	for _, v := range values {
		mark := p.Len()
		err := p.WriteByte(v.Member.WireIndex())
		if err == nil {
			err = p.WriteByte(1)
		}
		if err == nil {
			err = reg.Write(p, v.Value)
		}
		if err != nil {
			p.Truncate(mark)
			return 0, errors.Wrapf(err, "value %s", v.Member)
		}
	}
	return uint8(len(values)), nil
}
