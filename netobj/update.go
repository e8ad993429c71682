package netobj

import (
	"reflect"
	"sync"

	"github.com/go-faster/errors"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/ringbuffer"
)

// Update is one member invocation for one object, it is taken from an
// UpdatePool and must be given back with Dispose
type Update struct {
	pool   *UpdatePool
	slot   int32
	inUse  bool
	member *MemberDefinition
	agent  *ObjectAgent
	args   []any
	delta  bool
}

func (u *Update) Member() *MemberDefinition {
	return u.member
}

func (u *Update) Agent() *ObjectAgent {
	return u.agent
}

func (u *Update) Args() []any {
	return u.args
}

// IsDelta reports an update read from the wire whose argument is still a delta
func (u *Update) IsDelta() bool {
	return u.delta
}

// Same reports whether both updates target the same member of the same
// object with equal arguments
func (u *Update) Same(o *Update) bool {
	if u.member != o.member || u.agent != o.agent || u.delta != o.delta {
		return false
	}
	return reflect.DeepEqual(u.args, o.args)
}

// Invoke runs the member on the agent's object. A delta argument is first
// added to the current value read through the member getter.
func (u *Update) Invoke() bool {
	target := u.agent.target
	return kernel.CatchHook(u.agent.ID(), u.member.Name, func() {
		if u.delta {
			c, _ := u.agent.codecs().Lookup(u.member.Params[0])
			u.args[0] = c.(codec.DeltaCodec).Add(u.member.get(target), u.args[0])
			u.delta = false
		}
		u.member.invoke(target, u.args)
	})
}

// WriteTo appends the record: index byte, argument count, arguments
func (u *Update) WriteTo(p *codec.BytePayload) error {
	return u.write(p, nil)
}

// WriteDeltaTo writes the argument of a delta member against base
func (u *Update) WriteDeltaTo(p *codec.BytePayload, base any) error {
	return u.write(p, base)
}

func (u *Update) write(p *codec.BytePayload, base any) error {
	reg := p.Registry()
	mark := p.Len()
	if err := p.WriteByte(u.member.WireIndex()); err != nil {
		return err
	}
	if err := p.WriteByte(uint8(len(u.args))); err != nil {
		return err
	}
	var err error
	if base != nil {
		c, _ := reg.Lookup(u.member.Params[0])
		err = reg.WriteDelta(p, c.(codec.DeltaCodec).Sub(u.args[0], base))
	} else {
		for _, a := range u.args {
			if err = reg.Write(p, a); err != nil {
				break
			}
		}
	}
	if err != nil {
		p.Truncate(mark)
		return errors.Wrapf(err, "write %s", u.member)
	}
	return nil
}

// Dispose clears the update and returns it to its pool
func (u *Update) Dispose() {
	if u.pool == nil {
		return
	}
	u.pool.put(u)
}

// UpdatePool is a bounded arena of updates with a free list of slot indexes
type UpdatePool struct {
	mux   sync.Mutex
	slots []*Update
	free  *ringbuffer.SingleRingBuffer[int32]
	max   int
	inUse int
}

func NewUpdatePool(capacity int) *UpdatePool {
	if capacity < 1 {
		capacity = 1
	}
	size := 16
	for size <= capacity {
		size <<= 1
	}
	return &UpdatePool{
		max:  capacity,
		free: ringbuffer.NewSingleRingBuffer[int32](size, size),
	}
}

func (p *UpdatePool) Cap() int {
	return p.max
}

func (p *UpdatePool) InUse() int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.inUse
}

func (p *UpdatePool) acquire() (*Update, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	var u *Update
	if idx, ok := p.free.Pop(); ok {
		u = p.slots[idx]
	} else if len(p.slots) < p.max {
		u = &Update{pool: p, slot: int32(len(p.slots))}
		p.slots = append(p.slots, u)
	} else {
		return nil, errors.Wrapf(ErrPoolExhausted, "capacity %d", p.max)
	}
	u.inUse = true
	p.inUse++
	return u, nil
}

func (p *UpdatePool) put(u *Update) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if !u.inUse {
		kernel.ErrorLog("update slot %d disposed twice", u.slot)
		return
	}
	for i := range u.args {
		u.args[i] = nil
	}
	u.args = u.args[:0]
	u.member = nil
	u.agent = nil
	u.delta = false
	u.inUse = false
	p.inUse--
	p.free.Put(u.slot)
}

// For takes an update for member m of agent with args. The arguments must
// match the member parameters exactly.
func (p *UpdatePool) For(agent *ObjectAgent, m *MemberDefinition, args ...any) (*Update, error) {
	if !accepts(m, args) {
		return nil, errors.Wrapf(ErrSchemaMismatch, "arguments for %s", m)
	}
	u, err := p.acquire()
	if err != nil {
		return nil, err
	}
	u.member = m
	u.agent = agent
	u.args = append(u.args, args...)
	return u, nil
}

// From decodes one record for agent from pl. A bad index or argument count
// is a schema mismatch, undecodable arguments are ErrDecode.
func (p *UpdatePool) From(agent *ObjectAgent, pl *codec.BytePayload) (*Update, error) {
	idx, err := pl.ReadByte()
	if err != nil {
		return nil, errors.Wrap(ErrDecode, "member index")
	}
	argc, err := pl.ReadByte()
	if err != nil {
		return nil, errors.Wrap(ErrDecode, "argument count")
	}
	m, ok := agent.reg.Member(idx)
	if !ok {
		return nil, errors.Wrapf(ErrSchemaMismatch, "%s has no member %#x", agent.reg.name, idx)
	}
	if int(argc) != len(m.Params) {
		return nil, errors.Wrapf(ErrSchemaMismatch, "%s takes %d arguments, got %d", m, len(m.Params), argc)
	}
	u, err := p.acquire()
	if err != nil {
		return nil, err
	}
	u.member = m
	u.agent = agent
	reg := pl.Registry()
	for _, t := range m.Params {
		v, res := reg.Read(pl, t)
		switch res {
		case codec.Failed:
			u.Dispose()
			return nil, errors.Wrapf(ErrDecode, "%s argument %s", m, t)
		case codec.SuccessDelta:
			if !m.Flags.Has(Delta) {
				u.Dispose()
				return nil, errors.Wrapf(ErrSchemaMismatch, "delta for %s", m)
			}
			u.delta = true
		}
		u.args = append(u.args, v)
	}
	return u, nil
}
