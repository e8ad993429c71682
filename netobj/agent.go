package netobj

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/kernel/kct"
	"github.com/liangmanlin/netsync/rand"
)

// Creatable objects are told when they become live
type Creatable interface {
	OnNetworkCreate(a *ObjectAgent)
}

// Deletable objects are told right before their slot is freed
type Deletable interface {
	OnNetworkDelete(a *ObjectAgent)
}

// ObjectAgent binds a user object to its registration, its pending updates
// and its snapshot history
type ObjectAgent struct {
	slot    *ObjectSlot
	reg     *Registration
	target  any
	service *ObjectService

	reliable *UpdateQueue
	snapshot *UpdateQueue

	history      *kct.BMap[int64, *ObjectSnapshot]
	historyLimit int
	lastSent     map[*MemberDefinition]any
}

func newAgent(s *ObjectService, slot *ObjectSlot, reg *Registration, target any) *ObjectAgent {
	a := &ObjectAgent{
		slot:         slot,
		reg:          reg,
		target:       target,
		service:      s,
		reliable:     NewUpdateQueue(false),
		snapshot:     NewUpdateQueue(true),
		history:      kct.NewBMap[int64, *ObjectSnapshot](),
		historyLimit: s.cfg.SnapshotHistory,
		lastSent:     make(map[*MemberDefinition]any),
	}
	slot.agent.Store(a)
	return a
}

func (a *ObjectAgent) ID() int32 {
	return a.slot.id
}

func (a *ObjectAgent) State() ObjectState {
	return a.slot.State()
}

func (a *ObjectAgent) Owner() uuid.UUID {
	return a.slot.owner
}

func (a *ObjectAgent) Registration() *Registration {
	return a.reg
}

func (a *ObjectAgent) Target() any {
	return a.target
}

func (a *ObjectAgent) codecs() *codec.Registry {
	return a.service.codecs
}

// Call runs member name locally and queues it for replication when its flags
// send it from this side
func (a *ObjectAgent) Call(name string, args ...any) error {
	m, ok := a.reg.Lookup(name, args)
	if !ok {
		return errors.Wrapf(ErrNoMember, "%s.%s with %d arguments", a.reg.name, name, len(args))
	}
	return a.Invoke(m, args...)
}

func (a *ObjectAgent) Invoke(m *MemberDefinition, args ...any) error {
	if st := a.State(); st != StateGenerated && st != StateDisabled && st != StateGenerating {
		return errors.Wrapf(ErrBadState, "object %d is %s", a.ID(), st)
	}
	u, err := a.service.pool.For(a, m, args...)
	if err != nil {
		return err
	}
	if !u.Invoke() {
		u.Dispose()
		return errors.Errorf("object %d: %s panicked", a.ID(), m)
	}
	if !a.service.sends(m) || !a.TryEnqueue(u) {
		u.Dispose()
	}
	return nil
}

// TryEnqueue routes u to the lane its snapshot flag asks for
func (a *ObjectAgent) TryEnqueue(u *Update) bool {
	if u.member.Flags.Has(Snapshot) {
		return a.snapshot.TryEnqueue(u)
	}
	return a.reliable.TryEnqueue(u)
}

func (a *ObjectAgent) Reliable() *UpdateQueue {
	return a.reliable
}

func (a *ObjectAgent) SnapshotQueue() *UpdateQueue {
	return a.snapshot
}

// Restore sets a member value without queueing it, used for stored records
func (a *ObjectAgent) Restore(m *MemberDefinition, v any) bool {
	return kernel.CatchHook(a.ID(), m.Name, func() {
		m.invoke(a.target, []any{v})
	})
}

// Capture records the current snapshot at now and trims the history
func (a *ObjectAgent) Capture(now int64) *ObjectSnapshot {
	s := a.snapshotAt(now)
	a.history.Insert(now, s)
	for a.history.Len() > a.historyLimit {
		a.history.PopFront()
	}
	return s
}

func (a *ObjectAgent) snapshotAt(now int64) *ObjectSnapshot {
	s := &ObjectSnapshot{Header: rand.Uint16(), Time: now, ObjectID: a.ID()}
	// a method with a getter is state, a fresh peer needs it
	collect := func(m *MemberDefinition) {
		var v any
		if kernel.CatchHook(a.ID(), "get "+m.Name, func() { v = m.get(a.target) }) {
			s.values = append(s.values, SnapshotValue{Member: m, Value: v})
		}
	}
	for _, m := range a.reg.methods {
		if m.get != nil {
			collect(m)
		}
	}
	for _, m := range a.reg.properties {
		collect(m)
	}
	return s
}

// SnapshotAt is the latest snapshot taken at or before t
func (a *ObjectAgent) SnapshotAt(t int64) (rs *ObjectSnapshot, ok bool) {
	a.history.ForeachReverse(func(at int64, s *ObjectSnapshot) bool {
		if at <= t {
			rs, ok = s, true
			return false
		}
		return true
	})
	return
}

func (a *ObjectAgent) Latest() (*ObjectSnapshot, bool) {
	_, s, ok := a.history.Back()
	return s, ok
}

func (a *ObjectAgent) HistoryLen() int {
	return a.history.Len()
}

// PersistentValues reads every persistent member through its getter
func (a *ObjectAgent) PersistentValues() []SnapshotValue {
	var rs []SnapshotValue
	for _, table := range [][]*MemberDefinition{a.reg.methods, a.reg.properties} {
		for _, m := range table {
			if !m.Flags.Has(Persistent) || m.get == nil {
				continue
			}
			var v any
			if kernel.CatchHook(a.ID(), "get "+m.Name, func() { v = m.get(a.target) }) {
				rs = append(rs, SnapshotValue{Member: m, Value: v})
			}
		}
	}
	return rs
}

// ApplyRecords invokes count encoded records on the object without
// replicating them. Every record is decoded before any is invoked.
func (a *ObjectAgent) ApplyRecords(p *codec.BytePayload, count int) error {
	updates, err := a.decodeRecords(p, count)
	if err != nil {
		return err
	}
	invokeAll(updates)
	return nil
}

func (a *ObjectAgent) decodeRecords(p *codec.BytePayload, count int) ([]*Update, error) {
	updates := make([]*Update, 0, count)
	for i := 0; i < count; i++ {
		u, err := a.service.pool.From(a, p)
		if err != nil {
			disposeAll(updates)
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func invokeAll(updates []*Update) {
	for _, u := range updates {
		u.Invoke()
		u.Dispose()
	}
}

func disposeAll(updates []*Update) {
	for _, u := range updates {
		u.Dispose()
	}
}

// deltaBase is the value last sent for a delta member
func (a *ObjectAgent) deltaBase(m *MemberDefinition) (any, bool) {
	v, ok := a.lastSent[m]
	return v, ok
}

func (a *ObjectAgent) markSent(m *MemberDefinition, v any) {
	a.lastSent[m] = v
}

func (a *ObjectAgent) clear() {
	a.reliable.Clear()
	a.snapshot.Clear()
	for k := range a.lastSent {
		delete(a.lastSent, k)
	}
}
