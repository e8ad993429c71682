package netobj

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/ringbuffer"
)

// ObjectSlot is the table entry of one object id
type ObjectSlot struct {
	id          int32
	state       atomic.Uint32
	agent       atomic.Pointer[ObjectAgent]
	owner       uuid.UUID
	deleteTicks int32
}

func (s *ObjectSlot) ID() int32 {
	return s.id
}

func (s *ObjectSlot) State() ObjectState {
	return ObjectState(s.state.Load())
}

func (s *ObjectSlot) Agent() *ObjectAgent {
	return s.agent.Load()
}

func (s *ObjectSlot) Owner() uuid.UUID {
	return s.owner
}

// DeleteTicks is the remaining countdown of a pending delete
func (s *ObjectSlot) DeleteTicks() int32 {
	return s.deleteTicks
}

// transition moves to st, illegal moves are logged and refused
func (s *ObjectSlot) transition(st ObjectState) bool {
	from := s.State()
	if !canTransition(from, st) {
		kernel.Logger().Warn().
			Int32("object_id", s.id).
			Str("from", from.String()).
			Str("to", st.String()).
			Msg("illegal state transition")
		return false
	}
	s.state.Store(uint32(st))
	return true
}

// SlotTable allocates object ids. Lookups may come from any goroutine,
// Allocate and Free only from the tick goroutine.
type SlotTable struct {
	index sync.Map
	free  *ringbuffer.SingleRingBuffer[int32]
	next  int32
	count atomic.Int32
}

func NewSlotTable() *SlotTable {
	return &SlotTable{free: ringbuffer.NewSingleRingBuffer[int32](64, 1024)}
}

// Allocate takes the oldest freed id or a new one
func (t *SlotTable) Allocate() *ObjectSlot {
	for {
		id, ok := t.free.Pop()
		if !ok {
			id = t.next
			t.next++
		}
		s := &ObjectSlot{id: id}
		if _, loaded := t.index.LoadOrStore(id, s); !loaded {
			t.count.Add(1)
			return s
		}
	}
}

// AllocateID takes a given id, a client mirrors the server's ids this way
func (t *SlotTable) AllocateID(id int32) (*ObjectSlot, error) {
	if id < 0 {
		return nil, errors.Errorf("negative object id %d", id)
	}
	s := &ObjectSlot{id: id}
	if _, loaded := t.index.LoadOrStore(id, s); loaded {
		return nil, errors.Wrapf(ErrIDInUse, "id %d", id)
	}
	t.count.Add(1)
	return s, nil
}

// Free releases a deleted slot, its id becomes reusable
func (t *SlotTable) Free(s *ObjectSlot) {
	if s.State() != StateDeleted {
		kernel.ErrorLog("free slot %d in state %s", s.id, s.State())
		return
	}
	if _, ok := t.index.LoadAndDelete(s.id); !ok {
		return
	}
	s.agent.Store(nil)
	t.count.Add(-1)
	if s.id < t.next {
		t.free.Put(s.id)
	}
}

func (t *SlotTable) Get(id int32) (*ObjectSlot, bool) {
	v, ok := t.index.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*ObjectSlot), true
}

func (t *SlotTable) Len() int {
	return int(t.count.Load())
}

// Range walks the slots in id order, stop by returning false
func (t *SlotTable) Range(f func(s *ObjectSlot) bool) {
	var slots []*ObjectSlot
	t.index.Range(func(_, v any) bool {
		slots = append(slots, v.(*ObjectSlot))
		return true
	})
	sort.Slice(slots, func(i, j int) bool { return slots[i].id < slots[j].id })
	for _, s := range slots {
		if !f(s) {
			return
		}
	}
}
