package netobj

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangmanlin/netsync/codec"
)

func TestCreate(t *testing.T) {
	s := newService(t, true, &fakeClock{})
	owner := uuid.New()
	a, pl := mustCreate(t, s, owner)
	b, _ := mustCreate(t, s, owner)

	assert.Equal(t, int32(0), a.ID())
	assert.Equal(t, int32(1), b.ID())
	assert.Equal(t, StateGenerated, a.State())
	assert.Equal(t, owner, a.Owner())
	assert.Equal(t, 1, pl.created)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, float64(2), testutil.ToFloat64(s.Metrics().LiveObjects))

	got, ok := s.Get(1)
	require.True(t, ok)
	assert.Same(t, b, got)

	_, err := s.Create("ghost", owner)
	assert.ErrorIs(t, err, ErrUnknownType)
	_, err = s.CreateWith("player", owner, func() any { return &entity{} })
	assert.Error(t, err)
	assert.Equal(t, 2, s.Count())
}

func TestCreateHookPanic(t *testing.T) {
	s := newService(t, true, &fakeClock{})
	a, err := s.CreateWith("player", uuid.Nil, func() any { return &player{boom: true} })
	require.NoError(t, err)
	assert.Equal(t, StateGenerated, a.State())
	assert.Equal(t, 1, a.Target().(*player).created)
}

func TestTwoPhaseDelete(t *testing.T) {
	s := newService(t, true, &fakeClock{})
	a, pl := mustCreate(t, s, uuid.New())
	id := a.ID()

	require.True(t, s.TryRequestDelete(id))
	assert.Equal(t, StatePendingDelete, a.State())
	assert.False(t, s.TryRequestDelete(id))
	assert.ErrorIs(t, a.Call("SetName", "late"), ErrBadState)

	slot, _ := s.Slots().Get(id)
	s.Tick()
	s.Tick()
	assert.Equal(t, int32(1), slot.DeleteTicks())
	assert.Equal(t, 0, pl.deleted)
	_, ok := s.Get(id)
	assert.True(t, ok)

	s.Tick()
	assert.Equal(t, 1, pl.deleted)
	assert.Equal(t, StateDeleted, a.State())
	_, ok = s.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, float64(0), testutil.ToFloat64(s.Metrics().LiveObjects))
	assert.False(t, s.TryRequestDelete(id))

	// 释放的id会被重用
	b, _ := mustCreate(t, s, uuid.New())
	assert.Equal(t, id, b.ID())
}

func TestDisableEnable(t *testing.T) {
	s := newService(t, true, &fakeClock{})
	a, pl := mustCreate(t, s, uuid.New())

	require.True(t, s.Disable(a.ID()))
	assert.Equal(t, StateDisabled, a.State())
	assert.False(t, s.Disable(a.ID()))
	require.NoError(t, a.Call("SetName", "still"))
	assert.Equal(t, "still", pl.name)

	require.True(t, s.Enable(a.ID()))
	assert.Equal(t, StateGenerated, a.State())
	assert.False(t, s.Enable(a.ID()))

	require.True(t, s.Disable(a.ID()))
	require.True(t, s.TryRequestDelete(a.ID()))
	assert.False(t, s.Enable(a.ID()))
	assert.False(t, s.Disable(99))
}

func TestLifecycleMonotonic(t *testing.T) {
	for from := StateUnknown; from <= StateDeleted; from++ {
		for to := StateUnknown; to <= StateDeleted; to++ {
			if !canTransition(from, to) || to > from {
				continue
			}
			assert.True(t, from == StateDisabled && to == StateGenerated, "%s -> %s", from, to)
		}
		assert.False(t, canTransition(StateDeleted, from))
	}

	slot := &ObjectSlot{id: 1}
	assert.False(t, slot.transition(StateGenerated))
	assert.True(t, slot.transition(StateGenerating))
	assert.True(t, slot.transition(StateGenerated))
	assert.False(t, slot.transition(StateGenerating))
	assert.False(t, slot.transition(StateDeleted))
}

func TestStateSet(t *testing.T) {
	assert.True(t, DeletableStates.Has(StateGenerated))
	assert.True(t, DeletableStates.Has(StateDisabled))
	assert.False(t, DeletableStates.Has(StatePendingDelete))
	assert.False(t, DeletableStates.Has(StateWaitingForState))

	assert.True(t, Live.Has(StatePendingDelete))
	assert.False(t, Live.Has(StateWaitingForState))
	assert.False(t, Live.Has(StateDeleted))

	assert.Equal(t, "pending_delete", StatePendingDelete.String())
	assert.Equal(t, "invalid", ObjectState(42).String())
}

func TestSnapshotHistory(t *testing.T) {
	clock := &fakeClock{}
	s := newService(t, true, clock)
	a, _ := mustCreate(t, s, uuid.New())
	require.NoError(t, a.Call("SetPos", codec.Vector3{X: 1}))
	require.NoError(t, a.Call("Health", int32(80)))

	s.Tick()
	assert.Equal(t, 0, a.HistoryLen())

	clock.now = 100
	s.Tick()
	require.Equal(t, 1, a.HistoryLen())
	snap, ok := a.SnapshotAt(150)
	require.True(t, ok)
	assert.Equal(t, int64(100), snap.Time)
	v, ok := snap.Value("SetPos")
	require.True(t, ok)
	assert.Equal(t, codec.Vector3{X: 1}, v)
	v, _ = snap.Value("Health")
	assert.Equal(t, int32(80), v)
	_, ok = snap.Value("Hit")
	assert.False(t, ok)

	require.NoError(t, a.Call("SetPos", codec.Vector3{X: 2}))
	a.Capture(200)
	a.Capture(300)
	assert.Equal(t, 2, a.HistoryLen())
	_, ok = a.SnapshotAt(150)
	assert.False(t, ok)
	snap, ok = a.SnapshotAt(250)
	require.True(t, ok)
	assert.Equal(t, int64(200), snap.Time)
	latest, ok := a.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(300), latest.Time)

	// disabled objects keep their history as is
	require.True(t, s.Disable(a.ID()))
	assert.Equal(t, 0, s.CaptureAll(400))
	latest, _ = a.Latest()
	assert.Equal(t, int64(300), latest.Time)
}

type recordLoader struct {
	name   string
	err    error
	loaded []int32
}

func (l *recordLoader) Load(a *ObjectAgent) error {
	l.loaded = append(l.loaded, a.ID())
	if l.err != nil {
		return l.err
	}
	m, _ := a.Registration().Lookup("SetName", []any{""})
	a.Restore(m, l.name)
	return nil
}

func TestLoader(t *testing.T) {
	s := newService(t, true, &fakeClock{})
	l := &recordLoader{name: "stored"}
	s.SetLoader(l)

	a, pl := mustCreate(t, s, uuid.New())
	assert.Equal(t, []int32{a.ID()}, l.loaded)
	assert.Equal(t, "stored", pl.name)
	assert.Equal(t, 0, a.Reliable().Len())

	vals := a.PersistentValues()
	require.Len(t, vals, 2)
	names := []string{vals[0].Member.Name, vals[1].Member.Name}
	assert.ElementsMatch(t, []string{"SetName", "Health"}, names)

	l.err = errors.New("storage down")
	b, pl := mustCreate(t, s, uuid.New())
	assert.Equal(t, StateGenerated, b.State())
	assert.Equal(t, "", pl.name)
}

func serverState(t *testing.T, s *ObjectService, a *ObjectAgent) ([]byte, uint8) {
	t.Helper()
	p := codec.NewPayload(s.Codecs())
	defer p.Free()
	count, err := a.snapshotAt(s.Now()).WriteRecords(p)
	require.NoError(t, err)
	return append([]byte(nil), p.Bytes()...), count
}

func TestClientGenerate(t *testing.T) {
	server := newService(t, true, &fakeClock{})
	sa, _ := mustCreate(t, server, uuid.New())
	require.NoError(t, sa.Call("SetName", "bob"))
	require.NoError(t, sa.Call("SetPos", codec.Vector3{Z: 3}))
	require.NoError(t, sa.Call("Health", int32(12)))
	raw, count := serverState(t, server, sa)

	client := newService(t, false, &fakeClock{})
	ca, err := client.CreateWithID(7, "player", sa.Owner())
	require.NoError(t, err)
	assert.Equal(t, StateWaitingForState, ca.State())
	assert.ErrorIs(t, ca.Call("SetName", "x"), ErrBadState)
	_, err = client.CreateWithID(7, "player", sa.Owner())
	assert.ErrorIs(t, err, ErrIDInUse)

	// 截断的状态不会生效
	bad := codec.FromBytes(client.Codecs(), raw[:len(raw)-2])
	assert.Error(t, client.Generate(ca, bad, int(count)))
	bad.Free()
	assert.Equal(t, StateWaitingForState, ca.State())
	assert.Equal(t, 0, client.Pool().InUse())

	p := codec.FromBytes(client.Codecs(), raw)
	defer p.Free()
	require.NoError(t, client.Generate(ca, p, int(count)))
	pl := ca.Target().(*player)
	assert.Equal(t, StateGenerated, ca.State())
	assert.Equal(t, 1, pl.created)
	assert.Equal(t, "bob", pl.name)
	assert.Equal(t, codec.Vector3{Z: 3}, pl.pos)
	assert.Equal(t, int32(12), pl.health)
	assert.Equal(t, 0, ca.Reliable().Len())

	assert.ErrorIs(t, client.Generate(ca, p, 0), ErrBadState)
}

func TestDeleteNowWaiting(t *testing.T) {
	client := newService(t, false, &fakeClock{})
	ca, err := client.CreateWithID(3, "player", uuid.Nil)
	require.NoError(t, err)
	require.True(t, client.DeleteNow(3))
	assert.Equal(t, StateDeleted, ca.State())
	assert.Equal(t, 0, ca.Target().(*player).deleted)
	assert.False(t, client.DeleteNow(3))
	assert.Equal(t, 0, client.Count())

	a, pl := mustCreate(t, client, uuid.Nil)
	require.True(t, client.TryRequestDelete(a.ID()))
	require.True(t, client.DeleteNow(a.ID()))
	assert.Equal(t, 1, pl.deleted)
	client.Tick()
	assert.Equal(t, 1, pl.deleted)
}

func TestRegisterTwice(t *testing.T) {
	s := newService(t, true, &fakeClock{}, playerReg(), newDoor(doorMembers()...))
	assert.Error(t, s.Register(playerReg()))
	var names []string
	for _, r := range s.Registrations() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"door", "player"}, names)
	_, ok := s.Registration("door")
	assert.True(t, ok)
}

func TestSlotIDs(t *testing.T) {
	s := newService(t, false, &fakeClock{})
	_, err := s.Slots().AllocateID(1)
	require.NoError(t, err)
	a, _ := mustCreate(t, s, uuid.Nil)
	b, _ := mustCreate(t, s, uuid.Nil)
	assert.Equal(t, int32(0), a.ID())
	assert.Equal(t, int32(2), b.ID())
	_, err = s.Slots().AllocateID(-1)
	assert.Error(t, err)

	var ids []int32
	s.Each(func(a *ObjectAgent) bool {
		ids = append(ids, a.ID())
		return true
	})
	assert.Equal(t, []int32{0, 2}, ids)
}

type crate struct{}

func TestFactoryPanicTakesNoSlot(t *testing.T) {
	fail := true
	reg := NewRegistration("crate", func() *crate {
		if fail {
			panic("no crates today")
		}
		return &crate{}
	})
	s := newService(t, false, &fakeClock{}, reg)

	_, err := s.CreateWithID(5, "crate", uuid.New())
	assert.ErrorIs(t, err, ErrFactory)
	assert.Equal(t, 0, s.Count())
	_, ok := s.Slots().Get(5)
	assert.False(t, ok)
	assert.False(t, s.DeleteNow(5))

	assert.NotPanics(t, func() {
		_, err = s.CreateWith("crate", uuid.New(), func() any { panic("custom") })
	})
	assert.ErrorIs(t, err, ErrFactory)
	assert.Equal(t, 0, s.Count())

	fail = false
	a, err := s.CreateWithID(5, "crate", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StateWaitingForState, a.State())
	_, err = s.CreateWithID(5, "crate", uuid.New())
	assert.ErrorIs(t, err, ErrIDInUse)
	assert.True(t, s.DeleteNow(5))
	assert.Equal(t, 0, s.Count())
}

func TestGetFromOtherGoroutine(t *testing.T) {
	s := newService(t, true, &fakeClock{})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for id := int32(0); id < 4; id++ {
				if a, ok := s.Get(id); ok {
					_ = a.Registration().Name()
				}
			}
		}
	}()
	for i := 0; i < 200; i++ {
		a, _ := mustCreate(t, s, uuid.New())
		require.True(t, s.DeleteNow(a.ID()))
	}
	close(stop)
	<-done
	assert.Equal(t, 0, s.Count())
}
