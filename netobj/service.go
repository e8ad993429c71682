package netobj

import (
	"reflect"
	"sort"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/kernel/kct"
	"github.com/liangmanlin/netsync/metrics"
	"github.com/liangmanlin/netsync/timer"
)

const (
	timerSnapshot int32 = iota + 1
)

type Config struct {
	Server             bool
	DeleteTicks        int32
	SnapshotHistory    int
	SnapshotIntervalMS int64
	PoolSize           int
	Clock              kernel.Clock
	Metrics            *metrics.Metrics
}

func ConfigFromEnv(env *kernel.EnvConfig, server bool) Config {
	return Config{
		Server:             server,
		DeleteTicks:        env.DeleteTicks,
		SnapshotHistory:    env.SnapshotHistory,
		SnapshotIntervalMS: env.SnapshotIntervalMS,
		PoolSize:           env.UpdatePoolSize,
	}
}

// Loader fills a new object from storage before its creation hook runs
type Loader interface {
	Load(a *ObjectAgent) error
}

// Observer hears about objects becoming live and being deleted
type Observer interface {
	ObjectCreated(a *ObjectAgent)
	ObjectDeleted(a *ObjectAgent)
}

// ObjectService owns every networked object of one side. Everything except
// Get, Each and Count must run on the tick goroutine.
type ObjectService struct {
	cfg     Config
	codecs  *codec.Registry
	pool    *UpdatePool
	slots   *SlotTable
	regs    map[string]*Registration
	pending kct.Set[int32]
	timer   *timer.Timer[*ObjectService]
	metrics *metrics.Metrics

	loader    Loader
	observers []Observer
}

func NewObjectService(codecs *codec.Registry, cfg Config) *ObjectService {
	if cfg.DeleteTicks < 1 {
		cfg.DeleteTicks = 1
	}
	if cfg.SnapshotHistory < 1 {
		cfg.SnapshotHistory = 1
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1024
	}
	if cfg.Clock == nil {
		cfg.Clock = kernel.Now2
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	s := &ObjectService{
		cfg:     cfg,
		codecs:  codecs,
		pool:    NewUpdatePool(cfg.PoolSize),
		slots:   NewSlotTable(),
		regs:    make(map[string]*Registration),
		pending: kct.NewSet[int32](16),
		timer:   timer.NewTimer[*ObjectService](),
		metrics: cfg.Metrics,
	}
	if cfg.SnapshotIntervalMS > 0 {
		s.timer.Add(timer.TimerKey{Key: timerSnapshot}, int32(cfg.SnapshotIntervalMS), 0, cfg.Clock(),
			func(s *ObjectService, now int64) { s.CaptureAll(now) })
	}
	return s
}

func (s *ObjectService) IsServer() bool {
	return s.cfg.Server
}

func (s *ObjectService) Codecs() *codec.Registry {
	return s.codecs
}

func (s *ObjectService) Pool() *UpdatePool {
	return s.pool
}

func (s *ObjectService) Slots() *SlotTable {
	return s.slots
}

func (s *ObjectService) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *ObjectService) Now() int64 {
	return s.cfg.Clock()
}

func (s *ObjectService) SetLoader(l Loader) {
	s.loader = l
}

func (s *ObjectService) Observe(o Observer) {
	s.observers = append(s.observers, o)
}

// Register compiles and adds network types, names must be unique
func (s *ObjectService) Register(regs ...*Registration) error {
	for _, r := range regs {
		if _, ok := s.regs[r.name]; ok {
			return errors.Errorf("network type %s registered twice", r.name)
		}
		if err := r.Compile(s.codecs); err != nil {
			return err
		}
		s.regs[r.name] = r
	}
	return nil
}

func (s *ObjectService) Registration(name string) (*Registration, bool) {
	r, ok := s.regs[name]
	return r, ok
}

// Registrations lists every network type ordered by name
func (s *ObjectService) Registrations() []*Registration {
	rs := make([]*Registration, 0, len(s.regs))
	for _, r := range s.regs {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].name < rs[j].name })
	return rs
}

// sends reports whether updates of m leave this side
func (s *ObjectService) sends(m *MemberDefinition) bool {
	if s.cfg.Server {
		return m.Flags&(Broadcast|OwnerSend) != 0
	}
	return m.Flags.Has(ClientSend)
}

func (s *ObjectService) Create(typeName string, owner uuid.UUID) (*ObjectAgent, error) {
	return s.CreateWith(typeName, owner, nil)
}

// CreateWith builds the object with factory instead of the registration
// factory, the result must be of the registered type
func (s *ObjectService) CreateWith(typeName string, owner uuid.UUID, factory func() any) (*ObjectAgent, error) {
	reg, ok := s.regs[typeName]
	if !ok {
		return nil, errors.Wrap(ErrUnknownType, typeName)
	}
	target, err := s.build(-1, reg, factory)
	if err != nil {
		return nil, err
	}
	slot := s.slots.Allocate()
	slot.owner = owner
	slot.transition(StateGenerating)
	a := newAgent(s, slot, reg, target)
	if s.loader != nil {
		if err = s.loader.Load(a); err != nil {
			kernel.Logger().Error().Int32("object_id", a.ID()).Err(err).Msg("load object")
		}
	}
	s.generated(a)
	return a, nil
}

// CreateWithID makes a placeholder for an object announced by the server,
// it waits in WaitingForState until Generate
func (s *ObjectService) CreateWithID(id int32, typeName string, owner uuid.UUID) (*ObjectAgent, error) {
	reg, ok := s.regs[typeName]
	if !ok {
		return nil, errors.Wrap(ErrUnknownType, typeName)
	}
	if _, ok := s.slots.Get(id); ok {
		return nil, errors.Wrapf(ErrIDInUse, "id %d", id)
	}
	target, err := s.build(id, reg, nil)
	if err != nil {
		return nil, err
	}
	slot, err := s.slots.AllocateID(id)
	if err != nil {
		return nil, err
	}
	slot.owner = owner
	slot.transition(StateWaitingForState)
	return newAgent(s, slot, reg, target), nil
}

// Generate applies a full state to a waiting object and makes it live. A
// state that does not decode leaves the object waiting.
func (s *ObjectService) Generate(a *ObjectAgent, p *codec.BytePayload, count int) error {
	if a.State() != StateWaitingForState {
		return errors.Wrapf(ErrBadState, "object %d is %s", a.ID(), a.State())
	}
	updates, err := a.decodeRecords(p, count)
	if err != nil {
		return err
	}
	a.slot.transition(StateGenerating)
	invokeAll(updates)
	s.generated(a)
	return nil
}

func (s *ObjectService) generated(a *ObjectAgent) {
	if c, ok := a.target.(Creatable); ok {
		kernel.CatchHook(a.ID(), "OnNetworkCreate", func() { c.OnNetworkCreate(a) })
	}
	a.slot.transition(StateGenerated)
	s.metrics.LiveObjects.Inc()
	for _, o := range s.observers {
		kernel.CatchFun(func() { o.ObjectCreated(a) })
	}
}

// build runs the factory inside the fault boundary before any slot is taken,
// id is only for the log
func (s *ObjectService) build(id int32, reg *Registration, factory func() any) (any, error) {
	if factory == nil {
		factory = reg.New
	}
	var target any
	if !kernel.CatchHook(id, "New", func() { target = factory() }) {
		return nil, errors.Wrapf(ErrFactory, "network type %s", reg.name)
	}
	if t := reflect.TypeOf(target); t != reg.target {
		return nil, errors.Errorf("factory of %s built %v, want %s", reg.name, t, reg.target)
	}
	return target, nil
}

// TryRequestDelete starts the delete countdown of a live object
func (s *ObjectService) TryRequestDelete(id int32) bool {
	slot, ok := s.slots.Get(id)
	if !ok {
		return false
	}
	if !DeletableStates.Has(slot.State()) {
		kernel.Logger().Warn().Int32("object_id", id).Str("state", slot.State().String()).Msg("delete refused")
		return false
	}
	slot.transition(StatePendingDelete)
	slot.deleteTicks = s.cfg.DeleteTicks
	s.pending.Insert(id)
	return true
}

// DeleteNow finalizes at once, a client follows the server's despawn this way
func (s *ObjectService) DeleteNow(id int32) bool {
	slot, ok := s.slots.Get(id)
	if !ok {
		return false
	}
	switch slot.State() {
	case StateWaitingForState:
		slot.transition(StateDeleted)
		if a := slot.Agent(); a != nil {
			a.clear()
		}
		s.slots.Free(slot)
		return true
	case StateGenerated, StateDisabled:
		slot.transition(StatePendingDelete)
	case StatePendingDelete:
		s.pending.Erase(id)
	default:
		return false
	}
	s.finalize(slot)
	return true
}

func (s *ObjectService) Disable(id int32) bool {
	slot, ok := s.slots.Get(id)
	return ok && slot.State() == StateGenerated && slot.transition(StateDisabled)
}

func (s *ObjectService) Enable(id int32) bool {
	slot, ok := s.slots.Get(id)
	return ok && slot.State() == StateDisabled && slot.transition(StateGenerated)
}

// Tick runs due timers and advances pending deletes
func (s *ObjectService) Tick() {
	s.timer.Loop(s, s.cfg.Clock())
	if s.pending.Size() == 0 {
		return
	}
	ids := s.pending.Keys()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		slot, ok := s.slots.Get(id)
		if !ok {
			s.pending.Erase(id)
			continue
		}
		slot.deleteTicks--
		if slot.deleteTicks <= 0 {
			s.pending.Erase(id)
			s.finalize(slot)
		}
	}
}

func (s *ObjectService) finalize(slot *ObjectSlot) {
	a := slot.Agent()
	if d, ok := a.target.(Deletable); ok {
		kernel.CatchHook(a.ID(), "OnNetworkDelete", func() { d.OnNetworkDelete(a) })
	}
	slot.transition(StateDeleted)
	for _, o := range s.observers {
		kernel.CatchFun(func() { o.ObjectDeleted(a) })
	}
	a.clear()
	s.slots.Free(slot)
	s.metrics.LiveObjects.Dec()
}

// CaptureAll snapshots every generated object at now
func (s *ObjectService) CaptureAll(now int64) int {
	n := 0
	s.Each(func(a *ObjectAgent) bool {
		if a.State() == StateGenerated {
			a.Capture(now)
			n++
		}
		return true
	})
	s.metrics.Snapshots.Add(float64(n))
	return n
}

// Get finds the agent of id, safe from any goroutine
func (s *ObjectService) Get(id int32) (*ObjectAgent, bool) {
	slot, ok := s.slots.Get(id)
	if !ok {
		return nil, false
	}
	a := slot.Agent()
	return a, a != nil
}

// Each walks the agents in id order, stop by returning false
func (s *ObjectService) Each(f func(a *ObjectAgent) bool) {
	s.slots.Range(func(slot *ObjectSlot) bool {
		if a := slot.Agent(); a != nil {
			return f(a)
		}
		return true
	})
}

func (s *ObjectService) Count() int {
	return s.slots.Len()
}
