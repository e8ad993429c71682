package netobj

import (
	"testing"

	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/metrics"
)

type entity struct {
	name    string
	created int
	deleted int
}

func (e *entity) SetName(v string) { e.name = v }
func (e *entity) GetName() string  { return e.name }

type player struct {
	entity
	pos    codec.Vector3
	vel    codec.Vector3
	health int32
	hits   []int32
	boom   bool
}

func (p *player) SetPos(v codec.Vector3) { p.pos = v }
func (p *player) GetPos() codec.Vector3  { return p.pos }
func (p *player) SetVel(v codec.Vector3) { p.vel = v }
func (p *player) GetVel() codec.Vector3  { return p.vel }

func (p *player) Hit(dmg int32, from string) {
	if dmg < 0 {
		panic("negative damage from " + from)
	}
	p.hits = append(p.hits, dmg)
}

func (p *player) OnNetworkCreate(*ObjectAgent) {
	p.created++
	if p.boom {
		panic("create hook")
	}
}

func (p *player) OnNetworkDelete(*ObjectAgent) {
	p.deleted++
}

func testCodecs() *codec.Registry {
	return codec.NewDefault(codec.DefaultOptions()).Freeze()
}

func entityReg() *Registration {
	return NewRegistration("entity", func() *entity { return &entity{} }).Declare(
		Method1("SetName", (*entity).SetName, Broadcast|Persistent),
		Getter("GetName", (*entity).GetName),
	)
}

func playerReg() *Registration {
	return NewRegistration("player", func() *player { return &player{} }).
		Extends(entityReg(), Upcast(func(p *player) *entity { return &p.entity })).
		Declare(
			Method1("SetPos", (*player).SetPos, Broadcast|Snapshot),
			Getter("GetPos", (*player).GetPos),
			Method1("SetVel", (*player).SetVel, Broadcast|Delta),
			Getter("GetVel", (*player).GetVel),
			Method2("Hit", (*player).Hit, ClientSend),
			Property("Health",
				func(p *player) int32 { return p.health },
				func(p *player, v int32) { p.health = v },
				Broadcast|Persistent),
		)
}

type fakeClock struct{ now int64 }

func (c *fakeClock) Now() int64 { return c.now }

func newService(t *testing.T, server bool, clock *fakeClock, regs ...*Registration) *ObjectService {
	t.Helper()
	kernel.Env.WriteLogStd = false
	cfg := Config{
		Server:             server,
		DeleteTicks:        3,
		SnapshotHistory:    2,
		SnapshotIntervalMS: 100,
		PoolSize:           64,
		Clock:              clock.Now,
		Metrics:            metrics.Nop(),
	}
	s := NewObjectService(testCodecs(), cfg)
	if len(regs) == 0 {
		regs = []*Registration{playerReg()}
	}
	if err := s.Register(regs...); err != nil {
		t.Fatal(err)
	}
	return s
}

func mustCreate(t *testing.T, s *ObjectService, owner uuid.UUID) (*ObjectAgent, *player) {
	t.Helper()
	a, err := s.Create("player", owner)
	if err != nil {
		t.Fatal(err)
	}
	return a, a.Target().(*player)
}
