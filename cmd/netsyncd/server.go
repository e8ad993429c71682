package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/console"
	"github.com/liangmanlin/netsync/datagram"
	"github.com/liangmanlin/netsync/db"
	"github.com/liangmanlin/netsync/gate"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/metrics"
	"github.com/liangmanlin/netsync/netobj"
)

// server owns one object service, everything touching it runs on the tick
// goroutine, other goroutines post tasks
type server struct {
	env     *kernel.EnvConfig
	metrics *metrics.Metrics
	svc     *netobj.ObjectService
	md      *datagram.MessageDirector
	rep     *netobj.Replicator
	gate    *gate.Server
	store   *db.Store
	console *console.Server
	http    *http.Server

	tasks   chan func()
	world   *netobj.ObjectAgent
	avatars map[uuid.UUID]int32
	started int64
	uptime  int64
}

func newServer(env *kernel.EnvConfig, m *metrics.Metrics) (*server, error) {
	opt, err := codec.OptionsFromEnv(env)
	if err != nil {
		return nil, err
	}
	codecs := codec.NewDefault(opt).Freeze()
	cfg := netobj.ConfigFromEnv(env, true)
	cfg.Metrics = m
	s := &server{
		env:     env,
		metrics: m,
		svc:     netobj.NewObjectService(codecs, cfg),
		md:      datagram.NewMessageDirector(codecs, m),
		tasks:   make(chan func(), 1024),
		avatars: make(map[uuid.UUID]int32),
	}
	if err = s.svc.Register(registrations()...); err != nil {
		return nil, err
	}
	s.rep = netobj.NewReplicator(s.svc, s.md)
	s.gate = gate.NewServer("netsyncd", env.Gate.Addr, s.md, &gate.Bridge{Director: s.md, Peers: joinPeers{s}},
		gate.WithEnv(env.Gate), gate.WithMetrics(m))
	return s, nil
}

// start opens storage and every listener, then makes the world object
func (s *server) start() error {
	if s.env.MySQL.DSN != "" {
		sqlDB, err := db.Open(s.env.MySQL)
		if err != nil {
			return err
		}
		if s.store, err = db.NewStore(sqlDB, s.svc, db.WithMetrics(s.metrics)); err != nil {
			return err
		}
	}
	w, err := s.svc.Create("world", worldOwner())
	if err != nil {
		return err
	}
	s.world = w
	s.uptime = w.Target().(*world).uptime
	s.started = s.svc.Now()
	if err = s.gate.Start(); err != nil {
		return errors.Wrap(err, "gate")
	}
	if s.env.ConsoleAddr != "" {
		ln, err := net.Listen("tcp", s.env.ConsoleAddr)
		if err != nil {
			return errors.Wrap(err, "console")
		}
		c := console.New(s.svc, console.WithReplicator(s.rep), console.WithRunner(s.call))
		s.console = console.NewServer(c, ln)
		go func() {
			if err := s.console.Serve(); err != nil {
				kernel.Logger().Error().Err(err).Msg("console stopped")
			}
		}()
	}
	if s.env.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.http = &http.Server{Addr: s.env.MetricsAddr, Handler: mux}
		go func() {
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				kernel.Logger().Error().Err(err).Msg("metrics stopped")
			}
		}()
	}
	return nil
}

// worldOwner is stable across restarts, it keys the stored world record
func worldOwner() uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("netsyncd/world"))
}

// run ticks until ctx is done, then shuts everything down
func (s *server) run(ctx context.Context) {
	tick := time.NewTicker(time.Duration(s.env.TickMS) * time.Millisecond)
	defer tick.Stop()
	persistMS := s.env.MySQL.PersistIntervalMS
	if persistMS <= 0 {
		persistMS = 5000
	}
	persist := time.NewTicker(time.Duration(persistMS) * time.Millisecond)
	defer persist.Stop()
	second := time.NewTicker(time.Second)
	defer second.Stop()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case f := <-s.tasks:
			kernel.CatchFun(f)
		case <-tick.C:
			s.rep.Tick()
		case <-second.C:
			s.touchWorld()
		case <-persist.C:
			if s.store != nil {
				s.store.Persist()
			}
		}
	}
}

func (s *server) touchWorld() {
	up := s.uptime + (s.svc.Now()-s.started)/kernel.Millisecond
	if err := s.world.Call("Uptime", up); err != nil {
		kernel.Logger().Error().Err(err).Msg("world uptime")
	}
}

func (s *server) shutdown() {
	s.gate.Stop()
	if s.console != nil {
		// 控制台的命令还在等tick，关闭的同时继续处理
		done := make(chan struct{})
		go func() {
			s.console.Close()
			close(done)
		}()
	drain:
		for {
			select {
			case f := <-s.tasks:
				kernel.CatchFun(f)
			case <-done:
				break drain
			}
		}
	}
	if s.store != nil {
		s.touchWorld()
		s.store.Persist()
		s.store.Close()
	}
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.http.Shutdown(ctx)
	}
	kernel.ErrorLog("netsyncd stopped")
}

func (s *server) post(f func()) {
	s.tasks <- f
}

// call runs f on the tick goroutine and waits for it
func (s *server) call(f func()) {
	done := make(chan struct{})
	s.post(func() {
		defer close(done)
		f()
	})
	<-done
}

func (s *server) spawnAvatar(owner uuid.UUID) {
	a, err := s.svc.Create("avatar", owner)
	if err != nil {
		kernel.Logger().Error().Str("owner", owner.String()).Err(err).Msg("spawn avatar")
		return
	}
	if err = a.Call("SetName", "guest-"+owner.String()[:8]); err != nil {
		kernel.Logger().Error().Int32("object_id", a.ID()).Err(err).Msg("name avatar")
	}
	s.avatars[owner] = a.ID()
}

func (s *server) dropAvatar(owner uuid.UUID) {
	id, ok := s.avatars[owner]
	if !ok {
		return
	}
	delete(s.avatars, owner)
	s.svc.TryRequestDelete(id)
}

// joinPeers gives every handshaken connection an avatar
type joinPeers struct {
	s *server
}

func (p joinPeers) Connect(c datagram.Connection) error {
	if err := p.s.rep.Connect(c); err != nil {
		return err
	}
	id := c.ID()
	p.s.post(func() { p.s.spawnAvatar(id) })
	return nil
}

func (p joinPeers) Disconnect(id uuid.UUID) {
	p.s.rep.Disconnect(id)
	p.s.post(func() { p.s.dropAvatar(id) })
}
