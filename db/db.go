package db

import (
	"database/sql"

	"github.com/go-faster/errors"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/metrics"
	"github.com/liangmanlin/netsync/netobj"
)

// KeyFunc names the stored record of an object, "" means the object is not
// persisted
type KeyFunc func(a *netobj.ObjectAgent) string

// OwnerKey keeps one record per type and owner, objects without owner are
// not persisted
func OwnerKey(a *netobj.ObjectAgent) string {
	if a.Owner() == uuid.Nil {
		return ""
	}
	return a.Registration().Name() + "/" + a.Owner().String()
}

type optFun func(o *options)

type options struct {
	tab     string
	key     KeyFunc
	metrics *metrics.Metrics
}

func WithTable(tab string) optFun {
	return func(o *options) {
		o.tab = tab
	}
}

func WithKey(f KeyFunc) optFun {
	return func(o *options) {
		o.key = f
	}
}

func WithMetrics(m *metrics.Metrics) optFun {
	return func(o *options) {
		o.metrics = m
	}
}

// Open connects to mysql, cfg.ConnNum bounds the pool
func Open(cfg kernel.MySQLEnv) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	// 测试一下是否可以连接
	if _, err = db.Exec("show tables;"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	num := cfg.ConnNum
	if num <= 0 {
		num = 4
	}
	db.SetMaxOpenConns(num)
	db.SetMaxIdleConns(num)
	return db, nil
}

// Store saves the persistent members of live objects and restores them when
// an object with the same key is created again. Load and Persist run on the
// tick goroutine, writes go through a worker.
type Store struct {
	db      *sql.DB
	svc     *netobj.ObjectService
	defs    map[string]*TabDef
	tab     string
	key     KeyFunc
	worker  *syncWorker
	metrics *metrics.Metrics
}

// NewStore checks the tables and hooks the store into svc
func NewStore(db *sql.DB, svc *netobj.ObjectService, opt ...optFun) (*Store, error) {
	o := &options{tab: DefaultTable, key: OwnerKey}
	for _, f := range opt {
		f(o)
	}
	if o.metrics == nil {
		o.metrics = svc.Metrics()
	}
	s := &Store{
		db:      db,
		svc:     svc,
		defs:    initDef(o.tab),
		tab:     o.tab,
		key:     o.key,
		metrics: o.metrics,
	}
	if err := s.tableCheck(); err != nil {
		return nil, err
	}
	s.worker = startSync(s)
	svc.SetLoader(s)
	svc.Observe(s)
	return s, nil
}

func (s *Store) Table() string {
	return s.tab
}

// Load restores the stored members of a, a record written under another
// registration fingerprint is ignored
func (s *Store) Load(a *netobj.ObjectAgent) error {
	key := s.key(a)
	if key == "" {
		return nil
	}
	rs, err := s.ModSelectRow(s.tab, key)
	if err != nil || rs == nil {
		return err
	}
	row := rs.(*objectRow)
	reg := a.Registration()
	if row.Version != reg.Fingerprint() {
		kernel.Logger().Warn().Str("key", key).Str("version", row.Version).Msg("stale object record ignored")
		return nil
	}
	p := codec.FromBytes(s.svc.Codecs(), row.Records)
	defer p.Free()
	if err = a.ApplyRecords(p, int(row.RecordCount)); err != nil {
		return errors.Wrapf(err, "restore %s", key)
	}
	return nil
}

// Persist queues the current record of every live persisted object and
// returns how many were queued
func (s *Store) Persist() int {
	var rows []interface{}
	now := s.svc.Now()
	s.svc.Each(func(a *netobj.ObjectAgent) bool {
		switch a.State() {
		case netobj.StateGenerated, netobj.StateDisabled:
			if row := s.rowOf(a, now); row != nil {
				rows = append(rows, row)
			}
		}
		return true
	})
	if len(rows) == 0 {
		return 0
	}
	if !s.worker.cast(syncOp{kind: opReplace, rows: rows}) {
		return 0
	}
	return len(rows)
}

func (s *Store) rowOf(a *netobj.ObjectAgent, now int64) *objectRow {
	key := s.key(a)
	if key == "" {
		return nil
	}
	values := a.PersistentValues()
	if len(values) == 0 {
		return nil
	}
	p := codec.NewPayload(s.svc.Codecs())
	defer p.Free()
	n, err := netobj.WriteValues(p, values)
	if err != nil {
		kernel.Logger().Error().Int32("object_id", a.ID()).Err(err).Msg("encode object record")
		return nil
	}
	reg := a.Registration()
	return &objectRow{
		ObjectKey:   key,
		TypeName:    reg.Name(),
		Version:     reg.Fingerprint(),
		RecordCount: int32(n),
		Records:     append([]byte(nil), p.Bytes()...),
		UpdatedAt:   now,
	}
}

func (s *Store) ObjectCreated(*netobj.ObjectAgent) {}

// ObjectDeleted removes the record of a deleted object
func (s *Store) ObjectDeleted(a *netobj.ObjectAgent) {
	if key := s.key(a); key != "" {
		s.worker.cast(syncOp{kind: opDelete, key: key})
	}
}

// Close writes everything queued, the db is left open
func (s *Store) Close() {
	s.worker.close()
}
