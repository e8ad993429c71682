package db

import (
	"database/sql/driver"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"

	"github.com/liangmanlin/netsync/gutil"
	"github.com/liangmanlin/netsync/kernel"
)

// 最多300条插入
const divSize = 300

type opKind int8

const (
	opReplace opKind = iota + 1
	opDelete
)

type syncOp struct {
	kind opKind
	rows []interface{}
	key  string
}

// syncWorker writes on its own goroutine so the tick never waits on mysql,
// ops run in the order they were cast
type syncWorker struct {
	s    *Store
	mux  sync.Mutex
	ch   chan syncOp
	stop bool
	done chan struct{}
	fail []interface{}
}

func startSync(s *Store) *syncWorker {
	w := &syncWorker{s: s, ch: make(chan syncOp, 1000), done: make(chan struct{})}
	go w.loop()
	return w
}

func (w *syncWorker) loop() {
	defer close(w.done)
	for op := range w.ch {
		kernel.CatchFun(func() { w.handle(op) })
	}
}

func (w *syncWorker) cast(op syncOp) bool {
	w.mux.Lock()
	defer w.mux.Unlock()
	if w.stop {
		return false
	}
	w.ch <- op
	return true
}

// close drains every cast op and waits for the goroutine
func (w *syncWorker) close() {
	w.mux.Lock()
	if w.stop {
		w.mux.Unlock()
		return
	}
	w.stop = true
	close(w.ch)
	w.mux.Unlock()
	<-w.done
}

func (w *syncWorker) handle(op syncOp) {
	switch op.kind {
	case opReplace:
		w.multiReplace(op.rows)
	case opDelete:
		w.dropFailed(op.key)
		if _, err := w.s.ModDeletePKey(w.s.tab, op.key); err != nil {
			kernel.Logger().Error().Str("key", op.key).Err(err).Msg("delete object record")
		}
	}
}

func (w *syncWorker) multiReplace(dataList []interface{}) {
	if len(w.fail) > 0 {
		dataList = append(w.pendingFail(dataList), dataList...)
		w.fail = nil
	}
	size := len(dataList)
	if size == 0 {
		return
	}
	var start, end int32
	var fail []interface{}
	div := gutil.Ceil(float32(size) / divSize)
	for i := int32(0); i < div; i++ {
		start = i * divSize
		end = gutil.Min((i+1)*divSize, int32(size))
		tmp := dataList[start:end]
		if _, err := w.s.ModMultiReplace(w.s.tab, tmp); err != nil {
			if retryable(err) {
				// 说明断开了，等下一轮再写
				fail = append(fail, tmp...)
			}
			kernel.Logger().Error().Int("rows", len(tmp)).Bool("retry", retryable(err)).Err(err).Msg("persist objects")
			continue
		}
		w.s.metrics.Persisted.Add(float64(len(tmp)))
	}
	w.fail = fail
}

// pendingFail keeps the failed rows that dataList does not write again
func (w *syncWorker) pendingFail(dataList []interface{}) []interface{} {
	keys := make(map[string]struct{}, len(dataList))
	for _, r := range dataList {
		keys[r.(*objectRow).ObjectKey] = struct{}{}
	}
	rs := make([]interface{}, 0, len(w.fail))
	for _, r := range w.fail {
		if _, ok := keys[r.(*objectRow).ObjectKey]; !ok {
			rs = append(rs, r)
		}
	}
	return rs
}

// dropFailed forgets pending rows of a deleted key, a retry must not bring
// them back
func (w *syncWorker) dropFailed(key string) {
	rs := w.fail[:0]
	for _, r := range w.fail {
		if r.(*objectRow).ObjectKey != key {
			rs = append(rs, r)
		}
	}
	w.fail = rs
}

func retryable(err error) bool {
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn)
}
