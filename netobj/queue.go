package netobj

import (
	"sync"

	"github.com/liangmanlin/netsync/ringbuffer"
)

// UpdateQueue holds pending updates of one lane. The reliable lane keeps
// every distinct update in order, the snapshot lane keeps the latest update
// per member.
type UpdateQueue struct {
	mux      sync.Mutex
	snapshot bool
	reliable *ringbuffer.SingleRingBuffer[*Update]
	latest   []*Update
}

func NewUpdateQueue(snapshot bool) *UpdateQueue {
	q := &UpdateQueue{snapshot: snapshot}
	if !snapshot {
		q.reliable = ringbuffer.NewSingleRingBuffer[*Update](16, 256)
	}
	return q
}

func (q *UpdateQueue) IsSnapshot() bool {
	return q.snapshot
}

// TryEnqueue takes ownership of u when it returns true. It refuses updates
// of the other lane and duplicates of a pending update.
func (q *UpdateQueue) TryEnqueue(u *Update) bool {
	if u.member.Flags.Has(Snapshot) != q.snapshot {
		return false
	}
	q.mux.Lock()
	defer q.mux.Unlock()
	if q.snapshot {
		for i, o := range q.latest {
			if o.member != u.member || o.agent != u.agent {
				continue
			}
			if o.Same(u) {
				return false
			}
			q.latest[i] = u
			o.Dispose()
			return true
		}
		q.latest = append(q.latest, u)
		return true
	}
	dup := false
	q.reliable.Each(func(o *Update) bool {
		dup = o.Same(u)
		return !dup
	})
	if dup {
		return false
	}
	q.reliable.Put(u)
	return true
}

func (q *UpdateQueue) Len() int {
	q.mux.Lock()
	defer q.mux.Unlock()
	if q.snapshot {
		return len(q.latest)
	}
	return q.reliable.Size()
}

// Flush moves every pending update to dst in send order, the caller
// disposes them
func (q *UpdateQueue) Flush(dst []*Update) []*Update {
	q.mux.Lock()
	defer q.mux.Unlock()
	if q.snapshot {
		dst = append(dst, q.latest...)
		for i := range q.latest {
			q.latest[i] = nil
		}
		q.latest = q.latest[:0]
		return dst
	}
	return q.reliable.Drain(dst)
}

// Clear disposes everything pending
func (q *UpdateQueue) Clear() {
	for _, u := range q.Flush(nil) {
		u.Dispose()
	}
}
