package timer

import (
	"github.com/liangmanlin/netsync/kernel"
)

type TimerKey struct {
	Key int32
	ID  int32
}

// Timer holds keyed periodic callbacks for one owner, it is driven by Loop
// from the owner's tick and is not safe for concurrent use
type Timer[S any] struct {
	m         map[TimerKey]*timer[S]
	tmp       map[TimerKey]*timer[S]
	isLooping bool
}

type timer[S any] struct {
	time  int64
	times int32
	inv   int32
	f     func(state S, now2 int64)
}

func NewTimer[S any]() *Timer[S] {
	return &Timer[S]{m: make(map[TimerKey]*timer[S]), tmp: make(map[TimerKey]*timer[S])}
}

// Add starts a timer firing every inv ms from now2, times <= 0 表示永久定时器
func (t *Timer[S]) Add(key TimerKey, inv, times int32, now2 int64, f func(state S, now2 int64)) {
	tm := &timer[S]{
		time:  now2 + int64(inv),
		times: times,
		inv:   inv,
		f:     f,
	}
	if t.isLooping {
		t.tmp[key] = tm
	} else {
		t.m[key] = tm
	}
}

func (t *Timer[S]) Del(key TimerKey) {
	delete(t.m, key)
	delete(t.tmp, key)
}

func (t *Timer[S]) Has(key TimerKey) bool {
	_, ok := t.m[key]
	return ok
}

func (t *Timer[S]) Len() int {
	return len(t.m) + len(t.tmp)
}

// TODO 后续考虑增加多级时间分类，减少遍历长度
func (t *Timer[S]) Loop(state S, now2 int64) {
	t.isLooping = true
	for k, tm := range t.m {
		if now2 >= tm.time {
			tm.time += int64(tm.inv)
			if tm.times > 0 {
				tm.times--
				if tm.times == 0 {
					// 先删除
					delete(t.m, k)
				}
			}
			kernel.CatchFun(func() { tm.f(state, now2) })
		}
	}
	if len(t.tmp) > 0 {
		for k, tm := range t.tmp {
			t.m[k] = tm
			delete(t.tmp, k)
		}
	}
	t.isLooping = false
}
