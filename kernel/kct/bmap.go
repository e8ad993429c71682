package kct

import "container/list"

// BMap keeps insertion order, keys are expected to arrive in ascending order
// when it is used as a time index
type BMap[K comparable, V any] struct {
	l *list.List
	m map[K]*list.Element
}

type bmapEntry[K comparable, V any] struct {
	key   K
	value V
}

func NewBMap[K comparable, V any]() *BMap[K, V] {
	return &BMap[K, V]{l: list.New(), m: make(map[K]*list.Element)}
}

// Insert appends key at the back, an existing key is replaced in place
func (b *BMap[K, V]) Insert(key K, value V) {
	if e, ok := b.m[key]; ok {
		e.Value.(*bmapEntry[K, V]).value = value
		return
	}
	b.m[key] = b.l.PushBack(&bmapEntry[K, V]{key: key, value: value})
}

func (b *BMap[K, V]) Lookup(key K) (v V, ok bool) {
	if e, has := b.m[key]; has {
		return e.Value.(*bmapEntry[K, V]).value, true
	}
	return
}

func (b *BMap[K, V]) Delete(key K) {
	if e, ok := b.m[key]; ok {
		b.l.Remove(e)
		delete(b.m, key)
	}
}

func (b *BMap[K, V]) Len() int {
	return len(b.m)
}

func (b *BMap[K, V]) Front() (k K, v V, ok bool) {
	return entryOf[K, V](b.l.Front())
}

func (b *BMap[K, V]) Back() (k K, v V, ok bool) {
	return entryOf[K, V](b.l.Back())
}

// PopFront removes and returns the oldest entry
func (b *BMap[K, V]) PopFront() (k K, v V, ok bool) {
	e := b.l.Front()
	if k, v, ok = entryOf[K, V](e); ok {
		b.l.Remove(e)
		delete(b.m, k)
	}
	return
}

// Foreach walks front to back, stop by returning false
func (b *BMap[K, V]) Foreach(f func(K, V) bool) {
	for e := b.l.Front(); e != nil; e = e.Next() {
		en := e.Value.(*bmapEntry[K, V])
		if !f(en.key, en.value) {
			return
		}
	}
}

func (b *BMap[K, V]) ForeachReverse(f func(K, V) bool) {
	for e := b.l.Back(); e != nil; e = e.Prev() {
		en := e.Value.(*bmapEntry[K, V])
		if !f(en.key, en.value) {
			return
		}
	}
}

func entryOf[K comparable, V any](e *list.Element) (k K, v V, ok bool) {
	if e == nil {
		return
	}
	en := e.Value.(*bmapEntry[K, V])
	return en.key, en.value, true
}
