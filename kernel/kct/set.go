package kct

type empty struct{}

type Set[T comparable] map[T]empty

func NewSet[T comparable](size int) Set[T] {
	if size <= 0 {
		size = 1
	}
	return make(Set[T], size)
}

func (s Set[T]) Insert(val T) {
	s[val] = empty{}
}

func (s Set[T]) Erase(val T) {
	delete(s, val)
}

func (s Set[T]) Size() int {
	return len(s)
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

func (s Set[T]) Foreach(f func(v T)) {
	for k := range s {
		f(k)
	}
}

// Keys copies the members out, so the set may be changed while walking them
func (s Set[T]) Keys() []T {
	rs := make([]T, 0, len(s))
	for k := range s {
		rs = append(rs, k)
	}
	return rs
}
