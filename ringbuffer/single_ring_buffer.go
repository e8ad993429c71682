package ringbuffer

/*
	通用ring buffer，主要是想解决链表带来的垃圾产生，以及减少go的gc对象
*/

// 这里是单线程使用的，无锁，并发访问由使用者加锁
type SingleRingBuffer[T any] struct {
	head   int
	tail   int
	cap    int
	maxCap int // 当队列空闲的时候，会判断是否超过最大值
	cache  []T
}

// 参数必须是2的指数倍
func NewSingleRingBuffer[T any](size, maxSize int) *SingleRingBuffer[T] {
	if !isPower(size) || !isPower(maxSize) {
		return nil
	}
	return &SingleRingBuffer[T]{
		cap:    size,
		maxCap: maxSize,
		cache:  make([]T, size),
	}
}

func (s *SingleRingBuffer[T]) Size() int {
	if s.head > s.tail {
		return s.cap - s.head + s.tail
	}
	return s.tail - s.head
}

// 放入队列，如果满了，会扩容
func (s *SingleRingBuffer[T]) Put(value T) {
	next := (s.tail + 1) & (s.cap - 1)
	if next == s.head {
		s.expand()
		next = (s.tail + 1) & (s.cap - 1)
	}
	s.cache[s.tail] = value
	s.tail = next
}

func (s *SingleRingBuffer[T]) Pop() (rs T, ok bool) {
	if s == nil || s.tail == s.head {
		return
	}
	var zero T
	rs = s.cache[s.head]
	s.cache[s.head] = zero // gc
	s.head = (s.head + 1) & (s.cap - 1)
	if s.tail == s.head && s.cap > s.maxCap {
		// 空了，缩小
		s.narrow()
	}
	return rs, true
}

// Each walks from head to tail without removing, stop by returning false
func (s *SingleRingBuffer[T]) Each(f func(T) bool) {
	for i := s.head; i != s.tail; i = (i + 1) & (s.cap - 1) {
		if !f(s.cache[i]) {
			return
		}
	}
}

// Drain pops everything into dst
func (s *SingleRingBuffer[T]) Drain(dst []T) []T {
	for {
		v, ok := s.Pop()
		if !ok {
			return dst
		}
		dst = append(dst, v)
	}
}

func (s *SingleRingBuffer[T]) expand() {
	newCap := s.cap * 2
	cache := make([]T, newCap)
	var size int
	if s.head > s.tail {
		idx := s.cap - s.head
		size = idx + s.tail
		copy(cache, s.cache[s.head:])
		copy(cache[idx:], s.cache[0:s.tail])
	} else {
		size = s.tail - s.head
		copy(cache, s.cache[s.head:s.tail])
	}
	s.head = 0
	s.tail = size
	s.cache = cache
	s.cap = newCap
}

func (s *SingleRingBuffer[T]) narrow() {
	s.cache = make([]T, s.maxCap)
	s.cap = s.maxCap
	s.head = 0
	s.tail = 0
}

func isPower(v int) bool {
	return v > 0 && v&(v-1) == 0
}
