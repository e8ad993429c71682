package codec

import (
	"cmp"
	"container/list"
	"math"
	"reflect"
	"slices"

	"github.com/go-faster/errors"
)

const (
	headerNull  = 0
	headerEmpty = 16
	// length class marker, keeps class 0 apart from the null sentinel
	headerLen = 0x04

	MaxCollectionLen = 1 << 24
)

var emptyStruct = reflect.TypeOf(struct{}{})

// writeLength emits the collection header
func writeLength(p *BytePayload, n int, null bool) error {
	switch {
	case null:
		return p.WriteByte(headerNull)
	case n == 0:
		return p.WriteByte(headerEmpty)
	case n <= math.MaxUint8:
		w, err := p.Slot(2)
		if err != nil {
			return err
		}
		w[0], w[1] = headerLen, byte(n)
		p.Advance(2)
	case n <= math.MaxUint16:
		w, err := p.Slot(3)
		if err != nil {
			return err
		}
		w[0] = headerLen | 1
		le.PutUint16(w[1:], uint16(n))
		p.Advance(3)
	default:
		w, err := p.Slot(5)
		if err != nil {
			return err
		}
		w[0] = headerLen | 2
		le.PutUint32(w[1:], uint32(n))
		p.Advance(5)
	}
	return nil
}

// readLength returns n = -1 for a null collection
func readLength(p *BytePayload) (n int, ok bool) {
	h, err := p.ReadByte()
	if err != nil {
		return 0, false
	}
	switch {
	case h == headerNull:
		return -1, true
	case h == headerEmpty:
		return 0, true
	case h&^3 != headerLen:
		return 0, false
	}
	switch h & 3 {
	case 0:
		c, err := p.ReadByte()
		if err != nil {
			return 0, false
		}
		n = int(c)
	case 1:
		l, err := p.ReadUint16()
		if err != nil {
			return 0, false
		}
		n = int(l)
	default:
		l, err := p.ReadUint32()
		if err != nil || l > MaxCollectionLen {
			return 0, false
		}
		n = int(l)
	}
	// every element costs at least one byte
	if n == 0 || n > p.Remaining() {
		return 0, false
	}
	return n, true
}

// collectionView is implemented by the collection types of this package
type collectionView interface {
	elemType() reflect.Type
	isNil() bool
	Len() int
	eachAny(f func(v any) error) error
}

type collectionBuilder interface {
	init(n int)
	addAny(v any) bool
}

var builderType = reflect.TypeOf((*collectionBuilder)(nil)).Elem()
var viewType = reflect.TypeOf((*collectionView)(nil)).Elem()

func collectionElem(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Pointer && t.Implements(viewType) {
		return reflect.Zero(t).Interface().(collectionView).elemType(), true
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem(), true
	case reflect.Map:
		if t.Elem() == emptyStruct {
			return t.Key(), true
		}
	}
	return nil, false
}

func (r *Registry) writeCollection(p *BytePayload, t reflect.Type, v reflect.Value) error {
	// 空集合也要能读回来，元素类型先检查
	if et, ok := collectionElem(t); !ok || !r.Supports(et) {
		return errors.Wrap(ErrNoCodec, t.String())
	}
	if view, ok := v.Interface().(collectionView); ok && t.Kind() != reflect.Pointer {
		n := view.Len()
		if n > MaxCollectionLen {
			return errors.Wrapf(ErrOutOfRange, "collection of %d", n)
		}
		if err := writeLength(p, n, view.isNil()); err != nil {
			return err
		}
		et := view.elemType()
		return view.eachAny(func(e any) error {
			return r.write(p, et, e)
		})
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		n := v.Len()
		if n > MaxCollectionLen {
			return errors.Wrapf(ErrOutOfRange, "collection of %d", n)
		}
		if err := writeLength(p, n, t.Kind() == reflect.Slice && v.IsNil()); err != nil {
			return err
		}
		et := t.Elem()
		for i := 0; i < n; i++ {
			if err := r.write(p, et, v.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if t.Elem() != emptyStruct {
			break
		}
		n := v.Len()
		if n > MaxCollectionLen {
			return errors.Wrapf(ErrOutOfRange, "collection of %d", n)
		}
		if err := writeLength(p, n, v.IsNil()); err != nil {
			return err
		}
		et := t.Key()
		iter := v.MapRange()
		for iter.Next() {
			if err := r.write(p, et, iter.Key().Interface()); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.Wrap(ErrNoCodec, t.String())
}

func (r *Registry) readCollection(p *BytePayload, t reflect.Type) (any, ReadResult) {
	et, ok := collectionElem(t)
	if !ok || !r.Supports(et) {
		return nil, Failed
	}
	n, ok := readLength(p)
	if !ok {
		return nil, Failed
	}
	if reflect.PointerTo(t).Implements(builderType) {
		ptr := reflect.New(t)
		if n < 0 {
			return ptr.Elem().Interface(), Success
		}
		b := ptr.Interface().(collectionBuilder)
		b.init(n)
		for i := 0; i < n; i++ {
			e, res := r.read(p, et)
			if res != Success || !b.addAny(e) {
				return nil, Failed
			}
		}
		return ptr.Elem().Interface(), Success
	}
	switch t.Kind() {
	case reflect.Slice:
		if n < 0 {
			return reflect.Zero(t).Interface(), Success
		}
		s := reflect.MakeSlice(t, n, n)
		if failed := r.readElems(p, et, n, func(i int, e reflect.Value) { s.Index(i).Set(e) }); failed {
			return nil, Failed
		}
		return s.Interface(), Success
	case reflect.Array:
		if n != t.Len() {
			return nil, Failed
		}
		a := reflect.New(t).Elem()
		if failed := r.readElems(p, et, n, func(i int, e reflect.Value) { a.Index(i).Set(e) }); failed {
			return nil, Failed
		}
		return a.Interface(), Success
	case reflect.Map:
		if n < 0 {
			return reflect.Zero(t).Interface(), Success
		}
		m := reflect.MakeMapWithSize(t, n)
		zero := reflect.Zero(emptyStruct)
		if failed := r.readElems(p, et, n, func(_ int, e reflect.Value) { m.SetMapIndex(e, zero) }); failed {
			return nil, Failed
		}
		return m.Interface(), Success
	}
	return nil, Failed
}

// readElems reports true on failure, collections only carry absolute values
func (r *Registry) readElems(p *BytePayload, et reflect.Type, n int, set func(i int, e reflect.Value)) bool {
	for i := 0; i < n; i++ {
		e, res := r.read(p, et)
		if res != Success {
			return true
		}
		set(i, reflect.ValueOf(e))
	}
	return false
}

// SortedSet keeps its items ordered and unique, it is written in order
type SortedSet[T cmp.Ordered] struct {
	items []T
}

func NewSortedSet[T cmp.Ordered](items ...T) SortedSet[T] {
	s := SortedSet[T]{items: make([]T, 0, len(items))}
	for _, v := range items {
		s.Insert(v)
	}
	return s
}

func (s *SortedSet[T]) Insert(v T) bool {
	i, found := slices.BinarySearch(s.items, v)
	if found {
		return false
	}
	s.items = slices.Insert(s.items, i, v)
	return true
}

func (s SortedSet[T]) Has(v T) bool {
	_, found := slices.BinarySearch(s.items, v)
	return found
}

func (s SortedSet[T]) Items() []T { return s.items }

func (s SortedSet[T]) Len() int { return len(s.items) }

func (s SortedSet[T]) elemType() reflect.Type { return typeOf[T]() }

func (s SortedSet[T]) isNil() bool { return s.items == nil }

func (s SortedSet[T]) eachAny(f func(any) error) error {
	for _, v := range s.items {
		if err := f(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *SortedSet[T]) init(n int) { s.items = make([]T, 0, n) }

func (s *SortedSet[T]) addAny(v any) bool {
	tv, ok := v.(T)
	if !ok {
		return false
	}
	// the wire order is trusted only if it stays sorted
	if n := len(s.items); n > 0 && s.items[n-1] >= tv {
		return false
	}
	s.items = append(s.items, tv)
	return true
}

// LinkedList is a container/list restricted to one element type
type LinkedList[T any] struct {
	l *list.List
}

func NewLinkedList[T any](items ...T) LinkedList[T] {
	ll := LinkedList[T]{l: list.New()}
	for _, v := range items {
		ll.PushBack(v)
	}
	return ll
}

func (ll *LinkedList[T]) PushBack(v T) {
	if ll.l == nil {
		ll.l = list.New()
	}
	ll.l.PushBack(v)
}

// List exposes the underlying list, nil for a null list
func (ll LinkedList[T]) List() *list.List { return ll.l }

func (ll LinkedList[T]) Items() []T {
	if ll.l == nil {
		return nil
	}
	rs := make([]T, 0, ll.l.Len())
	for e := ll.l.Front(); e != nil; e = e.Next() {
		rs = append(rs, e.Value.(T))
	}
	return rs
}

func (ll LinkedList[T]) Len() int {
	if ll.l == nil {
		return 0
	}
	return ll.l.Len()
}

func (ll LinkedList[T]) elemType() reflect.Type { return typeOf[T]() }

func (ll LinkedList[T]) isNil() bool { return ll.l == nil }

func (ll LinkedList[T]) eachAny(f func(any) error) error {
	if ll.l == nil {
		return nil
	}
	for e := ll.l.Front(); e != nil; e = e.Next() {
		if err := f(e.Value); err != nil {
			return err
		}
	}
	return nil
}

func (ll *LinkedList[T]) init(int) { ll.l = list.New() }

func (ll *LinkedList[T]) addAny(v any) bool {
	tv, ok := v.(T)
	if !ok {
		return false
	}
	ll.l.PushBack(tv)
	return true
}
