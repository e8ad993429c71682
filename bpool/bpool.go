package bpool

import (
	"io"
	"math/bits"
	"sync"
)

/*
	datagram和网络帧共用的缓冲池
	小于64k的数据将会被重用

	为什么是64k？
	因为gate head=2 时一个帧最大64k
*/
const (
	min_size  = 32
	max_size  = 64 * 1024
	pool_size = 12 //32,64,128,256,512,1k,2k,4k,8k,16k,32k,64k
)

var pool [pool_size]sync.Pool

type Buff struct {
	b       []byte
	poolIdx int8
}

func init() {
	for i := 0; i < pool_size; i++ {
		size := getSize(i)
		idx := i
		pool[i].New = func() interface{} {
			return &Buff{poolIdx: int8(idx), b: make([]byte, size)}
		}
	}
}

func New(size int) *Buff {
	if size >= max_size {
		// 很少这么大的数据,重用意义不大，所以，直接申请
		return &Buff{poolIdx: -1, b: make([]byte, 0, size)}
	}
	idx := getIndex(size)
	buf := pool[idx].Get().(*Buff)
	buf.b = buf.b[0:0]
	return buf
}

func NewBuf(buf []byte) *Buff {
	size := len(buf)
	b := New(size)
	b.b = b.b[:size]
	copy(b.b, buf)
	return b
}

func getIndex(size int) int {
	if size < min_size {
		return 0
	}
	return bits.Len32(uint32(size-1)) - 5
}

// 调用该方法后，不能继续使用buff，否则有不可预料的bug
func (b *Buff) Free() {
	if b.poolIdx < 0 {
		return
	}
	b.b = b.b[:0]
	pool[b.poolIdx].Put(b)
}

func (b *Buff) Size() int {
	return len(b.b)
}

func (b *Buff) Cap() int {
	return cap(b.b)
}

func (b *Buff) Reset() {
	b.b = b.b[0:0]
}

// Read fills exactly size bytes from r
func (b *Buff) Read(r io.Reader, size int) (n int, err error) {
	if cap(b.b) < size {
		return 0, io.ErrShortBuffer
	}
	b.b = b.b[0:size]
	for n < size && err == nil {
		var nn int
		nn, err = r.Read(b.b[n:])
		n += nn
	}
	if n >= size {
		err = nil
	} else if n > 0 && err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return
}

// Append may move the data into a bigger buffer, always use the returned one
func (b *Buff) Append(buf ...byte) *Buff {
	nb := b.Grow(len(buf))
	nb.b = append(nb.b, buf...)
	return nb
}

// Grow makes room for n more bytes, the receiver is freed when it is replaced
func (b *Buff) Grow(n int) *Buff {
	totalSize := b.Size() + n
	if totalSize <= b.Cap() {
		return b
	}
	// 按两倍扩展，避免逐字节写入时频繁换池
	want := totalSize
	if want < b.Cap()*2 {
		want = b.Cap() * 2
	}
	nb := New(want)
	nb.b = append(nb.b, b.b...)
	b.Free()
	return nb
}

// Extend grows the buffer by n bytes and returns the new window
func (b *Buff) Extend(n int) (*Buff, []byte) {
	nb := b.Grow(n)
	start := len(nb.b)
	nb.b = nb.b[:start+n]
	return nb, nb.b[start:]
}

func (b *Buff) ToBytes() []byte {
	return b.b
}

func (b *Buff) Copy() (buf []byte) {
	return append(buf, b.b...)
}

func (b *Buff) SetSize(size int) {
	b.b = b.b[:size]
}

func getSize(i int) int {
	return min_size << i
}
