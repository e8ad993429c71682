package bpool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func BenchmarkNewAndFree(b *testing.B) {
	for i := 0; i < b.N; i++ {
		buf := New(128)
		buf.Free()
	}
}

func TestSizeClass(t *testing.T) {
	assert.Equal(t, 0, getIndex(1))
	assert.Equal(t, 0, getIndex(32))
	assert.Equal(t, 1, getIndex(33))
	assert.Equal(t, 11, getIndex(64*1024-1))

	b := New(100)
	assert.Equal(t, 0, b.Size())
	assert.Equal(t, 128, b.Cap())
	b.Free()

	big := New(max_size + 1)
	assert.Equal(t, int8(-1), big.poolIdx)
	big.Free()
}

func TestAppendGrow(t *testing.T) {
	b := New(4)
	for i := 0; i < 100; i++ {
		b = b.Append(byte(i))
	}
	require.Equal(t, 100, b.Size())
	for i, v := range b.ToBytes() {
		assert.Equal(t, byte(i), v)
	}
	b.Free()
}

func TestExtend(t *testing.T) {
	b := NewBuf([]byte{1, 2})
	b, w := b.Extend(4)
	require.Len(t, w, 4)
	copy(w, []byte{3, 4, 5, 6})
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b.ToBytes())
	b.Free()
}

func TestRead(t *testing.T) {
	b := New(8)
	n, err := b.Read(bytes.NewReader([]byte{9, 8, 7}), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{9, 8, 7}, b.Copy())

	_, err = b.Read(bytes.NewReader([]byte{1}), 3)
	assert.Error(t, err)
}

func TestWriter(t *testing.T) {
	out := &bytes.Buffer{}
	w := NewWriterSize(out, 32)
	defer w.Free()
	require.NoError(t, w.WriteByte(1))
	_, err := w.Write([]byte{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
	require.NoError(t, w.Flush())
	assert.Equal(t, []byte{1, 2, 3}, out.Bytes())

	large := bytes.Repeat([]byte{7}, 100)
	_, err = w.Write(large)
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	assert.Equal(t, 103, out.Len())
}
