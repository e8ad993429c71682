package gutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinMaxClamp(t *testing.T) {
	assert.Equal(t, int32(3), Max[int32](1, 3))
	assert.Equal(t, 1.5, Min(1.5, 2))
	assert.Equal(t, 255, Clamp(300, 0, 255))
	assert.Equal(t, 0, Clamp(-4, 0, 10))
	assert.Equal(t, 7, Clamp(7, 0, 10))
}

func TestCeil(t *testing.T) {
	assert.Equal(t, int32(2), Ceil(1.1))
	assert.Equal(t, int32(4), Ceil(4))
}

func TestPow10(t *testing.T) {
	assert.Equal(t, 1.0, Pow10(0))
	assert.Equal(t, 1e4, Pow10(4))
	assert.Equal(t, 1e9, Pow10(20))
}

func BenchmarkClamp(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Clamp(i, 0, 255)
	}
}
