package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandom(t *testing.T) {
	r := New()
	for i := 0; i < 1000; i++ {
		v := r.Random(3, 7)
		assert.GreaterOrEqual(t, v, int32(3))
		assert.LessOrEqual(t, v, int32(7))
	}
}

func TestSeedRepeatable(t *testing.T) {
	a, b := NewSeed(42), NewSeed(42)
	for i := 0; i < 16; i++ {
		assert.Equal(t, a.Uint16(), b.Uint16())
	}
}

func BenchmarkUint16(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Uint16()
	}
}
