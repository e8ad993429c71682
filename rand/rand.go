package rand

import (
	"math/rand"
	"time"
)

var defaultR = New()

type Rand struct {
	rand *rand.Rand
}

func Random(min, max int32) int32 {
	return defaultR.Random(min, max)
}

func Int32(n int32) int32 {
	return defaultR.Int32(n)
}

// Uint16 is used for snapshot headers, only call it from the tick goroutine
func Uint16() uint16 {
	return defaultR.Uint16()
}

func New() Rand {
	return Rand{rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeed 固定种子，测试使用
func NewSeed(seed int64) Rand {
	return Rand{rand.New(rand.NewSource(seed))}
}

func (r Rand) Random(min, max int32) int32 {
	return r.rand.Int31n(max-min+1) + min
}

func (r Rand) Int32(n int32) int32 {
	return r.rand.Int31n(n)
}

func (r Rand) Uint16() uint16 {
	return uint16(r.rand.Uint32())
}
