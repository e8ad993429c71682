package kernel

import "time"

const Millisecond int64 = 1000

// unix时间戳
func Now() int64 {
	return time.Now().Unix()
}

// 毫秒unix时间戳
func Now2() int64 {
	return time.Now().UnixNano() / 1e6
}

// Clock is a millisecond time source, Now2 is the default one
type Clock func() int64
