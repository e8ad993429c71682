package gate

import (
	"github.com/liangmanlin/netsync/bpool"
)

const nbBufSize = 4 * 1024

// onData takes what the poller read and cuts every complete frame out of it,
// the tail of a partial frame waits for the next call
func (c *Conn) onData(data []byte) {
	if c.buffer == nil {
		c.buffer = bpool.New(nbBufSize)
	}
	c.buffer = c.buffer.Append(data...)
	buf := c.buffer.ToBytes()
	start := 0
	for {
		size := len(buf) - start
		if c.totalSize == 0 {
			if size < c.head {
				break
			}
			body := ReadHead(c.head, buf[start:])
			if body > c.maxRead {
				c.logger().Error().Int("size", body).Msg("inbound frame too large")
				c.shutdown(ErrFrameTooLarge)
				return
			}
			c.totalSize = body + c.head
		}
		if size < c.totalSize {
			break
		}
		c.deliver(buf[start+c.head : start+c.totalSize])
		start += c.totalSize
		c.totalSize = 0
		if c.closed.Load() {
			return
		}
	}
	if start == 0 {
		return
	}
	if start == len(buf) {
		c.buffer.Reset()
		return
	}
	// 剩下半个帧，挪到新的缓冲
	rest := bpool.NewBuf(buf[start:])
	c.buffer.Free()
	c.buffer = rest
}

func (c *Conn) freeReadBuf() {
	if c.buffer != nil {
		c.buffer.Free()
		c.buffer = nil
	}
	c.totalSize = 0
}
