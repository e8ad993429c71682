package gate

import (
	"io"
	"net"
	"time"

	"github.com/liangmanlin/netsync/bpool"
	"github.com/liangmanlin/netsync/kernel"
)

// startReader reads frames off a blocking socket until it fails
func startReader(c *Conn, conn net.Conn) {
	defer kernel.Catch()
	if err := conn.SetReadDeadline(time.Time{}); err != nil { // 规避超时
		c.shutdown(err)
		return
	}
	head := c.head
	headBuf := make([]byte, head)
	pack := bpool.New(256) // 先默认申请一个小的
	defer func() { pack.Free() }()
	for {
		if _, err := io.ReadAtLeast(conn, headBuf, head); err != nil {
			c.shutdown(err)
			return
		}
		packSize := ReadHead(head, headBuf)
		if packSize == 0 {
			continue
		}
		if packSize > c.maxRead {
			c.logger().Error().Int("size", packSize).Msg("inbound frame too large")
			c.shutdown(ErrFrameTooLarge)
			return
		}
		if pack.Cap() < packSize {
			pack.Free()
			pack = bpool.New(packSize)
		}
		if _, err := pack.Read(conn, packSize); err != nil {
			c.shutdown(err)
			return
		}
		c.deliver(pack.ToBytes())
	}
}
