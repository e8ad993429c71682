package gate

import (
	"errors"

	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/datagram"
	"github.com/liangmanlin/netsync/gutil"
)

/*
	一个帧的格式:
	head(2或4字节,大端,值为后面的长度) + channel(1字节) + datagram
*/

var (
	ErrSocketClosed  = errors.New("socket closed")
	ErrFrameTooLarge = errors.New("frame too large")
	ErrBadHead       = errors.New("head must be 2 or 4")
)

// Handler hears every event of the connections of one gate. OnFrame runs on
// the reading goroutine, body is only valid during the call.
type Handler interface {
	OnOpen(c *Conn)
	OnFrame(c *Conn, ch datagram.Channel, body []byte)
	OnClose(c *Conn, err error)
}

// Peers is the replication side of a connection, *netobj.Replicator
type Peers interface {
	Connect(c datagram.Connection) error
	Disconnect(id uuid.UUID)
}

// Bridge feeds frames to a MessageDirector and tells peers about
// connections coming and going
type Bridge struct {
	Director *datagram.MessageDirector
	Peers    Peers
}

func (b *Bridge) OnOpen(c *Conn) {
	if b.Peers == nil {
		return
	}
	if err := b.Peers.Connect(c); err != nil {
		c.logger().Error().Err(err).Msg("handshake")
		c.Close()
	}
}

func (b *Bridge) OnFrame(c *Conn, ch datagram.Channel, body []byte) {
	b.Director.Receive(c, body, ch)
}

func (b *Bridge) OnClose(c *Conn, err error) {
	if b.Peers != nil {
		b.Peers.Disconnect(c.ID())
	}
}

func checkHead(head int) error {
	if head != 2 && head != 4 {
		return ErrBadHead
	}
	return nil
}

func maxFrame(head int) int {
	if head == 2 {
		return 0xFFFF
	}
	return 0x7FFFFFFF
}

// DefaultMaxRead bounds an inbound frame unless WithMaxRead says otherwise
const DefaultMaxRead = 1 << 20

// readLimit is the largest inbound frame body a head can announce, n <= 0
// takes the default
func readLimit(head int, n int) int {
	if n <= 0 {
		n = DefaultMaxRead
	}
	return gutil.Min(n, maxFrame(head))
}

func WriteSize(buf []byte, head int, size int) {
	switch head {
	case 2:
		buf[0] = uint8(size >> 8)
		buf[1] = uint8(size)
	case 4:
		buf[0] = uint8(size >> 24)
		buf[1] = uint8(size >> 16)
		buf[2] = uint8(size >> 8)
		buf[3] = uint8(size)
	}
}

func ReadHead(head int, buf []byte) (packSize int) {
	switch head {
	case 2:
		packSize = (int(buf[0]) << 8) + int(buf[1])
	case 4:
		packSize = (int(buf[0]) << 24) + (int(buf[1]) << 16) + (int(buf[2]) << 8) + int(buf[3])
	}
	return
}
