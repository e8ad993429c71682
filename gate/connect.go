package gate

import (
	"net"
	"time"

	"github.com/liangmanlin/netsync/datagram"
)

const dialTimeout = 5 * time.Second

// Dial connects a client to the gate at addr, the returned Conn is already
// reading
func Dial(addr string, md *datagram.MessageDirector, h Handler, opt ...optFun) (*Conn, error) {
	o := parseOpt(opt)
	if err := checkHead(o.head); err != nil {
		return nil, err
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, err
	}
	return attach(conn, true, o.head, o.maxRead, md, h), nil
}

// Attach frames an established socket and starts reading it. server tells
// whether the other end is the server.
func Attach(conn net.Conn, server bool, head int, md *datagram.MessageDirector, h Handler) *Conn {
	return attach(conn, server, head, 0, md, h)
}

func attach(conn net.Conn, server bool, head, maxRead int, md *datagram.MessageDirector, h Handler) *Conn {
	c := newConn(conn, conn.RemoteAddr().String(), server, head, md, h)
	c.maxRead = readLimit(head, maxRead)
	h.OnOpen(c)
	go startReader(c, conn)
	return c
}
