package gate

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/liangmanlin/netsync/bpool"
	"github.com/liangmanlin/netsync/datagram"
	"github.com/liangmanlin/netsync/kernel"
)

// Conn is one framed stream connection, it implements datagram.Connection.
// A stream is ordered and reliable, so every reliability class travels the
// same way and only the channel byte is kept.
type Conn struct {
	id      uuid.UUID
	server  bool
	head    int
	maxRead int
	remote  string
	md      *datagram.MessageDirector
	handler Handler
	raw     io.WriteCloser

	mux    sync.Mutex
	w      *bpool.Writer
	hb     [4]byte
	closed atomic.Bool
	once   sync.Once

	// nbio 模式下的读缓冲
	buffer    *bpool.Buff
	totalSize int
}

func newConn(raw io.WriteCloser, remote string, server bool, head int, md *datagram.MessageDirector, h Handler) *Conn {
	return &Conn{
		id:      uuid.New(),
		server:  server,
		head:    head,
		maxRead: readLimit(head, 0),
		remote:  remote,
		md:      md,
		handler: h,
		raw:     raw,
		w:       bpool.NewWriter(raw),
	}
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// IsServer reports whether the other end of c is the server
func (c *Conn) IsServer() bool {
	return c.server
}

func (c *Conn) RemoteAddr() string {
	return c.remote
}

func (c *Conn) GetHead() int {
	return c.head
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func (c *Conn) logger() *zerolog.Logger {
	l := kernel.Logger().With().Str("conn", c.id.String()).Str("remote", c.remote).Logger()
	return &l
}

// Send encodes d and writes it as one frame on the channel of d
func (c *Conn) Send(d datagram.Datagram, r datagram.Reliability) error {
	p, err := c.md.Encode(d)
	if err != nil {
		return err
	}
	defer p.Free()
	return c.SendFrame(d.Channel(), p.Bytes())
}

// SendFrame writes body as one frame, head and channel byte included
func (c *Conn) SendFrame(ch datagram.Channel, body []byte) error {
	size := len(body) + 1
	if size > maxFrame(c.head) {
		return ErrFrameTooLarge
	}
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.closed.Load() {
		return ErrSocketClosed
	}
	WriteSize(c.hb[:], c.head, size)
	c.w.Write(c.hb[:c.head])
	c.w.WriteByte(byte(ch))
	c.w.Write(body)
	if err := c.w.Flush(); err != nil {
		c.mux.Unlock()
		c.shutdown(err)
		c.mux.Lock()
		return err
	}
	return nil
}

// deliver hands one frame without its head to the handler, an empty frame is
// a keep alive
func (c *Conn) deliver(frame []byte) {
	if len(frame) == 0 {
		return
	}
	kernel.CatchFun(func() {
		c.handler.OnFrame(c, datagram.Channel(frame[0]), frame[1:])
	})
}

func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// shutdown closes the socket once and reports it to the handler
func (c *Conn) shutdown(err error) {
	c.once.Do(func() {
		c.closed.Store(true)
		c.raw.Close()
		c.mux.Lock()
		c.w.Free()
		c.mux.Unlock()
		if err != nil && err != io.EOF {
			c.logger().Debug().Err(err).Msg("connection closed")
		}
		kernel.CatchFun(func() { c.handler.OnClose(c, err) })
	})
}
