package gate

import (
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/lesismal/nbio"

	"github.com/liangmanlin/netsync/datagram"
	"github.com/liangmanlin/netsync/kernel"
)

// Server accepts client connections and frames them for a MessageDirector
type Server struct {
	name    string
	addr    string
	opt     *optStruct
	md      *datagram.MessageDirector
	handler Handler

	g  *nbio.Gopher
	ls net.Listener
	wg sync.WaitGroup

	mux   sync.Mutex
	conns map[uuid.UUID]*Conn
}

func NewServer(name, addr string, md *datagram.MessageDirector, h Handler, opt ...optFun) *Server {
	return &Server{
		name:    name,
		addr:    addr,
		opt:     parseOpt(opt),
		md:      md,
		handler: h,
		conns:   make(map[uuid.UUID]*Conn),
	}
}

func (s *Server) Start() error {
	if err := checkHead(s.opt.head); err != nil {
		return err
	}
	if s.opt.isUseNbio {
		return s.startNbio()
	}
	ls, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	// 假如port=0，那么端口是随机的，记录一下
	s.addr = ls.Addr().String()
	s.ls = ls
	for i := 0; i < s.opt.acceptNum; i++ {
		s.wg.Add(1)
		go s.accept(ls)
	}
	kernel.Logger().Info().Str("gate", s.name).Str("addr", s.addr).Msg("gate start")
	return nil
}

func (s *Server) startNbio() error {
	g := nbio.NewGopher(nbio.Config{
		Name:           s.name,
		Network:        "tcp",
		Addrs:          []string{s.addr},
		ReadBufferSize: 1024,
		EpollMod:       nbio.EPOLLET, // 边缘模式
	})
	g.OnOpen(func(c *nbio.Conn) {
		conn := newConn(c, c.RemoteAddr().String(), false, s.opt.head, s.md, s)
		conn.maxRead = readLimit(s.opt.head, s.opt.maxRead)
		c.SetSession(conn)
		s.OnOpen(conn)
	})
	g.OnClose(func(c *nbio.Conn, err error) {
		if conn, ok := c.Session().(*Conn); ok {
			conn.freeReadBuf()
			conn.shutdown(err)
		}
	})
	g.OnData(func(c *nbio.Conn, data []byte) {
		if conn, ok := c.Session().(*Conn); ok {
			conn.onData(data)
		}
	})
	if err := g.Start(); err != nil {
		return err
	}
	s.g = g
	kernel.Logger().Info().Str("gate", s.name).Str("addr", s.addr).Msg("gate start on nbio")
	return nil
}

func (s *Server) accept(ls net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ls.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				kernel.Logger().Error().Str("gate", s.name).Err(err).Msg("accept")
			}
			return
		}
		c := newConn(conn, conn.RemoteAddr().String(), false, s.opt.head, s.md, s)
		c.maxRead = readLimit(s.opt.head, s.opt.maxRead)
		s.OnOpen(c)
		go startReader(c, conn)
	}
}

// Addr is the listening address, the real port when started on port 0
func (s *Server) Addr() string {
	return s.addr
}

// Stop stops accepting and closes every open connection
func (s *Server) Stop() {
	if s.g != nil {
		s.g.Stop()
		s.g = nil
	}
	if s.ls != nil {
		s.ls.Close()
		s.wg.Wait()
		s.ls = nil
	}
	for _, c := range s.Conns() {
		c.Close()
	}
}

func (s *Server) Conns() []*Conn {
	s.mux.Lock()
	defer s.mux.Unlock()
	rs := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		rs = append(rs, c)
	}
	return rs
}

func (s *Server) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.conns)
}

func (s *Server) OnOpen(c *Conn) {
	s.mux.Lock()
	s.conns[c.id] = c
	s.mux.Unlock()
	s.opt.metrics.Connections.Inc()
	kernel.Logger().Debug().Str("gate", s.name).Str("remote", c.remote).Msg("connection open")
	s.handler.OnOpen(c)
}

func (s *Server) OnFrame(c *Conn, ch datagram.Channel, body []byte) {
	s.handler.OnFrame(c, ch, body)
}

func (s *Server) OnClose(c *Conn, err error) {
	s.mux.Lock()
	_, ok := s.conns[c.id]
	delete(s.conns, c.id)
	s.mux.Unlock()
	if ok {
		s.opt.metrics.Connections.Dec()
	}
	s.handler.OnClose(c, err)
}
