package console

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/liangmanlin/netsync/kernel"
)

// Server answers console requests on a listener, one json Command per line
// each way
type Server struct {
	c   *Console
	ln  net.Listener
	wg  sync.WaitGroup
	mux sync.Mutex
	cs  map[net.Conn]struct{}
}

func NewServer(c *Console, ln net.Listener) *Server {
	return &Server{c: c, ln: ln, cs: make(map[net.Conn]struct{})}
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve blocks until the listener is closed
func (s *Server) Serve() error {
	kernel.ErrorLog("console listen on %s", s.ln.Addr())
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "console accept")
		}
		s.mux.Lock()
		s.cs[conn] = struct{}{}
		s.mux.Unlock()
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.mux.Lock()
	for c := range s.cs {
		_ = c.Close()
	}
	s.mux.Unlock()
	s.wg.Wait()
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer kernel.Catch()
	defer func() {
		_ = conn.Close()
		s.mux.Lock()
		delete(s.cs, conn)
		s.mux.Unlock()
	}()
	dec := json.NewDecoder(bufio.NewReader(conn))
	enc := json.NewEncoder(conn)
	for {
		var m Command
		if err := dec.Decode(&m); err != nil {
			return
		}
		var rs interface{}
		if m.Type == TypeList {
			list, _ := json.Marshal(s.c.Commands())
			rs = &Command{Type: TypeList, Command: string(list)}
		} else {
			kernel.ErrorLog("recv command from %s: %s", conn.RemoteAddr(), m.Command)
			rs = s.c.Exec(m.Command)
		}
		if err := enc.Encode(rs); err != nil {
			return
		}
	}
}

// Client calls a remote console, calls are serialized
type Client struct {
	mux  sync.Mutex
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "dial console %s", addr)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(bufio.NewReader(conn)),
	}, nil
}

func (c *Client) call(m *Command) (*Command, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if err := c.enc.Encode(m); err != nil {
		return nil, errors.Wrap(err, "send command")
	}
	var rs Command
	if err := c.dec.Decode(&rs); err != nil {
		return nil, errors.Wrap(err, "read answer")
	}
	return &rs, nil
}

func (c *Client) List() (map[string]Info, error) {
	rs, err := c.call(&Command{Type: TypeList})
	if err != nil {
		return nil, err
	}
	var list map[string]Info
	if err = json.Unmarshal([]byte(rs.Command), &list); err != nil {
		return nil, errors.Wrap(err, "decode command list")
	}
	return list, nil
}

func (c *Client) Call(line string) (*Command, error) {
	return c.call(&Command{Type: TypeCommand, Command: line})
}

func (c *Client) Close() error {
	return c.conn.Close()
}
