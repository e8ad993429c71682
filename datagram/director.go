package datagram

import (
	"fmt"
	"log"
	"sync"

	"github.com/go-faster/errors"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/metrics"
	"github.com/liangmanlin/netsync/ringbuffer"
)

type Handler func(sender Connection, d Datagram)

type typeEntry struct {
	name    string
	factory func() Datagram
}

type inbound struct {
	sender  Connection
	d       Datagram
	channel Channel
}

// MessageDirector decodes raw datagrams and routes them to handlers.
// Control datagrams are dispatched on the receiving goroutine, the others are
// queued until Dispatch runs on the tick goroutine.
type MessageDirector struct {
	codecs  *codec.Registry
	metrics *metrics.Metrics

	mux      sync.RWMutex
	types    map[Header]typeEntry
	handlers map[Header][]Handler

	qmux  sync.Mutex
	queue *ringbuffer.SingleRingBuffer[inbound]
}

func NewMessageDirector(codecs *codec.Registry, m *metrics.Metrics) *MessageDirector {
	if m == nil {
		m = metrics.Nop()
	}
	md := &MessageDirector{
		codecs:   codecs,
		metrics:  m,
		types:    make(map[Header]typeEntry),
		handlers: make(map[Header][]Handler),
		queue:    ringbuffer.NewSingleRingBuffer[inbound](64, 1024),
	}
	md.Register(HeaderHello, "hello", func() Datagram { return &Hello{} })
	md.Register(HeaderSpawn, "spawn", func() Datagram { return &Spawn{} })
	md.Register(HeaderDespawn, "despawn", func() Datagram { return &Despawn{} })
	md.Register(HeaderObjectUpdate, "object_update", func() Datagram { return &ObjectUpdate{} })
	md.Register(HeaderObjectState, "object_state", func() Datagram { return &ObjectState{} })
	return md
}

func (md *MessageDirector) Codecs() *codec.Registry {
	return md.codecs
}

// Register adds a datagram type, a header can only be taken once
func (md *MessageDirector) Register(h Header, name string, factory func() Datagram) {
	md.mux.Lock()
	defer md.mux.Unlock()
	if old, ok := md.types[h]; ok {
		log.Panic(fmt.Errorf("datagram header %d already used by %s", h, old.name))
	}
	md.types[h] = typeEntry{name: name, factory: factory}
}

func (md *MessageDirector) OnDatagramReceived(h Header, fn Handler) {
	md.mux.Lock()
	md.handlers[h] = append(md.handlers[h], fn)
	md.mux.Unlock()
}

func (md *MessageDirector) Name(h Header) string {
	md.mux.RLock()
	defer md.mux.RUnlock()
	if e, ok := md.types[h]; ok {
		return e.name
	}
	return fmt.Sprintf("unknown(%d)", h)
}

// Encode packs d with the codec registry of this director
func (md *MessageDirector) Encode(d Datagram) (*codec.BytePayload, error) {
	return Encode(md.codecs, d)
}

// Receive decodes one raw datagram from sender. A bad datagram is logged,
// counted and dropped, the returned error is informational only.
func (md *MessageDirector) Receive(sender Connection, raw []byte, ch Channel) error {
	if len(raw) == 0 {
		md.drop(metrics.DropDecode)
		return ErrEmpty
	}
	h := Header(raw[0])
	md.mux.RLock()
	entry, ok := md.types[h]
	md.mux.RUnlock()
	if !ok {
		md.drop(metrics.DropUnknownType)
		kernel.Logger().Error().
			Uint8("datagram", raw[0]).
			Str("channel", ch.String()).
			Msg("unknown datagram type dropped")
		return errors.Wrapf(ErrUnknownType, "header %d", h)
	}
	d := entry.factory()
	p := codec.FromBytes(md.codecs, raw[1:])
	err := d.ReadFrom(p)
	p.Free()
	if err != nil {
		md.drop(metrics.DropDecode)
		kernel.Logger().Error().
			Str("datagram", entry.name).
			Str("channel", ch.String()).
			Err(err).
			Msg("datagram dropped")
		return errors.Wrapf(err, "decode %s", entry.name)
	}
	md.metrics.DatagramsReceived.WithLabelValues(entry.name).Inc()
	in := inbound{sender: sender, d: d, channel: ch}
	// 只有控制类型的包在读协程里直接处理，线路上的通道号不算数
	if d.Channel() == ChannelControl {
		md.dispatch(in)
		return nil
	}
	md.qmux.Lock()
	md.queue.Put(in)
	md.qmux.Unlock()
	return nil
}

// Dispatch hands every queued datagram to its handlers and returns how many
// were dispatched
func (md *MessageDirector) Dispatch() int {
	md.qmux.Lock()
	batch := md.queue.Drain(nil)
	md.qmux.Unlock()
	for _, in := range batch {
		md.dispatch(in)
	}
	return len(batch)
}

func (md *MessageDirector) Pending() int {
	md.qmux.Lock()
	defer md.qmux.Unlock()
	return md.queue.Size()
}

func (md *MessageDirector) dispatch(in inbound) {
	h := in.d.Header()
	md.mux.RLock()
	hs := md.handlers[h]
	md.mux.RUnlock()
	if len(hs) == 0 {
		md.drop(metrics.DropNoHandler)
		kernel.DebugLog("no handler for datagram %s", md.Name(h))
		return
	}
	for _, fn := range hs {
		kernel.CatchFun(func() { fn(in.sender, in.d) })
	}
}

func (md *MessageDirector) drop(reason string) {
	md.metrics.DatagramsDropped.WithLabelValues(reason).Inc()
}
