package netobj

import (
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/liangmanlin/netsync/codec"
	"github.com/liangmanlin/netsync/datagram"
	"github.com/liangmanlin/netsync/kernel"
	"github.com/liangmanlin/netsync/metrics"
)

// MaxRecordBytes is where a batch of records is cut into a new datagram
const MaxRecordBytes = 1024

type audience uint8

const (
	toAll audience = iota
	toOwner
	toServer
	audiences
)

type peer struct {
	conn    datagram.Connection
	refused map[string]bool
	ready   bool
	synced  bool
	// fresh peers got their full state in this flush
	fresh bool
}

func (p *peer) accepts(typeName string) bool {
	return p.ready && !p.refused[typeName]
}

type recordBatch struct {
	p     *codec.BytePayload
	count uint8
}

// Replicator moves updates between the local ObjectService and its peers.
// Tick runs on the tick goroutine, Connect and the handshake may come from
// the gate goroutines.
type Replicator struct {
	service  *ObjectService
	director *datagram.MessageDirector
	metrics  *metrics.Metrics

	mux   sync.Mutex
	peers map[uuid.UUID]*peer

	batch   []*Update
	records [2][audiences]recordBatch
	fresh   int
}

func NewReplicator(s *ObjectService, md *datagram.MessageDirector) *Replicator {
	r := &Replicator{
		service:  s,
		director: md,
		metrics:  s.metrics,
		peers:    make(map[uuid.UUID]*peer),
	}
	for i := range r.records {
		for j := range r.records[i] {
			r.records[i][j].p = codec.NewPayloadSize(s.codecs, MaxRecordBytes)
		}
	}
	md.OnDatagramReceived(datagram.HeaderHello, r.onHello)
	md.OnDatagramReceived(datagram.HeaderSpawn, r.onSpawn)
	md.OnDatagramReceived(datagram.HeaderDespawn, r.onDespawn)
	md.OnDatagramReceived(datagram.HeaderObjectState, r.onState)
	md.OnDatagramReceived(datagram.HeaderObjectUpdate, r.onUpdate)
	s.Observe(r)
	return r
}

// Hello lists the local network types with their fingerprints
func (r *Replicator) Hello() *datagram.Hello {
	h := &datagram.Hello{}
	for _, reg := range r.service.Registrations() {
		h.Types = append(h.Types, reg.name)
		h.Fingerprints = append(h.Fingerprints, reg.fingerprint)
	}
	return h
}

// Connect adds a peer and sends it the handshake
func (r *Replicator) Connect(c datagram.Connection) error {
	r.mux.Lock()
	if _, ok := r.peers[c.ID()]; !ok {
		r.peers[c.ID()] = &peer{conn: c, refused: make(map[string]bool)}
	}
	r.mux.Unlock()
	return c.Send(r.Hello(), datagram.Reliable)
}

func (r *Replicator) Disconnect(id uuid.UUID) {
	r.mux.Lock()
	delete(r.peers, id)
	r.mux.Unlock()
}

func (r *Replicator) Peers() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.peers)
}

// Refused reports whether peer id declined typeName in its handshake
func (r *Replicator) Refused(id uuid.UUID, typeName string) bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	p, ok := r.peers[id]
	return ok && p.refused[typeName]
}

// Tick dispatches queued datagrams, advances the service and flushes
func (r *Replicator) Tick() {
	start := time.Now()
	r.director.Dispatch()
	r.service.Tick()
	r.Flush()
	r.metrics.TickDuration.Observe(time.Since(start).Seconds())
}

// Flush sends the full world to peers that finished their handshake since
// the last flush, then every pending update. A fresh peer's state already
// holds the values of members with a getter, it only gets the others.
func (r *Replicator) Flush() {
	if r.service.IsServer() {
		joiners := r.joining()
		r.fresh = len(joiners)
		for _, p := range joiners {
			r.service.Each(func(a *ObjectAgent) bool {
				if a.State() == StateGenerated || a.State() == StateDisabled {
					r.sendSpawn(p, a)
				}
				return true
			})
		}
	}
	r.service.Each(func(a *ObjectAgent) bool {
		r.flushLane(a, a.reliable, datagram.ChannelReliable)
		r.flushLane(a, a.snapshot, datagram.ChannelSnapshot)
		return true
	})
	if r.fresh > 0 {
		r.mux.Lock()
		for _, p := range r.peers {
			p.fresh = false
		}
		r.mux.Unlock()
		r.fresh = 0
	}
}

func (r *Replicator) joining() []*peer {
	r.mux.Lock()
	defer r.mux.Unlock()
	var rs []*peer
	for _, p := range r.peers {
		if p.ready && !p.synced {
			p.synced = true
			p.fresh = true
			rs = append(rs, p)
		}
	}
	return rs
}

func (r *Replicator) audienceOf(m *MemberDefinition) (audience, bool) {
	switch {
	case !r.service.IsServer():
		return toServer, m.Flags.Has(ClientSend)
	case m.Flags.Has(Broadcast):
		return toAll, true
	case m.Flags.Has(OwnerSend):
		return toOwner, true
	}
	return 0, false
}

func (r *Replicator) flushLane(a *ObjectAgent, q *UpdateQueue, lane datagram.Channel) {
	r.batch = q.Flush(r.batch[:0])
	if len(r.batch) == 0 {
		return
	}
	sent := 0
	for _, u := range r.batch {
		to, ok := r.audienceOf(u.member)
		if !ok {
			continue
		}
		b := &r.records[0][to]
		var err error
		if base, has := a.deltaBase(u.member); has && u.member.Flags.Has(Delta) {
			err = u.WriteDeltaTo(b.p, base)
		} else {
			err = u.WriteTo(b.p)
		}
		if err != nil {
			kernel.Logger().Error().Int32("object_id", a.ID()).Err(err).Msg("update not sent")
			continue
		}
		if r.fresh > 0 && !u.member.HasGetter() {
			if fb := &r.records[1][to]; u.WriteTo(fb.p) == nil {
				fb.count++
				if fb.count == 255 || fb.p.Len() >= MaxRecordBytes {
					r.emit(a, to, lane, true)
				}
			}
		}
		if u.member.Flags.Has(Delta) {
			a.markSent(u.member, u.args[0])
		}
		sent++
		b.count++
		if b.count == 255 || b.p.Len() >= MaxRecordBytes {
			r.emit(a, to, lane, false)
		}
	}
	for i := range r.records {
		for to := range r.records[i] {
			if r.records[i][to].count > 0 {
				r.emit(a, audience(to), lane, i == 1)
			}
		}
	}
	disposeAll(r.batch)
	for i := range r.batch {
		r.batch[i] = nil
	}
	r.metrics.UpdatesSent.WithLabelValues(lane.String()).Add(float64(sent))
}

func (r *Replicator) emit(a *ObjectAgent, to audience, lane datagram.Channel, fresh bool) {
	b := &r.records[0][to]
	if fresh {
		b = &r.records[1][to]
	}
	d := &datagram.ObjectUpdate{
		ObjectID: a.ID(),
		Count:    b.count,
		Records:  append([]byte(nil), b.p.Bytes()...),
		Lane:     lane,
	}
	b.p.Reset()
	b.count = 0
	for _, p := range r.targets(a, to, fresh) {
		r.send(p, d)
	}
}

func (r *Replicator) targets(a *ObjectAgent, to audience, fresh bool) []*peer {
	r.mux.Lock()
	defer r.mux.Unlock()
	var rs []*peer
	for id, p := range r.peers {
		if !p.synced || p.fresh != fresh || !p.accepts(a.reg.name) {
			continue
		}
		if to == toOwner && id != a.Owner() || to == toServer && !p.conn.IsServer() {
			continue
		}
		rs = append(rs, p)
	}
	return rs
}

func (r *Replicator) send(p *peer, d datagram.Datagram) {
	if err := p.conn.Send(d, datagram.ReliabilityOf(d.Channel())); err != nil {
		kernel.Logger().Error().
			Str("peer", p.conn.ID().String()).
			Str("datagram", r.director.Name(d.Header())).
			Err(err).
			Msg("send failed")
	}
}

func (r *Replicator) sendSpawn(p *peer, a *ObjectAgent) {
	if !p.accepts(a.reg.name) {
		return
	}
	r.send(p, &datagram.Spawn{ObjectID: a.ID(), Type: codec.Str8(a.reg.name), Owner: a.Owner()})
	s := a.snapshotAt(r.service.Now())
	pl := codec.NewPayload(r.service.codecs)
	defer pl.Free()
	count, err := s.WriteRecords(pl)
	if err != nil {
		kernel.Logger().Error().Int32("object_id", a.ID()).Err(err).Msg("state not sent")
		return
	}
	r.send(p, &datagram.ObjectState{
		ObjectID: a.ID(),
		Time:     s.Time,
		Snapshot: s.Header,
		Count:    count,
		Records:  append([]byte(nil), pl.Bytes()...),
	})
}

func (r *Replicator) syncedPeers() []*peer {
	r.mux.Lock()
	defer r.mux.Unlock()
	var rs []*peer
	for _, p := range r.peers {
		if p.synced {
			rs = append(rs, p)
		}
	}
	return rs
}

// ObjectCreated announces a new server object to every synced peer
func (r *Replicator) ObjectCreated(a *ObjectAgent) {
	if !r.service.IsServer() {
		return
	}
	for _, p := range r.syncedPeers() {
		r.sendSpawn(p, a)
	}
}

func (r *Replicator) ObjectDeleted(a *ObjectAgent) {
	if !r.service.IsServer() {
		return
	}
	d := &datagram.Despawn{ObjectID: a.ID()}
	for _, p := range r.syncedPeers() {
		if p.accepts(a.reg.name) {
			r.send(p, d)
		}
	}
}

func (r *Replicator) drop(reason string) {
	r.metrics.DatagramsDropped.WithLabelValues(reason).Inc()
}

func (r *Replicator) dropErr(id int32, err error) {
	reason := metrics.DropDecode
	if errors.Is(err, ErrSchemaMismatch) {
		reason = metrics.DropSchemaMismatch
	}
	r.drop(reason)
	kernel.Logger().Error().Int32("object_id", id).Err(err).Msg("records dropped")
}

func (r *Replicator) onHello(sender datagram.Connection, d datagram.Datagram) {
	h := d.(*datagram.Hello)
	remote := make(map[string]string, len(h.Types))
	for i, name := range h.Types {
		remote[name] = h.Fingerprints[i]
	}
	refused := make(map[string]bool)
	for _, reg := range r.service.Registrations() {
		if fp, ok := remote[reg.name]; !ok || fp != reg.fingerprint {
			refused[reg.name] = true
			kernel.Logger().Error().
				Str("peer", sender.ID().String()).
				Str("type", reg.name).
				Msg("schema mismatch, type refused")
		}
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	p, ok := r.peers[sender.ID()]
	if !ok {
		p = &peer{conn: sender}
		r.peers[sender.ID()] = p
	}
	p.refused = refused
	p.ready = true
	if !r.service.IsServer() {
		p.synced = true
	}
}

// fromServer is true for datagrams a client takes from its server
func (r *Replicator) fromServer(sender datagram.Connection) bool {
	if r.service.IsServer() || !sender.IsServer() {
		r.drop(metrics.DropUnauthorized)
		return false
	}
	return true
}

func (r *Replicator) onSpawn(sender datagram.Connection, d datagram.Datagram) {
	if !r.fromServer(sender) {
		return
	}
	sp := d.(*datagram.Spawn)
	if _, err := r.service.CreateWithID(sp.ObjectID, string(sp.Type), sp.Owner); err != nil {
		r.drop(metrics.DropSchemaMismatch)
		kernel.Logger().Error().Int32("object_id", sp.ObjectID).Err(err).Msg("spawn dropped")
	}
}

func (r *Replicator) onDespawn(sender datagram.Connection, d datagram.Datagram) {
	if !r.fromServer(sender) {
		return
	}
	if id := d.(*datagram.Despawn).ObjectID; !r.service.DeleteNow(id) {
		r.drop(metrics.DropUnknownObject)
	}
}

func (r *Replicator) onState(sender datagram.Connection, d datagram.Datagram) {
	if !r.fromServer(sender) {
		return
	}
	st := d.(*datagram.ObjectState)
	a, ok := r.service.Get(st.ObjectID)
	if !ok {
		r.drop(metrics.DropUnknownObject)
		return
	}
	if r.Refused(sender.ID(), a.reg.name) {
		r.drop(metrics.DropSchemaMismatch)
		return
	}
	p := codec.FromBytes(r.service.codecs, st.Records)
	defer p.Free()
	var err error
	if a.State() == StateWaitingForState {
		err = r.service.Generate(a, p, int(st.Count))
	} else {
		err = a.ApplyRecords(p, int(st.Count))
	}
	if err != nil {
		r.dropErr(st.ObjectID, err)
	}
}

func (r *Replicator) onUpdate(sender datagram.Connection, d datagram.Datagram) {
	ou := d.(*datagram.ObjectUpdate)
	a, ok := r.service.Get(ou.ObjectID)
	if !ok || !Live.Has(a.State()) {
		r.drop(metrics.DropUnknownObject)
		return
	}
	if r.Refused(sender.ID(), a.reg.name) {
		r.drop(metrics.DropSchemaMismatch)
		return
	}
	p := codec.FromBytes(r.service.codecs, ou.Records)
	updates, err := a.decodeRecords(p, int(ou.Count))
	p.Free()
	if err != nil {
		r.dropErr(ou.ObjectID, err)
		return
	}
	if !r.authorized(sender, a, updates) {
		disposeAll(updates)
		r.drop(metrics.DropUnauthorized)
		return
	}
	for _, u := range updates {
		u.Invoke()
		// 服务端转发给其他连接
		if !r.service.IsServer() || !r.service.sends(u.member) || !a.TryEnqueue(u) {
			u.Dispose()
		}
	}
	r.metrics.UpdatesApplied.Add(float64(len(updates)))
}

// authorized checks the direction of every update: a server only takes
// client members from the owner, a client only takes updates from its server
func (r *Replicator) authorized(sender datagram.Connection, a *ObjectAgent, updates []*Update) bool {
	if !r.service.IsServer() {
		return sender.IsServer()
	}
	if sender.ID() != a.Owner() {
		return false
	}
	for _, u := range updates {
		if !u.member.Flags.Has(ClientSend) {
			return false
		}
	}
	return true
}
