package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"troopd/internal/protocol"
	"troopd/pkg/logger"
	"troopd/pkg/session"
)

// Inbound is one unit of work handed from a connection handler to the
// dispatch worker. Peer is the handler's own Peer record, reused across
// every message from that connection so the dispatch worker never needs a
// separate address-to-peer lookup. Disconnect marks a synthetic item raised
// when the handler's socket read fails or returns empty.
type Inbound struct {
	Peer       *session.Peer
	Msg        *protocol.Message
	Disconnect bool
}

// queue is the multi-producer, single-consumer inbound message queue.
// Producers (connection handlers) never block; the dispatch worker drains it
// with a non-blocking pop, sleeping briefly when empty rather than blocking
// on a channel receive, per the polling model this server's ordering and
// cancellation guarantees are built on.
type queue struct {
	mu    sync.Mutex
	items []Inbound
}

func (q *queue) push(item Inbound) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

func (q *queue) tryPop() (Inbound, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Inbound{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

type idRequest struct {
	resp chan int
}

// Dispatcher owns the session (document, log, annotation, registry) and
// fans inbound messages out to every connected peer. It is the only writer
// of session state; exactly one goroutine runs Dispatcher.Run.
type Dispatcher struct {
	session *session.Session
	queue   *queue
	deferred []Inbound

	idRequests chan idRequest

	logSink   *logSink
	startMono time.Time
}

// NewDispatcher returns a dispatcher over a fresh, empty session. logSink may
// be nil to disable logging.
func NewDispatcher(logSink *logSink) *Dispatcher {
	return &Dispatcher{
		session:    session.New(),
		queue:      &queue{},
		idRequests: make(chan idRequest, 8),
		logSink:    logSink,
		startMono:  time.Now(),
	}
}

// Enqueue hands one connection's message to the dispatch worker. Never
// blocks.
func (d *Dispatcher) Enqueue(item Inbound) {
	d.queue.push(item)
}

// RequestID performs a synchronous id-allocation round trip with the dispatch
// worker, since id allocation is a registry mutation and registry mutations
// happen only on the dispatch worker (§5).
func (d *Dispatcher) RequestID(ctx context.Context) (int, error) {
	req := idRequest{resp: make(chan int, 1)}
	select {
	case d.idRequests <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case id := <-req.resp:
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Run drives the dispatch loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	const pollInterval = 10 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.idRequests:
			req.resp <- d.session.Registry.AllocateID()
			continue
		default:
		}

		item, ok := d.queue.tryPop()
		if !ok {
			time.Sleep(pollInterval)
			continue
		}
		d.process(item)
	}
}

func (d *Dispatcher) process(item Inbound) {
	if item.Disconnect {
		d.evict(item.Peer.ID)
		return
	}

	msg := item.Msg

	if d.session.Registry.AwaitingAck() {
		if msg.Type == protocol.ConnectAck {
			d.session.Registry.RecordAck(item.Peer.ID)
			if !d.session.Registry.AwaitingAck() {
				d.drainDeferred()
			}
			return
		}
		d.deferred = append(d.deferred, item)
		return
	}

	switch {
	case msg.Type == protocol.ConnectAck:
		d.session.Registry.RecordAck(item.Peer.ID)
	case msg.Type == protocol.Connect:
		if _, registered := d.session.Registry.Get(item.Peer.ID); !registered {
			d.join(item.Peer, msg)
		}
	case msg.Type == protocol.Operation:
		d.handleOperation(item.Peer, msg)
	default:
		d.logMessage(msg)
		d.broadcast(msg)
	}
}

// drainDeferred replays every message the ack barrier held back, in the
// order it arrived, now that every peer has acknowledged the join.
func (d *Dispatcher) drainDeferred() {
	pending := d.deferred
	d.deferred = nil
	for _, item := range pending {
		d.process(item)
	}
}

func (d *Dispatcher) handleOperation(p *session.Peer, msg *protocol.Message) {
	transformed, err := d.session.ReceiveOperation(p.ID, msg.Revision, msg.Operation)
	if err != nil {
		logger.Error("dispatch: dropping operation from peer %d: %v", p.ID, err)
		return
	}
	out := protocol.NewOperation(p.ID, msg.Revision, transformed, msg.Reply == 1)
	d.logMessage(out)
	d.broadcast(out)
}

// join runs the admission sequence for a newly authenticated peer announcing
// itself with CONNECT: open the ack barrier, admit it, announce it to
// everyone (including itself), introduce every existing peer to it, request
// acks from everyone, and re-baseline the session at revision 0.
func (d *Dispatcher) join(p *session.Peer, msg *protocol.Message) {
	p.Name, p.Hostname, p.Port = msg.Name, msg.Hostname, msg.Port

	d.session.Registry.BeginAckBarrier()
	d.session.Registry.Admit(p)

	announce := protocol.NewConnect(p.ID, p.Name, p.Hostname, p.Port)
	announce.Reply = 1 // deliver to the new peer too, not just the others
	d.broadcast(announce)

	for _, other := range d.session.Registry.InOrder() {
		if other.ID == p.ID {
			continue
		}
		d.sendTo(p, protocol.NewConnect(other.ID, other.Name, other.Hostname, other.Port))
	}

	d.broadcast(protocol.NewRequestAck())

	d.session.Engine.Reset()
	d.broadcast(protocol.NewReset(
		d.session.Engine.Document(),
		session.RunsToRanges(d.session.RLE()),
		d.session.Locs(),
	))
}

// Notice broadcasts a RESPONSE message from the server, the equivalent of a
// line the original process would have written to its own console.
func (d *Dispatcher) Notice(format string, args ...any) {
	d.broadcast(protocol.NewResponse(fmt.Sprintf(format, args...)))
}

// Shutdown broadcasts KILL to every connected peer ahead of the listener
// closing.
func (d *Dispatcher) Shutdown(text string) {
	d.broadcast(protocol.NewKill(text))
}

// broadcast transmits msg to every registered peer in id order, skipping the
// author unless msg.Reply == 1. A transmit failure evicts that peer and
// broadcasts REMOVE to the survivors.
func (d *Dispatcher) broadcast(msg *protocol.Message) {
	for _, p := range d.session.Registry.InOrder() {
		if p.ID == msg.SrcID && msg.Reply != 1 {
			continue
		}
		if !d.sendTo(p, msg) {
			d.evict(p.ID)
		}
	}
}

// sendTo transmits msg to exactly one peer, unconditionally. Returns false on
// a transmit failure so the caller can evict.
func (d *Dispatcher) sendTo(p *session.Peer, msg *protocol.Message) bool {
	frame, err := protocol.Encode(msg)
	if err != nil {
		logger.Error("dispatch: encode failed for peer %d: %v", p.ID, err)
		return true // not a dead client, just a bad message; don't evict for it
	}
	if err := p.Send(frame); err != nil {
		return false
	}
	return true
}

func (d *Dispatcher) evict(id int) {
	if _, ok := d.session.Registry.Evict(id); !ok {
		return
	}
	d.broadcast(protocol.NewRemove(id))
}

func (d *Dispatcher) logMessage(msg *protocol.Message) {
	if d.logSink == nil {
		return
	}
	repr, err := json.Marshal(msg)
	if err != nil {
		return
	}
	seconds := time.Since(d.startMono).Seconds()
	d.logSink.WriteLine(fmt.Sprintf("%.4f %s", seconds, repr))
}
