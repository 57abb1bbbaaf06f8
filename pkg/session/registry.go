package session

import (
	"sort"

	"troopd/internal/protocol"
)

// Registry tracks the live peer set, the id allocator, and the ack barrier
// used to synchronize a join. It is owned exclusively by the dispatch
// worker (§5), which mutates it through Session.Registry.
type Registry struct {
	peers map[int]*Peer
	lastID int

	awaitingAck bool
	acked       map[int]bool
}

// NewRegistry returns an empty registry with no peers and the allocator
// primed at its initial state (lastID = -1, per the allocation rule).
func NewRegistry() *Registry {
	return &Registry{
		peers:  make(map[int]*Peer),
		lastID: -1,
		acked:  make(map[int]bool),
	}
}

// AllocateID returns the next id to assign a newly authenticated peer, or
// protocol.RegistryFullID if every slot in the fixed alphabet is occupied.
//
// The fast path (lastID < K-1: increment and return) never needs to check
// occupancy because ids below lastID+1 have always already been handed out
// in order; only once the allocator has cycled through every id once does it
// fall back to scanning for a slot freed by an eviction.
func (r *Registry) AllocateID() int {
	if r.lastID < protocol.MaxPeers-1 {
		r.lastID++
		return r.lastID
	}
	for i := 0; i < protocol.MaxPeers; i++ {
		candidate := (r.lastID + 1 + i) % protocol.MaxPeers
		if _, taken := r.peers[candidate]; !taken {
			r.lastID = candidate
			return candidate
		}
	}
	return protocol.RegistryFullID
}

// Admit registers a peer under its already-allocated id.
func (r *Registry) Admit(p *Peer) {
	r.peers[p.ID] = p
}

// Evict removes a peer by id, returning it if it was registered.
func (r *Registry) Evict(id int) (*Peer, bool) {
	p, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
		delete(r.acked, id)
	}
	return p, ok
}

// Get returns the peer registered under id, if any.
func (r *Registry) Get(id int) (*Peer, bool) {
	p, ok := r.peers[id]
	return p, ok
}

// Len returns the number of currently registered peers.
func (r *Registry) Len() int { return len(r.peers) }

// InOrder returns every registered peer sorted by ascending id, the order the
// broadcast policy (§4.6) iterates in.
func (r *Registry) InOrder() []*Peer {
	ids := make([]int, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*Peer, len(ids))
	for i, id := range ids {
		out[i] = r.peers[id]
	}
	return out
}

// BeginAckBarrier starts a new join's acknowledgement barrier: clears the ack
// set and marks the registry as awaiting every current peer's CONNECT_ACK.
func (r *Registry) BeginAckBarrier() {
	r.awaitingAck = true
	r.acked = make(map[int]bool)
}

// RecordAck records that id has acknowledged the pending join. Once every
// registered peer has acked, the barrier clears.
func (r *Registry) RecordAck(id int) {
	if !r.awaitingAck {
		return
	}
	if _, ok := r.peers[id]; !ok {
		return
	}
	r.acked[id] = true
	if len(r.acked) >= len(r.peers) {
		r.awaitingAck = false
	}
}

// AwaitingAck reports whether the dispatch worker is currently holding a join
// barrier open, deferring all non-ack messages.
func (r *Registry) AwaitingAck() bool { return r.awaitingAck }
