package session

import (
	"testing"

	"troopd/internal/protocol"
)

func TestAllocateIDIncrementsFromZero(t *testing.T) {
	r := NewRegistry()
	for want := 0; want < 5; want++ {
		if got := r.AllocateID(); got != want {
			t.Fatalf("AllocateID() = %d, want %d", got, want)
		}
		r.Admit(&Peer{ID: want})
	}
}

func TestAllocateIDReusesFreedSlot(t *testing.T) {
	r := NewRegistry()
	ids := make([]int, protocol.MaxPeers)
	for i := range ids {
		ids[i] = r.AllocateID()
		r.Admit(&Peer{ID: ids[i]})
	}

	// Registry is saturated; evict id 3 and confirm it is the next one handed out.
	r.Evict(3)
	if got := r.AllocateID(); got != 3 {
		t.Fatalf("AllocateID() after evicting 3 = %d, want 3", got)
	}
}

func TestAllocateIDFullRegistrySentinel(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < protocol.MaxPeers; i++ {
		id := r.AllocateID()
		r.Admit(&Peer{ID: id})
	}
	if got := r.AllocateID(); got != protocol.RegistryFullID {
		t.Fatalf("AllocateID() on full registry = %d, want %d", got, protocol.RegistryFullID)
	}
}

func TestAllocateIDNeverReturnsLiveID(t *testing.T) {
	r := NewRegistry()
	live := make(map[int]bool)
	for i := 0; i < protocol.MaxPeers; i++ {
		id := r.AllocateID()
		if live[id] {
			t.Fatalf("AllocateID() returned live id %d", id)
		}
		live[id] = true
		r.Admit(&Peer{ID: id})
	}
}

func TestAckBarrier(t *testing.T) {
	r := NewRegistry()
	a := r.AllocateID()
	r.Admit(&Peer{ID: a})
	b := r.AllocateID()
	r.Admit(&Peer{ID: b})

	r.BeginAckBarrier()
	if !r.AwaitingAck() {
		t.Fatal("AwaitingAck() = false immediately after BeginAckBarrier")
	}

	r.RecordAck(a)
	if !r.AwaitingAck() {
		t.Fatal("AwaitingAck() = false after only one of two peers acked")
	}

	r.RecordAck(b)
	if r.AwaitingAck() {
		t.Fatal("AwaitingAck() = true after every registered peer acked")
	}
}

func TestAckBarrierIgnoresUnknownPeer(t *testing.T) {
	r := NewRegistry()
	a := r.AllocateID()
	r.Admit(&Peer{ID: a})

	r.BeginAckBarrier()
	r.RecordAck(999) // never registered
	if !r.AwaitingAck() {
		t.Fatal("AwaitingAck() cleared by an ack from an unregistered peer")
	}
}

func TestInOrderSortsAscending(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int{2, 0, 1} {
		r.Admit(&Peer{ID: id})
	}
	r.lastID = 2

	peers := r.InOrder()
	if len(peers) != 3 {
		t.Fatalf("InOrder() returned %d peers, want 3", len(peers))
	}
	for i, p := range peers {
		if p.ID != i {
			t.Errorf("InOrder()[%d].ID = %d, want %d", i, p.ID, i)
		}
	}
}
