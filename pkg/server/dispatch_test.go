package server

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherRequestIDRoundTrip(t *testing.T) {
	d := NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	first, err := d.RequestID(ctx)
	if err != nil {
		t.Fatalf("RequestID: %v", err)
	}
	second, err := d.RequestID(ctx)
	if err != nil {
		t.Fatalf("RequestID: %v", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("RequestID sequence = (%d, %d), want (0, 1)", first, second)
	}
}

func TestDispatcherRequestIDCancelled(t *testing.T) {
	d := NewDispatcher(nil)
	// No Run loop started: the request can never be serviced, so a
	// cancelled context must still return promptly.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.RequestID(ctx); err == nil {
		t.Fatal("expected RequestID to fail on an already-cancelled context")
	}
}

func TestQueuePushPopFIFO(t *testing.T) {
	q := &queue{}
	q.push(Inbound{Msg: nil})
	q.push(Inbound{Disconnect: true})

	first, ok := q.tryPop()
	if !ok || first.Disconnect {
		t.Fatalf("first pop = %+v, want the non-disconnect item first", first)
	}
	second, ok := q.tryPop()
	if !ok || !second.Disconnect {
		t.Fatalf("second pop = %+v, want the disconnect item", second)
	}
	if _, ok := q.tryPop(); ok {
		t.Fatal("expected empty queue after draining both items")
	}
}

func TestDispatcherRunStopsOnContextCancel(t *testing.T) {
	d := NewDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
