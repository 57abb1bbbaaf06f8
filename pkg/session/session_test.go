package session

import (
	"testing"

	"troopd/pkg/ot"
)

func TestTransformIndexAfterInsert(t *testing.T) {
	// doc "hi", insert "X" after offset 1 -> "hXi".
	op := insertOp(t, 2, 1, "X")

	cases := []struct {
		position int
		want     int
	}{
		{0, 0}, // before the insertion, untouched
		{1, 2}, // exactly at the insertion point, pushed past it
		{2, 3}, // after the insertion point, shifted by the inserted length
	}
	for _, c := range cases {
		if got := transformIndex(op, c.position); got != c.want {
			t.Errorf("transformIndex(%d) = %d, want %d", c.position, got, c.want)
		}
	}
}

func TestTransformIndexAfterDelete(t *testing.T) {
	// doc "abcd", delete the middle two characters -> "ad".
	op := ot.New()
	op.Retain(1)
	op.Delete(2)
	op.Retain(1)

	cases := []struct {
		position int
		want     int
	}{
		{0, 0}, // before the deleted region
		{1, 1}, // at the start of the deleted region
		{2, 1}, // inside the deleted region, clamped to its start
		{4, 2}, // after the deleted region, shifted back by its length
	}
	for _, c := range cases {
		if got := transformIndex(op, c.position); got != c.want {
			t.Errorf("transformIndex(%d) = %d, want %d", c.position, got, c.want)
		}
	}
}

func TestSessionReceiveOperationAdvancesCursors(t *testing.T) {
	s := New()
	a := &Peer{ID: 0, CursorIndex: 0}
	b := &Peer{ID: 1, CursorIndex: 2}
	s.Registry.Admit(a)
	s.Registry.Admit(b)

	if _, err := s.ReceiveOperation(0, 0, insertOp(t, 0, 0, "hi")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	b.CursorIndex = 2

	if _, err := s.ReceiveOperation(0, 1, insertOp(t, 2, 1, "X")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if b.CursorIndex != 3 {
		t.Errorf("peer cursor after insert = %d, want 3", b.CursorIndex)
	}
	if got, want := s.Locs()[1], 3; got != want {
		t.Errorf("Locs()[1] = %d, want %d", got, want)
	}
}
