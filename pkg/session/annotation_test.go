package session

import (
	"testing"

	"troopd/internal/protocol"
)

// TestAnnotationRLE covers the run-length scenario: peer A (id 0) inserts
// "hi" into the empty document, then peer B (id 1) inserts "!" at the end.
// The annotation should read ids 0,0,1 and compress to [(0,2),(1,1)].
func TestAnnotationRLE(t *testing.T) {
	e := NewEngine()

	if _, err := e.ReceiveOperation(0, 0, insertOp(t, 0, 0, "hi")); err != nil {
		t.Fatalf("A insert: %v", err)
	}
	if _, err := e.ReceiveOperation(1, 1, insertOp(t, 2, 2, "!")); err != nil {
		t.Fatalf("B insert: %v", err)
	}

	if e.Document() != "hi!" {
		t.Fatalf("Document() = %q, want %q", e.Document(), "hi!")
	}

	wantAnnotation := string([]byte{protocol.PeerTag(0), protocol.PeerTag(0), protocol.PeerTag(1)})
	if e.Annotation() != wantAnnotation {
		t.Fatalf("Annotation() = %q, want %q", e.Annotation(), wantAnnotation)
	}

	runs := compressAnnotation(e.Annotation())
	want := []Run{{PeerID: 0, Count: 2}, {PeerID: 1, Count: 1}}
	if len(runs) != len(want) {
		t.Fatalf("runs = %+v, want %+v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Errorf("runs[%d] = %+v, want %+v", i, runs[i], want[i])
		}
	}
}

func TestAnnotationLengthMatchesDocument(t *testing.T) {
	e := NewEngine()
	if _, err := e.ReceiveOperation(0, 0, insertOp(t, 0, 0, "hello")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := e.ReceiveOperation(1, 1, insertOp(t, 5, 5, " world")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len([]rune(e.Annotation())) != len([]rune(e.Document())) {
		t.Fatalf("annotation length %d != document length %d",
			len([]rune(e.Annotation())), len([]rune(e.Document())))
	}
}

func TestRunsToRanges(t *testing.T) {
	runs := []Run{{PeerID: 0, Count: 2}, {PeerID: 1, Count: 1}}
	ranges := RunsToRanges(runs)
	want := [][2]int{{0, 2}, {1, 1}}
	if len(ranges) != len(want) {
		t.Fatalf("ranges = %+v, want %+v", ranges, want)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Errorf("ranges[%d] = %+v, want %+v", i, ranges[i], want[i])
		}
	}
}
