// Package session owns the document, revision log, peer-annotation string,
// and peer registry for one running relay — the shared mutable state that,
// per the single-writer concurrency model, only the dispatch worker mutates.
package session

import "troopd/pkg/ot"

// Session bundles the transform engine and the peer registry behind the
// operations the dispatch worker needs; it holds no lock of its own because
// exactly one goroutine (the dispatch worker) ever calls into it.
type Session struct {
	Engine   *Engine
	Registry *Registry
}

// New returns a fresh session: empty document, revision 0, no peers.
func New() *Session {
	return &Session{
		Engine:   NewEngine(),
		Registry: NewRegistry(),
	}
}

// ReceiveOperation rebases and applies an edit, then advances every
// registered peer's cursor index through the accepted (rebased) operation.
func (s *Session) ReceiveOperation(srcID, revision int, op *ot.OperationSeq) (*ot.OperationSeq, error) {
	transformed, err := s.Engine.ReceiveOperation(srcID, revision, op)
	if err != nil {
		return nil, err
	}
	for _, p := range s.Registry.InOrder() {
		p.CursorIndex = transformIndex(transformed, p.CursorIndex)
	}
	return transformed, nil
}

// RLE returns the current peer-annotation string compressed into runs,
// suitable for a SET_ALL/RESET payload.
func (s *Session) RLE() []Run {
	return compressAnnotation(s.Engine.Annotation())
}

// RunsToRanges converts compressed annotation runs into the wire format's
// "ranges" field: an array of [peer_id, count] pairs.
func RunsToRanges(runs []Run) [][2]int {
	out := make([][2]int, len(runs))
	for i, r := range runs {
		out[i] = [2]int{r.PeerID, r.Count}
	}
	return out
}

// Locs returns every registered peer's cursor index, keyed by id.
func (s *Session) Locs() map[int]int {
	locs := make(map[int]int, s.Registry.Len())
	for _, p := range s.Registry.InOrder() {
		locs[p.ID] = p.CursorIndex
	}
	return locs
}

// transformIndex advances a single cursor position through an accepted
// operation: retains and deletes move the cursor, inserts before it push it
// forward. Adapted from the teacher dependency's cursor-transform helper,
// generalized from uint32 client cursors to the plain int offsets used here.
func transformIndex(op *ot.OperationSeq, position int) int {
	index := position
	newIndex := position

	for _, step := range op.Ops() {
		switch v := step.(type) {
		case ot.Retain:
			index -= v.N
		case ot.Insert:
			newIndex += len([]rune(v.Text))
		case ot.Delete:
			switch {
			case index >= v.N:
				newIndex -= v.N
			case index > 0:
				newIndex -= index
			}
			index -= v.N
		}
		if index < 0 {
			break
		}
	}

	if newIndex < 0 {
		return 0
	}
	return newIndex
}
