package session

import (
	"strings"

	"troopd/internal/protocol"
	"troopd/pkg/ot"
)

// Run is one entry of a run-length-encoded peer-annotation compression:
// peer_id authored Count consecutive characters. PeerID is -1 for
// protocol.NoAuthorTag (no recorded author).
type Run struct {
	PeerID int
	Count  int
}

// deriveAuthorOp builds the parallel operation applied to the peer-annotation
// string for an accepted edit authored by srcID: retains and deletes copy
// through unchanged, and every insert(s) becomes insert(tag*len(s)) so the
// inserted span is stamped with its author's tag.
func deriveAuthorOp(op *ot.OperationSeq, srcID int) *ot.OperationSeq {
	out := ot.New()
	tag := protocol.PeerTag(srcID)
	for _, step := range op.Ops() {
		switch v := step.(type) {
		case ot.Retain:
			out.Retain(v.N)
		case ot.Delete:
			out.Delete(v.N)
		case ot.Insert:
			n := len([]rune(v.Text))
			out.Insert(strings.Repeat(string(tag), n))
		}
	}
	return out
}

// applyAnnotation derives and applies the author-tagging operation for an
// accepted edit, returning the new annotation string. ann must already equal
// the document's pre-edit length.
func applyAnnotation(ann string, op *ot.OperationSeq, srcID int) (string, error) {
	return ot.Apply(deriveAuthorOp(op, srcID), ann)
}

// compressAnnotation run-length-encodes ann into Runs covering its full
// length, merging adjacent runs of the same tag.
func compressAnnotation(ann string) []Run {
	if ann == "" {
		return nil
	}
	runes := []rune(ann)
	var runs []Run
	cur := protocol.PeerIDFromTag(byte(runes[0]))
	count := 1
	for _, r := range runes[1:] {
		id := protocol.PeerIDFromTag(byte(r))
		if id == cur {
			count++
			continue
		}
		runs = append(runs, Run{PeerID: cur, Count: count})
		cur, count = id, 1
	}
	runs = append(runs, Run{PeerID: cur, Count: count})
	return runs
}
