package session

import (
	"errors"
	"fmt"

	"troopd/pkg/ot"
)

// ErrRevisionOutOfRange is returned by ReceiveOperation when revision falls
// outside [0, current revision].
var ErrRevisionOutOfRange = errors.New("session: revision out of range")

// Engine is the transform engine: it owns the authoritative document, the
// revision log, and the peer-annotation string, and is the sole place the OT
// algebra is invoked against live session state. Like the rest of the
// session package, it is touched only from the dispatch worker.
type Engine struct {
	document   string
	annotation string
	log        []*ot.OperationSeq
}

// NewEngine returns an engine over the empty document at revision 0.
func NewEngine() *Engine {
	return &Engine{}
}

// Revision returns the current revision number: the length of the log.
func (e *Engine) Revision() int { return len(e.log) }

// Document returns the current document text.
func (e *Engine) Document() string { return e.document }

// Annotation returns the current peer-annotation string.
func (e *Engine) Annotation() string { return e.annotation }

// Reset clears the revision log and re-seeds the engine's state, establishing
// a fresh revision-0 baseline (join sequence step 6, §4.6). The document and
// annotation themselves are left untouched by Reset — callers that intend to
// replace them (e.g. because a departing peer's edits are still live) pass
// the existing document/annotation back in the subsequent RESET broadcast.
func (e *Engine) Reset() {
	e.log = nil
}

// ReceiveOperation rebases op (authored by srcID against revision) over every
// operation accepted since revision, applies the rebased result to the
// document and annotation, appends it to the log, and returns it — the
// operation every other peer must now apply.
func (e *Engine) ReceiveOperation(srcID, revision int, op *ot.OperationSeq) (*ot.OperationSeq, error) {
	if revision < 0 || revision > e.Revision() {
		return nil, fmt.Errorf("%w: revision %d, current %d", ErrRevisionOutOfRange, revision, e.Revision())
	}

	concurrent := e.log[revision:]
	for _, c := range concurrent {
		result, err := ot.Transform(c, op)
		if err != nil {
			return nil, err
		}
		op = result.Right
	}

	if op.BaseLen() != len([]rune(e.document)) {
		return nil, fmt.Errorf("%w: op base length %d, document length %d",
			ot.ErrIncompatibleOperation, op.BaseLen(), len([]rune(e.document)))
	}

	newDoc, err := ot.Apply(op, e.document)
	if err != nil {
		return nil, err
	}
	newAnn, err := applyAnnotation(e.annotation, op, srcID)
	if err != nil {
		return nil, err
	}

	e.document = newDoc
	e.annotation = newAnn
	e.log = append(e.log, op)
	return op, nil
}
