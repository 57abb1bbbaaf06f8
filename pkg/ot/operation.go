// Package ot implements the text-operation algebra used to reconcile concurrent edits:
// a sequence of retain/insert/delete steps, plus compose, transform and apply.
//
// This is adapted from the teacher dependency's operation sequence design
// (github.com/shiv248/operational-transformation-go), generalized to the exact
// compose/transform/apply semantics and insert tie-break this server requires.
package ot

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrLengthMismatch is returned by Apply when an operation's base length does not
// match the document it is applied to.
var ErrLengthMismatch = errors.New("ot: length mismatch")

// ErrIncompatibleOperation is returned by Compose and Transform when their
// precondition on base/target lengths is violated.
var ErrIncompatibleOperation = errors.New("ot: incompatible operation")

// Operation is one step of an OperationSeq: Retain, Insert, or Delete.
type Operation interface {
	isOperation()
}

// Retain advances the cursor N code points, preserving them.
type Retain struct{ N int }

// Delete removes the next N code points.
type Delete struct{ N int }

// Insert inserts literal text at the cursor.
type Insert struct{ Text string }

func (Retain) isOperation() {}
func (Delete) isOperation() {}
func (Insert) isOperation() {}

func runeCount(s string) int { return utf8.RuneCountInString(s) }

// OperationSeq is an ordered sequence of steps together with its derived base and
// target lengths. Adjacent steps of the same kind are coalesced by the builder
// methods; zero-length retains/deletes and empty inserts are never stored.
type OperationSeq struct {
	ops       []Operation
	baseLen   int
	targetLen int
}

// New returns an empty operation sequence.
func New() *OperationSeq {
	return &OperationSeq{}
}

// BaseLen is the required length of a document this sequence can apply to.
func (o *OperationSeq) BaseLen() int { return o.baseLen }

// TargetLen is the length of the document after applying this sequence.
func (o *OperationSeq) TargetLen() int { return o.targetLen }

// Ops returns the underlying steps. Callers must not mutate the slice.
func (o *OperationSeq) Ops() []Operation { return o.ops }

// IsNoop reports whether this sequence has no effect on the document.
func (o *OperationSeq) IsNoop() bool {
	switch len(o.ops) {
	case 0:
		return true
	case 1:
		_, ok := o.ops[0].(Retain)
		return ok
	default:
		return false
	}
}

// Retain appends a retain of n code points, merging with a trailing retain.
func (o *OperationSeq) Retain(n int) {
	if n == 0 {
		return
	}
	o.baseLen += n
	o.targetLen += n
	if last := len(o.ops) - 1; last >= 0 {
		if r, ok := o.ops[last].(Retain); ok {
			o.ops[last] = Retain{N: r.N + n}
			return
		}
	}
	o.ops = append(o.ops, Retain{N: n})
}

// Delete appends a delete of n code points, merging with a trailing delete.
func (o *OperationSeq) Delete(n int) {
	if n == 0 {
		return
	}
	o.baseLen += n
	if last := len(o.ops) - 1; last >= 0 {
		if d, ok := o.ops[last].(Delete); ok {
			o.ops[last] = Delete{N: d.N + n}
			return
		}
	}
	o.ops = append(o.ops, Delete{N: n})
}

// Insert appends a literal insert, merging with a trailing insert and, when the
// trailing step is a delete, keeping inserts ordered before deletes at the same
// position (matches the canonical ot.js normal form, keeps Compose/Transform simple).
func (o *OperationSeq) Insert(s string) {
	if s == "" {
		return
	}
	o.targetLen += runeCount(s)

	n := len(o.ops)
	if n == 0 {
		o.ops = append(o.ops, Insert{Text: s})
		return
	}
	if ins, ok := o.ops[n-1].(Insert); ok {
		o.ops[n-1] = Insert{Text: ins.Text + s}
		return
	}
	if del, ok := o.ops[n-1].(Delete); ok {
		if n >= 2 {
			if ins, ok := o.ops[n-2].(Insert); ok {
				o.ops[n-2] = Insert{Text: ins.Text + s}
				return
			}
		}
		o.ops[n-1] = Insert{Text: s}
		o.ops = append(o.ops, del)
		return
	}
	o.ops = append(o.ops, Insert{Text: s})
}

// add appends any operation kind through its builder, preserving merge behavior.
func (o *OperationSeq) add(op Operation) {
	switch v := op.(type) {
	case Retain:
		o.Retain(v.N)
	case Delete:
		o.Delete(v.N)
	case Insert:
		o.Insert(v.Text)
	}
}

// Apply runs op against doc, returning the resulting document.
// doc and op must agree on length: len([]rune(doc)) == op.BaseLen().
func Apply(op *OperationSeq, doc string) (string, error) {
	runes := []rune(doc)
	if len(runes) != op.baseLen {
		return "", fmt.Errorf("%w: op base length %d, document length %d", ErrLengthMismatch, op.baseLen, len(runes))
	}

	var out []rune
	pos := 0
	for _, step := range op.ops {
		switch v := step.(type) {
		case Retain:
			out = append(out, runes[pos:pos+v.N]...)
			pos += v.N
		case Insert:
			out = append(out, []rune(v.Text)...)
		case Delete:
			pos += v.N
		}
	}
	return string(out), nil
}

// --- wire encoding -----------------------------------------------------------
//
// Each step serializes to one JSON array element: a non-negative int is a retain
// of that many code points, a negative int is a delete of that magnitude, and a
// string is a literal insert.

// MarshalJSON encodes the sequence as a flat array of steps.
func (o *OperationSeq) MarshalJSON() ([]byte, error) {
	raw := make([]any, len(o.ops))
	for i, step := range o.ops {
		switch v := step.(type) {
		case Retain:
			raw[i] = v.N
		case Delete:
			raw[i] = -v.N
		case Insert:
			raw[i] = v.Text
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a flat array of steps into a fresh sequence, rebuilding
// base/target lengths and coalescing through the normal builder methods.
func (o *OperationSeq) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*o = OperationSeq{}
	for _, elem := range raw {
		var n int
		if err := json.Unmarshal(elem, &n); err == nil {
			if n >= 0 {
				o.Retain(n)
			} else {
				o.Delete(-n)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(elem, &s); err != nil {
			return fmt.Errorf("ot: invalid step %s: %w", elem, err)
		}
		o.Insert(s)
	}
	return nil
}
