package ot

import "testing"

func opFromSteps(t *testing.T, steps ...any) *OperationSeq {
	t.Helper()
	op := New()
	for _, s := range steps {
		switch v := s.(type) {
		case int:
			if v >= 0 {
				op.Retain(v)
			} else {
				op.Delete(-v)
			}
		case string:
			op.Insert(v)
		default:
			t.Fatalf("unsupported step type %T", s)
		}
	}
	return op
}

func TestComposeThenApplyMatchesSequentialApply(t *testing.T) {
	doc := "hello"
	a := opFromSteps(t, 2, "XY", 3) // retain 2, insert XY, retain 3
	mid, err := Apply(a, doc)
	if err != nil {
		t.Fatalf("apply a: %v", err)
	}

	b := opFromSteps(t, -7 /* delete 7 */)
	final, err := Apply(b, mid)
	if err != nil {
		t.Fatalf("apply b: %v", err)
	}

	c, err := Compose(a, b)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	composed, err := Apply(c, doc)
	if err != nil {
		t.Fatalf("apply composed: %v", err)
	}

	if composed != final {
		t.Errorf("compose(a,b) applied = %q, want %q", composed, final)
	}
}

func TestComposeIncompatibleLengths(t *testing.T) {
	a := opFromSteps(t, 2)
	b := opFromSteps(t, 3)
	if _, err := Compose(a, b); err != ErrIncompatibleOperation {
		t.Fatalf("expected ErrIncompatibleOperation, got %v", err)
	}
}

// TestConcurrentInsertsConverge covers the tie-break scenario from the
// algebra: two peers at revision 0 against "hi" both insert a single
// character at the same offset, and the two rebased operations must converge
// to the same document when applied in either order.
func TestConcurrentInsertsConverge(t *testing.T) {
	doc := "hi"
	a := opFromSteps(t, 1, "X", 1) // insert X after 'h'
	b := opFromSteps(t, 1, "Y", 1) // insert Y after 'h'

	result, err := Transform(a, b)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	wantBPrime := opFromSteps(t, 2, "Y", 1)
	if !operationsEqual(result.Right, wantBPrime) {
		t.Errorf("b' = %+v, want %+v", result.Right.Ops(), wantBPrime.Ops())
	}

	viaA, err := Apply(a, doc)
	if err != nil {
		t.Fatalf("apply a: %v", err)
	}
	viaA, err = Apply(result.Right, viaA)
	if err != nil {
		t.Fatalf("apply b': %v", err)
	}

	viaB, err := Apply(b, doc)
	if err != nil {
		t.Fatalf("apply b: %v", err)
	}
	viaB, err = Apply(result.Left, viaB)
	if err != nil {
		t.Fatalf("apply a': %v", err)
	}

	if viaA != viaB {
		t.Fatalf("transform property violated: a then b' = %q, b then a' = %q", viaA, viaB)
	}
	if want := "hXYi"; viaA != want {
		t.Errorf("final document = %q, want %q", viaA, want)
	}
}

// TestDeleteVsConcurrentInsert covers a delete on one side racing an insert
// that lands past the deleted region on the other.
func TestDeleteVsConcurrentInsert(t *testing.T) {
	doc := "abc"
	del := opFromSteps(t, 1, -1, 1)    // retain 1, delete 1, retain 1 -> "ac"
	ins := opFromSteps(t, 2, "Z", 1)   // retain 2, insert Z, retain 1 -> "abZc"

	afterDel, err := Apply(del, doc)
	if err != nil {
		t.Fatalf("apply del: %v", err)
	}
	if afterDel != "ac" {
		t.Fatalf("apply del = %q, want %q", afterDel, "ac")
	}

	result, err := Transform(del, ins)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	final, err := Apply(result.Right, afterDel)
	if err != nil {
		t.Fatalf("apply rebased insert: %v", err)
	}
	if want := "aZc"; final != want {
		t.Errorf("final document = %q, want %q", final, want)
	}
}

func operationsEqual(a, b *OperationSeq) bool {
	as, bs := a.Ops(), b.Ops()
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
