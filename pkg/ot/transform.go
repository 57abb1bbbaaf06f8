package ot

// Compose merges two sequential operations a then b into one equivalent operation,
// c, such that applying c to a document equals applying a then b.
//
// Precondition: a.TargetLen() == b.BaseLen(); otherwise ErrIncompatibleOperation.
func Compose(a, b *OperationSeq) (*OperationSeq, error) {
	if a.TargetLen() != b.BaseLen() {
		return nil, ErrIncompatibleOperation
	}

	c := New()
	ai, bi := 0, 0
	var aOp, bOp Operation
	aOps, bOps := a.ops, b.ops

	next := func(i int, ops []Operation) (Operation, int, bool) {
		if i >= len(ops) {
			return nil, i, false
		}
		return ops[i], i + 1, true
	}

	var aOk, bOk bool
	aOp, ai, aOk = next(ai, aOps)
	bOp, bi, bOk = next(bi, bOps)

	for {
		if !aOk && !bOk {
			break
		}

		// a is exhausted but b still has inserts to contribute.
		if !aOk {
			if ins, ok := bOp.(Insert); ok {
				c.Insert(ins.Text)
				bOp, bi, bOk = next(bi, bOps)
				continue
			}
			break
		}
		// b is exhausted but a still has deletes to contribute.
		if !bOk {
			if del, ok := aOp.(Delete); ok {
				c.Delete(del.N)
				aOp, ai, aOk = next(ai, aOps)
				continue
			}
			break
		}

		switch av := aOp.(type) {
		case Delete:
			c.Delete(av.N)
			aOp, ai, aOk = next(ai, aOps)
			continue
		}

		switch bv := bOp.(type) {
		case Insert:
			c.Insert(bv.Text)
			bOp, bi, bOk = next(bi, bOps)
			continue
		}

		switch av := aOp.(type) {
		case Retain:
			switch bv := bOp.(type) {
			case Retain:
				switch {
				case av.N < bv.N:
					c.Retain(av.N)
					bOp = Retain{N: bv.N - av.N}
					aOp, ai, aOk = next(ai, aOps)
				case av.N > bv.N:
					c.Retain(bv.N)
					aOp = Retain{N: av.N - bv.N}
					bOp, bi, bOk = next(bi, bOps)
				default:
					c.Retain(av.N)
					aOp, ai, aOk = next(ai, aOps)
					bOp, bi, bOk = next(bi, bOps)
				}
			case Delete:
				switch {
				case av.N < bv.N:
					c.Delete(av.N)
					bOp = Delete{N: bv.N - av.N}
					aOp, ai, aOk = next(ai, aOps)
				case av.N > bv.N:
					c.Delete(bv.N)
					aOp = Retain{N: av.N - bv.N}
					bOp, bi, bOk = next(bi, bOps)
				default:
					c.Delete(av.N)
					aOp, ai, aOk = next(ai, aOps)
					bOp, bi, bOk = next(bi, bOps)
				}
			}
		case Insert:
			switch bv := bOp.(type) {
			case Retain:
				switch {
				case av.len() < bv.N:
					c.Insert(av.Text)
					bOp = Retain{N: bv.N - av.len()}
					aOp, ai, aOk = next(ai, aOps)
				case av.len() > bv.N:
					head, tail := av.split(bv.N)
					c.Insert(head)
					aOp = Insert{Text: tail}
					bOp, bi, bOk = next(bi, bOps)
				default:
					c.Insert(av.Text)
					aOp, ai, aOk = next(ai, aOps)
					bOp, bi, bOk = next(bi, bOps)
				}
			case Delete:
				switch {
				case av.len() < bv.N:
					bOp = Delete{N: bv.N - av.len()}
					aOp, ai, aOk = next(ai, aOps)
				case av.len() > bv.N:
					_, tail := av.split(bv.N)
					aOp = Insert{Text: tail}
					bOp, bi, bOk = next(bi, bOps)
				default:
					aOp, ai, aOk = next(ai, aOps)
					bOp, bi, bOk = next(bi, bOps)
				}
			}
		}
	}

	return c, nil
}

func (i Insert) len() int { return runeCount(i.Text) }

// split divides an insert's text at the given rune offset.
func (i Insert) split(at int) (head, tail string) {
	r := []rune(i.Text)
	return string(r[:at]), string(r[at:])
}

// TransformResult is the pair of rebased operations produced by Transform.
type TransformResult struct {
	Left  *OperationSeq // a rebased to apply after b
	Right *OperationSeq // b rebased to apply after a
}

// Transform rebases two concurrent operations a and b — both authored against the
// same document — into a pair (a', b') such that Compose(a, b') and Compose(b, a')
// produce identical documents (the transform property, spec §4.1).
//
// Precondition: a.BaseLen() == b.BaseLen(); otherwise ErrIncompatibleOperation.
//
// Tie-break: when a and b both insert at the same offset, a's insert is ordered
// before b's — a' retains over b's insert, b' inserts before consuming a's retain.
// This priority is fixed and must be applied uniformly for peers to converge.
func Transform(a, b *OperationSeq) (TransformResult, error) {
	if a.BaseLen() != b.BaseLen() {
		return TransformResult{}, ErrIncompatibleOperation
	}

	aPrime, bPrime := New(), New()
	ai, bi := 0, 0
	aOps, bOps := a.ops, b.ops

	next := func(i int, ops []Operation) (Operation, int, bool) {
		if i >= len(ops) {
			return nil, i, false
		}
		return ops[i], i + 1, true
	}

	var aOp, bOp Operation
	var aOk, bOk bool
	aOp, ai, aOk = next(ai, aOps)
	bOp, bi, bOk = next(bi, bOps)

	for {
		if !aOk && !bOk {
			break
		}

		if aOk {
			if ins, ok := aOp.(Insert); ok {
				aPrime.Insert(ins.Text)
				bPrime.Retain(ins.len())
				aOp, ai, aOk = next(ai, aOps)
				continue
			}
		}
		if bOk {
			if ins, ok := bOp.(Insert); ok {
				aPrime.Retain(ins.len())
				bPrime.Insert(ins.Text)
				bOp, bi, bOk = next(bi, bOps)
				continue
			}
		}

		if !aOk || !bOk {
			break // only deletes/retains would remain on one exhausted side: precondition guarantees none do.
		}

		switch av := aOp.(type) {
		case Retain:
			switch bv := bOp.(type) {
			case Retain:
				switch {
				case av.N < bv.N:
					aPrime.Retain(av.N)
					bPrime.Retain(av.N)
					bOp = Retain{N: bv.N - av.N}
					aOp, ai, aOk = next(ai, aOps)
				case av.N > bv.N:
					aPrime.Retain(bv.N)
					bPrime.Retain(bv.N)
					aOp = Retain{N: av.N - bv.N}
					bOp, bi, bOk = next(bi, bOps)
				default:
					aPrime.Retain(av.N)
					bPrime.Retain(av.N)
					aOp, ai, aOk = next(ai, aOps)
					bOp, bi, bOk = next(bi, bOps)
				}
			case Delete:
				switch {
				case av.N < bv.N:
					bPrime.Delete(av.N)
					bOp = Delete{N: bv.N - av.N}
					aOp, ai, aOk = next(ai, aOps)
				case av.N > bv.N:
					bPrime.Delete(bv.N)
					aOp = Retain{N: av.N - bv.N}
					bOp, bi, bOk = next(bi, bOps)
				default:
					bPrime.Delete(av.N)
					aOp, ai, aOk = next(ai, aOps)
					bOp, bi, bOk = next(bi, bOps)
				}
			}
		case Delete:
			switch bv := bOp.(type) {
			case Retain:
				switch {
				case av.N < bv.N:
					aPrime.Delete(av.N)
					bOp = Retain{N: bv.N - av.N}
					aOp, ai, aOk = next(ai, aOps)
				case av.N > bv.N:
					aPrime.Delete(bv.N)
					aOp = Delete{N: av.N - bv.N}
					bOp, bi, bOk = next(bi, bOps)
				default:
					aPrime.Delete(av.N)
					aOp, ai, aOk = next(ai, aOps)
					bOp, bi, bOk = next(bi, bOps)
				}
			case Delete:
				// Both delete the same region: neither side needs to delete again.
				switch {
				case av.N < bv.N:
					bOp = Delete{N: bv.N - av.N}
					aOp, ai, aOk = next(ai, aOps)
				case av.N > bv.N:
					aOp = Delete{N: av.N - bv.N}
					bOp, bi, bOk = next(bi, bOps)
				default:
					aOp, ai, aOk = next(ai, aOps)
					bOp, bi, bOk = next(bi, bOps)
				}
			}
		}
	}

	return TransformResult{Left: aPrime, Right: bPrime}, nil
}
