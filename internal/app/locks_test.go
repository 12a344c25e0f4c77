package app

import "testing"

func TestPairLocks_AllOrNone(t *testing.T) {
	l := newPairLocks()

	if !l.tryAcquire("t1", []string{"membership", "forum"}) {
		t.Fatal("first acquire should succeed")
	}

	// Overlap on one slug blocks the whole set and leaves nothing held.
	if l.tryAcquire("t1", []string{"forum", "elections"}) {
		t.Error("overlapping acquire should fail")
	}
	if !l.tryAcquire("t1", []string{"elections"}) {
		t.Error("elections should not be left held by the failed acquire")
	}

	// Same slugs under another tenant are independent.
	if !l.tryAcquire("t2", []string{"membership", "forum"}) {
		t.Error("different tenant should not conflict")
	}

	l.release("t1", []string{"membership", "forum"})
	if !l.tryAcquire("t1", []string{"forum"}) {
		t.Error("forum should be free after release")
	}
}
