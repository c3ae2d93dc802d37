package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPairKey(t *testing.T) {
	assert.Equal(t, PairKey("alice", "bob", "L"), PairKey("bob", "alice", "L"),
		"pair key must not depend on participant order")
	assert.NotEqual(t, PairKey("alice", "bob", "L"), PairKey("alice", "bob", "M"),
		"different labels must produce different keys")
	assert.NotEqual(t, PairKey("alice", "bob", "L"), PairKey("alice", "carol", "L"),
		"different pairs must produce different keys")
}

// TestPairKeyProperty checks symmetry and collision-freedom for arbitrary
// addresses and labels. The separator is a control character no address
// or label is expected to contain.
func TestPairKeyProperty(t *testing.T) {
	addr := rapid.StringMatching(`[a-z0-9:]{1,24}`)
	label := rapid.StringMatching(`[ -~]{1,40}`)

	rapid.Check(t, func(t *rapid.T) {
		a := addr.Draw(t, "a")
		b := addr.Draw(t, "b")
		l1 := label.Draw(t, "l1")
		l2 := label.Draw(t, "l2")

		if PairKey(a, b, l1) != PairKey(b, a, l1) {
			t.Fatalf("pair key not symmetric for %q/%q", a, b)
		}
		if l1 != l2 && PairKey(a, b, l1) == PairKey(a, b, l2) {
			t.Fatalf("labels %q and %q collide for pair %q/%q", l1, l2, a, b)
		}
	})
}
