package common

import "testing"

func TestHasAny(t *testing.T) {
	if !HasAny("invalid key supplied", "unauthorized", "invalid key") {
		t.Fatalf("expected a match")
	}
	if HasAny("over quota", "invalid key") {
		t.Fatalf("expected no match")
	}
	if HasAny("anything") {
		t.Fatalf("expected no match without substrings")
	}
}
