package store

import (
	"testing"
	"time"
)

func TestChallengeStore_ConsumeIsSingleUse(t *testing.T) {
	cs := NewChallengeStore()
	defer cs.Stop()

	cs.Put(&PKCEChallenge{
		State:     "state-abc",
		Verifier:  "verifier-abc",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	})

	challenge, ok := cs.Consume("state-abc")
	if !ok {
		t.Fatal("Expected first consume to succeed")
	}
	if challenge.Verifier != "verifier-abc" {
		t.Errorf("Expected verifier %q, got %q", "verifier-abc", challenge.Verifier)
	}

	// Second consume must fail: the state is spent.
	if _, ok := cs.Consume("state-abc"); ok {
		t.Error("Expected second consume of the same state to fail")
	}
}

func TestChallengeStore_ExpiredChallengeInvisible(t *testing.T) {
	cs := NewChallengeStore()
	defer cs.Stop()

	cs.Put(&PKCEChallenge{
		State:     "state-old",
		Verifier:  "verifier-old",
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	if _, ok := cs.Consume("state-old"); ok {
		t.Error("Expected expired challenge to be invisible")
	}

	// An expired consume attempt also burns the entry.
	if cs.Count() != 0 {
		t.Errorf("Expected empty store, got %d entries", cs.Count())
	}
}

func TestChallengeStore_UnknownState(t *testing.T) {
	cs := NewChallengeStore()
	defer cs.Stop()

	if _, ok := cs.Consume("never-stored"); ok {
		t.Error("Expected consume of unknown state to fail")
	}
}
