package entities

import (
	"fmt"
	"testing"
)

func TestVoterRegistryMarkAndCheck(t *testing.T) {
	registry := NewVoterRegistry(1, DefaultRegistryCapacity)

	alice := Identity("alice")
	bob := Identity("bob")

	if registry.HasVoted(alice) {
		t.Fatalf("fresh registry should have no voters")
	}
	registry.MarkVoted(alice)
	if !registry.HasVoted(alice) {
		t.Fatalf("marked voter should be found")
	}
	if registry.HasVoted(bob) {
		t.Fatalf("unmarked voter should not be found")
	}
}

func TestVoterRegistryHashCollisionsResolvedByList(t *testing.T) {
	// Capacity 1 forces every identity into the same slot; the voter list
	// must still distinguish them.
	registry := NewVoterRegistry(1, 1)

	registry.MarkVoted(Identity("alice"))
	if registry.HasVoted(Identity("bob")) {
		t.Fatalf("collision on the bitmap slot must not count as voted")
	}
	registry.MarkVoted(Identity("bob"))
	if !registry.HasVoted(Identity("alice")) || !registry.HasVoted(Identity("bob")) {
		t.Fatalf("both colliding voters should be recorded")
	}
}

func TestVoterRegistryManyVoters(t *testing.T) {
	registry := NewVoterRegistry(1, 512)
	for i := 0; i < 1000; i++ {
		registry.MarkVoted(Identity(fmt.Sprintf("voter-%d", i)))
	}
	for i := 0; i < 1000; i++ {
		if !registry.HasVoted(Identity(fmt.Sprintf("voter-%d", i))) {
			t.Fatalf("voter-%d lost from registry", i)
		}
	}
	if registry.HasVoted(Identity("voter-1000")) {
		t.Fatalf("never-marked voter reported as voted")
	}
}
