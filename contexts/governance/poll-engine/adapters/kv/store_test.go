package kv

import (
	"context"
	"errors"
	"testing"

	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

func TestStoreRoundTripsPoll(t *testing.T) {
	store := NewStore(NewMemoryAccountStore())
	ctx := context.Background()

	poll := entities.Poll{
		ID:      7,
		Creator: entities.Identity("alice"),
		Title:   "favorite color",
		Options: []string{"red", "blue"},
	}
	if err := store.SavePoll(ctx, poll); err != nil {
		t.Fatalf("save poll failed: %v", err)
	}

	got, err := store.GetPoll(ctx, 7)
	if err != nil {
		t.Fatalf("get poll failed: %v", err)
	}
	if got.Title != poll.Title || len(got.Options) != 2 {
		t.Fatalf("poll did not round trip: %+v", got)
	}

	exists, err := store.PollExists(ctx, 7)
	if err != nil || !exists {
		t.Fatalf("expected poll 7 to exist, got %v %v", exists, err)
	}
	if _, err := store.GetPoll(ctx, 8); !errors.Is(err, domainerrors.ErrPollDoesNotExist) {
		t.Fatalf("expected missing poll error, got %v", err)
	}
}

func TestStoreAtomicRollsBackOnFailure(t *testing.T) {
	store := NewStore(NewMemoryAccountStore())
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Atomic(ctx, func(state ports.StateRepository) error {
		if err := state.SavePoll(ctx, entities.Poll{ID: 1, Title: "doomed"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to surface, got %v", err)
	}
	if _, err := store.GetPoll(ctx, 1); !errors.Is(err, domainerrors.ErrPollDoesNotExist) {
		t.Fatalf("rolled-back poll should not exist, got %v", err)
	}
}

func TestStoreAtomicCommitsOnSuccess(t *testing.T) {
	store := NewStore(NewMemoryAccountStore())
	ctx := context.Background()

	err := store.Atomic(ctx, func(state ports.StateRepository) error {
		if err := state.SavePoll(ctx, entities.Poll{ID: 2, Title: "kept"}); err != nil {
			return err
		}
		return state.SaveVoteCount(ctx, entities.VoteCount{PollID: 2, Counts: []uint64{0, 0}})
	})
	if err != nil {
		t.Fatalf("atomic commit failed: %v", err)
	}
	if _, err := store.GetPoll(ctx, 2); err != nil {
		t.Fatalf("committed poll missing: %v", err)
	}
	count, err := store.GetVoteCount(ctx, 2)
	if err != nil || len(count.Counts) != 2 {
		t.Fatalf("committed count missing: %+v %v", count, err)
	}
}

func TestStoreVoteIndexAndListing(t *testing.T) {
	store := NewStore(NewMemoryAccountStore())
	ctx := context.Background()

	for _, voter := range []string{"carol", "alice", "bob"} {
		vote := entities.Vote{PollID: 3, Voter: entities.Identity(voter), OptionIndex: 1, Weight: 1}
		if err := store.SaveVote(ctx, vote); err != nil {
			t.Fatalf("save vote failed: %v", err)
		}
	}

	vote, ok, err := store.GetVote(ctx, 3, entities.Identity("bob"))
	if err != nil || !ok {
		t.Fatalf("expected bob's vote, got ok=%v err=%v", ok, err)
	}
	if vote.OptionIndex != 1 {
		t.Fatalf("vote did not round trip: %+v", vote)
	}

	votes, err := store.ListVotesByPoll(ctx, 3)
	if err != nil {
		t.Fatalf("list votes failed: %v", err)
	}
	if len(votes) != 3 {
		t.Fatalf("expected 3 votes, got %d", len(votes))
	}

	// Re-saving a vote must not duplicate the index entry.
	if err := store.SaveVote(ctx, entities.Vote{PollID: 3, Voter: entities.Identity("bob"), OptionIndex: 0, Weight: 1}); err != nil {
		t.Fatalf("re-save vote failed: %v", err)
	}
	votes, err = store.ListVotesByPoll(ctx, 3)
	if err != nil || len(votes) != 3 {
		t.Fatalf("expected 3 votes after re-save, got %d %v", len(votes), err)
	}
}

func TestStoreDelegationIndexes(t *testing.T) {
	store := NewStore(NewMemoryAccountStore())
	ctx := context.Background()

	grant := entities.Delegation{
		ID:        11,
		Delegator: entities.Identity("alice"),
		Delegate:  entities.Identity("bob"),
		IsActive:  true,
	}
	if err := store.SaveDelegation(ctx, grant); err != nil {
		t.Fatalf("save delegation failed: %v", err)
	}

	byDelegate, err := store.ListDelegationsByDelegate(ctx, entities.Identity("bob"))
	if err != nil || len(byDelegate) != 1 || byDelegate[0].ID != 11 {
		t.Fatalf("delegate index broken: %+v %v", byDelegate, err)
	}
	byDelegator, err := store.ListDelegationsByDelegator(ctx, entities.Identity("alice"))
	if err != nil || len(byDelegator) != 1 || byDelegator[0].ID != 11 {
		t.Fatalf("delegator index broken: %+v %v", byDelegator, err)
	}
}

func TestStoreNextIDIsMonotonic(t *testing.T) {
	store := NewStore(NewMemoryAccountStore())
	ctx := context.Background()

	first, err := store.NextID(ctx)
	if err != nil {
		t.Fatalf("first next id failed: %v", err)
	}
	second, err := store.NextID(ctx)
	if err != nil {
		t.Fatalf("second next id failed: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
}
