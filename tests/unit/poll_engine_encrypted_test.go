package unit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	pollengine "plebiscite/contexts/governance/poll-engine"
	"plebiscite/contexts/governance/poll-engine/adapters/crypto"
	"plebiscite/contexts/governance/poll-engine/application/commands"
	"plebiscite/contexts/governance/poll-engine/application/queries"
	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
)

func revealKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func sealBallot(t *testing.T, key []byte, option uint8, nonceSeed byte) (ciphertext, nonce []byte) {
	t.Helper()
	nonce = bytes.Repeat([]byte{nonceSeed}, 12)
	ciphertext, err := crypto.BallotCipher{}.Seal(key, nonce, []byte{option})
	if err != nil {
		t.Fatalf("seal ballot failed: %v", err)
	}
	return ciphertext, nonce
}

func createEncryptedPoll(t *testing.T, module pollengine.Module) entities.Poll {
	t.Helper()
	return createBasicPoll(t, module, commands.CreatePollCommand{
		IsEncrypted:   true,
		KeyCommitment: crypto.BallotCipher{}.Commitment(revealKey()),
	})
}

func TestEncryptedCastHidesTallyUntilReveal(t *testing.T) {
	module, setNow := newEngine(t)
	ctx := context.Background()

	poll := createEncryptedPoll(t, module)
	setNow(baseTime + 200)

	key := revealKey()
	choices := map[string]uint8{"alice": 0, "bob": 1, "carol": 1}
	seed := byte(1)
	for voter, option := range choices {
		ciphertext, nonce := sealBallot(t, key, option, seed)
		seed++
		if _, err := module.Votes.Cast(ctx, commands.CastVoteCommand{
			PollID:        poll.ID,
			Caller:        entities.Identity(voter),
			OptionIndex:   0,
			EncryptedData: ciphertext,
			Nonce:         nonce,
		}); err != nil {
			t.Fatalf("encrypted cast for %s failed: %v", voter, err)
		}
	}

	record, err := module.Results.GetResults(ctx, queries.GetResultsQuery{PollID: poll.ID})
	if err != nil {
		t.Fatalf("get results failed: %v", err)
	}
	if !record.PendingDecryption {
		t.Fatalf("pre-reveal results must be pending decryption: %+v", record)
	}
	if record.Counts != nil {
		t.Fatalf("pre-reveal results must not expose counts: %v", record.Counts)
	}
	if record.TotalVoters != 3 {
		t.Fatalf("voter total should still be visible, got %d", record.TotalVoters)
	}

	setNow(baseTime + 1100)
	count, err := module.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{
		PollID:        poll.ID,
		Caller:        poll.Creator,
		DecryptionKey: key,
	})
	if err != nil {
		t.Fatalf("decrypt results failed: %v", err)
	}
	if !count.IsFinalized {
		t.Fatalf("revealed count should be finalized")
	}
	if count.Counts[0] != 1 || count.Counts[1] != 2 {
		t.Fatalf("revealed tally wrong: %v", count.Counts)
	}
}

func TestEncryptedCastRequiresPayloadAndNonce(t *testing.T) {
	module, setNow := newEngine(t)
	ctx := context.Background()

	poll := createEncryptedPoll(t, module)
	setNow(baseTime + 200)

	_, err := module.Votes.Cast(ctx, commands.CastVoteCommand{
		PollID:      poll.ID,
		Caller:      entities.Identity("alice"),
		OptionIndex: 0,
	})
	if !errors.Is(err, domainerrors.ErrInvalidEncryption) {
		t.Fatalf("expected invalid encryption without payload, got %v", err)
	}

	ciphertext, _ := sealBallot(t, revealKey(), 0, 9)
	_, err = module.Votes.Cast(ctx, commands.CastVoteCommand{
		PollID:        poll.ID,
		Caller:        entities.Identity("alice"),
		OptionIndex:   0,
		EncryptedData: ciphertext,
	})
	if !errors.Is(err, domainerrors.ErrMissingNonce) {
		t.Fatalf("expected missing nonce, got %v", err)
	}
}

func TestDecryptResultsGuards(t *testing.T) {
	module, setNow := newEngine(t)
	ctx := context.Background()

	poll := createEncryptedPoll(t, module)
	key := revealKey()

	// Still running.
	setNow(baseTime + 200)
	_, err := module.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{PollID: poll.ID, Caller: poll.Creator, DecryptionKey: key})
	if !errors.Is(err, domainerrors.ErrPollStillActive) {
		t.Fatalf("expected poll still active, got %v", err)
	}

	setNow(baseTime + 1100)
	_, err = module.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{PollID: poll.ID, Caller: entities.Identity("mallory"), DecryptionKey: key})
	if !errors.Is(err, domainerrors.ErrNotPollCreator) {
		t.Fatalf("expected not poll creator, got %v", err)
	}

	wrongKey := bytes.Repeat([]byte{0x13}, 32)
	_, err = module.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{PollID: poll.ID, Caller: poll.Creator, DecryptionKey: wrongKey})
	if !errors.Is(err, domainerrors.ErrInvalidEncryption) {
		t.Fatalf("expected commitment mismatch, got %v", err)
	}
}

func TestDecryptResultsOnPlaintextPollFails(t *testing.T) {
	module, setNow := newEngine(t)
	ctx := context.Background()

	poll := createBasicPoll(t, module, commands.CreatePollCommand{})
	setNow(baseTime + 1100)

	_, err := module.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{PollID: poll.ID, Caller: poll.Creator, DecryptionKey: revealKey()})
	if !errors.Is(err, domainerrors.ErrPollNotEncrypted) {
		t.Fatalf("expected poll not encrypted, got %v", err)
	}
}

func TestDecryptResultsIsIdempotent(t *testing.T) {
	module, setNow := newEngine(t)
	ctx := context.Background()

	poll := createEncryptedPoll(t, module)
	setNow(baseTime + 200)

	key := revealKey()
	ciphertext, nonce := sealBallot(t, key, 1, 5)
	if _, err := module.Votes.Cast(ctx, commands.CastVoteCommand{
		PollID:        poll.ID,
		Caller:        entities.Identity("alice"),
		OptionIndex:   0,
		EncryptedData: ciphertext,
		Nonce:         nonce,
	}); err != nil {
		t.Fatalf("encrypted cast failed: %v", err)
	}

	setNow(baseTime + 1100)
	first, err := module.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{PollID: poll.ID, Caller: poll.Creator, DecryptionKey: key})
	if err != nil {
		t.Fatalf("first decrypt failed: %v", err)
	}
	second, err := module.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{PollID: poll.ID, Caller: poll.Creator, DecryptionKey: key})
	if err != nil {
		t.Fatalf("repeat decrypt should be idempotent, got %v", err)
	}
	if fmt.Sprint(first.Counts) != fmt.Sprint(second.Counts) || first.TotalVoters != second.TotalVoters {
		t.Fatalf("repeat decrypt diverged: %v vs %v", first, second)
	}
}

func TestDecryptResultsRejectsTamperedBallot(t *testing.T) {
	module, setNow := newEngine(t)
	ctx := context.Background()

	poll := createEncryptedPoll(t, module)
	setNow(baseTime + 200)

	key := revealKey()
	ciphertext, nonce := sealBallot(t, key, 1, 5)
	ciphertext[0] ^= 0xFF
	if _, err := module.Votes.Cast(ctx, commands.CastVoteCommand{
		PollID:        poll.ID,
		Caller:        entities.Identity("alice"),
		OptionIndex:   0,
		EncryptedData: ciphertext,
		Nonce:         nonce,
	}); err != nil {
		t.Fatalf("encrypted cast failed: %v", err)
	}

	setNow(baseTime + 1100)
	_, err := module.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{PollID: poll.ID, Caller: poll.Creator, DecryptionKey: key})
	if !errors.Is(err, domainerrors.ErrInvalidDecryptionKey) {
		t.Fatalf("expected invalid decryption key for tampered ballot, got %v", err)
	}
}
