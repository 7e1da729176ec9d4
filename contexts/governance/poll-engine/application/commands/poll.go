package commands

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	application "plebiscite/contexts/governance/poll-engine/application"
	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

// CreatePollCommand carries the CreatePoll instruction payload.
type CreatePollCommand struct {
	Creator         entities.Identity
	Title           string
	Description     string
	Options         []string
	StartTime       int64
	EndTime         int64
	IsPrivate       bool
	AllowRevote     bool
	IsWeighted      bool
	AllowDelegation bool
	IsEncrypted     bool
	WeightToken     *entities.Identity
	EarlyVoterBonus uint8
	// KeyCommitment is the public half of the creator-held reveal keypair,
	// required for encrypted polls.
	KeyCommitment []byte
}

type CancelPollCommand struct {
	PollID uint64
	Caller entities.Identity
}

type ClosePollCommand struct {
	PollID uint64
	Caller entities.Identity
}

type DecryptResultsCommand struct {
	PollID        uint64
	Caller        entities.Identity
	DecryptionKey []byte
}

// PollUseCase owns the poll lifecycle: creation, cancellation, closing and
// the post-close reveal of encrypted tallies.
type PollUseCase struct {
	State            ports.StateRepository
	Clock            ports.Clock
	IDGen            ports.IDGenerator
	Cipher           ports.BallotCipher
	RegistryCapacity uint64
	Logger           *slog.Logger
}

// CreatePoll validates parameters, allocates a poll id and persists the poll
// together with its empty vote count and voter registry.
func (uc PollUseCase) CreatePoll(ctx context.Context, cmd CreatePollCommand) (entities.Poll, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	if err := validatePollParameters(cmd, now); err != nil {
		logger.Warn("poll create validation failed",
			"event", "poll_create_validation_failed",
			"module", "governance/poll-engine",
			"layer", "application",
			"creator", string(cmd.Creator),
			"error", err.Error(),
		)
		return entities.Poll{}, err
	}

	var poll entities.Poll
	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		pollID, err := uc.IDGen.NextID(ctx)
		if err != nil {
			return err
		}
		exists, err := state.PollExists(ctx, pollID)
		if err != nil {
			return err
		}
		if exists {
			return domainerrors.ErrPollAlreadyExists
		}

		poll = entities.Poll{
			ID:              pollID,
			Creator:         cmd.Creator,
			Title:           cmd.Title,
			Description:     cmd.Description,
			Options:         append([]string(nil), cmd.Options...),
			StartTime:       cmd.StartTime,
			EndTime:         cmd.EndTime,
			IsPrivate:       cmd.IsPrivate,
			AllowRevote:     cmd.AllowRevote,
			IsWeighted:      cmd.IsWeighted,
			AllowDelegation: cmd.AllowDelegation,
			IsEncrypted:     cmd.IsEncrypted,
			IsActive:        true,
			WeightToken:     cmd.WeightToken,
			EarlyVoterBonus: cmd.EarlyVoterBonus,
			KeyCommitment:   append([]byte(nil), cmd.KeyCommitment...),
			CreatedAt:       now,
		}
		if err := state.SavePoll(ctx, poll); err != nil {
			return err
		}
		if err := state.SaveVoteCount(ctx, entities.VoteCount{
			PollID:      pollID,
			Counts:      make([]uint64, len(cmd.Options)),
			LastUpdated: now,
		}); err != nil {
			return err
		}
		return state.SaveVoterRegistry(ctx, entities.NewVoterRegistry(pollID, uc.RegistryCapacity))
	})
	if err != nil {
		return entities.Poll{}, err
	}

	logger.Info("poll created",
		"event", "poll_created",
		"module", "governance/poll-engine",
		"layer", "application",
		"poll_id", poll.ID,
		"creator", string(poll.Creator),
		"status", string(poll.StatusAt(now)),
		"options", len(poll.Options),
	)
	return poll, nil
}

// CancelPoll marks a pending poll inactive. Only the creator may cancel, and
// only before the voting window opens; no votes can exist yet.
func (uc PollUseCase) CancelPoll(ctx context.Context, cmd CancelPollCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		poll, err := state.GetPoll(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if poll.Creator != cmd.Caller {
			return domainerrors.ErrNotPollCreator
		}
		if !poll.IsActive {
			return domainerrors.ErrPollNotActive
		}
		if now >= poll.StartTime {
			return domainerrors.ErrPollAlreadyStarted
		}
		poll.IsActive = false
		poll.Cancelled = true
		return state.SavePoll(ctx, poll)
	})
	if err != nil {
		return err
	}

	logger.Info("poll cancelled",
		"event", "poll_cancelled",
		"module", "governance/poll-engine",
		"layer", "application",
		"poll_id", cmd.PollID,
	)
	return nil
}

// ClosePoll deactivates a poll. Anyone may close once the window has ended;
// the creator may close early at any point after the start time. Closing a
// plaintext poll finalizes its vote count; vote data is never erased.
func (uc PollUseCase) ClosePoll(ctx context.Context, cmd ClosePollCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		poll, err := state.GetPoll(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if !poll.IsActive {
			return domainerrors.ErrPollNotActive
		}
		if now < poll.EndTime {
			if poll.Creator != cmd.Caller {
				return domainerrors.ErrNotPollCreator
			}
			if now < poll.StartTime {
				return domainerrors.ErrPollNotStarted
			}
		}
		poll.IsActive = false
		if err := state.SavePoll(ctx, poll); err != nil {
			return err
		}
		if poll.IsEncrypted {
			return nil
		}
		count, err := state.GetVoteCount(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		count.IsFinalized = true
		count.LastUpdated = now
		return state.SaveVoteCount(ctx, count)
	})
	if err != nil {
		return err
	}

	logger.Info("poll closed",
		"event", "poll_closed",
		"module", "governance/poll-engine",
		"layer", "application",
		"poll_id", cmd.PollID,
		"caller", string(cmd.Caller),
	)
	return nil
}

// DecryptResults reveals an encrypted poll's tally. The supplied key is
// checked against the commitment recorded at creation, every stored ballot is
// opened, and the vote count is rebuilt deterministically and finalized. A
// repeat call with the correct key is an idempotent success.
func (uc PollUseCase) DecryptResults(ctx context.Context, cmd DecryptResultsCommand) (entities.VoteCount, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	var finalized entities.VoteCount
	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		poll, err := state.GetPoll(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if !poll.IsEncrypted {
			return domainerrors.ErrPollNotEncrypted
		}
		if poll.Creator != cmd.Caller {
			return domainerrors.ErrNotPollCreator
		}
		if poll.Cancelled {
			return domainerrors.ErrPollNotActive
		}
		if poll.IsActive {
			if now < poll.EndTime {
				return domainerrors.ErrPollStillActive
			}
			poll.IsActive = false
		}
		if !bytes.Equal(uc.Cipher.Commitment(cmd.DecryptionKey), poll.KeyCommitment) {
			return domainerrors.ErrInvalidEncryption
		}

		count, err := state.GetVoteCount(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if count.IsFinalized {
			finalized = count
			return nil
		}

		votes, err := state.ListVotesByPoll(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		sort.Slice(votes, func(i, j int) bool { return votes[i].Voter < votes[j].Voter })

		counts := make([]uint64, len(poll.Options))
		for _, vote := range votes {
			plain, err := uc.Cipher.Open(cmd.DecryptionKey, vote.Nonce, vote.EncryptedData)
			if err != nil {
				return domainerrors.ErrInvalidDecryptionKey
			}
			if len(plain) == 0 || int(plain[0]) >= len(poll.Options) {
				return domainerrors.ErrInvalidEncryption
			}
			vote.OptionIndex = plain[0]
			if err := state.SaveVote(ctx, vote); err != nil {
				return err
			}
			counts[plain[0]] += vote.Weight
		}

		count.Counts = counts
		count.IsFinalized = true
		count.LastUpdated = now
		if err := state.SaveVoteCount(ctx, count); err != nil {
			return err
		}

		poll.DecryptionKey = append([]byte(nil), cmd.DecryptionKey...)
		if err := state.SavePoll(ctx, poll); err != nil {
			return err
		}
		finalized = count
		return nil
	})
	if err != nil {
		return entities.VoteCount{}, err
	}

	logger.Info("poll results decrypted",
		"event", "poll_results_decrypted",
		"module", "governance/poll-engine",
		"layer", "application",
		"poll_id", cmd.PollID,
		"total_voters", finalized.TotalVoters,
	)
	return finalized, nil
}

func (uc PollUseCase) now() int64 {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC().Unix()
	}
	return time.Now().UTC().Unix()
}

func validatePollParameters(cmd CreatePollCommand, now int64) error {
	if len(cmd.Title) == 0 || len(cmd.Title) > entities.MaxTitleLength {
		return domainerrors.ErrInvalidPollParameters
	}
	if len(cmd.Description) > entities.MaxDescriptionLength {
		return domainerrors.ErrInvalidPollParameters
	}
	if len(cmd.Options) < entities.MinOptions || len(cmd.Options) > entities.MaxOptions {
		return domainerrors.ErrInvalidPollParameters
	}
	for _, option := range cmd.Options {
		if len(option) == 0 || len(option) > entities.MaxOptionLength {
			return domainerrors.ErrInvalidPollParameters
		}
	}
	if cmd.StartTime >= cmd.EndTime || cmd.EndTime <= now {
		return domainerrors.ErrInvalidPollParameters
	}
	if cmd.IsWeighted != (cmd.WeightToken != nil) {
		return domainerrors.ErrInvalidPollParameters
	}
	if cmd.EarlyVoterBonus > entities.MaxEarlyVoterBonus {
		return domainerrors.ErrInvalidPollParameters
	}
	if cmd.IsEncrypted != (len(cmd.KeyCommitment) > 0) {
		return domainerrors.ErrInvalidPollParameters
	}
	if cmd.Creator.IsZero() {
		return domainerrors.ErrInvalidPollParameters
	}
	return nil
}
