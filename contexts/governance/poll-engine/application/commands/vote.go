package commands

import (
	"context"
	"log/slog"
	"time"

	application "plebiscite/contexts/governance/poll-engine/application"
	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

// CastVoteCommand carries the CastVote instruction payload. WeightOverride is
// only honored on weighted polls and never above the balance-derived cap.
// DelegationID, when set, casts on behalf of the grant's delegator.
type CastVoteCommand struct {
	PollID         uint64
	Caller         entities.Identity
	OptionIndex    uint8
	WeightOverride *uint64
	EncryptedData  []byte
	ZkProof        []byte
	Nonce          []byte
	DelegationID   *uint64
}

type ChangeVoteCommand struct {
	PollID           uint64
	Caller           entities.Identity
	NewOptionIndex   uint8
	NewEncryptedData []byte
	NewZkProof       []byte
	NewNonce         []byte
}

// VoteUseCase orchestrates ballot casting and changing against the poll
// lifecycle, voter registry, delegation grants and weight resolution. Every
// check runs before any write; the Atomic wrapper guarantees no partial state
// survives a failure.
type VoteUseCase struct {
	State  ports.StateRepository
	Clock  ports.Clock
	Proofs ports.ProofVerifier
	Logger *slog.Logger
}

// Cast records a new ballot for the effective voter.
func (uc VoteUseCase) Cast(ctx context.Context, cmd CastVoteCommand) (entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	var vote entities.Vote
	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		poll, err := state.GetPoll(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if !poll.IsActive {
			return domainerrors.ErrPollNotActive
		}
		if now < poll.StartTime {
			return domainerrors.ErrPollNotStarted
		}
		if now >= poll.EndTime {
			return domainerrors.ErrPollEnded
		}
		if int(cmd.OptionIndex) >= len(poll.Options) {
			return domainerrors.ErrInvalidOptionIndex
		}

		voter := cmd.Caller
		var delegatedTo *entities.Identity
		if cmd.DelegationID != nil {
			if !poll.AllowDelegation {
				return domainerrors.ErrInvalidDelegation
			}
			voter, err = resolveDelegation(ctx, state, cmd.Caller, cmd.PollID, *cmd.DelegationID, now)
			if err != nil {
				return err
			}
			delegate := cmd.Caller
			delegatedTo = &delegate
		}

		registry, err := state.GetVoterRegistry(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if registry.HasVoted(voter) {
			return domainerrors.ErrAlreadyVoted
		}

		weight, err := uc.resolveWeight(ctx, state, poll, voter, cmd.WeightOverride, now)
		if err != nil {
			return err
		}

		if err := uc.checkBallotPayload(ctx, poll, voter, cmd.EncryptedData, cmd.Nonce, cmd.ZkProof); err != nil {
			return err
		}

		vote = entities.Vote{
			PollID:        cmd.PollID,
			Voter:         voter,
			OptionIndex:   cmd.OptionIndex,
			Timestamp:     now,
			Weight:        weight,
			DelegatedTo:   delegatedTo,
			EncryptedData: cmd.EncryptedData,
			ZkProof:       cmd.ZkProof,
			Nonce:         cmd.Nonce,
		}
		if err := state.SaveVote(ctx, vote); err != nil {
			return err
		}

		registry.MarkVoted(voter)
		if err := state.SaveVoterRegistry(ctx, registry); err != nil {
			return err
		}

		count, err := state.GetVoteCount(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		// Encrypted ballots stay out of the per-option tally until reveal.
		if !poll.IsEncrypted {
			count.Counts[cmd.OptionIndex] += weight
		}
		count.TotalVoters++
		count.LastUpdated = now
		return state.SaveVoteCount(ctx, count)
	})
	if err != nil {
		return entities.Vote{}, err
	}

	logger.Info("vote cast",
		"event", "vote_cast",
		"module", "governance/poll-engine",
		"layer", "application",
		"poll_id", vote.PollID,
		"voter", string(vote.Voter),
		"weight", vote.Weight,
		"delegated", vote.DelegatedTo != nil,
	)
	return vote, nil
}

// Change replaces the caller's live ballot in place. The weight is recomputed
// at change time so the early-voter bonus reflects the final choice's timing.
func (uc VoteUseCase) Change(ctx context.Context, cmd ChangeVoteCommand) (entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	var vote entities.Vote
	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		poll, err := state.GetPoll(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if !poll.IsActive {
			return domainerrors.ErrPollNotActive
		}
		if !poll.AllowRevote {
			return domainerrors.ErrRevotingNotAllowed
		}
		if now < poll.StartTime {
			return domainerrors.ErrPollNotStarted
		}
		if now >= poll.EndTime {
			return domainerrors.ErrPollEnded
		}
		if int(cmd.NewOptionIndex) >= len(poll.Options) {
			return domainerrors.ErrInvalidOptionIndex
		}

		existing, found, err := state.GetVote(ctx, cmd.PollID, cmd.Caller)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrPollDoesNotExist
		}

		weight, err := uc.resolveWeight(ctx, state, poll, existing.Voter, nil, now)
		if err != nil {
			return err
		}

		if err := uc.checkBallotPayload(ctx, poll, existing.Voter, cmd.NewEncryptedData, cmd.NewNonce, cmd.NewZkProof); err != nil {
			return err
		}

		count, err := state.GetVoteCount(ctx, cmd.PollID)
		if err != nil {
			return err
		}
		if !poll.IsEncrypted {
			if count.Counts[existing.OptionIndex] >= existing.Weight {
				count.Counts[existing.OptionIndex] -= existing.Weight
			} else {
				count.Counts[existing.OptionIndex] = 0
			}
			count.Counts[cmd.NewOptionIndex] += weight
		}
		count.LastUpdated = now

		existing.OptionIndex = cmd.NewOptionIndex
		existing.Timestamp = now
		existing.Weight = weight
		existing.EncryptedData = cmd.NewEncryptedData
		existing.ZkProof = cmd.NewZkProof
		existing.Nonce = cmd.NewNonce

		if err := state.SaveVote(ctx, existing); err != nil {
			return err
		}
		if err := state.SaveVoteCount(ctx, count); err != nil {
			return err
		}
		vote = existing
		return nil
	})
	if err != nil {
		return entities.Vote{}, err
	}

	logger.Info("vote changed",
		"event", "vote_changed",
		"module", "governance/poll-engine",
		"layer", "application",
		"poll_id", vote.PollID,
		"voter", string(vote.Voter),
		"option_index", vote.OptionIndex,
		"weight", vote.Weight,
	)
	return vote, nil
}

// resolveWeight determines the ballot weight. Weighted polls read the
// effective voter's balance for the poll's weight token and run it through
// the early-voter bonus; an override is capped by the derived weight.
// Unweighted polls always count as one.
func (uc VoteUseCase) resolveWeight(
	ctx context.Context,
	state ports.StateRepository,
	poll entities.Poll,
	voter entities.Identity,
	override *uint64,
	now int64,
) (uint64, error) {
	if !poll.IsWeighted {
		return 1, nil
	}
	if poll.WeightToken == nil {
		return 0, domainerrors.ErrInvalidPollParameters
	}
	balance, found, err := state.GetTokenBalance(ctx, voter, *poll.WeightToken)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, domainerrors.ErrTokenBalanceNotFound
	}
	if balance.Token != *poll.WeightToken {
		return 0, domainerrors.ErrInvalidToken
	}
	maxWeight, err := entities.ResolveWeight(balance.Amount, poll.StartTime, poll.EndTime, now, poll.EarlyVoterBonus)
	if err != nil {
		return 0, err
	}
	if override == nil {
		return maxWeight, nil
	}
	if *override == 0 || *override > maxWeight {
		return 0, domainerrors.ErrInvalidVoteWeight
	}
	return *override, nil
}

// checkBallotPayload enforces the privacy and confidentiality requirements of
// the poll on an incoming ballot.
func (uc VoteUseCase) checkBallotPayload(
	ctx context.Context,
	poll entities.Poll,
	voter entities.Identity,
	encryptedData, nonce, proof []byte,
) error {
	if poll.IsPrivate {
		if len(proof) == 0 {
			return domainerrors.ErrInvalidZkProof
		}
		if uc.Proofs != nil {
			if err := uc.Proofs.VerifyBallotProof(ctx, poll, voter, proof); err != nil {
				return domainerrors.ErrInvalidZkProof
			}
		}
	} else if len(proof) > 0 && uc.Proofs != nil {
		if err := uc.Proofs.VerifyBallotProof(ctx, poll, voter, proof); err != nil {
			return domainerrors.ErrInvalidZkProof
		}
	}
	if poll.IsEncrypted {
		if len(encryptedData) == 0 {
			return domainerrors.ErrInvalidEncryption
		}
		if len(nonce) == 0 {
			return domainerrors.ErrMissingNonce
		}
	}
	return nil
}

func (uc VoteUseCase) now() int64 {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC().Unix()
	}
	return time.Now().UTC().Unix()
}
