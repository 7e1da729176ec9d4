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

type DelegateVoteCommand struct {
	Delegator entities.Identity
	Delegate  entities.Identity
	// PollID scopes the grant to one poll; nil covers every poll.
	PollID *uint64
	// Expiration is a unix timestamp after which the grant lapses; nil never
	// expires.
	Expiration *int64
}

type RevokeDelegationCommand struct {
	DelegationID uint64
	Caller       entities.Identity
}

// DelegationUseCase owns delegation grants and their resolution at cast time.
type DelegationUseCase struct {
	State  ports.StateRepository
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// Delegate records a new active grant. Self-delegation is rejected, scoped
// grants require the poll to allow delegation, and the named delegate must
// not itself be delegating: chains longer than one hop are unsupported.
func (uc DelegationUseCase) Delegate(ctx context.Context, cmd DelegateVoteCommand) (entities.Delegation, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()

	if cmd.Delegator.IsZero() || cmd.Delegate.IsZero() || cmd.Delegator == cmd.Delegate {
		return entities.Delegation{}, domainerrors.ErrInvalidDelegation
	}
	if cmd.Expiration != nil && *cmd.Expiration <= now {
		return entities.Delegation{}, domainerrors.ErrInvalidPollParameters
	}

	var delegation entities.Delegation
	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		if cmd.PollID != nil {
			poll, err := state.GetPoll(ctx, *cmd.PollID)
			if err != nil {
				return err
			}
			if !poll.AllowDelegation {
				return domainerrors.ErrInvalidDelegation
			}
		}

		outgoing, err := state.ListDelegationsByDelegator(ctx, cmd.Delegate)
		if err != nil {
			return err
		}
		for _, existing := range outgoing {
			if existing.IsActive && !existing.ExpiredAt(now) {
				return domainerrors.ErrInvalidDelegation
			}
		}

		delegationID, err := uc.IDGen.NextID(ctx)
		if err != nil {
			return err
		}
		delegation = entities.Delegation{
			ID:         delegationID,
			Delegator:  cmd.Delegator,
			Delegate:   cmd.Delegate,
			PollID:     cmd.PollID,
			Expiration: cmd.Expiration,
			IsActive:   true,
			CreatedAt:  now,
		}
		return state.SaveDelegation(ctx, delegation)
	})
	if err != nil {
		return entities.Delegation{}, err
	}

	logger.Info("delegation created",
		"event", "delegation_created",
		"module", "governance/poll-engine",
		"layer", "application",
		"delegation_id", delegation.ID,
		"delegator", string(delegation.Delegator),
		"delegate", string(delegation.Delegate),
		"scoped", delegation.PollID != nil,
	)
	return delegation, nil
}

// Revoke deactivates a grant. Only the delegator may revoke; the record is
// kept for audit.
func (uc DelegationUseCase) Revoke(ctx context.Context, cmd RevokeDelegationCommand) error {
	logger := application.ResolveLogger(uc.Logger)

	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		delegation, err := state.GetDelegation(ctx, cmd.DelegationID)
		if err != nil {
			return err
		}
		if delegation.Delegator != cmd.Caller {
			return domainerrors.ErrNotDelegator
		}
		delegation.IsActive = false
		return state.SaveDelegation(ctx, delegation)
	})
	if err != nil {
		return err
	}

	logger.Info("delegation revoked",
		"event", "delegation_revoked",
		"module", "governance/poll-engine",
		"layer", "application",
		"delegation_id", cmd.DelegationID,
	)
	return nil
}

func (uc DelegationUseCase) now() int64 {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC().Unix()
	}
	return time.Now().UTC().Unix()
}

// resolveDelegation returns the effective voter for a cast that references a
// grant. The referenced grant must name the caller as delegate and cover the
// poll; if it has lapsed, another active non-expired grant from the same
// delegator to the same caller may still serve, otherwise the cast fails
// DelegationExpired.
func resolveDelegation(
	ctx context.Context,
	state ports.StateRepository,
	caller entities.Identity,
	pollID uint64,
	delegationID uint64,
	now int64,
) (entities.Identity, error) {
	delegation, err := state.GetDelegation(ctx, delegationID)
	if err != nil {
		return "", domainerrors.ErrInvalidDelegation
	}
	if delegation.Delegate != caller || !delegation.IsActive || !delegation.CoversPoll(pollID) {
		return "", domainerrors.ErrInvalidDelegation
	}
	if !delegation.ExpiredAt(now) {
		return delegation.Delegator, nil
	}

	grants, err := state.ListDelegationsByDelegate(ctx, caller)
	if err != nil {
		return "", err
	}
	for _, fallback := range grants {
		if fallback.ID == delegation.ID || fallback.Delegator != delegation.Delegator {
			continue
		}
		if fallback.UsableAt(pollID, now) {
			return fallback.Delegator, nil
		}
	}
	return "", domainerrors.ErrDelegationExpired
}
