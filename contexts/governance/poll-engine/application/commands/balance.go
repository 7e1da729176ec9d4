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

type UpdateTokenBalanceCommand struct {
	Owner  entities.Identity
	Token  entities.Identity
	Amount uint64
}

// BalanceUseCase maintains the token balances consumed by weighted polls.
type BalanceUseCase struct {
	State  ports.StateRepository
	Clock  ports.Clock
	Logger *slog.Logger
}

// UpdateTokenBalance upserts the (owner, token) balance record.
func (uc BalanceUseCase) UpdateTokenBalance(ctx context.Context, cmd UpdateTokenBalanceCommand) (entities.TokenBalance, error) {
	logger := application.ResolveLogger(uc.Logger)
	if cmd.Owner.IsZero() || cmd.Token.IsZero() {
		return entities.TokenBalance{}, domainerrors.ErrInvalidToken
	}

	now := uc.now()
	balance := entities.TokenBalance{
		Owner:       cmd.Owner,
		Token:       cmd.Token,
		Amount:      cmd.Amount,
		LastUpdated: now,
	}
	err := uc.State.Atomic(ctx, func(state ports.StateRepository) error {
		return state.SaveTokenBalance(ctx, balance)
	})
	if err != nil {
		return entities.TokenBalance{}, err
	}

	logger.Info("token balance updated",
		"event", "token_balance_updated",
		"module", "governance/poll-engine",
		"layer", "application",
		"owner", string(cmd.Owner),
		"token", string(cmd.Token),
		"amount", cmd.Amount,
	)
	return balance, nil
}

func (uc BalanceUseCase) now() int64 {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC().Unix()
	}
	return time.Now().UTC().Unix()
}
