// Package fees validates the fee transaction attached to mutating
// instructions.
package fees

import (
	"context"
	"encoding/json"

	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

type feeTransaction struct {
	Payer  entities.Identity `json:"payer"`
	Inputs []feeInput        `json:"inputs"`
}

type feeInput struct {
	Amount uint64 `json:"amount"`
}

// Verifier checks that a fee transaction is well formed, signed by the
// instruction caller and carries at least MinFee.
type Verifier struct {
	MinFee uint64
}

func (v Verifier) VerifyFee(_ context.Context, payer entities.Identity, feeTx []byte) error {
	if len(feeTx) == 0 {
		return domainerrors.ErrInvalidFeeTransaction
	}
	var tx feeTransaction
	if err := json.Unmarshal(feeTx, &tx); err != nil {
		return domainerrors.ErrInvalidFeeTransaction
	}
	if !tx.Payer.IsZero() && tx.Payer != payer {
		return domainerrors.ErrInvalidFeeTransaction
	}
	if len(tx.Inputs) == 0 {
		return domainerrors.ErrInsufficientFees
	}
	var total uint64
	for _, input := range tx.Inputs {
		total += input.Amount
	}
	minFee := v.MinFee
	if minFee == 0 {
		minFee = 1
	}
	if total < minFee {
		return domainerrors.ErrInsufficientFees
	}
	return nil
}

var _ ports.FeeVerifier = Verifier{}
