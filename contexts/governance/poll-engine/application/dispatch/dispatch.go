// Package dispatch decodes instruction envelopes and routes them to the
// poll-engine use cases. Every outcome carries the stable numeric code of
// the failure, or zero on success.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	application "plebiscite/contexts/governance/poll-engine/application"
	"plebiscite/contexts/governance/poll-engine/application/commands"
	"plebiscite/contexts/governance/poll-engine/application/queries"
	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

// Instruction kinds accepted by Dispatch.
const (
	KindCreatePoll         = "create_poll"
	KindCastVote           = "cast_vote"
	KindChangeVote         = "change_vote"
	KindClosePoll          = "close_poll"
	KindCancelPoll         = "cancel_poll"
	KindDelegateVote       = "delegate_vote"
	KindRevokeDelegation   = "revoke_delegation"
	KindUpdateTokenBalance = "update_token_balance"
	KindDecryptResults     = "decrypt_results"
	KindGetResults         = "get_results"
)

// Instruction is the wire envelope. Caller identifies the signer of the
// instruction; Payload holds the kind-specific body.
type Instruction struct {
	Kind    string            `json:"kind"`
	Caller  entities.Identity `json:"caller"`
	FeeTx   json.RawMessage   `json:"fee_tx,omitempty"`
	Payload json.RawMessage   `json:"payload"`
}

// Outcome reports the result of one instruction. Code is zero on success.
type Outcome struct {
	Code    uint32 `json:"code"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

type createPollPayload struct {
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Options         []string           `json:"options"`
	StartTime       int64              `json:"start_time"`
	EndTime         int64              `json:"end_time"`
	IsPrivate       bool               `json:"is_private"`
	AllowRevote     bool               `json:"allow_revote"`
	IsWeighted      bool               `json:"is_weighted"`
	AllowDelegation bool               `json:"allow_delegation"`
	IsEncrypted     bool               `json:"is_encrypted"`
	WeightToken     *entities.Identity `json:"weight_token,omitempty"`
	EarlyVoterBonus uint8              `json:"early_voter_bonus"`
	KeyCommitment   []byte             `json:"key_commitment,omitempty"`
}

type castVotePayload struct {
	PollID         uint64  `json:"poll_id"`
	OptionIndex    uint8   `json:"option_index"`
	WeightOverride *uint64 `json:"weight_override,omitempty"`
	EncryptedData  []byte  `json:"encrypted_data,omitempty"`
	ZkProof        []byte  `json:"zk_proof,omitempty"`
	Nonce          []byte  `json:"nonce,omitempty"`
	DelegationID   *uint64 `json:"delegation_id,omitempty"`
}

type changeVotePayload struct {
	PollID           uint64 `json:"poll_id"`
	NewOptionIndex   uint8  `json:"new_option_index"`
	NewEncryptedData []byte `json:"new_encrypted_data,omitempty"`
	NewZkProof       []byte `json:"new_zk_proof,omitempty"`
	NewNonce         []byte `json:"new_nonce,omitempty"`
}

type pollIDPayload struct {
	PollID uint64 `json:"poll_id"`
}

type delegateVotePayload struct {
	Delegate   entities.Identity `json:"delegate"`
	PollID     *uint64           `json:"poll_id,omitempty"`
	Expiration *int64            `json:"expiration,omitempty"`
}

type revokeDelegationPayload struct {
	DelegationID uint64 `json:"delegation_id"`
}

type updateTokenBalancePayload struct {
	Owner  entities.Identity `json:"owner"`
	Token  entities.Identity `json:"token"`
	Amount uint64            `json:"amount"`
}

type decryptResultsPayload struct {
	PollID        uint64 `json:"poll_id"`
	DecryptionKey []byte `json:"decryption_key"`
}

// Dispatcher routes decoded instructions to the use cases.
type Dispatcher struct {
	Polls       commands.PollUseCase
	Votes       commands.VoteUseCase
	Delegations commands.DelegationUseCase
	Balances    commands.BalanceUseCase
	Results     queries.ResultsUseCase
	Fees        ports.FeeVerifier
	Logger      *slog.Logger
}

// Dispatch decodes one envelope, verifies fees for fee-carrying kinds and
// invokes the matching use case.
func (d Dispatcher) Dispatch(ctx context.Context, raw []byte) Outcome {
	logger := application.ResolveLogger(d.Logger)

	var ins Instruction
	if err := json.Unmarshal(raw, &ins); err != nil {
		return Outcome{Code: domainerrors.CodeInternal, Message: "malformed instruction: " + err.Error()}
	}
	if ins.Caller.IsZero() {
		return Outcome{Code: domainerrors.CodeInternal, Message: "missing caller"}
	}
	if _, err := ins.Caller.Bytes(); err != nil {
		return Outcome{Code: domainerrors.CodeInternal, Message: "malformed caller: " + err.Error()}
	}

	if d.Fees != nil && feeCarrying(ins.Kind) {
		if err := d.Fees.VerifyFee(ctx, ins.Caller, ins.FeeTx); err != nil {
			logger.Warn("fee verification failed",
				"event", "fee_verification_failed",
				"module", "governance/poll-engine",
				"layer", "application",
				"kind", ins.Kind,
				"error", err.Error(),
			)
			return failure(err)
		}
	}

	switch ins.Kind {
	case KindCreatePoll:
		return d.createPoll(ctx, ins)
	case KindCastVote:
		return d.castVote(ctx, ins)
	case KindChangeVote:
		return d.changeVote(ctx, ins)
	case KindClosePoll:
		var p pollIDPayload
		if out, ok := decode(ins.Payload, &p); !ok {
			return out
		}
		if err := d.Polls.ClosePoll(ctx, commands.ClosePollCommand{PollID: p.PollID, Caller: ins.Caller}); err != nil {
			return failure(err)
		}
		return Outcome{}
	case KindCancelPoll:
		var p pollIDPayload
		if out, ok := decode(ins.Payload, &p); !ok {
			return out
		}
		if err := d.Polls.CancelPoll(ctx, commands.CancelPollCommand{PollID: p.PollID, Caller: ins.Caller}); err != nil {
			return failure(err)
		}
		return Outcome{}
	case KindDelegateVote:
		var p delegateVotePayload
		if out, ok := decode(ins.Payload, &p); !ok {
			return out
		}
		grant, err := d.Delegations.Delegate(ctx, commands.DelegateVoteCommand{
			Delegator:  ins.Caller,
			Delegate:   p.Delegate,
			PollID:     p.PollID,
			Expiration: p.Expiration,
		})
		if err != nil {
			return failure(err)
		}
		return Outcome{Result: grant}
	case KindRevokeDelegation:
		var p revokeDelegationPayload
		if out, ok := decode(ins.Payload, &p); !ok {
			return out
		}
		if err := d.Delegations.Revoke(ctx, commands.RevokeDelegationCommand{DelegationID: p.DelegationID, Caller: ins.Caller}); err != nil {
			return failure(err)
		}
		return Outcome{}
	case KindUpdateTokenBalance:
		var p updateTokenBalancePayload
		if out, ok := decode(ins.Payload, &p); !ok {
			return out
		}
		owner := p.Owner
		if owner.IsZero() {
			owner = ins.Caller
		}
		balance, err := d.Balances.UpdateTokenBalance(ctx, commands.UpdateTokenBalanceCommand{
			Owner:  owner,
			Token:  p.Token,
			Amount: p.Amount,
		})
		if err != nil {
			return failure(err)
		}
		return Outcome{Result: balance}
	case KindDecryptResults:
		var p decryptResultsPayload
		if out, ok := decode(ins.Payload, &p); !ok {
			return out
		}
		count, err := d.Polls.DecryptResults(ctx, commands.DecryptResultsCommand{
			PollID:        p.PollID,
			Caller:        ins.Caller,
			DecryptionKey: p.DecryptionKey,
		})
		if err != nil {
			return failure(err)
		}
		return Outcome{Result: count}
	case KindGetResults:
		var p pollIDPayload
		if out, ok := decode(ins.Payload, &p); !ok {
			return out
		}
		record, err := d.Results.GetResults(ctx, queries.GetResultsQuery{PollID: p.PollID})
		if err != nil {
			return failure(err)
		}
		return Outcome{Result: record}
	default:
		return Outcome{Code: domainerrors.CodeInternal, Message: "unknown instruction kind: " + ins.Kind}
	}
}

func (d Dispatcher) createPoll(ctx context.Context, ins Instruction) Outcome {
	var p createPollPayload
	if out, ok := decode(ins.Payload, &p); !ok {
		return out
	}
	poll, err := d.Polls.CreatePoll(ctx, commands.CreatePollCommand{
		Creator:         ins.Caller,
		Title:           p.Title,
		Description:     p.Description,
		Options:         p.Options,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		IsPrivate:       p.IsPrivate,
		AllowRevote:     p.AllowRevote,
		IsWeighted:      p.IsWeighted,
		AllowDelegation: p.AllowDelegation,
		IsEncrypted:     p.IsEncrypted,
		WeightToken:     p.WeightToken,
		EarlyVoterBonus: p.EarlyVoterBonus,
		KeyCommitment:   p.KeyCommitment,
	})
	if err != nil {
		return failure(err)
	}
	return Outcome{Result: poll}
}

func (d Dispatcher) castVote(ctx context.Context, ins Instruction) Outcome {
	var p castVotePayload
	if out, ok := decode(ins.Payload, &p); !ok {
		return out
	}
	vote, err := d.Votes.Cast(ctx, commands.CastVoteCommand{
		PollID:         p.PollID,
		Caller:         ins.Caller,
		OptionIndex:    p.OptionIndex,
		WeightOverride: p.WeightOverride,
		EncryptedData:  p.EncryptedData,
		ZkProof:        p.ZkProof,
		Nonce:          p.Nonce,
		DelegationID:   p.DelegationID,
	})
	if err != nil {
		return failure(err)
	}
	return Outcome{Result: vote}
}

func (d Dispatcher) changeVote(ctx context.Context, ins Instruction) Outcome {
	var p changeVotePayload
	if out, ok := decode(ins.Payload, &p); !ok {
		return out
	}
	vote, err := d.Votes.Change(ctx, commands.ChangeVoteCommand{
		PollID:           p.PollID,
		Caller:           ins.Caller,
		NewOptionIndex:   p.NewOptionIndex,
		NewEncryptedData: p.NewEncryptedData,
		NewZkProof:       p.NewZkProof,
		NewNonce:         p.NewNonce,
	})
	if err != nil {
		return failure(err)
	}
	return Outcome{Result: vote}
}

// Every mutating instruction pays a fee; only cancellation and reads are
// exempt.
func feeCarrying(kind string) bool {
	switch kind {
	case KindCreatePoll, KindCastVote, KindChangeVote, KindClosePoll,
		KindDelegateVote, KindRevokeDelegation, KindUpdateTokenBalance,
		KindDecryptResults:
		return true
	}
	return false
}

func decode(raw json.RawMessage, into any) (Outcome, bool) {
	if len(raw) == 0 {
		return Outcome{Code: domainerrors.CodeInternal, Message: "missing payload"}, false
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return Outcome{Code: domainerrors.CodeInternal, Message: "malformed payload: " + err.Error()}, false
	}
	return Outcome{}, true
}

func failure(err error) Outcome {
	return Outcome{Code: domainerrors.Code(err), Message: err.Error()}
}
