package ports

import (
	"context"
	"errors"
	"time"

	"plebiscite/contexts/governance/poll-engine/domain/entities"
)

// ErrAccountNotFound is the byte-store miss sentinel. Adapters built on an
// AccountStore translate it into the appropriate domain error.
var ErrAccountNotFound = errors.New("account not found")

// AccountStore is the host ledger's account interface: atomic load and store
// of named byte records. The engine never assumes anything else about the
// hosting chain's storage.
type AccountStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
}

// StateRepository is the typed view over persisted engine state. Atomic runs
// fn against a repository whose writes commit together or not at all; the
// dispatcher wraps every instruction in it.
type StateRepository interface {
	Atomic(ctx context.Context, fn func(StateRepository) error) error

	GetPoll(ctx context.Context, pollID uint64) (entities.Poll, error)
	SavePoll(ctx context.Context, poll entities.Poll) error
	PollExists(ctx context.Context, pollID uint64) (bool, error)

	GetVote(ctx context.Context, pollID uint64, voter entities.Identity) (entities.Vote, bool, error)
	SaveVote(ctx context.Context, vote entities.Vote) error
	ListVotesByPoll(ctx context.Context, pollID uint64) ([]entities.Vote, error)

	GetVoteCount(ctx context.Context, pollID uint64) (entities.VoteCount, error)
	SaveVoteCount(ctx context.Context, count entities.VoteCount) error

	GetVoterRegistry(ctx context.Context, pollID uint64) (entities.VoterRegistry, error)
	SaveVoterRegistry(ctx context.Context, registry entities.VoterRegistry) error

	GetDelegation(ctx context.Context, delegationID uint64) (entities.Delegation, error)
	SaveDelegation(ctx context.Context, delegation entities.Delegation) error
	ListDelegationsByDelegate(ctx context.Context, delegate entities.Identity) ([]entities.Delegation, error)
	ListDelegationsByDelegator(ctx context.Context, delegator entities.Identity) ([]entities.Delegation, error)

	GetTokenBalance(ctx context.Context, owner, token entities.Identity) (entities.TokenBalance, bool, error)
	SaveTokenBalance(ctx context.Context, balance entities.TokenBalance) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NextID(ctx context.Context) (uint64, error)
}

// ProofVerifier is the external zero-knowledge primitive: pass or fail, no
// partial knowledge of the ballot.
type ProofVerifier interface {
	VerifyBallotProof(ctx context.Context, poll entities.Poll, voter entities.Identity, proof []byte) error
}

// BallotCipher is the external AEAD primitive used for encrypted ballots.
// Commitment derives the public half recorded on the poll; Open fails for a
// wrong key, wrong nonce, or tampered ciphertext.
type BallotCipher interface {
	Commitment(key []byte) []byte
	Open(key, nonce, ciphertext []byte) ([]byte, error)
}

// FeeVerifier validates the fee transaction attached to a mutating
// instruction before any state is touched.
type FeeVerifier interface {
	VerifyFee(ctx context.Context, payer entities.Identity, feeTx []byte) error
}

// ResultRecord is the structured output surfaced through the host's log or
// output channel for GetResults.
type ResultRecord struct {
	EventID           string
	PollID            uint64
	Title             string
	Options           []string
	Counts            []uint64
	TotalVoters       uint64
	IsFinalized       bool
	PendingDecryption bool
	EmittedAt         time.Time
}

type ResultSink interface {
	PublishResult(ctx context.Context, record ResultRecord) error
}

// ResultsCache holds finalized tallies only; live tallies always come from
// the state repository.
type ResultsCache interface {
	GetResults(ctx context.Context, pollID uint64) (ResultRecord, bool, error)
	PutResults(ctx context.Context, record ResultRecord, ttl time.Duration) error
}
