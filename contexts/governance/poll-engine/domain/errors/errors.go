package errors

import "errors"

var (
	ErrInvalidPollParameters    = errors.New("invalid poll parameters")
	ErrPollAlreadyExists        = errors.New("poll already exists")
	ErrPollDoesNotExist         = errors.New("poll does not exist")
	ErrPollNotActive            = errors.New("poll is not active")
	ErrPollNotStarted           = errors.New("poll has not started yet")
	ErrPollEnded                = errors.New("poll has already ended")
	ErrNotPollCreator           = errors.New("only the poll creator can perform this action")
	ErrAlreadyVoted             = errors.New("voter has already voted")
	ErrRevotingNotAllowed       = errors.New("revoting is not allowed for this poll")
	ErrInvalidOptionIndex       = errors.New("invalid option index")
	ErrInvalidVoteWeight        = errors.New("invalid vote weight")
	ErrInvalidDelegation        = errors.New("invalid delegation")
	ErrDelegationExpired        = errors.New("delegation has expired")
	ErrInvalidZkProof           = errors.New("invalid zero-knowledge proof")
	ErrInvalidEncryption        = errors.New("invalid encryption payload")
	ErrInsufficientFees         = errors.New("insufficient fees")
	ErrInvalidFeeTransaction    = errors.New("invalid fee transaction")
	ErrPollAlreadyStarted       = errors.New("poll has already started")
	ErrPollNotEncrypted         = errors.New("poll is not encrypted")
	ErrResultsAlreadyFinalized  = errors.New("results are already finalized")
	ErrInvalidDecryptionKey     = errors.New("invalid decryption key")
	ErrPollStillActive          = errors.New("poll is still active")
	ErrDelegationNotFound       = errors.New("delegation not found")
	ErrNotDelegator             = errors.New("caller is not the delegator")
	ErrTokenBalanceNotFound     = errors.New("token balance not found")
	ErrInvalidToken             = errors.New("invalid weight token")
	ErrMissingNonce             = errors.New("missing encryption nonce")
)

// Numeric codes are a stable external contract; callers match on the code,
// not the message.
var codes = map[error]uint32{
	ErrInvalidPollParameters:   1001,
	ErrPollAlreadyExists:       1002,
	ErrPollDoesNotExist:        1003,
	ErrPollNotActive:           1004,
	ErrPollNotStarted:          1005,
	ErrPollEnded:               1006,
	ErrNotPollCreator:          1007,
	ErrAlreadyVoted:            1008,
	ErrRevotingNotAllowed:      1009,
	ErrInvalidOptionIndex:      1010,
	ErrInvalidVoteWeight:       1011,
	ErrInvalidDelegation:       1012,
	ErrDelegationExpired:       1013,
	ErrInvalidZkProof:          1014,
	ErrInvalidEncryption:       1015,
	ErrInsufficientFees:        1016,
	ErrInvalidFeeTransaction:   1017,
	ErrPollAlreadyStarted:      1018,
	ErrPollNotEncrypted:        1019,
	ErrResultsAlreadyFinalized: 1020,
	ErrInvalidDecryptionKey:    1021,
	ErrPollStillActive:         1022,
	ErrDelegationNotFound:      1023,
	ErrNotDelegator:            1024,
	ErrTokenBalanceNotFound:    1025,
	ErrInvalidToken:            1026,
	ErrMissingNonce:            1027,
}

// CodeInternal is returned for errors outside the instruction contract
// (storage faults, codec failures).
const CodeInternal uint32 = 1000

// Code maps a domain error to its stable numeric code. Unknown errors map to
// CodeInternal.
func Code(err error) uint32 {
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}
