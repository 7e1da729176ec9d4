package entities

type PollStatus string

const (
	PollStatusPending   PollStatus = "pending"
	PollStatusActive    PollStatus = "active"
	PollStatusClosed    PollStatus = "closed"
	PollStatusCancelled PollStatus = "cancelled"
)

// Validation bounds for poll creation.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
	MaxOptionLength      = 100
	MinOptions           = 2
	MaxOptions           = 10
	MaxEarlyVoterBonus   = 100
)

type Poll struct {
	ID              uint64
	Creator         Identity
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
	IsActive        bool
	Cancelled       bool
	WeightToken     *Identity
	EarlyVoterBonus uint8
	// KeyCommitment is the public commitment to the reveal key, recorded at
	// creation for encrypted polls.
	KeyCommitment []byte
	// DecryptionKey is set once, at reveal, for auditability.
	DecryptionKey []byte
	CreatedAt     int64
}

// StatusAt derives the lifecycle state from the stored flags and the
// instruction clock. Cancelled and manually closed polls stay inactive
// regardless of the time window.
func (p Poll) StatusAt(now int64) PollStatus {
	if p.Cancelled {
		return PollStatusCancelled
	}
	if !p.IsActive || now >= p.EndTime {
		return PollStatusClosed
	}
	if now < p.StartTime {
		return PollStatusPending
	}
	return PollStatusActive
}

type VoteCount struct {
	PollID      uint64
	Counts      []uint64
	TotalVoters uint64
	LastUpdated int64
	IsFinalized bool
}

// WeightedTotal is the sum of all per-option counts.
func (c VoteCount) WeightedTotal() uint64 {
	var total uint64
	for _, count := range c.Counts {
		total += count
	}
	return total
}
