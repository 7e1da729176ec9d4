package entities

// Delegation grants one identity the right to cast on behalf of another.
// A nil PollID means the grant covers every poll; a nil Expiration never
// lapses. Revocation deactivates the record, it is never deleted.
type Delegation struct {
	ID         uint64
	Delegator  Identity
	Delegate   Identity
	PollID     *uint64
	Expiration *int64
	IsActive   bool
	CreatedAt  int64
}

func (d Delegation) CoversPoll(pollID uint64) bool {
	return d.PollID == nil || *d.PollID == pollID
}

// ExpiredAt reports whether the grant has lapsed at the given instruction
// time. Expiry is evaluated lazily, there is no background sweep.
func (d Delegation) ExpiredAt(now int64) bool {
	return d.Expiration != nil && *d.Expiration <= now
}

// UsableAt reports whether the grant can resolve a cast for pollID at now.
func (d Delegation) UsableAt(pollID uint64, now int64) bool {
	return d.IsActive && d.CoversPoll(pollID) && !d.ExpiredAt(now)
}
