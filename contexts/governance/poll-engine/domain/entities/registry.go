package entities

import "github.com/OneOfOne/xxhash"

// DefaultRegistryCapacity is the default number of voter slots (1024 bytes of
// bitmap). It is a sizing choice, not a hard limit; the bitmap grows when a
// slot lands past the current length.
const DefaultRegistryCapacity = 8192

// VoterRegistry is the double-vote guard for one poll: a bitmap keyed by a
// hash slot of the voter identity, plus the ordered voter list that resolves
// slot collisions and supports reverse lookup.
//
// Invariant: an identity appears in Voters exactly when a live Vote exists
// for it, and its slot bit is always set in that case.
type VoterRegistry struct {
	PollID   uint64
	Capacity uint64
	Bitmap   []byte
	Voters   []Identity
}

func NewVoterRegistry(pollID uint64, capacity uint64) VoterRegistry {
	if capacity == 0 {
		capacity = DefaultRegistryCapacity
	}
	return VoterRegistry{
		PollID:   pollID,
		Capacity: capacity,
		Bitmap:   make([]byte, (capacity+7)/8),
		Voters:   nil,
	}
}

func (r VoterRegistry) slot(voter Identity) uint64 {
	return xxhash.ChecksumString64(string(voter)) % r.Capacity
}

// HasVoted checks the bitmap first; only a set bit pays for the list scan
// that disambiguates hash collisions.
func (r VoterRegistry) HasVoted(voter Identity) bool {
	slot := r.slot(voter)
	byteIndex := slot / 8
	if byteIndex >= uint64(len(r.Bitmap)) {
		return false
	}
	if r.Bitmap[byteIndex]&(1<<(slot%8)) == 0 {
		return false
	}
	for _, existing := range r.Voters {
		if existing == voter {
			return true
		}
	}
	return false
}

func (r *VoterRegistry) MarkVoted(voter Identity) {
	slot := r.slot(voter)
	byteIndex := slot / 8
	for byteIndex >= uint64(len(r.Bitmap)) {
		r.Bitmap = append(r.Bitmap, 0)
	}
	r.Bitmap[byteIndex] |= 1 << (slot % 8)
	r.Voters = append(r.Voters, voter)
}
