package entities

import (
	"math"
	"math/bits"

	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
)

// ResolveWeight computes the effective vote weight for a weighted poll:
//
//	weight = floor(base * (1 + bonus% * fractionRemaining))
//
// where fractionRemaining = (end - now) / (end - start), clamped to [0, 1].
// The bonus is maximal at start time and decays linearly to zero at end time.
// The multiplication widens to 128 bits so large balances cannot overflow.
func ResolveWeight(baseBalance uint64, startTime, endTime, now int64, bonusPercent uint8) (uint64, error) {
	if baseBalance == 0 {
		return 0, domainerrors.ErrInvalidVoteWeight
	}
	duration := endTime - startTime
	if bonusPercent == 0 || duration <= 0 {
		return baseBalance, nil
	}
	if now < startTime {
		now = startTime
	}
	if now > endTime {
		now = endTime
	}

	remaining := uint64(endTime - now)
	if uint64(duration) > math.MaxUint64/100 {
		return 0, domainerrors.ErrInvalidVoteWeight
	}
	denominator := 100 * uint64(duration)
	hi, lo := bits.Mul64(baseBalance, uint64(bonusPercent)*remaining)
	if hi >= denominator {
		return 0, domainerrors.ErrInvalidVoteWeight
	}
	bonus, _ := bits.Div64(hi, lo, denominator)

	weight := baseBalance + bonus
	if weight < baseBalance {
		return 0, domainerrors.ErrInvalidVoteWeight
	}
	return weight, nil
}
