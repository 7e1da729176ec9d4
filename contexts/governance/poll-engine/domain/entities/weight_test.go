package entities

import (
	"errors"
	"testing"

	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
)

func TestResolveWeightDecaysLinearly(t *testing.T) {
	const (
		base  = uint64(100)
		start = int64(1000)
		end   = int64(2000)
		bonus = uint8(10)
	)

	cases := []struct {
		name string
		now  int64
		want uint64
	}{
		{name: "at start", now: start, want: 110},
		{name: "midpoint", now: 1500, want: 105},
		{name: "at end", now: end, want: 100},
		{name: "before start clamps", now: 500, want: 110},
		{name: "after end clamps", now: 2500, want: 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveWeight(base, start, end, tc.now, bonus)
			if err != nil {
				t.Fatalf("resolve weight failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected weight %d, got %d", tc.want, got)
			}
		})
	}
}

func TestResolveWeightZeroBonusReturnsBase(t *testing.T) {
	got, err := ResolveWeight(42, 1000, 2000, 1000, 0)
	if err != nil {
		t.Fatalf("resolve weight failed: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected base weight 42, got %d", got)
	}
}

func TestResolveWeightZeroBalanceFails(t *testing.T) {
	_, err := ResolveWeight(0, 1000, 2000, 1500, 10)
	if !errors.Is(err, domainerrors.ErrInvalidVoteWeight) {
		t.Fatalf("expected invalid vote weight, got %v", err)
	}
}

func TestResolveWeightLargeBalance(t *testing.T) {
	// base * bonus * remaining would overflow 64 bits without widening.
	base := uint64(1) << 62
	got, err := ResolveWeight(base, 0, 1000, 0, 100)
	if err != nil {
		t.Fatalf("resolve weight failed: %v", err)
	}
	if got != 2*base {
		t.Fatalf("expected doubled weight %d, got %d", 2*base, got)
	}
}
