package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

type balanceKey struct {
	owner entities.Identity
	token entities.Identity
}

type voteKey struct {
	pollID uint64
	voter  entities.Identity
}

// Store is the in-memory state repository used by tests and the local node.
// Atomic snapshots the whole state and restores it when fn fails.
type Store struct {
	mu sync.Mutex

	polls       map[uint64]entities.Poll
	votes       map[voteKey]entities.Vote
	counts      map[uint64]entities.VoteCount
	registries  map[uint64]entities.VoterRegistry
	delegations map[uint64]entities.Delegation
	balances    map[balanceKey]entities.TokenBalance

	nextID  uint64
	nowFn   func() time.Time
	results []ports.ResultRecord
}

func NewStore() *Store {
	return &Store{
		polls:       make(map[uint64]entities.Poll),
		votes:       make(map[voteKey]entities.Vote),
		counts:      make(map[uint64]entities.VoteCount),
		registries:  make(map[uint64]entities.VoterRegistry),
		delegations: make(map[uint64]entities.Delegation),
		balances:    make(map[balanceKey]entities.TokenBalance),
	}
}

// SetNowFunc overrides the clock. Tests use it to walk a poll through its
// lifecycle without sleeping.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

func (s *Store) Now() time.Time {
	s.mu.Lock()
	fn := s.nowFn
	s.mu.Unlock()
	if fn != nil {
		return fn().UTC()
	}
	return time.Now().UTC()
}

func (s *Store) NextID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *Store) Atomic(ctx context.Context, fn func(ports.StateRepository) error) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.restoreLocked(snapshot)
		s.mu.Unlock()
		return err
	}
	return nil
}

type snapshot struct {
	polls       map[uint64]entities.Poll
	votes       map[voteKey]entities.Vote
	counts      map[uint64]entities.VoteCount
	registries  map[uint64]entities.VoterRegistry
	delegations map[uint64]entities.Delegation
	balances    map[balanceKey]entities.TokenBalance
	nextID      uint64
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		polls:       make(map[uint64]entities.Poll, len(s.polls)),
		votes:       make(map[voteKey]entities.Vote, len(s.votes)),
		counts:      make(map[uint64]entities.VoteCount, len(s.counts)),
		registries:  make(map[uint64]entities.VoterRegistry, len(s.registries)),
		delegations: make(map[uint64]entities.Delegation, len(s.delegations)),
		balances:    make(map[balanceKey]entities.TokenBalance, len(s.balances)),
		nextID:      s.nextID,
	}
	for id, poll := range s.polls {
		snap.polls[id] = clonePoll(poll)
	}
	for key, vote := range s.votes {
		snap.votes[key] = cloneVote(vote)
	}
	for id, count := range s.counts {
		snap.counts[id] = cloneCount(count)
	}
	for id, registry := range s.registries {
		snap.registries[id] = cloneRegistry(registry)
	}
	for id, delegation := range s.delegations {
		snap.delegations[id] = delegation
	}
	for key, balance := range s.balances {
		snap.balances[key] = balance
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.polls = snap.polls
	s.votes = snap.votes
	s.counts = snap.counts
	s.registries = snap.registries
	s.delegations = snap.delegations
	s.balances = snap.balances
	s.nextID = snap.nextID
}

func (s *Store) GetPoll(_ context.Context, pollID uint64) (entities.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	poll, ok := s.polls[pollID]
	if !ok {
		return entities.Poll{}, domainerrors.ErrPollDoesNotExist
	}
	return clonePoll(poll), nil
}

func (s *Store) SavePoll(_ context.Context, poll entities.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[poll.ID] = clonePoll(poll)
	return nil
}

func (s *Store) PollExists(_ context.Context, pollID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.polls[pollID]
	return ok, nil
}

func (s *Store) GetVote(_ context.Context, pollID uint64, voter entities.Identity) (entities.Vote, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vote, ok := s.votes[voteKey{pollID: pollID, voter: voter}]
	if !ok {
		return entities.Vote{}, false, nil
	}
	return cloneVote(vote), true, nil
}

func (s *Store) SaveVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes[voteKey{pollID: vote.PollID, voter: vote.Voter}] = cloneVote(vote)
	return nil
}

func (s *Store) ListVotesByPoll(_ context.Context, pollID uint64) ([]entities.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]entities.Vote, 0)
	for key, vote := range s.votes {
		if key.pollID == pollID {
			items = append(items, cloneVote(vote))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Voter < items[j].Voter
	})
	return items, nil
}

func (s *Store) GetVoteCount(_ context.Context, pollID uint64) (entities.VoteCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.counts[pollID]
	if !ok {
		return entities.VoteCount{}, domainerrors.ErrPollDoesNotExist
	}
	return cloneCount(count), nil
}

func (s *Store) SaveVoteCount(_ context.Context, count entities.VoteCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[count.PollID] = cloneCount(count)
	return nil
}

func (s *Store) GetVoterRegistry(_ context.Context, pollID uint64) (entities.VoterRegistry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	registry, ok := s.registries[pollID]
	if !ok {
		return entities.VoterRegistry{}, domainerrors.ErrPollDoesNotExist
	}
	return cloneRegistry(registry), nil
}

func (s *Store) SaveVoterRegistry(_ context.Context, registry entities.VoterRegistry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registries[registry.PollID] = cloneRegistry(registry)
	return nil
}

func (s *Store) GetDelegation(_ context.Context, delegationID uint64) (entities.Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delegation, ok := s.delegations[delegationID]
	if !ok {
		return entities.Delegation{}, domainerrors.ErrDelegationNotFound
	}
	return delegation, nil
}

func (s *Store) SaveDelegation(_ context.Context, delegation entities.Delegation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegations[delegation.ID] = delegation
	return nil
}

func (s *Store) ListDelegationsByDelegate(_ context.Context, delegate entities.Identity) ([]entities.Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]entities.Delegation, 0)
	for _, delegation := range s.delegations {
		if delegation.Delegate == delegate {
			items = append(items, delegation)
		}
	}
	sortDelegationsByID(items)
	return items, nil
}

func (s *Store) ListDelegationsByDelegator(_ context.Context, delegator entities.Identity) ([]entities.Delegation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]entities.Delegation, 0)
	for _, delegation := range s.delegations {
		if delegation.Delegator == delegator {
			items = append(items, delegation)
		}
	}
	sortDelegationsByID(items)
	return items, nil
}

func (s *Store) GetTokenBalance(_ context.Context, owner, token entities.Identity) (entities.TokenBalance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[balanceKey{owner: owner, token: token}]
	if !ok {
		return entities.TokenBalance{}, false, nil
	}
	return balance, true, nil
}

func (s *Store) SaveTokenBalance(_ context.Context, balance entities.TokenBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{owner: balance.Owner, token: balance.Token}] = balance
	return nil
}

func (s *Store) PublishResult(_ context.Context, record ports.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, record)
	return nil
}

// Results returns every record published so far.
func (s *Store) Results() []ports.ResultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.ResultRecord, len(s.results))
	copy(out, s.results)
	return out
}

func clonePoll(poll entities.Poll) entities.Poll {
	out := poll
	out.Options = append([]string(nil), poll.Options...)
	out.KeyCommitment = append([]byte(nil), poll.KeyCommitment...)
	out.DecryptionKey = append([]byte(nil), poll.DecryptionKey...)
	if poll.WeightToken != nil {
		token := *poll.WeightToken
		out.WeightToken = &token
	}
	return out
}

func cloneVote(vote entities.Vote) entities.Vote {
	out := vote
	out.EncryptedData = append([]byte(nil), vote.EncryptedData...)
	out.ZkProof = append([]byte(nil), vote.ZkProof...)
	out.Nonce = append([]byte(nil), vote.Nonce...)
	if vote.DelegatedTo != nil {
		delegated := *vote.DelegatedTo
		out.DelegatedTo = &delegated
	}
	return out
}

func cloneCount(count entities.VoteCount) entities.VoteCount {
	out := count
	out.Counts = append([]uint64(nil), count.Counts...)
	return out
}

func cloneRegistry(registry entities.VoterRegistry) entities.VoterRegistry {
	out := registry
	out.Bitmap = append([]byte(nil), registry.Bitmap...)
	out.Voters = append([]entities.Identity(nil), registry.Voters...)
	return out
}

func sortDelegationsByID(items []entities.Delegation) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
}
