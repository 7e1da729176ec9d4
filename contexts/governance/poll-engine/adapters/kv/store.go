// Package kv adapts a raw account byte store into the typed state
// repository. Records are JSON-encoded under namespaced keys; Atomic
// buffers writes in an overlay and flushes them only when fn succeeds.
package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

const (
	seqKey = "seq"
)

func pollKey(pollID uint64) string {
	return fmt.Sprintf("poll/%d", pollID)
}

func countKey(pollID uint64) string {
	return fmt.Sprintf("poll/%d/count", pollID)
}

func registryKey(pollID uint64) string {
	return fmt.Sprintf("poll/%d/registry", pollID)
}

func votersKey(pollID uint64) string {
	return fmt.Sprintf("poll/%d/voters", pollID)
}

func voteKey(pollID uint64, voter entities.Identity) string {
	return fmt.Sprintf("vote/%d/%s", pollID, voter)
}

func delegationKey(delegationID uint64) string {
	return fmt.Sprintf("delegation/%d", delegationID)
}

func delegateIndexKey(delegate entities.Identity) string {
	return "delegations/to/" + string(delegate)
}

func delegatorIndexKey(delegator entities.Identity) string {
	return "delegations/from/" + string(delegator)
}

func balanceKey(owner, token entities.Identity) string {
	return fmt.Sprintf("balance/%s/%s", owner, token)
}

// Store is a StateRepository over any AccountStore.
type Store struct {
	accounts ports.AccountStore
}

func NewStore(accounts ports.AccountStore) *Store {
	return &Store{accounts: accounts}
}

func (s *Store) NextID(ctx context.Context) (uint64, error) {
	var next uint64 = 1
	raw, err := s.accounts.Load(ctx, seqKey)
	switch {
	case err == nil:
		if len(raw) != 8 {
			return 0, fmt.Errorf("corrupt sequence record: %d bytes", len(raw))
		}
		next = binary.BigEndian.Uint64(raw) + 1
	case errors.Is(err, ports.ErrAccountNotFound):
	default:
		return 0, err
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := s.accounts.Store(ctx, seqKey, buf); err != nil {
		return 0, err
	}
	return next, nil
}

// Atomic layers a write buffer over the backing store, runs fn against it
// and flushes on success. A failed fn leaves the backing store untouched.
func (s *Store) Atomic(ctx context.Context, fn func(ports.StateRepository) error) error {
	overlay := &overlayStore{base: s.accounts, writes: make(map[string][]byte)}
	scoped := &Store{accounts: overlay}
	if err := fn(scoped); err != nil {
		return err
	}
	return overlay.flush(ctx)
}

type overlayStore struct {
	mu     sync.Mutex
	base   ports.AccountStore
	writes map[string][]byte
}

func (o *overlayStore) Load(ctx context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	data, ok := o.writes[key]
	o.mu.Unlock()
	if ok {
		return append([]byte(nil), data...), nil
	}
	return o.base.Load(ctx, key)
}

func (o *overlayStore) Store(_ context.Context, key string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes[key] = append([]byte(nil), data...)
	return nil
}

func (o *overlayStore) flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, data := range o.writes {
		if err := o.base.Store(ctx, key, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string, into any, miss error) error {
	raw, err := s.accounts.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return miss
		}
		return err
	}
	return json.Unmarshal(raw, into)
}

func (s *Store) store(ctx context.Context, key string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.accounts.Store(ctx, key, raw)
}

func (s *Store) GetPoll(ctx context.Context, pollID uint64) (entities.Poll, error) {
	var poll entities.Poll
	if err := s.load(ctx, pollKey(pollID), &poll, domainerrors.ErrPollDoesNotExist); err != nil {
		return entities.Poll{}, err
	}
	return poll, nil
}

func (s *Store) SavePoll(ctx context.Context, poll entities.Poll) error {
	return s.store(ctx, pollKey(poll.ID), poll)
}

func (s *Store) PollExists(ctx context.Context, pollID uint64) (bool, error) {
	_, err := s.accounts.Load(ctx, pollKey(pollID))
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) GetVote(ctx context.Context, pollID uint64, voter entities.Identity) (entities.Vote, bool, error) {
	var vote entities.Vote
	err := s.load(ctx, voteKey(pollID, voter), &vote, ports.ErrAccountNotFound)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, err
	}
	return vote, true, nil
}

func (s *Store) SaveVote(ctx context.Context, vote entities.Vote) error {
	if err := s.store(ctx, voteKey(vote.PollID, vote.Voter), vote); err != nil {
		return err
	}
	return s.appendIndex(ctx, votersKey(vote.PollID), string(vote.Voter))
}

func (s *Store) ListVotesByPoll(ctx context.Context, pollID uint64) ([]entities.Vote, error) {
	voters, err := s.readIndex(ctx, votersKey(pollID))
	if err != nil {
		return nil, err
	}
	items := make([]entities.Vote, 0, len(voters))
	for _, voter := range voters {
		vote, ok, err := s.GetVote(ctx, pollID, entities.Identity(voter))
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, vote)
		}
	}
	return items, nil
}

func (s *Store) GetVoteCount(ctx context.Context, pollID uint64) (entities.VoteCount, error) {
	var count entities.VoteCount
	if err := s.load(ctx, countKey(pollID), &count, domainerrors.ErrPollDoesNotExist); err != nil {
		return entities.VoteCount{}, err
	}
	return count, nil
}

func (s *Store) SaveVoteCount(ctx context.Context, count entities.VoteCount) error {
	return s.store(ctx, countKey(count.PollID), count)
}

func (s *Store) GetVoterRegistry(ctx context.Context, pollID uint64) (entities.VoterRegistry, error) {
	var registry entities.VoterRegistry
	if err := s.load(ctx, registryKey(pollID), &registry, domainerrors.ErrPollDoesNotExist); err != nil {
		return entities.VoterRegistry{}, err
	}
	return registry, nil
}

func (s *Store) SaveVoterRegistry(ctx context.Context, registry entities.VoterRegistry) error {
	return s.store(ctx, registryKey(registry.PollID), registry)
}

func (s *Store) GetDelegation(ctx context.Context, delegationID uint64) (entities.Delegation, error) {
	var delegation entities.Delegation
	if err := s.load(ctx, delegationKey(delegationID), &delegation, domainerrors.ErrDelegationNotFound); err != nil {
		return entities.Delegation{}, err
	}
	return delegation, nil
}

func (s *Store) SaveDelegation(ctx context.Context, delegation entities.Delegation) error {
	if err := s.store(ctx, delegationKey(delegation.ID), delegation); err != nil {
		return err
	}
	if err := s.appendIndexID(ctx, delegateIndexKey(delegation.Delegate), delegation.ID); err != nil {
		return err
	}
	return s.appendIndexID(ctx, delegatorIndexKey(delegation.Delegator), delegation.ID)
}

func (s *Store) ListDelegationsByDelegate(ctx context.Context, delegate entities.Identity) ([]entities.Delegation, error) {
	return s.listDelegations(ctx, delegateIndexKey(delegate))
}

func (s *Store) ListDelegationsByDelegator(ctx context.Context, delegator entities.Identity) ([]entities.Delegation, error) {
	return s.listDelegations(ctx, delegatorIndexKey(delegator))
}

func (s *Store) listDelegations(ctx context.Context, indexKey string) ([]entities.Delegation, error) {
	ids, err := s.readIndexIDs(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	items := make([]entities.Delegation, 0, len(ids))
	for _, id := range ids {
		delegation, err := s.GetDelegation(ctx, id)
		if err != nil {
			if errors.Is(err, domainerrors.ErrDelegationNotFound) {
				continue
			}
			return nil, err
		}
		items = append(items, delegation)
	}
	return items, nil
}

func (s *Store) GetTokenBalance(ctx context.Context, owner, token entities.Identity) (entities.TokenBalance, bool, error) {
	var balance entities.TokenBalance
	err := s.load(ctx, balanceKey(owner, token), &balance, ports.ErrAccountNotFound)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return entities.TokenBalance{}, false, nil
		}
		return entities.TokenBalance{}, false, err
	}
	return balance, true, nil
}

func (s *Store) SaveTokenBalance(ctx context.Context, balance entities.TokenBalance) error {
	return s.store(ctx, balanceKey(balance.Owner, balance.Token), balance)
}

func (s *Store) readIndex(ctx context.Context, key string) ([]string, error) {
	var items []string
	err := s.load(ctx, key, &items, ports.ErrAccountNotFound)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return items, nil
}

func (s *Store) appendIndex(ctx context.Context, key, value string) error {
	items, err := s.readIndex(ctx, key)
	if err != nil {
		return err
	}
	for _, existing := range items {
		if existing == value {
			return nil
		}
	}
	return s.store(ctx, key, append(items, value))
}

func (s *Store) readIndexIDs(ctx context.Context, key string) ([]uint64, error) {
	var ids []uint64
	err := s.load(ctx, key, &ids, ports.ErrAccountNotFound)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

func (s *Store) appendIndexID(ctx context.Context, key string, id uint64) error {
	ids, err := s.readIndexIDs(ctx, key)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return s.store(ctx, key, append(ids, id))
}

// MemoryAccountStore is a map-backed AccountStore for tests and the local
// node profile.
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string][]byte
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string][]byte)}
}

func (m *MemoryAccountStore) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.accounts[key]
	if !ok {
		return nil, ports.ErrAccountNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryAccountStore) Store(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[key] = append([]byte(nil), data...)
	return nil
}
