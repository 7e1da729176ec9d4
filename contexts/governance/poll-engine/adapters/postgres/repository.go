package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

// Repository persists engine state in Postgres through gorm.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// Migrate creates or updates the engine tables.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&pollModel{},
		&voteModel{},
		&voteCountModel{},
		&voterRegistryModel{},
		&delegationModel{},
		&tokenBalanceModel{},
		&sequenceModel{},
	)
}

func (r *Repository) Atomic(ctx context.Context, fn func(ports.StateRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, logger: r.logger})
	})
}

func (r *Repository) NextID(ctx context.Context) (uint64, error) {
	var next uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sequenceModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", "engine").
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = sequenceModel{Name: "engine", Value: 0}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		row.Value++
		next = row.Value
		return tx.Model(&sequenceModel{}).
			Where("name = ?", "engine").
			Update("value", row.Value).Error
	})
	if err != nil {
		return 0, r.logError("poll_repo_next_id_failed", err)
	}
	return next, nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID uint64) (entities.Poll, error) {
	var row pollModel
	err := r.db.WithContext(ctx).Where("id = ?", pollID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, domainerrors.ErrPollDoesNotExist
		}
		return entities.Poll{}, r.logError("poll_repo_get_poll_failed", err, "poll_id", pollID)
	}
	return row.toEntity()
}

func (r *Repository) SavePoll(ctx context.Context, poll entities.Poll) error {
	row, err := pollModelFromEntity(poll)
	if err != nil {
		return err
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"title":             row.Title,
			"description":       row.Description,
			"options":           row.Options,
			"start_time":        row.StartTime,
			"end_time":          row.EndTime,
			"is_private":        row.IsPrivate,
			"allow_revote":      row.AllowRevote,
			"is_weighted":       row.IsWeighted,
			"allow_delegation":  row.AllowDelegation,
			"is_encrypted":      row.IsEncrypted,
			"is_active":         row.IsActive,
			"cancelled":         row.Cancelled,
			"weight_token":      row.WeightToken,
			"early_voter_bonus": row.EarlyVoterBonus,
			"key_commitment":    row.KeyCommitment,
			"decryption_key":    row.DecryptionKey,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrPollAlreadyExists
		}
		return r.logError("poll_repo_save_poll_failed", create.Error, "poll_id", poll.ID)
	}
	return nil
}

func (r *Repository) PollExists(ctx context.Context, pollID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&pollModel{}).Where("id = ?", pollID).Count(&count).Error
	if err != nil {
		return false, r.logError("poll_repo_poll_exists_failed", err, "poll_id", pollID)
	}
	return count > 0, nil
}

func (r *Repository) GetVote(ctx context.Context, pollID uint64, voter entities.Identity) (entities.Vote, bool, error) {
	var row voteModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Where("voter = ?", string(voter)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Vote{}, false, nil
		}
		return entities.Vote{}, false, r.logError("poll_repo_get_vote_failed", err,
			"poll_id", pollID,
			"voter", string(voter),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) SaveVote(ctx context.Context, vote entities.Vote) error {
	row := voteModelFromEntity(vote)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "poll_id"}, {Name: "voter"}},
		DoUpdates: clause.Assignments(map[string]any{
			"option_index":   row.OptionIndex,
			"timestamp":      row.Timestamp,
			"weight":         row.Weight,
			"delegated_to":   row.DelegatedTo,
			"encrypted_data": row.EncryptedData,
			"zk_proof":       row.ZkProof,
			"nonce":          row.Nonce,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("poll_repo_save_vote_failed", create.Error,
			"poll_id", vote.PollID,
			"voter", string(vote.Voter),
		)
	}
	return nil
}

func (r *Repository) ListVotesByPoll(ctx context.Context, pollID uint64) ([]entities.Vote, error) {
	var rows []voteModel
	err := r.db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("voter ASC").
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("poll_repo_list_votes_failed", err, "poll_id", pollID)
	}
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetVoteCount(ctx context.Context, pollID uint64) (entities.VoteCount, error) {
	var row voteCountModel
	err := r.db.WithContext(ctx).Where("poll_id = ?", pollID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoteCount{}, domainerrors.ErrPollDoesNotExist
		}
		return entities.VoteCount{}, r.logError("poll_repo_get_vote_count_failed", err, "poll_id", pollID)
	}
	return row.toEntity()
}

func (r *Repository) SaveVoteCount(ctx context.Context, count entities.VoteCount) error {
	row, err := voteCountModelFromEntity(count)
	if err != nil {
		return err
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "poll_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"counts":       row.Counts,
			"total_voters": row.TotalVoters,
			"last_updated": row.LastUpdated,
			"is_finalized": row.IsFinalized,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("poll_repo_save_vote_count_failed", create.Error, "poll_id", count.PollID)
	}
	return nil
}

func (r *Repository) GetVoterRegistry(ctx context.Context, pollID uint64) (entities.VoterRegistry, error) {
	var row voterRegistryModel
	err := r.db.WithContext(ctx).Where("poll_id = ?", pollID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VoterRegistry{}, domainerrors.ErrPollDoesNotExist
		}
		return entities.VoterRegistry{}, r.logError("poll_repo_get_registry_failed", err, "poll_id", pollID)
	}
	return row.toEntity()
}

func (r *Repository) SaveVoterRegistry(ctx context.Context, registry entities.VoterRegistry) error {
	row, err := voterRegistryModelFromEntity(registry)
	if err != nil {
		return err
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "poll_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"capacity": row.Capacity,
			"bitmap":   row.Bitmap,
			"voters":   row.Voters,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("poll_repo_save_registry_failed", create.Error, "poll_id", registry.PollID)
	}
	return nil
}

func (r *Repository) GetDelegation(ctx context.Context, delegationID uint64) (entities.Delegation, error) {
	var row delegationModel
	err := r.db.WithContext(ctx).Where("id = ?", delegationID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Delegation{}, domainerrors.ErrDelegationNotFound
		}
		return entities.Delegation{}, r.logError("poll_repo_get_delegation_failed", err, "delegation_id", delegationID)
	}
	return row.toEntity(), nil
}

func (r *Repository) SaveDelegation(ctx context.Context, delegation entities.Delegation) error {
	row := delegationModelFromEntity(delegation)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"delegator":  row.Delegator,
			"delegate":   row.Delegate,
			"poll_id":    row.PollID,
			"expiration": row.Expiration,
			"is_active":  row.IsActive,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("poll_repo_save_delegation_failed", create.Error, "delegation_id", delegation.ID)
	}
	return nil
}

func (r *Repository) ListDelegationsByDelegate(ctx context.Context, delegate entities.Identity) ([]entities.Delegation, error) {
	return r.listDelegations(ctx, "delegate = ?", string(delegate))
}

func (r *Repository) ListDelegationsByDelegator(ctx context.Context, delegator entities.Identity) ([]entities.Delegation, error) {
	return r.listDelegations(ctx, "delegator = ?", string(delegator))
}

func (r *Repository) listDelegations(ctx context.Context, query string, arg string) ([]entities.Delegation, error) {
	var rows []delegationModel
	err := r.db.WithContext(ctx).Where(query, arg).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, r.logError("poll_repo_list_delegations_failed", err, "filter", arg)
	}
	items := make([]entities.Delegation, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetTokenBalance(ctx context.Context, owner, token entities.Identity) (entities.TokenBalance, bool, error) {
	var row tokenBalanceModel
	err := r.db.WithContext(ctx).
		Where("owner = ?", string(owner)).
		Where("token = ?", string(token)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.TokenBalance{}, false, nil
		}
		return entities.TokenBalance{}, false, r.logError("poll_repo_get_balance_failed", err,
			"owner", string(owner),
			"token", string(token),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) SaveTokenBalance(ctx context.Context, balance entities.TokenBalance) error {
	row := tokenBalanceModelFromEntity(balance)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner"}, {Name: "token"}},
		DoUpdates: clause.Assignments(map[string]any{
			"amount":       row.Amount,
			"last_updated": row.LastUpdated,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("poll_repo_save_balance_failed", create.Error,
			"owner", string(balance.Owner),
			"token", string(balance.Token),
		)
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/poll-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("poll repository operation failed", fields...)
	return err
}

type pollModel struct {
	ID              uint64  `gorm:"column:id;primaryKey"`
	Creator         string  `gorm:"column:creator;index"`
	Title           string  `gorm:"column:title"`
	Description     string  `gorm:"column:description"`
	Options         []byte  `gorm:"column:options;type:jsonb"`
	StartTime       int64   `gorm:"column:start_time"`
	EndTime         int64   `gorm:"column:end_time"`
	IsPrivate       bool    `gorm:"column:is_private"`
	AllowRevote     bool    `gorm:"column:allow_revote"`
	IsWeighted      bool    `gorm:"column:is_weighted"`
	AllowDelegation bool    `gorm:"column:allow_delegation"`
	IsEncrypted     bool    `gorm:"column:is_encrypted"`
	IsActive        bool    `gorm:"column:is_active"`
	Cancelled       bool    `gorm:"column:cancelled"`
	WeightToken     *string `gorm:"column:weight_token"`
	EarlyVoterBonus uint8   `gorm:"column:early_voter_bonus"`
	KeyCommitment   []byte  `gorm:"column:key_commitment"`
	DecryptionKey   []byte  `gorm:"column:decryption_key"`
	CreatedAt       int64   `gorm:"column:created_at"`
}

func (pollModel) TableName() string {
	return "polls"
}

func pollModelFromEntity(poll entities.Poll) (pollModel, error) {
	options, err := json.Marshal(poll.Options)
	if err != nil {
		return pollModel{}, err
	}
	var weightToken *string
	if poll.WeightToken != nil {
		token := string(*poll.WeightToken)
		weightToken = &token
	}
	return pollModel{
		ID:              poll.ID,
		Creator:         string(poll.Creator),
		Title:           poll.Title,
		Description:     poll.Description,
		Options:         options,
		StartTime:       poll.StartTime,
		EndTime:         poll.EndTime,
		IsPrivate:       poll.IsPrivate,
		AllowRevote:     poll.AllowRevote,
		IsWeighted:      poll.IsWeighted,
		AllowDelegation: poll.AllowDelegation,
		IsEncrypted:     poll.IsEncrypted,
		IsActive:        poll.IsActive,
		Cancelled:       poll.Cancelled,
		WeightToken:     weightToken,
		EarlyVoterBonus: poll.EarlyVoterBonus,
		KeyCommitment:   poll.KeyCommitment,
		DecryptionKey:   poll.DecryptionKey,
		CreatedAt:       poll.CreatedAt,
	}, nil
}

func (m pollModel) toEntity() (entities.Poll, error) {
	var options []string
	if len(m.Options) > 0 {
		if err := json.Unmarshal(m.Options, &options); err != nil {
			return entities.Poll{}, err
		}
	}
	var weightToken *entities.Identity
	if m.WeightToken != nil {
		token := entities.Identity(*m.WeightToken)
		weightToken = &token
	}
	return entities.Poll{
		ID:              m.ID,
		Creator:         entities.Identity(m.Creator),
		Title:           m.Title,
		Description:     m.Description,
		Options:         options,
		StartTime:       m.StartTime,
		EndTime:         m.EndTime,
		IsPrivate:       m.IsPrivate,
		AllowRevote:     m.AllowRevote,
		IsWeighted:      m.IsWeighted,
		AllowDelegation: m.AllowDelegation,
		IsEncrypted:     m.IsEncrypted,
		IsActive:        m.IsActive,
		Cancelled:       m.Cancelled,
		WeightToken:     weightToken,
		EarlyVoterBonus: m.EarlyVoterBonus,
		KeyCommitment:   m.KeyCommitment,
		DecryptionKey:   m.DecryptionKey,
		CreatedAt:       m.CreatedAt,
	}, nil
}

type voteModel struct {
	PollID        uint64  `gorm:"column:poll_id;primaryKey"`
	Voter         string  `gorm:"column:voter;primaryKey"`
	OptionIndex   uint8   `gorm:"column:option_index"`
	Timestamp     int64   `gorm:"column:timestamp"`
	Weight        uint64  `gorm:"column:weight"`
	DelegatedTo   *string `gorm:"column:delegated_to"`
	EncryptedData []byte  `gorm:"column:encrypted_data"`
	ZkProof       []byte  `gorm:"column:zk_proof"`
	Nonce         []byte  `gorm:"column:nonce"`
}

func (voteModel) TableName() string {
	return "votes"
}

func voteModelFromEntity(vote entities.Vote) voteModel {
	var delegatedTo *string
	if vote.DelegatedTo != nil {
		delegated := string(*vote.DelegatedTo)
		delegatedTo = &delegated
	}
	return voteModel{
		PollID:        vote.PollID,
		Voter:         string(vote.Voter),
		OptionIndex:   vote.OptionIndex,
		Timestamp:     vote.Timestamp,
		Weight:        vote.Weight,
		DelegatedTo:   delegatedTo,
		EncryptedData: vote.EncryptedData,
		ZkProof:       vote.ZkProof,
		Nonce:         vote.Nonce,
	}
}

func (m voteModel) toEntity() entities.Vote {
	var delegatedTo *entities.Identity
	if m.DelegatedTo != nil {
		delegated := entities.Identity(*m.DelegatedTo)
		delegatedTo = &delegated
	}
	return entities.Vote{
		PollID:        m.PollID,
		Voter:         entities.Identity(m.Voter),
		OptionIndex:   m.OptionIndex,
		Timestamp:     m.Timestamp,
		Weight:        m.Weight,
		DelegatedTo:   delegatedTo,
		EncryptedData: m.EncryptedData,
		ZkProof:       m.ZkProof,
		Nonce:         m.Nonce,
	}
}

type voteCountModel struct {
	PollID      uint64 `gorm:"column:poll_id;primaryKey"`
	Counts      []byte `gorm:"column:counts;type:jsonb"`
	TotalVoters uint64 `gorm:"column:total_voters"`
	LastUpdated int64  `gorm:"column:last_updated"`
	IsFinalized bool   `gorm:"column:is_finalized"`
}

func (voteCountModel) TableName() string {
	return "vote_counts"
}

func voteCountModelFromEntity(count entities.VoteCount) (voteCountModel, error) {
	counts, err := json.Marshal(count.Counts)
	if err != nil {
		return voteCountModel{}, err
	}
	return voteCountModel{
		PollID:      count.PollID,
		Counts:      counts,
		TotalVoters: count.TotalVoters,
		LastUpdated: count.LastUpdated,
		IsFinalized: count.IsFinalized,
	}, nil
}

func (m voteCountModel) toEntity() (entities.VoteCount, error) {
	var counts []uint64
	if len(m.Counts) > 0 {
		if err := json.Unmarshal(m.Counts, &counts); err != nil {
			return entities.VoteCount{}, err
		}
	}
	return entities.VoteCount{
		PollID:      m.PollID,
		Counts:      counts,
		TotalVoters: m.TotalVoters,
		LastUpdated: m.LastUpdated,
		IsFinalized: m.IsFinalized,
	}, nil
}

type voterRegistryModel struct {
	PollID   uint64 `gorm:"column:poll_id;primaryKey"`
	Capacity uint64 `gorm:"column:capacity"`
	Bitmap   []byte `gorm:"column:bitmap"`
	Voters   []byte `gorm:"column:voters;type:jsonb"`
}

func (voterRegistryModel) TableName() string {
	return "voter_registries"
}

func voterRegistryModelFromEntity(registry entities.VoterRegistry) (voterRegistryModel, error) {
	voters, err := json.Marshal(registry.Voters)
	if err != nil {
		return voterRegistryModel{}, err
	}
	return voterRegistryModel{
		PollID:   registry.PollID,
		Capacity: registry.Capacity,
		Bitmap:   registry.Bitmap,
		Voters:   voters,
	}, nil
}

func (m voterRegistryModel) toEntity() (entities.VoterRegistry, error) {
	var voters []entities.Identity
	if len(m.Voters) > 0 {
		if err := json.Unmarshal(m.Voters, &voters); err != nil {
			return entities.VoterRegistry{}, err
		}
	}
	return entities.VoterRegistry{
		PollID:   m.PollID,
		Capacity: m.Capacity,
		Bitmap:   m.Bitmap,
		Voters:   voters,
	}, nil
}

type delegationModel struct {
	ID         uint64  `gorm:"column:id;primaryKey"`
	Delegator  string  `gorm:"column:delegator;index"`
	Delegate   string  `gorm:"column:delegate;index"`
	PollID     *uint64 `gorm:"column:poll_id"`
	Expiration *int64  `gorm:"column:expiration"`
	IsActive   bool    `gorm:"column:is_active"`
	CreatedAt  int64   `gorm:"column:created_at"`
}

func (delegationModel) TableName() string {
	return "delegations"
}

func delegationModelFromEntity(delegation entities.Delegation) delegationModel {
	return delegationModel{
		ID:         delegation.ID,
		Delegator:  string(delegation.Delegator),
		Delegate:   string(delegation.Delegate),
		PollID:     delegation.PollID,
		Expiration: delegation.Expiration,
		IsActive:   delegation.IsActive,
		CreatedAt:  delegation.CreatedAt,
	}
}

func (m delegationModel) toEntity() entities.Delegation {
	return entities.Delegation{
		ID:         m.ID,
		Delegator:  entities.Identity(m.Delegator),
		Delegate:   entities.Identity(m.Delegate),
		PollID:     m.PollID,
		Expiration: m.Expiration,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
	}
}

type tokenBalanceModel struct {
	Owner       string `gorm:"column:owner;primaryKey"`
	Token       string `gorm:"column:token;primaryKey"`
	Amount      uint64 `gorm:"column:amount"`
	LastUpdated int64  `gorm:"column:last_updated"`
}

func (tokenBalanceModel) TableName() string {
	return "token_balances"
}

func tokenBalanceModelFromEntity(balance entities.TokenBalance) tokenBalanceModel {
	return tokenBalanceModel{
		Owner:       string(balance.Owner),
		Token:       string(balance.Token),
		Amount:      balance.Amount,
		LastUpdated: balance.LastUpdated,
	}
}

func (m tokenBalanceModel) toEntity() entities.TokenBalance {
	return entities.TokenBalance{
		Owner:       entities.Identity(m.Owner),
		Token:       entities.Identity(m.Token),
		Amount:      m.Amount,
		LastUpdated: m.LastUpdated,
	}
}

type sequenceModel struct {
	Name  string `gorm:"column:name;primaryKey"`
	Value uint64 `gorm:"column:value"`
}

func (sequenceModel) TableName() string {
	return "sequences"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.StateRepository = (*Repository)(nil)
var _ ports.IDGenerator = (*Repository)(nil)
