package queries

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	application "plebiscite/contexts/governance/poll-engine/application"
	"plebiscite/contexts/governance/poll-engine/ports"
)

// ResultsUseCase serves poll tallies and publishes them to the result sink.
type ResultsUseCase struct {
	State    ports.StateRepository
	Sink     ports.ResultSink
	Cache    ports.ResultsCache
	CacheTTL time.Duration
	Logger   *slog.Logger
}

type GetResultsQuery struct {
	PollID uint64
}

// GetResults returns the current tally for a poll. Encrypted polls whose
// ballots have not been decrypted yet report only the voter total, with
// PendingDecryption set.
func (uc ResultsUseCase) GetResults(ctx context.Context, q GetResultsQuery) (ports.ResultRecord, error) {
	logger := application.ResolveLogger(uc.Logger)

	if uc.Cache != nil {
		if cached, ok, err := uc.Cache.GetResults(ctx, q.PollID); err == nil && ok {
			return cached, nil
		}
	}

	poll, err := uc.State.GetPoll(ctx, q.PollID)
	if err != nil {
		return ports.ResultRecord{}, err
	}
	count, err := uc.State.GetVoteCount(ctx, q.PollID)
	if err != nil {
		return ports.ResultRecord{}, err
	}

	record := ports.ResultRecord{
		EventID:     uuid.NewString(),
		PollID:      poll.ID,
		Title:       poll.Title,
		Options:     poll.Options,
		TotalVoters: count.TotalVoters,
		IsFinalized: count.IsFinalized,
		EmittedAt:   time.Now().UTC(),
	}
	if poll.IsEncrypted && !count.IsFinalized {
		record.PendingDecryption = true
	} else {
		record.Counts = append([]uint64(nil), count.Counts...)
	}

	if uc.Sink != nil {
		if err := uc.Sink.PublishResult(ctx, record); err != nil {
			logger.Warn("result publish failed",
				"event", "result_publish_failed",
				"module", "governance/poll-engine",
				"layer", "application",
				"poll_id", poll.ID,
				"error", err.Error(),
			)
		}
	}
	if uc.Cache != nil && record.IsFinalized {
		if err := uc.Cache.PutResults(ctx, record, uc.CacheTTL); err != nil {
			logger.Warn("result cache write failed",
				"event", "result_cache_write_failed",
				"module", "governance/poll-engine",
				"layer", "application",
				"poll_id", poll.ID,
				"error", err.Error(),
			)
		}
	}
	return record, nil
}

// GetVoteCount returns the raw tally record for a poll.
func (uc ResultsUseCase) GetVoteCount(ctx context.Context, pollID uint64) (uint64, []uint64, error) {
	poll, err := uc.State.GetPoll(ctx, pollID)
	if err != nil {
		return 0, nil, err
	}
	count, err := uc.State.GetVoteCount(ctx, pollID)
	if err != nil {
		return 0, nil, err
	}
	if poll.IsEncrypted && !count.IsFinalized {
		return count.TotalVoters, nil, nil
	}
	return count.TotalVoters, append([]uint64(nil), count.Counts...), nil
}
