package bootstrap

import (
	"context"
	"log/slog"
	"time"

	pollengine "plebiscite/contexts/governance/poll-engine"
	"plebiscite/contexts/governance/poll-engine/adapters/crypto"
	"plebiscite/contexts/governance/poll-engine/adapters/fees"
	postgresadapter "plebiscite/contexts/governance/poll-engine/adapters/postgres"
	redisadapter "plebiscite/contexts/governance/poll-engine/adapters/redis"
	"plebiscite/contexts/governance/poll-engine/ports"
	"plebiscite/internal/platform/cache"
	"plebiscite/internal/platform/config"
	"plebiscite/internal/platform/db"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type NodeApp struct {
	Module   pollengine.Module
	postgres *db.Postgres
	redis    *cache.Redis
	logger   *slog.Logger
}

// BuildNode wires the poll engine from process configuration. Without a
// Postgres DSN the node runs fully in memory; Redis is optional and only
// backs the finalized-results cache.
func BuildNode(cfg config.Config, logger *slog.Logger) (*NodeApp, error) {
	if cfg.PostgresDSN == "" {
		module := pollengine.NewInMemoryModule(logger)
		module.Dispatcher.Fees = fees.Verifier{MinFee: cfg.MinFee}
		return &NodeApp{Module: module, logger: logger}, nil
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := repo.Migrate(); err != nil {
		_ = pg.Close()
		return nil, err
	}

	app := &NodeApp{postgres: pg, logger: logger}

	var resultsCache ports.ResultsCache
	if cfg.RedisAddr != "" {
		rd, err := cache.Connect(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			_ = pg.Close()
			return nil, err
		}
		app.redis = rd
		resultsCache = redisadapter.NewCache(rd.Client)
	}

	app.Module = pollengine.NewModule(pollengine.Dependencies{
		State:            repo,
		Clock:            systemClock{},
		IDGen:            repo,
		Proofs:           crypto.ProofVerifier{},
		Cipher:           crypto.BallotCipher{},
		Fees:             fees.Verifier{MinFee: cfg.MinFee},
		Sink:             logSink{logger: logger},
		Cache:            resultsCache,
		CacheTTL:         cfg.ResultsCacheTTL,
		RegistryCapacity: cfg.RegistryCapacity,
		Logger:           logger,
	})
	return app, nil
}

func (a *NodeApp) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.postgres != nil {
		_ = a.postgres.Close()
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// logSink surfaces result records on the process log; the hosting chain
// replaces it with its own output channel.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) PublishResult(_ context.Context, record ports.ResultRecord) error {
	s.logger.Info("poll results",
		"event", "poll_results",
		"event_id", record.EventID,
		"poll_id", record.PollID,
		"total_voters", record.TotalVoters,
		"is_finalized", record.IsFinalized,
		"pending_decryption", record.PendingDecryption,
	)
	return nil
}
