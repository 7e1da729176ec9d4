package pollengine

import (
	"log/slog"
	"time"

	"plebiscite/contexts/governance/poll-engine/adapters/crypto"
	"plebiscite/contexts/governance/poll-engine/adapters/fees"
	"plebiscite/contexts/governance/poll-engine/adapters/memory"
	"plebiscite/contexts/governance/poll-engine/application/commands"
	"plebiscite/contexts/governance/poll-engine/application/dispatch"
	"plebiscite/contexts/governance/poll-engine/application/queries"
	"plebiscite/contexts/governance/poll-engine/domain/entities"
	"plebiscite/contexts/governance/poll-engine/ports"
)

type Module struct {
	Dispatcher  dispatch.Dispatcher
	Polls       commands.PollUseCase
	Votes       commands.VoteUseCase
	Delegations commands.DelegationUseCase
	Balances    commands.BalanceUseCase
	Results     queries.ResultsUseCase
	Store       *memory.Store
}

type Dependencies struct {
	State            ports.StateRepository
	Clock            ports.Clock
	IDGen            ports.IDGenerator
	Proofs           ports.ProofVerifier
	Cipher           ports.BallotCipher
	Fees             ports.FeeVerifier
	Sink             ports.ResultSink
	Cache            ports.ResultsCache
	CacheTTL         time.Duration
	RegistryCapacity uint64
	Logger           *slog.Logger
}

func NewModule(deps Dependencies) Module {
	pollUseCase := commands.PollUseCase{
		State:            deps.State,
		Clock:            deps.Clock,
		IDGen:            deps.IDGen,
		Cipher:           deps.Cipher,
		RegistryCapacity: deps.RegistryCapacity,
		Logger:           deps.Logger,
	}
	voteUseCase := commands.VoteUseCase{
		State:  deps.State,
		Clock:  deps.Clock,
		Proofs: deps.Proofs,
		Logger: deps.Logger,
	}
	delegationUseCase := commands.DelegationUseCase{
		State:  deps.State,
		Clock:  deps.Clock,
		IDGen:  deps.IDGen,
		Logger: deps.Logger,
	}
	balanceUseCase := commands.BalanceUseCase{
		State:  deps.State,
		Clock:  deps.Clock,
		Logger: deps.Logger,
	}
	resultsUseCase := queries.ResultsUseCase{
		State:    deps.State,
		Sink:     deps.Sink,
		Cache:    deps.Cache,
		CacheTTL: deps.CacheTTL,
		Logger:   deps.Logger,
	}
	return Module{
		Dispatcher: dispatch.Dispatcher{
			Polls:       pollUseCase,
			Votes:       voteUseCase,
			Delegations: delegationUseCase,
			Balances:    balanceUseCase,
			Results:     resultsUseCase,
			Fees:        deps.Fees,
			Logger:      deps.Logger,
		},
		Polls:       pollUseCase,
		Votes:       voteUseCase,
		Delegations: delegationUseCase,
		Balances:    balanceUseCase,
		Results:     resultsUseCase,
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		State:            store,
		Clock:            store,
		IDGen:            store,
		Proofs:           crypto.ProofVerifier{},
		Cipher:           crypto.BallotCipher{},
		Fees:             fees.Verifier{},
		Sink:             store,
		RegistryCapacity: entities.DefaultRegistryCapacity,
		Logger:           logger,
	})
	module.Store = store
	return module
}
