package relayer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/config"
	"github.com/nemesis-gg/portal-relayer/pkg/clients/evm"
	"github.com/nemesis-gg/portal-relayer/pkg/db"
	"github.com/nemesis-gg/portal-relayer/pkg/lock"
	"github.com/nemesis-gg/portal-relayer/pkg/queue"
	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// Service wires the relay together: storage adapters, chain clients, the job
// queue, the workers and the scheduler.
type Service struct {
	cfg       *config.Config
	adapter   *db.DatabaseAdapter
	queue     *queue.Client
	scheduler *WorkerScheduler
	txWorker  *TransactionWorker
	scanner   *ScanWorker
}

func NewService(cfg *config.Config) (*Service, error) {
	adapter, err := db.NewDatabaseAdapter(cfg)
	if err != nil {
		return nil, err
	}

	transactions := db.NewTransactionStore(adapter.MongoDatabase)
	cursors, err := db.NewScanCursorStore(adapter.MongoDatabase)
	if err != nil {
		return nil, err
	}
	balances, err := db.NewUserResourceStore(adapter.MongoDatabase)
	if err != nil {
		return nil, err
	}
	locker := lock.NewLocker(adapter.MongoDatabase)

	games := db.NewGameRepository(adapter.PostgresClient)
	collections := db.NewCollectionRepository(adapter.PostgresClient)
	users := db.NewUserRepository(adapter.PostgresClient)
	assets := db.NewAssetRepository(adapter.PostgresClient)
	resources := db.NewResourceRepository(adapter.PostgresClient)

	evmClients, err := evm.NewEvmClients(cfg)
	if err != nil {
		return nil, err
	}
	chains := buildChains(evmClients)

	transactors := TransactorRegistry{
		types.TxMintAsset:    NewAssetMinter(collections, games, users, chains),
		types.TxBurnAsset:    NewAssetBurner(collections, games, users, chains),
		types.TxMintResource: NewResourceMinter(collections, games, users, chains),
	}
	if err := transactors.Validate(); err != nil {
		return nil, err
	}
	processors := ReceiptProcessorRegistry{
		types.TxMintAsset: NewAssetMintProcessor(assets),
		types.TxBurnAsset: NewAssetBurnProcessor(assets),
	}

	queueClient, err := queue.NewClient(&cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}

	txWorker := NewTransactionWorker(
		transactions, collections, games, chains,
		locker, cfg.Jobs.LockTTL, cfg.Jobs.TransactionInterval,
		transactors, processors,
	)
	scanner := NewScanWorker(
		cursors, chains, locker, cfg.Jobs.LockTTL,
		NewAssetDepositScanner(collections, users, assets),
		NewAssetWithdrawScanner(collections, assets),
		NewResourceDepositScanner(collections, resources, users, balances),
	)
	scheduler := NewWorkerScheduler(
		games, collections, cursors, chains, queueClient,
		cfg.Jobs.TransactionInterval, cfg.Jobs.ScanInterval,
	)

	return &Service{
		cfg:       cfg,
		adapter:   adapter,
		queue:     queueClient,
		scheduler: scheduler,
		txWorker:  txWorker,
		scanner:   scanner,
	}, nil
}

func buildChains(clients []*evm.EvmClient) map[int64]*Chain {
	chains := make(map[int64]*Chain, len(clients))
	for _, client := range clients {
		client := client
		chains[client.ChainID()] = &Chain{
			ID:            client.ChainID(),
			Name:          client.EvmConfig.Name,
			Confirmations: client.EvmConfig.Confirmations,
			ScanBatchSize: client.EvmConfig.ScanBatchSize,
			Reader:        client,
			PortalAt: func(contractAddress string) Portal {
				return client.PortalAt(contractAddress)
			},
		}
	}
	return chains
}

// Start registers the queue consumers and kicks off the scheduler tickers.
// Returns once everything is running; cancel ctx to stop.
func (s *Service) Start(ctx context.Context) error {
	err := s.queue.OnJob(ctx, TransactionJobName, func(ctx context.Context, payload []byte) error {
		var job TransactionJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("invalid transaction job payload: %w", err)
		}
		return s.txWorker.Run(ctx, job)
	})
	if err != nil {
		return err
	}

	err = s.queue.OnJob(ctx, ScanJobName, func(ctx context.Context, payload []byte) error {
		var job ScanJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return fmt.Errorf("invalid scan job payload: %w", err)
		}
		return s.scanner.Run(ctx, job)
	})
	if err != nil {
		return err
	}

	s.scheduler.Run(ctx)
	log.Info().
		Int("networks", len(s.cfg.EvmNetworks)).
		Msg("[Service] [Start] relayer running")
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if err := s.queue.Close(); err != nil {
		log.Error().Err(err).Msg("[Service] [Stop] failed to close queue")
	}
	if err := s.adapter.Close(ctx); err != nil {
		log.Error().Err(err).Msg("[Service] [Stop] failed to close database adapter")
	}
	log.Info().Msg("[Service] [Stop] relayer stopped")
}
