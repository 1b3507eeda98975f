package relayer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// WorkerScheduler is the single place jobs originate. Each tick it enqueues
// one transaction worker pass and, after discovering scan targets from the
// entity store, one scan job per cursor. Cursors for new portals and
// collections are created lazily, seeded at the current head so history from
// before the contract was registered is never scanned.
type WorkerScheduler struct {
	games        gameFinder
	collections  collectionFinder
	cursors      cursorStore
	chains       map[int64]*Chain
	queue        jobQueue
	txInterval   time.Duration
	scanInterval time.Duration
}

func NewWorkerScheduler(
	games gameFinder,
	collections collectionFinder,
	cursors cursorStore,
	chains map[int64]*Chain,
	queue jobQueue,
	txInterval time.Duration,
	scanInterval time.Duration,
) *WorkerScheduler {
	return &WorkerScheduler{
		games:        games,
		collections:  collections,
		cursors:      cursors,
		chains:       chains,
		queue:        queue,
		txInterval:   txInterval,
		scanInterval: scanInterval,
	}
}

func (s *WorkerScheduler) Run(ctx context.Context) {
	go s.loop(ctx, s.txInterval, "transactions", s.tickTransactions)
	go s.loop(ctx, s.scanInterval, "scans", s.tickScans)
}

func (s *WorkerScheduler) loop(ctx context.Context, interval time.Duration, name string, tick func(ctx context.Context) error) {
	if err := tick(ctx); err != nil {
		log.Error().Err(err).Str("ticker", name).Msg("[WorkerScheduler] [loop] tick failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tick(ctx); err != nil {
				log.Error().Err(err).Str("ticker", name).Msg("[WorkerScheduler] [loop] tick failed")
			}
		}
	}
}

func (s *WorkerScheduler) tickTransactions(ctx context.Context) error {
	return s.queue.Enqueue(ctx, TransactionJobName, TransactionJob{EnqueuedAt: time.Now()})
}

type cursorKey struct {
	chainID int64
	address string
	kind    types.ScanKind
}

func (s *WorkerScheduler) tickScans(ctx context.Context) error {
	existing, err := s.cursors.FindAll(ctx)
	if err != nil {
		return err
	}
	known := map[cursorKey]*types.ScanCursor{}
	for _, cursor := range existing {
		known[cursorKey{cursor.ChainID, cursor.ContractAddress, cursor.Kind}] = cursor
	}

	if err := s.checkGames(ctx, known); err != nil {
		return err
	}
	if err := s.checkCollections(ctx, known); err != nil {
		return err
	}

	for _, cursor := range known {
		if err := s.queue.Enqueue(ctx, ScanJobName, ScanJob{CursorID: cursor.ID}); err != nil {
			return err
		}
	}
	return nil
}

// checkGames ensures every deployed game portal has its deposit and withdraw
// cursors.
func (s *WorkerScheduler) checkGames(ctx context.Context, known map[cursorKey]*types.ScanCursor) error {
	games, err := s.games.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, game := range games {
		if game.ContractAddress == "" {
			continue
		}
		for _, kind := range []types.ScanKind{types.ScanAssetDeposit, types.ScanAssetWithdraw} {
			if err := s.ensureCursor(ctx, known, game.ChainID, game.ContractAddress, kind); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkCollections ensures every deployed ERC-1155 collection has its resource
// deposit cursor. Deposits for those are emitted by the collection contract,
// not the portal.
func (s *WorkerScheduler) checkCollections(ctx context.Context, known map[cursorKey]*types.ScanCursor) error {
	collections, err := s.collections.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, collection := range collections {
		if collection.ContractAddress == "" || collection.Type != string(types.CollectionERC1155) {
			continue
		}
		game, err := s.games.FindByID(ctx, collection.GameID)
		if err != nil {
			log.Warn().Err(err).
				Str("collection", collection.ID).
				Msg("[WorkerScheduler] [checkCollections] collection has no game, skipping")
			continue
		}
		if err := s.ensureCursor(ctx, known, game.ChainID, collection.ContractAddress, types.ScanResourceDeposit); err != nil {
			return err
		}
	}
	return nil
}

func (s *WorkerScheduler) ensureCursor(ctx context.Context, known map[cursorKey]*types.ScanCursor, chainID int64, address string, kind types.ScanKind) error {
	key := cursorKey{chainID, address, kind}
	if _, ok := known[key]; ok {
		return nil
	}
	chain, ok := s.chains[chainID]
	if !ok {
		log.Warn().
			Int64("chainId", chainID).
			Str("contract", address).
			Msg("[WorkerScheduler] [ensureCursor] contract on unconfigured chain, skipping")
		return nil
	}

	head, err := chain.Reader.BlockNumber(ctx)
	if err != nil {
		return err
	}
	created, err := s.cursors.Create(ctx, &types.ScanCursor{
		ChainID:         chainID,
		ContractAddress: address,
		Kind:            kind,
		FirstBlock:      head,
		LastBlock:       head - 1,
	})
	if err != nil {
		return err
	}
	known[key] = created

	log.Info().
		Int64("chainId", chainID).
		Str("contract", address).
		Str("kind", string(kind)).
		Int64("firstBlock", head).
		Msg("[WorkerScheduler] [ensureCursor] new scan cursor created")
	return nil
}
