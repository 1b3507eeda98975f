package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// Scanner is one event kind's scan strategy: which topic to filter and how to
// apply a matching log. Apply must be idempotent; the cursor only advances
// after the whole range is applied, so a crash replays the range.
type Scanner interface {
	Kind() types.ScanKind
	Topic() common.Hash
	Apply(ctx context.Context, cursor *types.ScanCursor, logEntry ethtypes.Log) error
}

// ScanWorker runs one scan pass per job: a bounded block window from the
// cursor up to the confirmed head, events applied before the cursor moves.
type ScanWorker struct {
	cursors  cursorStore
	chains   map[int64]*Chain
	locker   leaser
	lockTTL  time.Duration
	scanners map[types.ScanKind]Scanner
}

func NewScanWorker(cursors cursorStore, chains map[int64]*Chain, locker leaser, lockTTL time.Duration, scanners ...Scanner) *ScanWorker {
	byKind := make(map[types.ScanKind]Scanner, len(scanners))
	for _, scanner := range scanners {
		byKind[scanner.Kind()] = scanner
	}
	return &ScanWorker{
		cursors:  cursors,
		chains:   chains,
		locker:   locker,
		lockTTL:  lockTTL,
		scanners: byKind,
	}
}

func (w *ScanWorker) Run(ctx context.Context, job ScanJob) error {
	cursor, err := w.cursors.FindByID(ctx, job.CursorID)
	if err != nil {
		return err
	}

	lockKey := scanLockPrefix + cursor.ID
	acquired, err := w.locker.TryAcquire(ctx, lockKey, w.lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		log.Debug().Str("cursor", cursor.ID).Msg("[ScanWorker] [Run] cursor locked elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := w.locker.Release(ctx, lockKey); err != nil {
			log.Error().Err(err).Str("cursor", cursor.ID).Msg("[ScanWorker] [Run] failed to release lock")
		}
	}()

	return w.runScan(ctx, cursor)
}

func (w *ScanWorker) runScan(ctx context.Context, cursor *types.ScanCursor) error {
	chain, ok := w.chains[cursor.ChainID]
	if !ok {
		return fmt.Errorf("no chain configured for id %d", cursor.ChainID)
	}
	scanner, ok := w.scanners[cursor.Kind]
	if !ok {
		return fmt.Errorf("no scanner registered for kind %s", cursor.Kind)
	}

	head, err := chain.Reader.BlockNumber(ctx)
	if err != nil {
		return err
	}

	fromBlock := cursor.LastBlock + 1
	maxBlock := head - chain.Confirmations
	toBlock := fromBlock + chain.ScanBatchSize - 1
	if toBlock > maxBlock {
		toBlock = maxBlock
	}
	if fromBlock > toBlock {
		log.Debug().
			Str("cursor", cursor.ID).
			Int64("lastBlock", cursor.LastBlock).
			Int64("head", head).
			Msg("[ScanWorker] [runScan] no confirmed blocks to scan")
		return nil
	}

	logs, err := chain.Reader.FilterLogs(ctx, cursor.ContractAddress, scanner.Topic(), fromBlock, toBlock)
	if err != nil {
		return err
	}

	for _, logEntry := range logs {
		if err := scanner.Apply(ctx, cursor, logEntry); err != nil {
			// Leave the cursor where it is; the range replays next pass and
			// Apply is idempotent for everything already applied.
			return fmt.Errorf("failed to apply %s event at block %d: %w", cursor.Kind, logEntry.BlockNumber, err)
		}
	}

	if err := w.cursors.UpdateLastBlock(ctx, cursor.ID, toBlock); err != nil {
		return err
	}
	log.Info().
		Str("cursor", cursor.ID).
		Str("kind", string(cursor.Kind)).
		Int64("fromBlock", fromBlock).
		Int64("toBlock", toBlock).
		Int("events", len(logs)).
		Msg("[ScanWorker] [runScan] range scanned")
	return nil
}
