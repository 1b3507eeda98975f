package relayer

import (
	"context"
	"fmt"
	"sort"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/nemesis-gg/portal-relayer/pkg/types"
)

// TransactionWorker drives the submission state machine. One pass settles the
// in-flight (submitting) batches first, then submits the pending backlog in
// groups. Because every chain uses a single signing key, transactions form one
// nonce sequence per chain: a batch whose hash has no receipt yet may still be
// sitting in the mempool, and submitting anything new behind it could double
// spend its nonce. The whole pass aborts in that case and retries next tick.
type TransactionWorker struct {
	transactions transactionStore
	collections  collectionFinder
	games        gameFinder
	chains       map[int64]*Chain
	locker       leaser
	lockTTL      time.Duration
	staleAfter   time.Duration
	transactors  TransactorRegistry
	processors   ReceiptProcessorRegistry
}

func NewTransactionWorker(
	transactions transactionStore,
	collections collectionFinder,
	games gameFinder,
	chains map[int64]*Chain,
	locker leaser,
	lockTTL time.Duration,
	staleAfter time.Duration,
	transactors TransactorRegistry,
	processors ReceiptProcessorRegistry,
) *TransactionWorker {
	return &TransactionWorker{
		transactions: transactions,
		collections:  collections,
		games:        games,
		chains:       chains,
		locker:       locker,
		lockTTL:      lockTTL,
		staleAfter:   staleAfter,
		transactors:  transactors,
		processors:   processors,
	}
}

// Run handles one scheduled tick. Stale jobs are dropped: the scheduler has
// already enqueued a fresher one, and running both back to back doubles the
// settle work for nothing.
func (w *TransactionWorker) Run(ctx context.Context, job TransactionJob) error {
	if !job.EnqueuedAt.IsZero() && time.Since(job.EnqueuedAt) > w.staleAfter {
		log.Warn().
			Time("enqueuedAt", job.EnqueuedAt).
			Msg("[TransactionWorker] [Run] skipping stale job")
		return nil
	}

	acquired, err := w.locker.TryAcquire(ctx, transactionLockKey, w.lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		log.Debug().Msg("[TransactionWorker] [Run] another worker holds the lock, skipping")
		return nil
	}
	defer func() {
		if err := w.locker.Release(ctx, transactionLockKey); err != nil {
			log.Error().Err(err).Msg("[TransactionWorker] [Run] failed to release lock")
		}
	}()

	return w.runPass(ctx)
}

type submittedBatch struct {
	hash    string
	records []*types.TransactionRecord
	chain   *Chain
	receipt *ethtypes.Receipt
}

func (w *TransactionWorker) runPass(ctx context.Context) error {
	records, err := w.transactions.FindAllExceptState(ctx, types.StateSubmitted)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	var pending, submitting []*types.TransactionRecord
	for _, record := range records {
		switch record.State {
		case types.StateSubmitting:
			submitting = append(submitting, record)
		default:
			pending = append(pending, record)
		}
	}

	batches, err := w.collectReceipts(ctx, submitting)
	if err != nil {
		return err
	}
	if batches == nil && len(submitting) > 0 {
		// At least one in-flight batch has no receipt yet. Its nonce is still
		// live, so nothing new goes out this pass.
		return nil
	}

	heads := map[int64]int64{}
	for _, batch := range batches {
		demoted, err := w.settleBatch(ctx, batch, heads)
		if err != nil {
			return err
		}
		pending = append(pending, demoted...)
	}

	w.submitPending(ctx, pending)
	return nil
}

// collectReceipts fetches the receipt of every in-flight batch up front.
// Returns nil batches when any receipt is missing, which aborts the pass.
func (w *TransactionWorker) collectReceipts(ctx context.Context, submitting []*types.TransactionRecord) ([]*submittedBatch, error) {
	byHash := map[string][]*types.TransactionRecord{}
	for _, record := range submitting {
		byHash[record.TransactionHash] = append(byHash[record.TransactionHash], record)
	}
	hashes := make([]string, 0, len(byHash))
	for hash := range byHash {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)

	resolved := map[string]*Chain{}
	batches := make([]*submittedBatch, 0, len(hashes))
	for _, hash := range hashes {
		records := sortByID(byHash[hash])

		chain, err := w.chainOf(ctx, records[0], resolved)
		if err != nil {
			return nil, err
		}
		receipt, err := chain.Reader.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			log.Info().
				Str("hash", hash).
				Int("records", len(records)).
				Msg("[TransactionWorker] [collectReceipts] batch not mined yet, aborting pass")
			return nil, nil
		}
		batches = append(batches, &submittedBatch{hash: hash, records: records, chain: chain, receipt: receipt})
	}
	return batches, nil
}

// settleBatch resolves one mined batch. Rejected batches are demoted and
// returned for resubmission within the same pass; confirmed batches run their
// receipt processor and move to submitted; anything shy of the confirmation
// depth stays as is.
func (w *TransactionWorker) settleBatch(ctx context.Context, batch *submittedBatch, heads map[int64]int64) ([]*types.TransactionRecord, error) {
	ids := idsOf(batch.records)

	if batch.receipt.Status == ethtypes.ReceiptStatusFailed {
		log.Warn().
			Str("hash", batch.hash).
			Int("records", len(batch.records)).
			Msg("[TransactionWorker] [settleBatch] batch rejected on chain, demoting to pending")
		if err := w.transactions.UpdateState(ctx, ids, types.StatePending); err != nil {
			return nil, err
		}
		for _, record := range batch.records {
			record.State = types.StatePending
			record.TransactionHash = ""
		}
		return batch.records, nil
	}

	head, ok := heads[batch.chain.ID]
	if !ok {
		var err error
		head, err = batch.chain.Reader.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		heads[batch.chain.ID] = head
	}

	depth := head - batch.receipt.BlockNumber.Int64()
	if depth < batch.chain.Confirmations {
		log.Debug().
			Str("hash", batch.hash).
			Int64("depth", depth).
			Int64("required", batch.chain.Confirmations).
			Msg("[TransactionWorker] [settleBatch] batch not deep enough yet")
		return nil, nil
	}

	txType := batch.records[0].Type
	if processor, ok := w.processors[txType]; ok {
		if err := processor.Process(ctx, batch.records, batch.receipt); err != nil {
			// Stay submitting; the whole batch is retried next pass.
			log.Error().Err(err).
				Str("hash", batch.hash).
				Str("type", string(txType)).
				Msg("[TransactionWorker] [settleBatch] receipt processing failed")
			return nil, nil
		}
	} else {
		log.Debug().
			Str("hash", batch.hash).
			Str("type", string(txType)).
			Msg("[TransactionWorker] [settleBatch] no receipt processor, marking submitted")
	}

	log.Info().
		Str("hash", batch.hash).
		Int("records", len(batch.records)).
		Uint64("gasUsed", batch.receipt.GasUsed).
		Msg("[TransactionWorker] [settleBatch] batch confirmed")
	return nil, w.transactions.UpdateState(ctx, ids, types.StateSubmitted)
}

// submitPending groups the backlog and submits one transaction per group.
// A group's failure only affects that group.
func (w *TransactionWorker) submitPending(ctx context.Context, pending []*types.TransactionRecord) {
	byGroup := map[types.GroupKey][]*types.TransactionRecord{}
	for _, record := range pending {
		key := types.GroupKey{Type: record.Type, GroupID: record.GroupID}
		byGroup[key] = append(byGroup[key], record)
	}
	keys := make([]types.GroupKey, 0, len(byGroup))
	for key := range byGroup {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		records := sortByID(byGroup[key])

		transactor, ok := w.transactors[key.Type]
		if !ok {
			log.Error().Str("group", key.String()).Msg("[TransactionWorker] [submitPending] no transactor for group")
			continue
		}

		hash, err := transactor.Submit(ctx, records)
		if err != nil {
			log.Error().Err(err).
				Str("group", key.String()).
				Int("records", len(records)).
				Msg("[TransactionWorker] [submitPending] group submission failed")
			continue
		}
		if err := w.transactions.UpdateStateAndHash(ctx, idsOf(records), types.StateSubmitting, hash); err != nil {
			log.Error().Err(err).
				Str("group", key.String()).
				Str("hash", hash).
				Msg("[TransactionWorker] [submitPending] failed to mark group submitting")
			continue
		}
		log.Info().
			Str("group", key.String()).
			Str("hash", hash).
			Int("records", len(records)).
			Msg("[TransactionWorker] [submitPending] group submitted")
	}
}

// chainOf resolves the chain a record settles on through its collection's
// game, caching per collection for the duration of a pass.
func (w *TransactionWorker) chainOf(ctx context.Context, record *types.TransactionRecord, cache map[string]*Chain) (*Chain, error) {
	collectionID := record.Metadata.CollectionID
	if chain, ok := cache[collectionID]; ok {
		return chain, nil
	}

	collection, err := w.collections.FindByID(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve collection %s: %w", collectionID, err)
	}
	game, err := w.games.FindByID(ctx, collection.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve game %s: %w", collection.GameID, err)
	}
	chain, ok := w.chains[game.ChainID]
	if !ok {
		return nil, fmt.Errorf("no chain configured for id %d", game.ChainID)
	}
	cache[collectionID] = chain
	return chain, nil
}

func sortByID(records []*types.TransactionRecord) []*types.TransactionRecord {
	sorted := make([]*types.TransactionRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}

func idsOf(records []*types.TransactionRecord) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	return ids
}
