// Package processor is the control plane: it owns the catch-up state
// machine, the per-block work unit, and the continuous tailing loop
// that follows the chain tip once caught up.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/btc-indexer/internal/classify"
	"github.com/rawblock/btc-indexer/internal/nodegw"
	"github.com/rawblock/btc-indexer/internal/store"
)

// ErrFatal is returned up through Run when the retry ladder is
// exhausted and the process must exit for a supervisor to restart it.
var ErrFatal = errors.New("processor: fatal error")

const (
	tipProbeBackoff   = 30 * time.Second
	syncErrorBackoff  = 1 * time.Second
	syncDoneBackoff   = 5 * time.Second
	tailPollInterval  = 10 * time.Second
	tailRetryDelay    = 2 * time.Second
	tailMaxRetries    = 3
	tipReprobeEvery   = 100
)

// Processor drives block ingestion end-to-end on a single cooperative
// task: per-block invariants assume strict height order, so there is
// no concurrent fan-out here.
type Processor struct {
	gw *nodegw.Client
	st *store.Store
}

// New builds a Processor over a node gateway and a store.
func New(gw *nodegw.Client, st *store.Store) *Processor {
	return &Processor{gw: gw, st: st}
}

// Run drives catch-up from the database's resume point and then falls
// into the tailing loop. It returns an ErrFatal-wrapped error when the
// retry ladder is exhausted or ctx is cancelled mid-probe or mid-retry,
// and nil when ctx is cancelled while the tailing loop waits for its
// next poll.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.catchUp(ctx); err != nil {
		return err
	}
	return p.tail(ctx)
}

// catchUp implements PROBE_TIP -> COMPARE -> SYNC_BATCH -> PROBE_TIP
// until the database has caught up with the most recently probed tip.
func (p *Processor) catchUp(ctx context.Context) error {
	for {
		tip, err := p.probeTip(ctx)
		if err != nil {
			return err
		}

		dbHeight, ok, err := p.st.LastHeight(ctx)
		if err != nil {
			return fmt.Errorf("%w: reading resume height: %v", ErrFatal, err)
		}
		next := int32(0)
		if ok {
			next = dbHeight + 1
		}

		if int64(next) > int64(tip) {
			log.Printf("[processor] caught up to tip %d, entering tailing mode", tip)
			return nil
		}

		if err := p.syncBatch(ctx, next, tip); err != nil {
			log.Printf("[processor] sync batch aborted: %v", err)
			time.Sleep(syncErrorBackoff)
			continue
		}
		time.Sleep(syncDoneBackoff)
	}
}

// syncBatch processes blocks [next, tip], re-probing the tip every
// tipReprobeEvery blocks in case it advanced during the batch.
func (p *Processor) syncBatch(ctx context.Context, next int32, tip uint64) error {
	h := next
	for uint64(h) <= tip {
		if err := p.ProcessBlock(ctx, h); err != nil {
			return fmt.Errorf("processing block %d: %w", h, err)
		}
		h++

		if h%tipReprobeEvery == 0 {
			newTip, err := p.probeTip(ctx)
			if err != nil {
				return err
			}
			if newTip > tip {
				log.Printf("[processor] tip advanced from %d to %d during catch-up", tip, newTip)
				tip = newTip
			}
		}
	}
	return nil
}

// probeTip fetches the current chain tip, retrying every 30s on
// transport or upstream failure — this never gives up on its own.
func (p *Processor) probeTip(ctx context.Context) (uint64, error) {
	for {
		tip, err := p.gw.TipHeight()
		if err == nil {
			return tip, nil
		}
		log.Printf("[processor] tip probe failed, retrying in %s: %v", tipProbeBackoff, err)
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: probe cancelled: %v", ErrFatal, ctx.Err())
		case <-time.After(tipProbeBackoff):
		}
	}
}

// tail follows the chain tip forever, polling every 10s and retrying a
// failing block up to 3 times before bubbling a fatal error.
func (p *Processor) tail(ctx context.Context) error {
	var current int32
	if dbHeight, ok, err := p.st.LastHeight(ctx); err != nil {
		return fmt.Errorf("%w: reading resume height: %v", ErrFatal, err)
	} else if ok {
		current = dbHeight + 1
	}

	for {
		tip, err := p.probeTip(ctx)
		if err != nil {
			return err
		}

		for uint64(current) <= tip {
			if err := p.processWithRetry(ctx, current); err != nil {
				return err
			}
			current++
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(tailPollInterval):
		}
	}
}

// processWithRetry retries a single block up to tailMaxRetries times,
// spaced tailRetryDelay apart, before surfacing a fatal error.
func (p *Processor) processWithRetry(ctx context.Context, height int32) error {
	err := p.ProcessBlock(ctx, height)
	if err == nil {
		return nil
	}

	for attempt := 1; attempt <= tailMaxRetries; attempt++ {
		log.Printf("[processor] block %d failed (attempt %d): %v", height, attempt, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: retry cancelled: %v", ErrFatal, ctx.Err())
		case <-time.After(tailRetryDelay):
		}
		if err = p.ProcessBlock(ctx, height); err == nil {
			log.Printf("[processor] block %d succeeded on retry %d", height, attempt)
			return nil
		}
	}
	return fmt.Errorf("%w: block %d failed after %d retries: %v", ErrFatal, height, tailMaxRetries, err)
}

// ProcessBlock fetches block h and commits its full ingestion
// (block row, transactions, address outputs and inputs) as one atomic
// Store transaction.
func (p *Processor) ProcessBlock(ctx context.Context, h int32) error {
	block, err := p.gw.BlockByHeight(uint64(h))
	if err != nil {
		return fmt.Errorf("fetching block %d: %w", h, err)
	}

	tx, err := p.st.Begin(ctx)
	if err != nil {
		return fmt.Errorf("opening transaction for block %d: %w", h, err)
	}
	defer tx.Rollback(ctx)

	if err := tx.UpsertBlock(ctx, store.Block{
		Height:           h,
		Hash:             block.Hash.CloneBytes(),
		Timestamp:        block.Timestamp,
		TransactionCount: int32(len(block.Transactions)),
	}); err != nil {
		return err
	}

	for txIndex, wireTx := range block.Transactions {
		txid := wireTx.TxHash()
		isCoinbase := txIndex == 0
		feeSatoshis := int64(0)

		if err := tx.InsertTransaction(ctx, h, int32(txIndex), txid.CloneBytes(), isCoinbase,
			int32(len(wireTx.TxIn)), int32(len(wireTx.TxOut)), &feeSatoshis); err != nil {
			return err
		}

		for vout, out := range wireTx.TxOut {
			rec := classify.ClassifyOutputScript(out.PkScript)
			if rec == nil {
				continue
			}
			addressID, err := tx.GetOrCreateAddress(ctx, rec.Address, rec.ScriptType, h, rec.ExtraData)
			if err != nil {
				return err
			}
			if _, err := tx.InsertOutput(ctx, addressID, txid.CloneBytes(), h, int32(vout), out.Value); err != nil {
				return err
			}
		}

		if isCoinbase {
			continue
		}

		for vin, in := range wireTx.TxIn {
			prevTxid := in.PreviousOutPoint.Hash
			ref, err := tx.FindUnspentOutput(ctx, prevTxid.CloneBytes(), int32(in.PreviousOutPoint.Index))
			if err != nil {
				return err
			}
			if ref == nil {
				continue
			}

			pubkey := classify.ExtractPublicKeyFromScript(in.SignatureScript)
			inputID, err := tx.InsertInput(ctx, ref.AddressID, txid.CloneBytes(), h, int32(vin),
				ref.OutputID, ref.ValueSatoshis, pubkey)
			if err != nil {
				return err
			}
			if err := tx.MarkSpent(ctx, ref.OutputID, inputID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing block %d: %w", h, err)
	}
	return nil
}
