// Package store is the persistence façade: a connection pool, schema
// migrations, and the small set of high-level write operations the
// Processor composes inside one per-block transaction.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStore wraps any database connectivity, constraint, or transaction
// failure surfaced by this package.
var ErrStore = errors.New("store: database error")

// poolCheckoutTimeout bounds how long a single Begin waits to acquire a
// connection from the pool, and doubles as the pool's background
// health-check cadence so an idle connection is revalidated before it
// would otherwise be handed to a waiting Acquire.
const poolCheckoutTimeout = 30 * time.Second

// Store owns the connection pool used for all reads and writes.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pgx connection pool against databaseURL and verifies
// it with a ping at startup.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing DATABASE_URL: %v", ErrStore, err)
	}
	cfg.HealthCheckPeriod = poolCheckoutTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: opening connection pool: %v", ErrStore, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping failed: %v", ErrStore, err)
	}

	log.Println("[store] connected to Postgres")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LastHeight returns the maximum stored block height, or ok=false if
// the blocks table is empty — the indexer's resume point.
func (s *Store) LastHeight(ctx context.Context) (height int32, ok bool, err error) {
	var h *int32
	err = s.pool.QueryRow(ctx, `SELECT MAX(block_height) FROM blocks`).Scan(&h)
	if err != nil {
		return 0, false, fmt.Errorf("%w: querying last height: %v", ErrStore, err)
	}
	if h == nil {
		return 0, false, nil
	}
	return *h, true, nil
}

// Tx is one open per-block transaction, carrying the high-level write
// operations the Processor composes while ingesting a single block.
type Tx struct {
	pgxTx pgx.Tx
}

// Begin opens a new transaction for one block's worth of writes.
// Acquiring the underlying connection is bounded by poolCheckoutTimeout;
// the returned Tx itself is governed by whatever context each of its
// methods is subsequently called with.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, poolCheckoutTimeout)
	defer cancel()

	pgxTx, err := s.pool.Begin(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %v", ErrStore, err)
	}
	return &Tx{pgxTx: pgxTx}, nil
}

// Commit commits all of this transaction's writes atomically.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.pgxTx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStore, err)
	}
	return nil
}

// Rollback discards all of this transaction's writes. Safe to call
// after a successful Commit (it is then a no-op per pgx semantics).
func (t *Tx) Rollback(ctx context.Context) {
	_ = t.pgxTx.Rollback(ctx)
}

// UpsertBlock inserts-or-updates the block row keyed by height.
func (t *Tx) UpsertBlock(ctx context.Context, b Block) error {
	_, err := t.pgxTx.Exec(ctx, `
		INSERT INTO blocks (block_height, block_hash, block_timestamp, transaction_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (block_height) DO UPDATE SET
			block_hash = EXCLUDED.block_hash,
			block_timestamp = EXCLUDED.block_timestamp,
			transaction_count = EXCLUDED.transaction_count
	`, b.Height, b.Hash, b.Timestamp, b.TransactionCount)
	if err != nil {
		return fmt.Errorf("%w: upserting block %d: %v", ErrStore, b.Height, err)
	}
	return nil
}

// InsertTransaction stores one transaction row, idempotent on
// (txid, height), and mirrors the key into txid_block_index.
func (t *Tx) InsertTransaction(ctx context.Context, height int32, txIndex int32, txid []byte, isCoinbase bool, inputCount, outputCount int32, feeSatoshis *int64) error {
	_, err := t.pgxTx.Exec(ctx, `
		INSERT INTO transactions
			(transaction_id, block_height, transaction_index, is_coinbase, fee_satoshis, input_count, output_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id, block_height) DO NOTHING
	`, txid, height, txIndex, isCoinbase, feeSatoshis, inputCount, outputCount)
	if err != nil {
		return fmt.Errorf("%w: inserting transaction at height %d: %v", ErrStore, height, err)
	}

	_, err = t.pgxTx.Exec(ctx, `
		INSERT INTO txid_block_index (transaction_id, block_height)
		VALUES ($1, $2)
		ON CONFLICT (transaction_id, block_height) DO NOTHING
	`, txid, height)
	if err != nil {
		return fmt.Errorf("%w: indexing txid at height %d: %v", ErrStore, height, err)
	}
	return nil
}

// GetOrCreateAddress returns the address_id for addressString, creating
// the row on first sighting. If a concurrent writer won the race to
// insert it, the unique constraint on address_string is caught and the
// existing id is returned instead.
func (t *Tx) GetOrCreateAddress(ctx context.Context, addressString, scriptType string, firstSeenHeight int32, extraData json.RawMessage) (int64, error) {
	var id int64
	err := t.pgxTx.QueryRow(ctx, `SELECT address_id FROM addresses WHERE address_string = $1`, addressString).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: querying address %q: %v", ErrStore, addressString, err)
	}

	err = t.pgxTx.QueryRow(ctx, `
		INSERT INTO addresses (address_string, script_type, first_seen_block_height, script_extra_data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address_string) DO UPDATE SET address_string = EXCLUDED.address_string
		RETURNING address_id
	`, addressString, scriptType, firstSeenHeight, nullableJSON(extraData)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting address %q: %v", ErrStore, addressString, err)
	}
	return id, nil
}

// InsertOutput creates an AddressOutput row and increments the owning
// address's receive counter. Idempotent on (transaction_id,
// block_height, output_index): re-processing an already-committed
// block returns the existing row's id without re-incrementing the
// counter, so a retried or re-run block leaves counts unchanged.
func (t *Tx) InsertOutput(ctx context.Context, addressID int64, txid []byte, height int32, vout int32, valueSatoshis int64) (int64, error) {
	var outputID int64
	err := t.pgxTx.QueryRow(ctx, `
		INSERT INTO address_outputs (address_id, transaction_id, block_height, output_index, value_satoshis)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_id, block_height, output_index) DO NOTHING
		RETURNING output_id
	`, addressID, txid, height, vout, valueSatoshis).Scan(&outputID)

	if errors.Is(err, pgx.ErrNoRows) {
		err = t.pgxTx.QueryRow(ctx, `
			SELECT output_id FROM address_outputs
			WHERE transaction_id = $1 AND block_height = $2 AND output_index = $3
		`, txid, height, vout).Scan(&outputID)
		if err != nil {
			return 0, fmt.Errorf("%w: re-reading existing output %x:%d at height %d: %v", ErrStore, txid, vout, height, err)
		}
		return outputID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: inserting output: %v", ErrStore, err)
	}

	if _, err := t.pgxTx.Exec(ctx, `UPDATE addresses SET total_receive_count = total_receive_count + 1 WHERE address_id = $1`, addressID); err != nil {
		return 0, fmt.Errorf("%w: incrementing receive count for address %d: %v", ErrStore, addressID, err)
	}
	return outputID, nil
}

// FindUnspentOutput looks up candidate heights via txid_block_index,
// then probes address_outputs at each for an unspent match; the first
// hit wins.
func (t *Tx) FindUnspentOutput(ctx context.Context, txid []byte, vout int32) (*OutputRef, error) {
	rows, err := t.pgxTx.Query(ctx, `SELECT block_height FROM txid_block_index WHERE transaction_id = $1`, txid)
	if err != nil {
		return nil, fmt.Errorf("%w: querying txid_block_index: %v", ErrStore, err)
	}
	var heights []int32
	for rows.Next() {
		var h int32
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scanning txid_block_index row: %v", ErrStore, err)
		}
		heights = append(heights, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating txid_block_index rows: %v", ErrStore, err)
	}

	for _, h := range heights {
		var ref OutputRef
		err := t.pgxTx.QueryRow(ctx, `
			SELECT output_id, address_id, value_satoshis
			FROM address_outputs
			WHERE transaction_id = $1 AND block_height = $2 AND output_index = $3 AND NOT is_spent
		`, txid, h, vout).Scan(&ref.OutputID, &ref.AddressID, &ref.ValueSatoshis)
		if err == nil {
			return &ref, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: probing output %x:%d at height %d: %v", ErrStore, txid, vout, h, err)
		}
	}
	return nil, nil
}

// InsertInput creates an AddressInput row and increments the owning
// address's spend counter. If revealedPubkey is present and the
// address's public key is unset, it is recorded and the exposure flag
// raised — monotonically, per the public-key invariant. Idempotent on
// (transaction_id, block_height, input_index): re-processing an
// already-committed block returns the existing row's id without
// re-incrementing the counter or re-applying the pubkey update.
func (t *Tx) InsertInput(ctx context.Context, addressID int64, txid []byte, height int32, vin int32, spentOutputID int64, valueSatoshis int64, revealedPubkey []byte) (int64, error) {
	var inputID int64
	err := t.pgxTx.QueryRow(ctx, `
		INSERT INTO address_inputs
			(address_id, transaction_id, block_height, input_index, spent_output_id, value_satoshis, public_key_revealed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (transaction_id, block_height, input_index) DO NOTHING
		RETURNING input_id
	`, addressID, txid, height, vin, spentOutputID, valueSatoshis, nullableBytes(revealedPubkey)).Scan(&inputID)

	if errors.Is(err, pgx.ErrNoRows) {
		err = t.pgxTx.QueryRow(ctx, `
			SELECT input_id FROM address_inputs
			WHERE transaction_id = $1 AND block_height = $2 AND input_index = $3
		`, txid, height, vin).Scan(&inputID)
		if err != nil {
			return 0, fmt.Errorf("%w: re-reading existing input %x:%d at height %d: %v", ErrStore, txid, vin, height, err)
		}
		return inputID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: inserting input: %v", ErrStore, err)
	}

	if _, err := t.pgxTx.Exec(ctx, `UPDATE addresses SET total_spend_count = total_spend_count + 1 WHERE address_id = $1`, addressID); err != nil {
		return 0, fmt.Errorf("%w: incrementing spend count for address %d: %v", ErrStore, addressID, err)
	}

	if len(revealedPubkey) > 0 {
		if _, err := t.pgxTx.Exec(ctx, `
			UPDATE addresses
			SET public_key = $2, is_public_key_exposed = true
			WHERE address_id = $1 AND public_key IS NULL
		`, addressID, revealedPubkey); err != nil {
			return 0, fmt.Errorf("%w: recording revealed pubkey for address %d: %v", ErrStore, addressID, err)
		}
	}

	return inputID, nil
}

// MarkSpent flips an output's is_spent flag and records the spending
// input, completing the spend-link invariant.
func (t *Tx) MarkSpent(ctx context.Context, outputID, inputID int64) error {
	if _, err := t.pgxTx.Exec(ctx, `
		UPDATE address_outputs SET is_spent = true, spending_input_id = $2 WHERE output_id = $1
	`, outputID, inputID); err != nil {
		return fmt.Errorf("%w: marking output %d spent: %v", ErrStore, outputID, err)
	}
	return nil
}

func nullableJSON(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
