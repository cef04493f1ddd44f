package store

import "time"

// Block is one row of the blocks table.
type Block struct {
	Height           int32
	Hash             []byte
	Timestamp        time.Time
	TransactionCount int32
}

// OutputRef identifies a prior output a new input may spend.
type OutputRef struct {
	OutputID      int64
	AddressID     int64
	ValueSatoshis int64
}
