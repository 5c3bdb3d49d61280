package mempool

import (
	"errors"
	"fmt"
)

var (
	// ErrTxInCache is returned to the client if we saw tx earlier
	ErrTxInCache = errors.New("tx already exists in cache")
	// ErrTxInMap is returned when the tx is already tracked by the pool
	ErrTxInMap = errors.New("tx already exists in map")
	// ErrTxNotFound is returned by LockTxs/ReleaseTxs for unknown txs
	ErrTxNotFound = errors.New("tx not found in mempool")
)

// ErrTxTooLarge defines an error when a transaction is too big to be sent in a
// message to other peers.
type ErrTxTooLarge struct {
	Max    int64
	Actual int64
}

func (e ErrTxTooLarge) Error() string {
	return fmt.Sprintf("Tx too large. Max size is %d, but got %d", e.Max, e.Actual)
}

// ErrMempoolIsFull defines an error where there are too many txs in the
// mempool.
type ErrMempoolIsFull struct {
	NumTxs int
	MaxTxs int

	TxsBytes    int64
	MaxTxsBytes int64
}

func (e ErrMempoolIsFull) Error() string {
	return fmt.Sprintf(
		"mempool is full: number of txs %d (max: %d), total txs bytes %d (max: %d)",
		e.NumTxs, e.MaxTxs,
		e.TxsBytes, e.MaxTxsBytes)
}
