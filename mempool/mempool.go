package mempool

import (
	"github.com/tendermint/tendermint/p2p"

	"checkpointbft/types"
)

// Mempool is the payload pool the block Interpreter draws from. Transactions
// enter via CheckTx (rpc or gossip) and leave on Update once the block
// carrying them commits. A transaction sitting in an uncommitted proposal is
// locked so leaders do not propose it twice.
type Mempool interface {
	// CheckTx validates tx and adds it to the pool.
	CheckTx(types.Tx, TxInfo) error

	// ReapTxs gathers unlocked transactions up to maxBytes total size.
	// Negative maxBytes means no size limit.
	ReapTxs(maxBytes int64) types.Txs

	// ReapMaxTxs gathers up to max unlocked transactions.
	// Negative max means all of them.
	ReapMaxTxs(max int) types.Txs

	// Lock locks the mempool. Callers of Update must hold it.
	Lock()

	// Unlock unlocks the mempool.
	Unlock()

	// Update removes committed transactions from the pool.
	// NOTE: to be called only after the carrying block commits.
	// NOTE: caller is responsible for Lock/Unlock.
	Update(height int64, txs types.Txs) error

	// LockTxs marks the given transactions as carried by a pending block.
	LockTxs(txs types.Txs) error

	// ReleaseTxs clears the pending mark from the given transactions.
	ReleaseTxs(txs types.Txs) error

	// Flush drops every transaction and resets the cache.
	Flush()

	// Size returns the number of transactions in the pool.
	Size() int

	// TxsBytes returns the total size of all transactions in the pool.
	TxsBytes() int64
}

//--------------------------------------------------------------------------------

// PreCheckFunc is an optional filter run before a transaction enters the pool.
type PreCheckFunc func(types.Tx) error

// PreCheckMaxBytes rejects transactions larger than maxBytes.
func PreCheckMaxBytes(maxBytes int64) PreCheckFunc {
	return func(tx types.Tx) error {
		if size := tx.ComputeSize(); size > maxBytes {
			return ErrTxTooLarge{Max: maxBytes, Actual: size}
		}
		return nil
	}
}

// TxInfo are parameters that get passed when attempting to add a tx to the
// mempool.
type TxInfo struct {
	// SenderID is the internal peer ID used in the mempool to identify the
	// sender, storing 2 bytes with each tx instead of 20 bytes for the p2p.ID.
	SenderID uint16
	// SenderP2PID is the actual p2p.ID of the sender, used e.g. for logging.
	SenderP2PID p2p.ID
}
