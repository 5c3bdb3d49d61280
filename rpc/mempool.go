package rpc

import (
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	mempl "checkpointbft/mempool"
	"checkpointbft/types"
)

// BroadcastTxAsync admits the tx into the pool and returns without waiting
// for it to land in a block.
func BroadcastTxAsync(ctx *rpctypes.Context, tx types.Tx) (*ctypes.ResultBroadcastTx, error) {
	if err := env.Mempool.CheckTx(tx, mempl.TxInfo{}); err != nil {
		return nil, err
	}
	return &ctypes.ResultBroadcastTx{Hash: tx.Hash()}, nil
}
