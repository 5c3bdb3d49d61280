package rpc

import (
	"fmt"

	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"checkpointbft/types"
)

// ResultCheckpoint wraps one emitted checkpoint certificate.
type ResultCheckpoint struct {
	Checkpoint *types.CheckpointCert `json:"checkpoint"`
}

func Checkpoint(ctx *rpctypes.Context, endHeight int64) (*ResultCheckpoint, error) {
	cert, err := env.BlockStore.LoadCheckpoint(endHeight)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, fmt.Errorf("no checkpoint certificate ends at height %d", endHeight)
	}
	return &ResultCheckpoint{Checkpoint: cert}, nil
}

func LatestCheckpoint(ctx *rpctypes.Context) (*ResultCheckpoint, error) {
	cert, err := env.BlockStore.LoadLatestCheckpoint()
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, fmt.Errorf("no checkpoint certificate emitted yet")
	}
	return &ResultCheckpoint{Checkpoint: cert}, nil
}
