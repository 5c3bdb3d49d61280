package rpc

import (
	"fmt"

	"github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"checkpointbft/types"
)

// ResultRoundState is a snapshot of the engine's current view.
type ResultRoundState struct {
	ChainID string `json:"chain_id"`

	View      int64          `json:"view"`
	Phase     string         `json:"phase"`
	Proposer  bytes.HexBytes `json:"proposer"`
	IsLeader  bool           `json:"is_leader"`
	StartTime string         `json:"start_time"`

	ProposalBlockHash bytes.HexBytes `json:"proposal_block_hash,omitempty"`
	LockedView        int64          `json:"locked_view"`
	HighView          int64          `json:"high_view"`

	LastCommittedHeight int64          `json:"last_committed_height"`
	LastCommittedHash   bytes.HexBytes `json:"last_committed_hash"`
}

func RoundState(ctx *rpctypes.Context) (*ResultRoundState, error) {
	rs := env.Consensus.GetRoundState()
	st := env.Consensus.GetState()

	result := &ResultRoundState{
		ChainID:             st.ChainID,
		View:                rs.CurView,
		Phase:               rs.Phase.String(),
		IsLeader:            rs.IsProposer(),
		StartTime:           rs.StartTime.String(),
		LastCommittedHeight: st.LastCommittedHeight,
		LastCommittedHash:   st.LastCommittedHash,
	}
	if rs.Proposer != nil {
		result.Proposer = bytes.HexBytes(rs.Proposer.Address)
	}
	if rs.ProposalBlock != nil {
		result.ProposalBlockHash = rs.ProposalBlock.Hash()
	}
	if rs.LockedQC != nil {
		result.LockedView = rs.LockedQC.View
	}
	if rs.HighQC != nil {
		result.HighView = rs.HighQC.View
	}
	return result, nil
}

// ResultBlock describes one committed block.
type ResultBlock struct {
	Height     int64          `json:"height"`
	View       int64          `json:"view"`
	BlockHash  bytes.HexBytes `json:"block_hash"`
	ParentHash bytes.HexBytes `json:"parent_hash"`
	Proposer   bytes.HexBytes `json:"proposer"`
	TxNum      int            `json:"tx_num"`
	Block      *types.Block   `json:"block"`
}

func Block(ctx *rpctypes.Context, height int64) (*ResultBlock, error) {
	block, err := env.BlockStore.LoadBlockByHeight(height)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("no committed block at height %d", height)
	}
	return &ResultBlock{
		Height:     block.Height,
		View:       block.View,
		BlockHash:  block.Hash(),
		ParentHash: block.ParentHash,
		Proposer:   bytes.HexBytes(block.ProposerAddr),
		TxNum:      len(block.Data.Txs),
		Block:      block,
	}, nil
}
