package state

import (
	"time"

	"checkpointbft/types"
)

// MakeGenesisState derives the initial state from a validated genesis
// document: a block tree rooted at the genesis block, nothing pending,
// and the genesis block as the last committed block.
func MakeGenesisState(genDoc *types.GenesisDoc) State {
	genesisBlock := genDoc.GenesisBlock()

	state := State{
		ChainID:            genDoc.ChainID,
		Validators:         genDoc.ValidatorSet(),
		CheckpointInterval: genDoc.CheckpointInterval,

		LastCommittedHeight: 0,
		LastCommittedHash:   genesisBlock.Hash(),
		LastCommitTime:      genDoc.GenesisTime,

		PendingBlocks: types.NewBlockSet(),
		BlockTree:     types.NewBlockTree(genesisBlock),
	}
	return state
}

// State is a snapshot of everything the engine agrees on outside the current
// view: the membership, the committed prefix, and the tree of blocks whose
// fate is still open. The engine owns the only mutable copy; everyone else
// reads copies.
type State struct {
	// set at genesis, immutable for the epoch
	ChainID            string
	Validators         *types.ValidatorSet
	CheckpointInterval int64

	// committed prefix
	LastCommittedHeight int64
	LastCommittedHash   []byte
	LastCommitTime      time.Time

	// blocks received but not yet committed
	PendingBlocks *types.BlockSet

	// all non-malformed blocks, rooted at the genesis block
	BlockTree *types.BlockTree
}

// Copy returns a snapshot sharing the tree and pending set (the engine is
// their only writer) with the scalar fields deep-copied.
func (state State) Copy() State {
	newState := State{
		ChainID:            state.ChainID,
		Validators:         state.Validators,
		CheckpointInterval: state.CheckpointInterval,

		LastCommittedHeight: state.LastCommittedHeight,
		LastCommittedHash:   make([]byte, len(state.LastCommittedHash)),
		LastCommitTime:      state.LastCommitTime,

		PendingBlocks: state.PendingBlocks,
		BlockTree:     state.BlockTree,
	}
	copy(newState.LastCommittedHash, state.LastCommittedHash)
	return newState
}

// IsEmpty reports whether the state carries a chain at all.
func (state State) IsEmpty() bool {
	return state.Validators == nil
}

// LastCommitted returns the most recently committed block.
func (state State) LastCommitted() (*types.Block, error) {
	return state.BlockTree.QueryBlockByHash(state.LastCommittedHash)
}

// NextCheckpointHeight returns the height the current checkpoint range ends
// at: ranges are aligned multiples of CheckpointInterval.
func (state State) NextCheckpointHeight() int64 {
	interval := state.CheckpointInterval
	if interval < 1 {
		interval = types.DefaultCheckpointInterval
	}
	return (state.LastCommittedHeight/interval)*interval + interval
}
