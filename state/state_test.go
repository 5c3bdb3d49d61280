package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkpointbft/types"
)

func TestMakeGenesisState(t *testing.T) {
	genDoc, _ := types.RandGenesisDoc("state_test", 4)
	state := MakeGenesisState(genDoc)

	assert.Equal(t, "state_test", state.ChainID)
	assert.Equal(t, 4, state.Validators.Size())
	assert.Equal(t, int64(0), state.LastCommittedHeight)
	assert.Equal(t, 1, state.BlockTree.Size())
	assert.False(t, state.IsEmpty())

	last, err := state.LastCommitted()
	require.NoError(t, err)
	assert.True(t, last.Equal(genDoc.GenesisBlock()))
}

func TestStateCopy(t *testing.T) {
	genDoc, _ := types.RandGenesisDoc("state_test", 4)
	state := MakeGenesisState(genDoc)

	cp := state.Copy()
	cp.LastCommittedHeight = 10
	cp.LastCommittedHash[0] ^= 0xff

	assert.Equal(t, int64(0), state.LastCommittedHeight)
	assert.NotEqual(t, state.LastCommittedHash[0], cp.LastCommittedHash[0])

	// tree and pending set are shared: the engine is their only writer
	assert.Equal(t, state.BlockTree, cp.BlockTree)
	assert.Equal(t, state.PendingBlocks, cp.PendingBlocks)
}

func TestNextCheckpointHeight(t *testing.T) {
	genDoc, _ := types.RandGenesisDoc("state_test", 4)
	genDoc.CheckpointInterval = 4
	state := MakeGenesisState(genDoc)

	cases := []struct {
		lastCommitted int64
		next          int64
	}{
		{0, 4},
		{1, 4},
		{3, 4},
		{4, 8},
		{5, 8},
		{8, 12},
	}
	for _, tc := range cases {
		state.LastCommittedHeight = tc.lastCommitted
		assert.Equal(t, tc.next, state.NextCheckpointHeight(), "lastCommitted=%d", tc.lastCommitted)
	}
}
