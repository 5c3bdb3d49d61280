package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenesisBlockDeterministic(t *testing.T) {
	genesisTime := time.Unix(1700000000, 0).UTC()
	b1 := MakeGenesisBlock("CONSENSUS_TEST", genesisTime)
	b2 := MakeGenesisBlock("CONSENSUS_TEST", genesisTime)

	assert.Equal(t, b1.Hash(), b2.Hash())
	assert.True(t, b1.Equal(b2))
	assert.Equal(t, CommittedBlock, b1.BlockState)
}

func TestBlockHashIgnoresSignature(t *testing.T) {
	parent := MakeGenesisBlock("CONSENSUS_TEST", time.Now())
	block := MakeBlock("CONSENSUS_TEST", 1, 1, parent.Hash(), &QuorumCert{
		BlockHash:    parent.Hash(),
		Phase:        PhasePrepare,
		View:         0,
		Signers:      []int32{0, 1, 2},
		AggSignature: []byte("sig"),
	}, Txs{Tx("tx1")})

	hashBefore := block.Hash()
	block.Signature = []byte("proposer signature")
	assert.Equal(t, hashBefore, block.Hash())
	assert.True(t, block.HashesTo(hashBefore))
}

func TestBlockHashCoversHeader(t *testing.T) {
	parent := MakeGenesisBlock("CONSENSUS_TEST", time.Now())
	a := MakeBlock("CONSENSUS_TEST", 1, 1, parent.Hash(), nil, Txs{Tx("tx1")})
	b := MakeBlock("CONSENSUS_TEST", 1, 2, parent.Hash(), nil, Txs{Tx("tx1")})
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestBlockValidateBasic(t *testing.T) {
	genesis := MakeGenesisBlock("CONSENSUS_TEST", time.Now())
	require.NoError(t, genesis.ValidateBasic())

	block := MakeBlock("CONSENSUS_TEST", 1, 1, genesis.Hash(), nil, Txs{})
	// non-genesis block without justify or signature
	assert.Error(t, block.ValidateBasic())

	block.Justify = &QuorumCert{BlockHash: genesis.Hash(), Phase: PhasePrepare, AggSignature: []byte("sig")}
	block.Signature = []byte("sig")
	assert.NoError(t, block.ValidateBasic())

	var nilBlock *Block
	assert.Error(t, nilBlock.ValidateBasic())
}

func TestPhaseLadder(t *testing.T) {
	assert.Equal(t, PhasePreCommit, PhasePrepare.Next())
	assert.Equal(t, PhaseCommit, PhasePreCommit.Next())
	assert.Equal(t, PhaseDecide, PhaseCommit.Next())
	assert.True(t, PhasePrepare.IsVotePhase())
	assert.True(t, PhaseCommit.IsVotePhase())
	assert.False(t, PhaseDecide.IsVotePhase())
}
