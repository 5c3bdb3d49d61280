package state

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	tmtime "github.com/tendermint/tendermint/types/time"
	tmdb "github.com/tendermint/tm-db"

	mempl "checkpointbft/mempool"
	"checkpointbft/store"
	"checkpointbft/types"
)

type cleanup func()

func newTestExec(t *testing.T) (BlockExecutor, *mempl.ListMempool, *store.BlockStore, cleanup) {
	testconfig := config.ResetTestRoot("state_test")
	logger := log.TestingLogger()

	listMempool := mempl.NewListMempool(testconfig.Mempool)
	listMempool.SetLogger(logger)

	blockStore := store.NewBlockStoreWithDB(tmdb.NewMemDB(), logger)

	blockExec := NewBlockExecutor(blockStore, listMempool)
	blockExec.SetLogger(logger)

	return blockExec, listMempool, blockStore, func() {
		blockStore.Close()
		os.RemoveAll(testconfig.RootDir)
	}
}

// makeQC recovers a certificate from a quorum of vote shares.
func makeQC(t *testing.T, chainID string, vals *types.ValidatorSet, privVals []types.PrivValidator,
	blockHash []byte, phase types.Phase, view int64) *types.QuorumCert {
	q := vals.Quorum()
	shares := make([][]byte, 0, q)
	signers := make([]int32, 0, q)
	for i := 0; i < q; i++ {
		vote := &types.Vote{
			BlockHash:        blockHash,
			Phase:            phase,
			View:             view,
			Timestamp:        tmtime.Now(),
			ValidatorAddress: privVals[i].GetAddress(),
			ValidatorIndex:   privVals[i].GetIndex(),
		}
		require.NoError(t, privVals[i].SignVote(chainID, vote))
		shares = append(shares, vote.Signature)
		signers = append(signers, int32(i))
	}
	agg, err := vals.FederationPoly.Recover(types.QuorumSignBytes(chainID, blockHash, phase, view), shares, vals.Size())
	require.NoError(t, err)

	return &types.QuorumCert{
		BlockHash:    blockHash,
		Phase:        phase,
		View:         view,
		Signers:      signers,
		AggSignature: agg,
	}
}

// makeSignedBlock builds a fully valid block extending parent, justified and
// signed by the leader of the given view.
func makeSignedBlock(t *testing.T, genDoc *types.GenesisDoc, privVals []types.PrivValidator,
	parent *types.Block, view int64, txs types.Txs) *types.Block {
	vals := genDoc.ValidatorSet()

	justify := makeQC(t, genDoc.ChainID, vals, privVals, parent.Hash(), types.PhasePrepare, parent.View)
	block := types.MakeBlock(genDoc.ChainID, parent.Height+1, view, parent.Hash(), justify, txs)

	proposer := vals.GetProposer(view)
	block.ProposerAddr = proposer.Address
	block.ProposerIndex = proposer.Index
	require.NoError(t, privVals[proposer.Index].SignProposal(genDoc.ChainID, types.NewProposal(block)))
	return block
}

func TestValidateBlock(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc("state_test", 4)
	genState := MakeGenesisState(genDoc)
	blockExec, _, _, cleanupFn := newTestExec(t)
	defer cleanupFn()

	genesis := genState.BlockTree.GetRoot()
	block := makeSignedBlock(t, genDoc, privVals, genesis, 1, types.Txs{types.Tx("tx1")})
	require.NoError(t, blockExec.ValidateBlock(genState, block))

	// unknown parent
	orphan := makeSignedBlock(t, genDoc, privVals, genesis, 1, types.Txs{})
	orphan.ParentHash = []byte("nowhere")
	orphan.BlockHash = nil
	assert.Error(t, blockExec.ValidateBlock(genState, orphan))

	// wrong chain
	wrongChain := makeSignedBlock(t, genDoc, privVals, genesis, 1, types.Txs{})
	wrongChain.ChainID = "other_chain"
	wrongChain.BlockHash = nil
	assert.Error(t, blockExec.ValidateBlock(genState, wrongChain))

	// signed by somebody who is not the view's leader
	usurped := makeSignedBlock(t, genDoc, privVals, genesis, 1, types.Txs{})
	wrongSigner := privVals[3] // leader of view 1 is validator 1
	usurped.ProposerAddr = wrongSigner.GetAddress()
	usurped.ProposerIndex = wrongSigner.GetIndex()
	usurped.BlockHash = nil
	require.NoError(t, wrongSigner.SignProposal(genDoc.ChainID, types.NewProposal(usurped)))
	assert.Error(t, blockExec.ValidateBlock(genState, usurped))

	// justify certificate for a different block
	badJustify := makeSignedBlock(t, genDoc, privVals, genesis, 1, types.Txs{})
	badJustify.Justify = makeQC(t, genDoc.ChainID, genDoc.ValidatorSet(), privVals,
		[]byte("some other block"), types.PhasePrepare, 0)
	badJustify.BlockHash = nil
	proposer := genDoc.ValidatorSet().GetProposer(1)
	require.NoError(t, privVals[proposer.Index].SignProposal(genDoc.ChainID, types.NewProposal(badJustify)))
	assert.Error(t, blockExec.ValidateBlock(genState, badJustify))
}

func TestApplyBlock(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc("state_test", 4)
	genState := MakeGenesisState(genDoc)
	blockExec, listMempool, _, cleanupFn := newTestExec(t)
	defer cleanupFn()

	tx := types.Tx("tx1")
	require.NoError(t, listMempool.CheckTx(tx, mempl.TxInfo{}))

	genesis := genState.BlockTree.GetRoot()
	block := makeSignedBlock(t, genDoc, privVals, genesis, 1, types.Txs{tx})
	require.NoError(t, blockExec.ValidateBlock(genState, block))

	newState, err := blockExec.ApplyBlock(genState, block)
	require.NoError(t, err)

	// tree and pending set see the block
	assert.Equal(t, 2, newState.BlockTree.Size())
	assert.Equal(t, 1, newState.PendingBlocks.Size())
	assert.True(t, newState.BlockTree.HasBlock(block.Hash()))

	// its tx is locked, not reapable
	assert.Len(t, listMempool.ReapMaxTxs(-1), 0)

	// re-applying is rejected by the tree
	_, err = blockExec.ApplyBlock(newState, block)
	assert.Equal(t, types.ErrDuplicatedBlock, err)
}

func TestCommitBlocks(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc("state_test", 4)
	genState := MakeGenesisState(genDoc)
	blockExec, listMempool, blockStore, cleanupFn := newTestExec(t)
	defer cleanupFn()

	tx1, tx2 := types.Tx("tx1"), types.Tx("tx2")
	require.NoError(t, listMempool.CheckTx(tx1, mempl.TxInfo{}))
	require.NoError(t, listMempool.CheckTx(tx2, mempl.TxInfo{}))

	genesis := genState.BlockTree.GetRoot()
	b1 := makeSignedBlock(t, genDoc, privVals, genesis, 1, types.Txs{tx1})
	b2 := makeSignedBlock(t, genDoc, privVals, b1, 2, types.Txs{tx2})

	st, err := blockExec.ApplyBlock(genState, b1)
	require.NoError(t, err)
	st, err = blockExec.ApplyBlock(st, b2)
	require.NoError(t, err)

	st, err = blockExec.CommitBlocks(st, []*types.Block{b1, b2})
	require.NoError(t, err)

	assert.Equal(t, int64(2), st.LastCommittedHeight)
	assert.Equal(t, []byte(b2.Hash()), st.LastCommittedHash)
	assert.Equal(t, 0, st.PendingBlocks.Size())
	assert.Equal(t, types.CommittedBlock, b1.BlockState)
	assert.Equal(t, types.CommittedBlock, b2.BlockState)

	// durable
	loaded, err := blockStore.LoadBlockByHeight(2)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, b2.Hash(), loaded.Hash())

	// committed txs are gone from the pool
	assert.Zero(t, listMempool.Size())

	// the tree is re-rooted at the commit tip; settled ancestors are gone
	assert.Equal(t, 1, st.BlockTree.Size())
	assert.Equal(t, []byte(b2.Hash()), []byte(st.BlockTree.GetRoot().Hash()))
	assert.False(t, st.BlockTree.HasBlock(genesis.Hash()))
}
