package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkpointbft/types"
)

const testChainID = "aggregator_test_chain"

func newTestAggregator(t *testing.T, n int) (*Aggregator, *types.ValidatorSet, []types.PrivValidator) {
	vals, privVals := types.RandValidatorSet(n)
	return NewAggregator(testChainID, vals), vals, privVals
}

func makeVote(t *testing.T, pv types.PrivValidator, blockHash []byte, phase types.Phase, view int64) *types.Vote {
	vote := &types.Vote{
		BlockHash:        blockHash,
		Phase:            phase,
		View:             view,
		Timestamp:        time.Now(),
		ValidatorAddress: pv.GetAddress(),
		ValidatorIndex:   pv.GetIndex(),
	}
	require.NoError(t, pv.SignVote(testChainID, vote))
	return vote
}

// makeQC recovers a certificate from a quorum of freshly signed vote shares.
func makeQC(t *testing.T, chainID string, vals *types.ValidatorSet, privVals []types.PrivValidator,
	blockHash []byte, phase types.Phase, view int64) *types.QuorumCert {
	q := vals.Quorum()
	shares := make([][]byte, q)
	signers := make([]int32, q)
	msg := types.QuorumSignBytes(chainID, blockHash, phase, view)
	for i := 0; i < q; i++ {
		vote := &types.Vote{
			BlockHash:        blockHash,
			Phase:            phase,
			View:             view,
			ValidatorAddress: privVals[i].GetAddress(),
			ValidatorIndex:   privVals[i].GetIndex(),
		}
		require.NoError(t, privVals[i].SignVote(chainID, vote))
		shares[i] = vote.Signature
		signers[i] = int32(i)
	}
	aggSig, err := vals.FederationPoly.Recover(msg, shares, vals.Size())
	require.NoError(t, err)
	return &types.QuorumCert{
		BlockHash:    blockHash,
		Phase:        phase,
		View:         view,
		Signers:      signers,
		AggSignature: aggSig,
	}
}

func makeNewView(t *testing.T, pv types.PrivValidator, view int64, highQC *types.QuorumCert) *types.NewView {
	nv := &types.NewView{
		View:             view,
		HighQC:           highQC,
		Timestamp:        time.Now(),
		ValidatorAddress: pv.GetAddress(),
		ValidatorIndex:   pv.GetIndex(),
	}
	require.NoError(t, pv.SignNewView(testChainID, nv))
	return nv
}

// The certificate must appear at exactly the quorum-th distinct vote: never
// before, always then.
func TestAggregatorQuorumExactness(t *testing.T) {
	agg, vals, privVals := newTestAggregator(t, 4)
	blockHash := []byte("block_under_vote_hash_32_bytes!!")
	q := vals.Quorum()

	for i := 0; i < q-1; i++ {
		qc, err := agg.AddVote(makeVote(t, privVals[i], blockHash, types.PhasePrepare, 5))
		require.NoError(t, err)
		assert.Nil(t, qc, "certificate emitted before quorum at vote %d", i+1)
	}

	qc, err := agg.AddVote(makeVote(t, privVals[q-1], blockHash, types.PhasePrepare, 5))
	require.NoError(t, err)
	require.NotNil(t, qc, "no certificate at the quorum-th vote")

	assert.NoError(t, qc.Verify(testChainID, vals))
	assert.Equal(t, types.PhasePrepare, qc.Phase)
	assert.EqualValues(t, 5, qc.View)
	assert.Len(t, qc.Signers, q)

	// a straggler after emission is recorded, never re-emits
	qc2, err := agg.AddVote(makeVote(t, privVals[q], blockHash, types.PhasePrepare, 5))
	require.NoError(t, err)
	assert.Nil(t, qc2)
}

// Re-delivering the same vote must neither error nor double count.
func TestAggregatorDuplicateVote(t *testing.T) {
	agg, vals, privVals := newTestAggregator(t, 4)
	blockHash := []byte("block_under_vote_hash_32_bytes!!")
	q := vals.Quorum()

	vote := makeVote(t, privVals[0], blockHash, types.PhasePreCommit, 2)
	for i := 0; i < 3; i++ {
		qc, err := agg.AddVote(vote)
		require.NoError(t, err)
		assert.Nil(t, qc)
	}

	// the duplicates count as one voter: q-1 more voters are still needed
	for i := 1; i < q-1; i++ {
		qc, err := agg.AddVote(makeVote(t, privVals[i], blockHash, types.PhasePreCommit, 2))
		require.NoError(t, err)
		assert.Nil(t, qc)
	}
	qc, err := agg.AddVote(makeVote(t, privVals[q-1], blockHash, types.PhasePreCommit, 2))
	require.NoError(t, err)
	assert.NotNil(t, qc)
}

// A voter signing two different blocks in the same phase and view is reported
// as equivocation; its first vote keeps counting.
func TestAggregatorEquivocation(t *testing.T) {
	agg, vals, privVals := newTestAggregator(t, 4)
	hashA := []byte("conflicting_block_a_hash_32bytes")
	hashB := []byte("conflicting_block_b_hash_32bytes")

	_, err := agg.AddVote(makeVote(t, privVals[0], hashA, types.PhasePrepare, 7))
	require.NoError(t, err)

	_, err = agg.AddVote(makeVote(t, privVals[0], hashB, types.PhasePrepare, 7))
	var equiv ErrEquivocation
	require.ErrorAs(t, err, &equiv)
	assert.EqualValues(t, 0, equiv.First.ValidatorIndex)
	assert.Equal(t, hashA, []byte(equiv.First.BlockHash))
	assert.Equal(t, hashB, []byte(equiv.Second.BlockHash))

	// the first vote is still worth its share: two honest votes complete
	// the quorum for hashA
	for i := 1; i < vals.Quorum()-1; i++ {
		_, err = agg.AddVote(makeVote(t, privVals[i], hashA, types.PhasePrepare, 7))
		require.NoError(t, err)
	}
	qc, err := agg.AddVote(makeVote(t, privVals[vals.Quorum()-1], hashA, types.PhasePrepare, 7))
	require.NoError(t, err)
	require.NotNil(t, qc)
	assert.NoError(t, qc.Verify(testChainID, vals))
}

func TestAggregatorRejectsBadVotes(t *testing.T) {
	agg, _, privVals := newTestAggregator(t, 4)
	_, otherPVs := types.RandValidatorSet(4)
	blockHash := []byte("block_under_vote_hash_32_bytes!!")

	// share from a different federation
	foreign := makeVote(t, otherPVs[0], blockHash, types.PhasePrepare, 1)
	foreign.ValidatorAddress = privVals[0].GetAddress()
	_, err := agg.AddVote(foreign)
	var invalid ErrInvalidVote
	assert.ErrorAs(t, err, &invalid)

	// signature share index not matching the claimed voter
	stolen := makeVote(t, privVals[1], blockHash, types.PhasePrepare, 1)
	stolen.ValidatorIndex = 2
	stolen.ValidatorAddress = privVals[2].GetAddress()
	_, err = agg.AddVote(stolen)
	assert.ErrorAs(t, err, &invalid)

	// tampered payload
	tampered := makeVote(t, privVals[0], blockHash, types.PhasePrepare, 1)
	tampered.View = 2
	_, err = agg.AddVote(tampered)
	assert.ErrorAs(t, err, &invalid)

	// out-of-range index
	outside := makeVote(t, privVals[0], blockHash, types.PhasePrepare, 1)
	outside.ValidatorIndex = 99
	_, err = agg.AddVote(outside)
	assert.ErrorAs(t, err, &invalid)
}

func TestAggregatorNewViewQuorum(t *testing.T) {
	agg, vals, privVals := newTestAggregator(t, 4)
	q := vals.Quorum()

	lowQC := makeQC(t, testChainID, vals, privVals, []byte("old_certified_block_hash_32bytes"), types.PhasePrepare, 3)
	highQC := makeQC(t, testChainID, vals, privVals, []byte("new_certified_block_hash_32bytes"), types.PhasePrepare, 6)

	// one replica knows a fresher certificate than the others
	tc, err := agg.AddNewView(makeNewView(t, privVals[0], 8, highQC))
	require.NoError(t, err)
	assert.Nil(t, tc)
	for i := 1; i < q-1; i++ {
		tc, err = agg.AddNewView(makeNewView(t, privVals[i], 8, lowQC))
		require.NoError(t, err)
		assert.Nil(t, tc)
	}
	tc, err = agg.AddNewView(makeNewView(t, privVals[q-1], 8, lowQC))
	require.NoError(t, err)
	require.NotNil(t, tc)

	assert.EqualValues(t, 8, tc.View)
	assert.EqualValues(t, 6, tc.HighQC.View, "timeout cert must carry the freshest certificate seen")
	assert.NoError(t, tc.Verify(testChainID, vals))

	// duplicate and straggler messages never re-emit
	tc2, err := agg.AddNewView(makeNewView(t, privVals[q], 8, lowQC))
	require.NoError(t, err)
	assert.Nil(t, tc2)
}

func TestAggregatorPendingBuffer(t *testing.T) {
	agg, vals, privVals := newTestAggregator(t, 4)
	blockHash := []byte("not_yet_delivered_block_hash_32b")

	for i := 0; i < vals.Quorum(); i++ {
		require.NoError(t, agg.BufferVote(makeVote(t, privVals[i], blockHash, types.PhasePrepare, 4)))
	}
	assert.Nil(t, agg.DrainPending([]byte("some_other_block_hash_32_bytes!!")))

	votes := agg.DrainPending(blockHash)
	require.Len(t, votes, vals.Quorum())
	assert.Nil(t, agg.DrainPending(blockHash), "drain must remove the buffered votes")

	var qc *types.QuorumCert
	var err error
	for _, vote := range votes {
		qc, err = agg.AddVote(vote)
		require.NoError(t, err)
	}
	require.NotNil(t, qc)
}

func TestAggregatorPruneBelow(t *testing.T) {
	agg, _, privVals := newTestAggregator(t, 4)
	blockHash := []byte("block_under_vote_hash_32_bytes!!")

	_, err := agg.AddVote(makeVote(t, privVals[0], blockHash, types.PhasePrepare, 2))
	require.NoError(t, err)
	require.NoError(t, agg.BufferVote(makeVote(t, privVals[1], []byte("unknown_parent_block_hash_32byte"), types.PhasePrepare, 2)))

	agg.PruneBelow(3)

	assert.Empty(t, agg.rounds)
	assert.Zero(t, agg.pendingSize)

	// pruned views start from scratch; no stale equivocation bookkeeping
	_, err = agg.AddVote(makeVote(t, privVals[0], blockHash, types.PhasePrepare, 2))
	assert.NoError(t, err)
}
