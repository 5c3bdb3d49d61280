package consensus

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	tmtime "github.com/tendermint/tendermint/types/time"
	tmdb "github.com/tendermint/tm-db"

	"checkpointbft/checkpoint"
	"checkpointbft/interpreter"
	mempl "checkpointbft/mempool"
	"checkpointbft/pacemaker"
	bkstate "checkpointbft/state"
	"checkpointbft/store"
	"checkpointbft/types"
)

const testChainID = "engine_test_chain"

type cleanup func()

func consensusLogger() log.Logger {
	return log.NewFilter(log.TestingLogger(), log.AllowDebug())
}

func newTestEngine(
	t *testing.T,
	genDoc *types.GenesisDoc,
	privVal types.PrivValidator,
	interp interpreter.Interpreter,
	pm *pacemaker.Pacemaker,
	options ...EngineOption,
) (*Engine, cleanup) {
	return newTestEngineWithConfig(t, cfg.ResetTestRoot("engine_test"), consensusLogger(),
		genDoc, privVal, interp, pm, options...)
}

func newTestEngineWithConfig(
	t *testing.T,
	config *cfg.Config,
	logger log.Logger,
	genDoc *types.GenesisDoc,
	privVal types.PrivValidator,
	interp interpreter.Interpreter,
	pm *pacemaker.Pacemaker,
	options ...EngineOption,
) (*Engine, cleanup) {
	st := bkstate.MakeGenesisState(genDoc)

	blockStore := store.NewBlockStoreWithDB(tmdb.NewMemDB(), logger)

	mempool := mempl.NewListMempool(config.Mempool)
	mempool.SetLogger(logger)

	blockExec := bkstate.NewBlockExecutor(blockStore, mempool)
	blockExec.SetLogger(logger)

	if pm == nil {
		// far enough out that no test view expires by itself
		pm = pacemaker.NewPacemaker(1, st.Validators,
			pacemaker.WithTimeouts(time.Minute, time.Hour))
	}

	options = append([]EngineOption{SetInitialHighQC(genDoc.GenesisQC)}, options...)
	cs := NewDefaultEngine(config.Consensus, privVal, st, blockExec, blockStore, interp, pm, options...)
	cs.SetLogger(logger)

	return cs, func() {
		os.RemoveAll(config.RootDir)
	}
}

//-----------------------------------------------------------------------------
// fixtures

// eventRecorder collects everything fired for one event type.
type eventRecorder struct {
	mtx  sync.Mutex
	data []events.EventData
}

func recordEvents(cs *Engine, event string) *eventRecorder {
	rec := &eventRecorder{}
	if err := cs.eventSwitch.AddListenerForEvent("test-recorder-"+event, event, rec.record); err != nil {
		panic(err)
	}
	return rec
}

func (rec *eventRecorder) record(data events.EventData) {
	rec.mtx.Lock()
	defer rec.mtx.Unlock()
	rec.data = append(rec.data, data)
}

func (rec *eventRecorder) count() int {
	rec.mtx.Lock()
	defer rec.mtx.Unlock()
	return len(rec.data)
}

func (rec *eventRecorder) all() []events.EventData {
	rec.mtx.Lock()
	defer rec.mtx.Unlock()
	return append([]events.EventData(nil), rec.data...)
}

// makeProposal builds the given view's block and signs it as that view's
// leader would.
func makeProposal(
	t *testing.T,
	genDoc *types.GenesisDoc,
	privVals []types.PrivValidator,
	view int64,
	parent *types.Block,
	justify *types.QuorumCert,
) *types.Proposal {
	t.Helper()

	leader := genDoc.ValidatorSet().GetProposer(view)
	pv := privVals[leader.Index]

	block := types.MakeBlock(genDoc.ChainID, parent.Height+1, view, parent.Hash(), justify, types.Txs{})
	block.ProposerAddr = pv.GetAddress()
	block.ProposerIndex = leader.Index

	proposal := types.NewProposal(block)
	require.NoError(t, pv.SignProposal(genDoc.ChainID, proposal))
	return proposal
}

func makeVote(
	t *testing.T,
	chainID string,
	pv types.PrivValidator,
	index int32,
	blockHash []byte,
	phase types.Phase,
	view int64,
) *types.Vote {
	t.Helper()

	vote := &types.Vote{
		BlockHash:        blockHash,
		Phase:            phase,
		View:             view,
		Timestamp:        tmtime.Now(),
		ValidatorAddress: pv.GetAddress(),
		ValidatorIndex:   index,
	}
	require.NoError(t, pv.SignVote(chainID, vote))
	return vote
}

func makeNewView(
	t *testing.T,
	chainID string,
	pv types.PrivValidator,
	index int32,
	view int64,
	highQC *types.QuorumCert,
) *types.NewView {
	t.Helper()

	nv := &types.NewView{
		View:             view,
		HighQC:           highQC.Copy(),
		Timestamp:        tmtime.Now(),
		ValidatorAddress: pv.GetAddress(),
		ValidatorIndex:   index,
	}
	require.NoError(t, pv.SignNewView(chainID, nv))
	return nv
}

// makeQC recovers a real certificate from a quorum of vote shares, the same
// way the aggregator does it.
func makeQC(
	t *testing.T,
	genDoc *types.GenesisDoc,
	privVals []types.PrivValidator,
	blockHash []byte,
	phase types.Phase,
	view int64,
) *types.QuorumCert {
	t.Helper()

	vals := genDoc.ValidatorSet()
	quorum := vals.Quorum()
	msg := types.QuorumSignBytes(genDoc.ChainID, blockHash, phase, view)

	shares := make([][]byte, 0, quorum)
	signers := make([]int32, 0, quorum)
	for i := 0; i < quorum; i++ {
		vote := makeVote(t, genDoc.ChainID, privVals[i], int32(i), blockHash, phase, view)
		shares = append(shares, vote.Signature)
		signers = append(signers, int32(i))
	}
	aggSig, err := genDoc.FederationPoly.Recover(msg, shares, vals.Size())
	require.NoError(t, err)

	return &types.QuorumCert{
		BlockHash:    blockHash,
		Phase:        phase,
		View:         view,
		Signers:      signers,
		AggSignature: aggSig,
	}
}

func (cs *Engine) feed(t *testing.T, msg Message) {
	t.Helper()
	select {
	case cs.peerMsgQueue <- msgInfo{msg, "test-peer"}:
	case <-time.After(5 * time.Second):
		t.Fatalf("engine did not accept %v", msg)
	}
}

//-----------------------------------------------------------------------------

// The leader of the first view builds on the genesis certificate as soon as
// the engine starts, and casts its own prepare vote for the block.
func TestEngineLeaderProposes(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc(testChainID, 4)
	leader := genDoc.ValidatorSet().GetProposer(1)

	cs, clean := newTestEngine(t, genDoc, privVals[leader.Index], &interpreter.Mock{}, nil)
	defer clean()
	votes := recordEvents(cs, EventNewVote)

	require.NoError(t, cs.Start())
	defer cs.Stop()

	require.Eventually(t, func() bool {
		return cs.GetRoundState().ProposalBlock != nil
	}, 5*time.Second, 20*time.Millisecond, "leader never built its proposal")

	rs := cs.GetRoundState()
	assert.EqualValues(t, 1, rs.ProposalBlock.Height)
	assert.EqualValues(t, 1, rs.ProposalBlock.View)
	assert.Equal(t, genDoc.GenesisBlock().Hash().String(), rs.ProposalBlock.ParentHash.String())
	assert.Equal(t, types.PhasePrepare, rs.Phase)
	assert.True(t, rs.IsProposer())

	require.Eventually(t, func() bool { return votes.count() == 1 },
		5*time.Second, 20*time.Millisecond, "leader never voted for its own block")
	vote := votes.all()[0].(*types.Vote)
	assert.Equal(t, types.PhasePrepare, vote.Phase)
	assert.True(t, rs.ProposalBlock.HashesTo(vote.BlockHash))
}

// A replica walks the whole phase ladder from the leader's proposal through
// quorums of prepare, pre-commit and commit votes, commits the block, moves
// to the next view and cuts a verifiable checkpoint certificate.
func TestEngineReplicaLadderToCheckpoint(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc(testChainID, 4)
	interp := &interpreter.Mock{}

	// validator 3 leads neither view 1 nor view 2
	cs, clean := newTestEngine(t, genDoc, privVals[3], interp, nil)
	defer clean()
	cs.checkpointer = checkpoint.NewAssembler(genDoc.ChainID, 1, cs.blockStore, interp, 0)

	require.NoError(t, cs.Start())
	defer cs.Stop()

	proposal := makeProposal(t, genDoc, privVals, 1, genDoc.GenesisBlock(), genDoc.GenesisQC)
	cs.feed(t, &ProposalMessage{Proposal: proposal})

	require.Eventually(t, func() bool {
		return cs.GetRoundState().ProposalBlock != nil
	}, 5*time.Second, 20*time.Millisecond, "replica never accepted the proposal")
	blockHash := cs.GetRoundState().ProposalBlock.Hash()

	for _, phase := range []types.Phase{types.PhasePrepare, types.PhasePreCommit, types.PhaseCommit} {
		for i, pv := range privVals {
			cs.feed(t, &VoteMessage{Vote: makeVote(t, genDoc.ChainID, pv, int32(i), blockHash, phase, 1)})
		}
	}

	require.Eventually(t, func() bool {
		return cs.GetState().LastCommittedHeight == 1
	}, 5*time.Second, 20*time.Millisecond, "replica never committed the block")

	rs := cs.GetRoundState()
	assert.EqualValues(t, 2, rs.CurView, "the commit should advance the view")
	require.NotNil(t, rs.LockedQC)
	assert.EqualValues(t, 1, rs.LockedQC.View)
	assert.Equal(t, types.PhasePreCommit, rs.LockedQC.Phase)
	require.NotNil(t, rs.LastCommitted)
	assert.EqualValues(t, 1, rs.LastCommitted.Height)

	committed, err := cs.blockStore.LoadBlockByHeight(1)
	require.NoError(t, err)
	require.NotNil(t, committed, "the committed block should be durable")

	certs := interp.DeliveredCheckpoints()
	require.Len(t, certs, 1)
	assert.EqualValues(t, 1, certs[0].StartHeight)
	assert.EqualValues(t, 1, certs[0].EndHeight)
	require.NoError(t, certs[0].Verify(genDoc.ValidatorSet()))
}

// Two prepare votes by the same validator for different blocks: the first
// still counts toward the quorum, the second is reported and discarded.
func TestEngineEquivocatingVoterCountedOnce(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc(testChainID, 4)

	cs, clean := newTestEngine(t, genDoc, privVals[3], &interpreter.Mock{}, nil)
	defer clean()

	require.NoError(t, cs.Start())
	defer cs.Stop()

	proposal := makeProposal(t, genDoc, privVals, 1, genDoc.GenesisBlock(), genDoc.GenesisQC)
	cs.feed(t, &ProposalMessage{Proposal: proposal})
	require.Eventually(t, func() bool {
		return cs.GetRoundState().ProposalBlock != nil
	}, 5*time.Second, 20*time.Millisecond)
	blockHash := cs.GetRoundState().ProposalBlock.Hash()

	// validator 0 votes for the proposal, then for the genesis block in the
	// same view and phase
	cs.feed(t, &VoteMessage{Vote: makeVote(t, genDoc.ChainID, privVals[0], 0, blockHash, types.PhasePrepare, 1)})
	cs.feed(t, &VoteMessage{Vote: makeVote(t, genDoc.ChainID, privVals[0], 0, genDoc.GenesisBlock().Hash(), types.PhasePrepare, 1)})
	for i := 1; i < 3; i++ {
		cs.feed(t, &VoteMessage{Vote: makeVote(t, genDoc.ChainID, privVals[i], int32(i), blockHash, types.PhasePrepare, 1)})
	}

	require.Eventually(t, func() bool {
		return cs.GetRoundState().Phase == types.PhasePreCommit
	}, 5*time.Second, 20*time.Millisecond, "the quorum should form from the first votes")

	assert.EqualValues(t, 1, cs.metric.EquivocationCount())
}

// A silent Interpreter withholds this node's vote for the whole view; the
// block is still applied and the round still follows the federation's
// certificates. The next view starts with a clean slate.
func TestEngineSilentInterpreterSkipsVoting(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc(testChainID, 4)
	interp := &interpreter.Mock{Silent: true}

	cs, clean := newTestEngine(t, genDoc, privVals[3], interp, nil)
	defer clean()
	votes := recordEvents(cs, EventNewVote)

	require.NoError(t, cs.Start())
	defer cs.Stop()

	proposal := makeProposal(t, genDoc, privVals, 1, genDoc.GenesisBlock(), genDoc.GenesisQC)
	cs.feed(t, &ProposalMessage{Proposal: proposal})

	require.Eventually(t, func() bool {
		return cs.GetRoundState().ProposalBlock != nil
	}, 5*time.Second, 20*time.Millisecond, "the block should be applied even without a verdict")
	block := cs.GetRoundState().ProposalBlock
	assert.Zero(t, votes.count(), "no verdict, no prepare vote")

	// the other three validators are a quorum on their own
	for i := 0; i < 3; i++ {
		cs.feed(t, &VoteMessage{Vote: makeVote(t, genDoc.ChainID, privVals[i], int32(i), block.Hash(), types.PhasePrepare, 1)})
	}
	require.Eventually(t, func() bool {
		return cs.GetRoundState().Phase == types.PhasePreCommit
	}, 5*time.Second, 20*time.Millisecond, "the ladder still follows the federation's certificates")
	assert.Zero(t, votes.count(), "the silence covers every phase of the view")

	// the federation commits the block; this node follows the certificate
	interp.SetSilent(false)
	cs.feed(t, &QCMessage{QC: makeQC(t, genDoc, privVals, block.Hash(), types.PhaseCommit, 1)})
	require.Eventually(t, func() bool {
		return cs.GetState().LastCommittedHeight == 1
	}, 5*time.Second, 20*time.Millisecond)

	// with the interpreter answering again, view 2's proposal gets a vote
	justify := makeQC(t, genDoc, privVals, block.Hash(), types.PhasePrepare, 1)
	cs.feed(t, &ProposalMessage{Proposal: makeProposal(t, genDoc, privVals, 2, block, justify)})
	require.Eventually(t, func() bool { return votes.count() == 1 },
		5*time.Second, 20*time.Millisecond, "voting should resume in the next view")
	vote := votes.all()[0].(*types.Vote)
	assert.EqualValues(t, 2, vote.View)
}

// A proposal for a view ahead of ours is held back and replayed the moment
// the engine reaches that view through a commit certificate.
func TestEngineFutureProposalReplay(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc(testChainID, 4)

	cs, clean := newTestEngine(t, genDoc, privVals[3], &interpreter.Mock{}, nil)
	defer clean()

	require.NoError(t, cs.Start())
	defer cs.Stop()

	proposal1 := makeProposal(t, genDoc, privVals, 1, genDoc.GenesisBlock(), genDoc.GenesisQC)
	block1 := proposal1.Block
	justify2 := makeQC(t, genDoc, privVals, block1.Hash(), types.PhasePrepare, 1)
	proposal2 := makeProposal(t, genDoc, privVals, 2, block1, justify2)

	// view 2's proposal arrives first and must wait
	cs.feed(t, &ProposalMessage{Proposal: proposal2})
	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, cs.GetRoundState().ProposalBlock)

	cs.feed(t, &ProposalMessage{Proposal: proposal1})
	require.Eventually(t, func() bool {
		rs := cs.GetRoundState()
		return rs.ProposalBlock != nil && rs.ProposalBlock.View == 1
	}, 5*time.Second, 20*time.Millisecond)

	// the commit certificate moves the engine into view 2, which replays
	// the buffered proposal
	cs.feed(t, &QCMessage{QC: makeQC(t, genDoc, privVals, block1.Hash(), types.PhaseCommit, 1)})
	require.Eventually(t, func() bool {
		rs := cs.GetRoundState()
		return rs.CurView == 2 && rs.ProposalBlock != nil && rs.ProposalBlock.View == 2
	}, 5*time.Second, 20*time.Millisecond, "the held proposal should be adopted on view entry")
	assert.EqualValues(t, 1, cs.GetState().LastCommittedHeight)
}

// A buffered proposal occupies memory before its view arrives, so only the
// view leader's signed proposals within a small horizon are held. A flood of
// forged or far-future proposals must not grow the buffer.
func TestEngineFutureProposalBufferBounded(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc(testChainID, 4)

	cs, clean := newTestEngine(t, genDoc, privVals[3], &interpreter.Mock{}, nil)
	defer clean()

	require.NoError(t, cs.Start())
	defer cs.Stop()

	genesis := genDoc.GenesisBlock()

	// forged proposals across attacker-chosen views: right leader identity,
	// garbage signature
	for v := int64(2); v < 202; v++ {
		leader := genDoc.ValidatorSet().GetProposer(v)
		block := types.MakeBlock(genDoc.ChainID, 1, v, genesis.Hash(), genDoc.GenesisQC, types.Txs{})
		block.ProposerAddr = leader.Address
		block.ProposerIndex = leader.Index
		block.Signature = []byte("forged")
		cs.feed(t, &ProposalMessage{Proposal: types.NewProposal(block)})
	}

	// genuinely signed but beyond the buffering horizon: dropped as well
	cs.feed(t, &ProposalMessage{Proposal: makeProposal(t, genDoc, privVals, 100, genesis, genDoc.GenesisQC)})

	// the next view's leader proposal is the only one worth holding
	cs.feed(t, &ProposalMessage{Proposal: makeProposal(t, genDoc, privVals, 2, genesis, genDoc.GenesisQC)})

	require.Eventually(t, func() bool {
		cs.mtx.Lock()
		defer cs.mtx.Unlock()
		_, held := cs.futureProposals[2]
		return held
	}, 5*time.Second, 20*time.Millisecond)

	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	assert.Len(t, cs.futureProposals, 1, "only the held view-2 proposal should be buffered")
}

// When a view expires the engine broadcasts its new-view share and moves on.
// The next leader holds its proposal until the timeout certificate tells it
// the federation's freshest certified block.
func TestEngineViewChangeNewLeaderProposes(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc(testChainID, 4)
	vals := genDoc.ValidatorSet()

	pm := pacemaker.NewPacemaker(1, vals,
		pacemaker.WithTimeouts(time.Second, 10*time.Second))

	// validator 2 leads view 2; view 1's leader stays silent
	cs, clean := newTestEngine(t, genDoc, privVals[2], &interpreter.Mock{}, pm)
	defer clean()
	newViews := recordEvents(cs, EventNewView)
	proposals := recordEvents(cs, EventNewProposal)

	require.NoError(t, cs.Start())
	defer cs.Stop()

	require.Eventually(t, func() bool { return newViews.count() == 1 },
		5*time.Second, 20*time.Millisecond, "the expired view should produce a new-view share")
	nv := newViews.all()[0].(*types.NewView)
	assert.EqualValues(t, 1, nv.View)
	assert.EqualValues(t, 0, nv.HighQC.View, "nothing fresher than genesis was certified")
	assert.EqualValues(t, 2, cs.GetRoundState().CurView)
	assert.Zero(t, proposals.count(), "the new leader must wait for the timeout certificate")

	// two more shares complete the timeout certificate for view 1
	for i := 0; i < 2; i++ {
		cs.feed(t, &NewViewMessage{NewView: makeNewView(t, genDoc.ChainID, privVals[i], int32(i), 1, genDoc.GenesisQC)})
	}

	require.Eventually(t, func() bool { return proposals.count() == 1 },
		5*time.Second, 20*time.Millisecond, "the timeout certificate should trigger the proposal")
	proposal := proposals.all()[0].(*types.Proposal)
	assert.EqualValues(t, 2, proposal.Block.View)
	assert.EqualValues(t, 1, proposal.Block.Height)
	assert.Equal(t, genDoc.GenesisBlock().Hash().String(), proposal.Block.ParentHash.String(),
		"the proposal extends the certificate's block")
}

// A stale proposal replayed after its view is gone changes nothing.
func TestEngineRejectsStaleProposal(t *testing.T) {
	genDoc, privVals := types.RandGenesisDoc(testChainID, 4)

	cs, clean := newTestEngine(t, genDoc, privVals[3], &interpreter.Mock{}, nil)
	defer clean()

	require.NoError(t, cs.Start())
	defer cs.Stop()

	proposal1 := makeProposal(t, genDoc, privVals, 1, genDoc.GenesisBlock(), genDoc.GenesisQC)
	block1 := proposal1.Block

	cs.feed(t, &ProposalMessage{Proposal: proposal1})
	require.Eventually(t, func() bool {
		return cs.GetRoundState().ProposalBlock != nil
	}, 5*time.Second, 20*time.Millisecond)

	// commit view 1 and move to view 2
	cs.feed(t, &QCMessage{QC: makeQC(t, genDoc, privVals, block1.Hash(), types.PhaseCommit, 1)})
	require.Eventually(t, func() bool {
		return cs.GetRoundState().CurView == 2
	}, 5*time.Second, 20*time.Millisecond)

	cs.feed(t, &ProposalMessage{Proposal: proposal1})
	time.Sleep(100 * time.Millisecond)

	rs := cs.GetRoundState()
	assert.EqualValues(t, 2, rs.CurView)
	assert.Nil(t, rs.ProposalBlock)
	assert.EqualValues(t, 1, cs.GetState().LastCommittedHeight)
}
