package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmtime "github.com/tendermint/tendermint/types/time"

	"checkpointbft/checkpoint"
	cstype "checkpointbft/consensus/types"
	"checkpointbft/interpreter"
	"checkpointbft/libs/metric"
	"checkpointbft/pacemaker"
	"checkpointbft/state"
	"checkpointbft/store"
	"checkpointbft/types"
)

// Engine drives the federation's agreement: it follows the leader rotation,
// validates and applies proposals, votes through the three phases, assembles
// certificates from the vote shares and commits what the commit rule
// finalizes.
//
// All state transitions happen on the receive routine; peers, the pacemaker
// and the node's own signer feed it through channels. The mutex only guards
// the moments outside observers (RPC, tests) read the round state.
type Engine struct {
	service.BaseService

	config *config.ConsensusConfig

	blockExec  state.BlockExecutor
	blockStore store.Store
	interp     interpreter.Interpreter

	pacemaker  *pacemaker.Pacemaker
	aggregator *cstype.Aggregator

	// checkpointer cuts checkpoint certificates as the committed chain
	// grows. Optional: an engine without one only commits.
	checkpointer *checkpoint.Assembler

	mtx sync.Mutex
	cstype.RoundState
	state   state.State
	privVal types.PrivValidator

	// canVote is cleared when the Interpreter leaves this view's proposal
	// unjudged: the block may be applied, but no phase of this view gets
	// this node's share.
	canVote bool
	// proposalRequested dedups the leader's body request within one view.
	proposalRequested bool

	peerMsgQueue     chan msgInfo
	internalMsgQueue chan msgInfo
	eventSwitch      events.EventSwitch

	// test seams, overridable proposal logic
	decideProposal func(view int64)
	setProposal    func(proposal *types.Proposal) error

	// futureProposals holds proposals for views slightly ahead of ours,
	// replayed on view entry.
	futureProposals map[int64]*types.Proposal

	metric *engineMetric
}

type EngineOption func(*Engine)

// NewDefaultEngine wires an engine with the default proposal logic and the
// node's signer.
func NewDefaultEngine(
	config *config.ConsensusConfig,
	privVal types.PrivValidator,
	st state.State,
	blockExec state.BlockExecutor,
	blockStore store.Store,
	interp interpreter.Interpreter,
	pm *pacemaker.Pacemaker,
	options ...EngineOption,
) *Engine {
	options = append([]EngineOption{SetPrivValidator(privVal)}, options...)
	return NewEngine(config, st, blockExec, blockStore, interp, pm, options...)
}

func NewEngine(
	config *config.ConsensusConfig,
	st state.State,
	blockExec state.BlockExecutor,
	blockStore store.Store,
	interp interpreter.Interpreter,
	pm *pacemaker.Pacemaker,
	options ...EngineOption,
) *Engine {
	cs := &Engine{
		config:     config,
		blockExec:  blockExec,
		blockStore: blockStore,
		interp:     interp,
		pacemaker:  pm,
		aggregator: cstype.NewAggregator(st.ChainID, st.Validators),
		RoundState: cstype.RoundState{
			CurView:    pm.CurView(),
			Phase:      types.PhasePrepare,
			Validators: st.Validators,
			ValIndex:   -1,
		},
		state:            st,
		canVote:          true,
		peerMsgQueue:     make(chan msgInfo),
		internalMsgQueue: make(chan msgInfo),
		eventSwitch:      events.NewEventSwitch(),
		futureProposals:  make(map[int64]*types.Proposal),
		metric:           newEngineMetric(),
	}
	cs.BaseService = *service.NewBaseService(nil, "CONSENSUS", cs)

	cs.decideProposal = cs.defaultDecideProposal
	cs.setProposal = cs.defaultSetProposal

	if last, err := st.LastCommitted(); err == nil {
		cs.LastCommitted = last
	}

	for _, opt := range options {
		opt(cs)
	}
	return cs
}

// String disambiguates the promoted BaseService.String and RoundState.String
// so *Engine satisfies service.Service.
func (cs *Engine) String() string {
	return cs.BaseService.String()
}

// SetPrivValidator hands the engine the node's signing identity. Without one
// the engine follows the protocol as an observer and never votes.
func SetPrivValidator(privVal types.PrivValidator) EngineOption {
	return func(cs *Engine) {
		cs.privVal = privVal
		if cs.Validators != nil && privVal != nil {
			cs.ValIndex, _ = cs.Validators.GetByAddress(privVal.GetAddress())
		}
	}
}

// SetInitialHighQC seeds the freshest certificate for a node without a
// persisted engine state, normally the genesis certificate.
func SetInitialHighQC(qc *types.QuorumCert) EngineOption {
	return func(cs *Engine) {
		if cs.HighQC == nil {
			cs.HighQC = qc
		}
	}
}

// SetCheckpointer attaches the checkpoint assembler.
func SetCheckpointer(cp *checkpoint.Assembler) EngineOption {
	return func(cs *Engine) {
		cs.checkpointer = cp
	}
}

func (cs *Engine) SetLogger(logger log.Logger) {
	cs.Logger = logger
	if cs.pacemaker != nil {
		cs.pacemaker.SetLogger(logger.With("module", "pacemaker"))
	}
}

// RegisterMetric publishes the engine's counters under the "consensus" label.
func (cs *Engine) RegisterMetric(set *metric.MetricSet) error {
	return set.SetMetrics("consensus", cs.metric)
}

// RestoreEngineState adopts a persisted view and lock, typically right after
// construction on a restarting node.
func (cs *Engine) RestoreEngineState(es store.EngineState) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if es.View > cs.CurView {
		cs.CurView = es.View
	}
	if es.LockedQC != nil {
		cs.LockedQC = es.LockedQC
	}
	cs.RoundState.UpdateHighQC(es.HighQC)
}

func (cs *Engine) OnStart() error {
	if err := cs.eventSwitch.Start(); err != nil {
		return err
	}

	cs.mtx.Lock()
	if cs.CurView < 1 {
		cs.CurView = 1
	}
	startView := cs.CurView
	cs.mtx.Unlock()

	cs.pacemaker.AdvanceTo(startView, true)
	if err := cs.pacemaker.Start(); err != nil {
		return err
	}

	go cs.receiveRoutine()

	// the initial view is entered like any other
	cs.mtx.Lock()
	cs.enterView(startView, true)
	cs.mtx.Unlock()

	cs.Logger.Info("consensus engine started", "view", startView)
	return nil
}

func (cs *Engine) OnStop() {
	if err := cs.eventSwitch.Stop(); err != nil {
		cs.Logger.Error("failed to stop event switch", "err", err)
	}
	if err := cs.pacemaker.Stop(); err != nil {
		cs.Logger.Error("failed to stop pacemaker", "err", err)
	}
	cs.Logger.Info("consensus engine stopped")
}

// GetRoundState returns a snapshot of the engine's round state.
func (cs *Engine) GetRoundState() cstype.RoundState {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.RoundState
}

// GetState returns the committed-state snapshot.
func (cs *Engine) GetState() state.State {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.state.Copy()
}

//-----------------------------------------------------------------------------
// routines

// receiveRoutine serializes every input: peer messages, the node's own
// messages and pacemaker timeouts.
func (cs *Engine) receiveRoutine() {
	for {
		select {
		case <-cs.Quit():
			cs.Logger.Info("receive routine quit")
			return

		case mi := <-cs.peerMsgQueue:
			cs.handleMsg(mi)

		case mi := <-cs.internalMsgQueue:
			cs.handleMsg(mi)

		case ti := <-cs.pacemaker.Chan():
			cs.handleTimeout(ti)
		}
	}
}

func (cs *Engine) handleMsg(mi msgInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	switch msg := mi.Msg.(type) {
	case *ProposalMessage:
		if err := cs.setProposal(msg.Proposal); err != nil {
			switch errors.Cause(err) {
			case ErrStaleView, ErrFutureView, ErrDuplicateProposal:
				cs.Logger.Debug("proposal not usable", "err", err, "proposal", msg.Proposal)
			default:
				cs.metric.MarkRejectedMsg()
				cs.Logger.Error("rejected proposal", "err", err, "proposal", msg.Proposal)
			}
			return
		}
		cs.Logger.Info("accepted proposal", "view", cs.CurView, "block", cs.ProposalBlock)
		cs.eventSwitch.FireEvent(EventNewProposal, types.NewProposal(cs.ProposalBlock))

	case *VoteMessage:
		cs.tryAddVote(msg.Vote)

	case *NewViewMessage:
		cs.handleNewView(msg.NewView)

	case *QCMessage:
		// peers share formed certificates so stragglers can follow
		if err := msg.QC.Verify(cs.state.ChainID, cs.Validators); err != nil {
			cs.metric.MarkRejectedMsg()
			cs.Logger.Error("rejected certificate", "err", err, "qc", msg.QC, "peer", mi.PeerID)
			return
		}
		cs.applyQC(msg.QC)

	default:
		cs.Logger.Error("unknown message type", "msg", fmt.Sprintf("%T", msg))
	}
}

// handleTimeout reacts to a view expiring: broadcast the new-view share for
// the abandoned view and move on with a backed-off timer.
func (cs *Engine) handleTimeout(ti pacemaker.TimeoutInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if ti.View != cs.CurView {
		// a timer fired for a view already left
		return
	}
	cs.Logger.Info("view timed out", "view", ti.View, "after", ti.Duration)

	if cs.privVal != nil && cs.ValIndex >= 0 && cs.HighQC != nil {
		nv := &types.NewView{
			View:             cs.CurView,
			HighQC:           cs.HighQC.Copy(),
			Timestamp:        tmtime.Now(),
			ValidatorAddress: cs.privVal.GetAddress(),
			ValidatorIndex:   cs.ValIndex,
		}
		if err := cs.privVal.SignNewView(cs.state.ChainID, nv); err != nil {
			cs.Logger.Error("failed to sign new-view", "err", err)
		} else {
			cs.sendInternalMessage(msgInfo{&NewViewMessage{NewView: nv}, ""})
			cs.eventSwitch.FireEvent(EventNewView, nv)
		}
	}

	cs.metric.MarkViewChange()
	cs.pacemaker.AdvanceTo(ti.View+1, false)
	cs.enterView(ti.View+1, false)
}

//-----------------------------------------------------------------------------
// view transitions

// enterView resets the round for the given view. mayPropose is false when
// the view was entered through a timeout: its leader must wait for the
// timeout certificate to learn the federation's freshest certificate before
// building on it.
//
// Caller must hold cs.mtx.
func (cs *Engine) enterView(view int64, mayPropose bool) {
	cs.CurView = view
	cs.Phase = types.PhasePrepare
	cs.ProposalBlock = nil
	cs.Proposer = cs.Validators.GetProposer(view)
	cs.StartTime = tmtime.Now()
	cs.canVote = true
	cs.proposalRequested = false

	if view > 1 {
		// new-view tallies of view-1 are still being collected
		cs.aggregator.PruneBelow(view - 1)
	}
	cs.persistEngineState()

	cs.metric.MarkView(view, cs.Phase.String(), cs.StartTime)
	cs.metric.MarkProposer(cs.RoundState.IsProposer(), cs.Proposer.Address.String())
	cs.Logger.Info("entering view", "view", view, "proposer", cs.Proposer.Address, "leader", cs.RoundState.IsProposer())

	if mayPropose {
		cs.maybePropose()
	}
	cs.triggerFutureProposal(view)
}

// syncToView jumps ahead when a certificate proves the federation has moved
// on. Never moves backwards.
//
// Caller must hold cs.mtx.
func (cs *Engine) syncToView(view int64) {
	if view <= cs.CurView {
		return
	}
	cs.Logger.Info("syncing to higher view", "from", cs.CurView, "to", view)
	cs.metric.MarkViewChange()
	cs.pacemaker.AdvanceTo(view, true)
	cs.enterView(view, true)
}

// maybePropose kicks off the leader's proposal exactly once per view.
//
// Caller must hold cs.mtx.
func (cs *Engine) maybePropose() {
	if !cs.RoundState.IsProposer() || cs.privVal == nil {
		return
	}
	if cs.ProposalBlock != nil || cs.proposalRequested {
		return
	}
	cs.proposalRequested = true
	// the body request may block until the interpreter answers; keep the
	// receive routine free
	go cs.decideProposal(cs.CurView)
}

//-----------------------------------------------------------------------------
// proposals

// defaultDecideProposal asks the Interpreter for a body and, if it yields
// one, builds, signs and publishes the block extending the freshest
// certified block. No body means no proposal: the view times out quietly.
func (cs *Engine) defaultDecideProposal(view int64) {
	cs.mtx.Lock()
	if view != cs.CurView || cs.HighQC == nil {
		cs.mtx.Unlock()
		return
	}
	chainID := cs.state.ChainID
	highQC := cs.HighQC.Copy()
	parent, err := cs.state.BlockTree.QueryBlockByHash(highQC.BlockHash)
	valIndex := cs.ValIndex
	cs.mtx.Unlock()

	if err != nil {
		cs.Logger.Error("freshest certified block is not in the tree, cannot propose", "qc", highQC, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cs.proposalBudget())
	defer cancel()

	body, err := cs.interp.CreateBlockBody(ctx)
	if err != nil {
		cs.Logger.Error("interpreter failed to build a body", "err", err)
		return
	}
	if body == nil {
		cs.Logger.Info("interpreter has no body to propose, skipping this view", "view", view)
		return
	}

	block := types.MakeBlock(chainID, parent.Height+1, view, parent.Hash(), highQC, body.Txs)
	block.ProposerAddr = cs.privVal.GetAddress()
	block.ProposerIndex = valIndex

	proposal := types.NewProposal(block)
	if err := cs.privVal.SignProposal(chainID, proposal); err != nil {
		cs.Logger.Error("failed to sign proposal", "err", err)
		return
	}

	cs.Logger.Info("built proposal", "view", view, "block", block)
	cs.sendInternalMessage(msgInfo{&ProposalMessage{Proposal: proposal}, ""})
}

// defaultSetProposal accepts the leader's proposal for the current view:
// structural checks, chain position and leader signature, the Interpreter's
// verdict on the body, and the lock safety rule. On success the block is
// applied to the pending tree and the prepare vote is cast.
//
// Caller must hold cs.mtx.
func (cs *Engine) defaultSetProposal(proposal *types.Proposal) error {
	if err := proposal.ValidateBasic(); err != nil {
		return errors.Wrap(ErrInvalidProposal, err.Error())
	}
	block := proposal.Block

	switch {
	case block.View < cs.CurView:
		return ErrStaleView
	case block.View > cs.CurView:
		if err := cs.addFutureProposal(proposal); err != nil {
			return err
		}
		return ErrFutureView
	}

	if cs.ProposalBlock != nil {
		if !cs.ProposalBlock.Equal(block) {
			// two different blocks signed for one view is leader misbehavior
			cs.Logger.Error("leader equivocated on proposals", "view", cs.CurView,
				"have", cs.ProposalBlock.Hash(), "got", block.Hash())
			cs.metric.MarkEquivocation()
		}
		return ErrDuplicateProposal
	}

	if err := cs.blockExec.ValidateBlock(cs.state, block); err != nil {
		return errors.Wrap(ErrInvalidProposal, err.Error())
	}

	// lock safety rule: extend the locked block, or present a justify
	// fresher than the lock
	if cs.LockedQC != nil {
		extendsLock := cs.LockedQC.BlockHash.String() == block.ParentHash.String() ||
			cs.state.BlockTree.Extends(block.ParentHash, cs.LockedQC.BlockHash)
		if !extendsLock && block.Justify.View <= cs.LockedQC.View {
			return errors.Wrapf(ErrInvalidProposal,
				"proposal violates lock on %v", cs.LockedQC)
		}
	}

	// the Interpreter judges the body; no verdict means no vote this view
	ctx, cancel := context.WithTimeout(context.Background(), cs.proposalBudget())
	decision, err := cs.interp.ValidateBlockBody(ctx, &block.Data)
	cancel()
	if err != nil {
		return errors.Wrap(ErrInvalidProposal, err.Error())
	}
	switch decision {
	case interpreter.Reject:
		return errors.Wrap(ErrInvalidProposal, "interpreter rejected the body")
	case interpreter.NoAnswer:
		cs.Logger.Info("interpreter gave no verdict, not voting this view", "view", cs.CurView)
		cs.canVote = false
	}

	newState, err := cs.blockExec.ApplyBlock(cs.state, block)
	if err != nil {
		return errors.Wrap(ErrInvalidProposal, err.Error())
	}
	cs.state = newState
	cs.ProposalBlock = block
	if cs.RoundState.UpdateHighQC(block.Justify) {
		cs.persistEngineState()
	}

	cs.signVote(types.PhasePrepare)

	// votes that arrived ahead of the block can now count
	for _, vote := range cs.aggregator.DrainPending(block.Hash()) {
		cs.tryAddVote(vote)
	}
	return nil
}

// maxFutureViews bounds how far ahead of the current view a proposal may be
// buffered. Together with the purge on view entry this caps the buffer at
// maxFutureViews entries; anything further out is dropped.
const maxFutureViews = 8

func (cs *Engine) addFutureProposal(proposal *types.Proposal) error {
	view := proposal.Block.View
	if view > cs.CurView+maxFutureViews {
		return ErrFutureView
	}
	if _, exist := cs.futureProposals[view]; exist {
		return ErrDuplicateProposal
	}

	// only the view's leader gets the slot: a buffered proposal occupies
	// memory before the full chain-position checks run, so the leader
	// signature is verified up front
	leader := cs.state.Validators.GetProposer(view)
	if !proposal.Block.ProposerAddr.Equal(leader.Address) {
		return errors.Wrapf(ErrInvalidProposal,
			"proposer %X is not the leader of view %d", proposal.Block.ProposerAddr, view)
	}
	signBytes := types.ProposalSignBytes(cs.state.ChainID, proposal)
	if !leader.PubKey.VerifySignature(signBytes, proposal.Block.Signature) {
		return errors.Wrap(ErrInvalidProposal, "bad proposer signature")
	}

	cs.futureProposals[view] = proposal
	return nil
}

// triggerFutureProposal replays a proposal that arrived before its view did
// and drops the ones for views already behind us.
//
// Caller must hold cs.mtx.
func (cs *Engine) triggerFutureProposal(view int64) {
	for v := range cs.futureProposals {
		if v < view {
			delete(cs.futureProposals, v)
		}
	}
	proposal, exist := cs.futureProposals[view]
	if !exist {
		return
	}
	delete(cs.futureProposals, view)
	cs.sendInternalMessage(msgInfo{&ProposalMessage{Proposal: proposal}, ""})
}

//-----------------------------------------------------------------------------
// votes and certificates

// signVote casts this node's share for the current proposal in the given
// phase. The engine state is persisted first: a vote must never outlive a
// crash that forgets the view it was cast in.
//
// Caller must hold cs.mtx.
func (cs *Engine) signVote(phase types.Phase) {
	if cs.privVal == nil || cs.ValIndex < 0 || !cs.canVote || cs.ProposalBlock == nil {
		return
	}
	vote := &types.Vote{
		BlockHash:        cs.ProposalBlock.Hash(),
		Phase:            phase,
		View:             cs.CurView,
		Timestamp:        tmtime.Now(),
		ValidatorAddress: cs.privVal.GetAddress(),
		ValidatorIndex:   cs.ValIndex,
	}
	if err := cs.privVal.SignVote(cs.state.ChainID, vote); err != nil {
		cs.Logger.Error("failed to sign vote", "err", err, "phase", phase)
		return
	}
	cs.Logger.Debug("casting vote", "vote", vote)
	cs.sendInternalMessage(msgInfo{&VoteMessage{Vote: vote}, ""})
	cs.eventSwitch.FireEvent(EventNewVote, vote)
}

// tryAddVote feeds a vote to the aggregator. Votes for unknown blocks are
// buffered; a full certificate is applied and shared.
//
// Caller must hold cs.mtx.
func (cs *Engine) tryAddVote(vote *types.Vote) {
	if vote == nil || vote.View < cs.CurView {
		return
	}
	if !cs.state.BlockTree.HasBlock(vote.BlockHash) {
		if err := cs.aggregator.BufferVote(vote); err != nil {
			cs.Logger.Debug("dropped vote for unknown block", "vote", vote, "err", err)
		}
		return
	}

	qc, err := cs.aggregator.AddVote(vote)
	if err != nil {
		var equiv ErrEquivocation
		if errors.As(err, &equiv) {
			cs.metric.MarkEquivocation()
			cs.Logger.Error("vote equivocation detected",
				"validator", equiv.First.ValidatorIndex, "first", equiv.First, "second", equiv.Second)
		} else {
			cs.metric.MarkRejectedMsg()
			cs.Logger.Error("rejected vote", "err", err, "vote", vote)
		}
		return
	}
	if qc == nil {
		return
	}

	cs.Logger.Info("certificate formed", "qc", qc)
	cs.eventSwitch.FireEvent(EventNewQC, qc)
	cs.applyQC(qc)
}

// handleNewView tallies a peer abandoning a view. A completed timeout
// certificate moves this node past the abandoned view and, if this node
// leads the next one, triggers its proposal on the certificate's HighQC.
//
// Caller must hold cs.mtx.
func (cs *Engine) handleNewView(nv *types.NewView) {
	if nv == nil || nv.View < cs.CurView-1 {
		return
	}
	tc, err := cs.aggregator.AddNewView(nv)
	if err != nil {
		cs.metric.MarkRejectedMsg()
		cs.Logger.Error("rejected new-view", "err", err, "newview", nv)
		return
	}
	if cs.RoundState.UpdateHighQC(nv.HighQC) {
		cs.persistEngineState()
	}
	if tc == nil {
		return
	}

	cs.Logger.Info("timeout certificate formed", "tc", tc)
	if cs.RoundState.UpdateHighQC(tc.HighQC) {
		cs.persistEngineState()
	}
	if tc.View >= cs.CurView {
		// others abandoned a view we are still in
		cs.metric.MarkViewChange()
		cs.pacemaker.AdvanceTo(tc.View+1, false)
		cs.enterView(tc.View+1, false)
	}
	if cs.CurView == tc.View+1 {
		cs.maybePropose()
	}
}

// applyQC folds a certificate into the round: it refreshes HighQC, advances
// the phase ladder for the current proposal, commits on a commit
// certificate, and syncs the view when the certificate proves the
// federation is ahead.
//
// Caller must hold cs.mtx.
func (cs *Engine) applyQC(qc *types.QuorumCert) {
	if qc == nil {
		return
	}
	if cs.RoundState.UpdateHighQC(qc) {
		cs.persistEngineState()
	}

	switch qc.Phase {
	case types.PhasePrepare:
		if cs.ladderReady(qc, types.PhasePrepare) {
			cs.Phase = types.PhasePreCommit
			cs.metric.MarkPhase(cs.Phase.String())
			cs.signVote(types.PhasePreCommit)
		}
		cs.syncToView(qc.View)

	case types.PhasePreCommit:
		if cs.ladderReady(qc, types.PhasePreCommit) {
			cs.LockedQC = qc
			cs.Phase = types.PhaseCommit
			cs.metric.MarkPhase(cs.Phase.String())
			cs.persistEngineState()
			cs.signVote(types.PhaseCommit)
		}
		cs.syncToView(qc.View)

	case types.PhaseCommit:
		cs.tryCommit(qc)
		cs.syncToView(qc.View + 1)
	}
}

// ladderReady reports whether qc advances this view's phase ladder: it must
// certify the accepted proposal in the phase the round currently stands in.
func (cs *Engine) ladderReady(qc *types.QuorumCert, phase types.Phase) bool {
	return qc.View == cs.CurView &&
		cs.Phase == phase &&
		cs.ProposalBlock != nil &&
		qc.ForBlock(cs.ProposalBlock)
}

// tryCommit finalizes the chain from the last committed block (exclusive) up
// to the certified block (inclusive). Idempotent: replayed certificates for
// already-committed blocks do nothing.
//
// Caller must hold cs.mtx.
func (cs *Engine) tryCommit(qc *types.QuorumCert) {
	block, err := cs.state.BlockTree.QueryBlockByHash(qc.BlockHash)
	if err != nil {
		cs.Logger.Debug("commit certificate for an unknown block", "qc", qc)
		return
	}
	if block.Height <= cs.state.LastCommittedHeight {
		return
	}
	if qc.View == cs.CurView {
		cs.Phase = types.PhaseDecide
		cs.metric.MarkPhase(cs.Phase.String())
	}

	chain, err := cs.state.BlockTree.ChainToAncestor(qc.BlockHash, cs.state.LastCommittedHash)
	if err != nil {
		cs.Logger.Error("certified block does not descend from the committed chain", "qc", qc, "err", err)
		return
	}
	newState, err := cs.blockExec.CommitBlocks(cs.state, chain)
	if err != nil {
		cs.Logger.Error("failed to commit blocks", "err", err, "qc", qc)
		return
	}
	cs.state = newState
	cs.LastCommitted = chain[len(chain)-1]
	cs.metric.MarkCommitted(cs.state.LastCommittedHeight, len(chain))
	cs.Logger.Info("committed", "height", cs.state.LastCommittedHeight, "blocks", len(chain), "view", cs.CurView)

	if cs.checkpointer != nil {
		before := cs.checkpointer.LastEndHeight()
		cs.checkpointer.OnCommit(chain, qc)
		if cs.checkpointer.LastEndHeight() > before {
			cs.metric.MarkCheckpoint()
		}
	}
}

//-----------------------------------------------------------------------------
// plumbing

// proposalBudget bounds how long the Interpreter may think about a body.
func (cs *Engine) proposalBudget() time.Duration {
	if cs.config != nil && cs.config.TimeoutPropose > 0 {
		return cs.config.TimeoutPropose
	}
	return 3 * time.Second
}

// persistEngineState writes the view, lock and freshest certificate to disk.
// It must land before any vote for that state leaves the node, otherwise a
// crash-restart could double-vote.
//
// Caller must hold cs.mtx.
func (cs *Engine) persistEngineState() {
	es := store.EngineState{
		View:     cs.CurView,
		LockedQC: cs.LockedQC,
		HighQC:   cs.HighQC,
	}
	if err := cs.blockStore.SaveEngineState(es); err != nil {
		cs.Logger.Error("failed to persist engine state; muting votes", "err", err)
		cs.canVote = false
	}
}

// sendInternalMessage feeds the engine's own output back through the same
// funnel peers use. Non-blocking: a full queue falls back to a goroutine.
func (cs *Engine) sendInternalMessage(mi msgInfo) {
	select {
	case cs.internalMsgQueue <- mi:
	default:
		cs.Logger.Debug("internal msg queue is full; using a go-routine")
		go func() { cs.internalMsgQueue <- mi }()
	}
}
