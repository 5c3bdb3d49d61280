package types

import (
	"fmt"
	"time"

	"checkpointbft/types"
)

// RoundState is the engine's working state for the current view. It is owned
// by the engine's receive routine: all mutation happens on that goroutine, so
// the fields carry no lock of their own.
type RoundState struct {
	// CurView is the view the engine currently participates in. It only
	// moves forward.
	CurView int64
	// Phase tracks how far the three-chain ladder has advanced inside
	// CurView.
	Phase types.Phase
	// StartTime is when CurView was entered.
	StartTime time.Time

	// Proposer is the leader of CurView, fixed by the rotation over the
	// federation ordering.
	Proposer   *types.Validator
	Validators *types.ValidatorSet
	// ValIndex is this node's own index in the federation, -1 for a
	// non-validator observer.
	ValIndex int32

	// ProposalBlock is the proposal accepted for CurView, nil until the
	// leader's block passed validation.
	ProposalBlock *types.Block

	// LockedQC is the precommit lock: once set, this node only votes for
	// blocks extending LockedQC's block, unless the proposal justifies
	// itself with a higher-view certificate.
	LockedQC *types.QuorumCert
	// HighQC is the highest-view certificate this node has observed. New
	// proposals are built on top of it.
	HighQC *types.QuorumCert

	// LastCommitted is the newest block the commit rule has finalized.
	LastCommitted *types.Block
}

// IsProposer reports whether this node leads the current view.
func (rs *RoundState) IsProposer() bool {
	if rs.Proposer == nil || rs.ValIndex < 0 {
		return false
	}
	return rs.Proposer.Index == rs.ValIndex
}

// UpdateHighQC replaces HighQC when qc certifies a higher view. It returns
// true if the freshest certificate changed.
func (rs *RoundState) UpdateHighQC(qc *types.QuorumCert) bool {
	if qc == nil {
		return false
	}
	if rs.HighQC != nil && qc.View <= rs.HighQC.View {
		return false
	}
	rs.HighQC = qc
	return true
}

func (rs *RoundState) String() string {
	return fmt.Sprintf("RoundState{view=%d phase=%v proposer=%v highQC=%v lockedQC=%v}",
		rs.CurView, rs.Phase, rs.Proposer, rs.HighQC, rs.LockedQC)
}
