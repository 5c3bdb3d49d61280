package types

// Phase is one step of the three-chain commit rule inside a view.
type Phase uint8

const (
	PhasePrepare   = Phase(0x01)
	PhasePreCommit = Phase(0x02)
	PhaseCommit    = Phase(0x03)
	PhaseDecide    = Phase(0x04)
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "Prepare"
	case PhasePreCommit:
		return "PreCommit"
	case PhaseCommit:
		return "Commit"
	case PhaseDecide:
		return "Decide"
	default:
		return "UnknownPhase"
	}
}

// IsVotePhase reports whether votes are collected for this phase.
// Decide is terminal, no vote is cast for it.
func (p Phase) IsVotePhase() bool {
	return p == PhasePrepare || p == PhasePreCommit || p == PhaseCommit
}

// Next returns the phase a quorum certificate for p advances the view into.
func (p Phase) Next() Phase {
	switch p {
	case PhasePrepare:
		return PhasePreCommit
	case PhasePreCommit:
		return PhaseCommit
	case PhaseCommit:
		return PhaseDecide
	default:
		return p
	}
}
