package interpreter

import (
	"context"

	"checkpointbft/types"
)

// Decision is the Interpreter's verdict on a proposed block body. NoAnswer is
// a first-class outcome, not an error: the Interpreter cannot judge the body
// right now, so the replica must not vote in this view. The consensus core
// never converts NoAnswer into Accept or Reject on its own.
type Decision int

const (
	NoAnswer = Decision(0)
	Accept   = Decision(1)
	Reject   = Decision(2)
)

func (d Decision) String() string {
	switch d {
	case NoAnswer:
		return "NoAnswer"
	case Accept:
		return "Accept"
	case Reject:
		return "Reject"
	default:
		return "UnknownDecision"
	}
}

// Interpreter is the application behind the consensus core. The core treats
// block bodies as opaque: the Interpreter produces them, judges them, and
// receives the checkpoint certificates the federation settles on.
//
// Calls carry the engine's view deadline in ctx; an Interpreter that cannot
// answer in time returns nil data (CreateBlockBody) or NoAnswer
// (ValidateBlockBody) rather than blocking the view.
type Interpreter interface {
	// CreateBlockBody asks for a body to propose. Returning (nil, nil) means
	// "no answer": the leader must not propose this view.
	CreateBlockBody(ctx context.Context) (*types.Data, error)

	// ValidateBlockBody judges a proposed body.
	ValidateBlockBody(ctx context.Context, data *types.Data) (Decision, error)

	// NewCheckpointCertificate delivers a settled checkpoint, fire-and-forget:
	// the consensus core does not wait for, or act on, any response.
	NewCheckpointCertificate(cert *types.CheckpointCert)
}
