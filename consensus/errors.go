package consensus

import (
	"github.com/pkg/errors"

	cstype "checkpointbft/consensus/types"
)

// Vote-level failures surface from the aggregator; the engine adds the
// proposal-level taxonomy. Everything here is a per-message verdict: a bad
// message is dropped, the engine's state never degrades because of one.
var (
	// ErrStaleView marks a message for a view this node already left.
	ErrStaleView = errors.New("message from a stale view")

	// ErrFutureView marks a message for a view this node has not reached;
	// proposals for near-future views are buffered instead.
	ErrFutureView = errors.New("message from a future view")

	// ErrInvalidProposal marks a proposal failing signature, leader or
	// chain-position checks.
	ErrInvalidProposal = errors.New("invalid proposal")

	// ErrDuplicateProposal marks a second proposal for a view that already
	// has one accepted.
	ErrDuplicateProposal = errors.New("view already has a proposal")

	// ErrUnknownBlock re-exports the aggregator's verdict for votes naming
	// blocks this node has never seen.
	ErrUnknownBlock = cstype.ErrUnknownBlock
)

// ErrEquivocation re-exports the aggregator's double-vote evidence.
type ErrEquivocation = cstype.ErrEquivocation

// ErrInvalidVote re-exports the aggregator's share-validation failure.
type ErrInvalidVote = cstype.ErrInvalidVote
