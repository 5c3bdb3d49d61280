package types

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/sync"

	"checkpointbft/crypto/threshold"
	"checkpointbft/types"
)

// maxPendingVotes bounds how many votes for not-yet-seen blocks the
// aggregator keeps around. Past the bound new ones are dropped with
// ErrUnknownBlock; a correct replica will see the block and the re-broadcast
// vote soon enough.
const maxPendingVotes = 1024

var (
	// ErrUnknownBlock is returned for a vote naming a block this node has
	// not buffered and cannot buffer.
	ErrUnknownBlock = errors.New("vote names an unknown block")
)

// ErrInvalidVote wraps a vote that failed structural or signature-share
// validation.
type ErrInvalidVote struct {
	Reason error
}

func (e ErrInvalidVote) Error() string {
	return fmt.Sprintf("invalid vote: %v", e.Reason)
}

func (e ErrInvalidVote) Unwrap() error { return e.Reason }

// ErrEquivocation reports a voter signing two different blocks for the same
// phase and view. The first vote remains authoritative; the second is
// evidence, not a replacement.
type ErrEquivocation struct {
	First  *types.Vote
	Second *types.Vote
}

func (e ErrEquivocation) Error() string {
	return fmt.Sprintf("equivocation by validator %d in %v/%v: %X vs %X",
		e.First.ValidatorIndex, e.First.View, e.First.Phase, e.First.BlockHash, e.Second.BlockHash)
}

// Aggregator tallies signature shares into quorum certificates. Votes arrive
// from the network concurrently with the engine's own, so the tally is locked
// internally; everything else about it is driven by the engine.
//
// For each (phase, view) the first valid vote per voter is authoritative. A
// conflicting second vote is reported as equivocation and otherwise ignored.
// The certificate for a (block, phase, view) is recovered exactly once, at
// the quorum-th distinct valid share; later shares are recorded for audit but
// never re-emit.
type Aggregator struct {
	mtx sync.Mutex

	chainID string
	vals    *types.ValidatorSet

	rounds   map[string]*roundTally // keyed by phase/view
	newViews map[int64]*newViewTally

	// pending holds votes for blocks the engine has not accepted yet,
	// keyed by block hash, bounded by maxPendingVotes in total.
	pending     map[string][]*types.Vote
	pendingSize int
}

func NewAggregator(chainID string, vals *types.ValidatorSet) *Aggregator {
	return &Aggregator{
		chainID:  chainID,
		vals:     vals,
		rounds:   make(map[string]*roundTally),
		newViews: make(map[int64]*newViewTally),
		pending:  make(map[string][]*types.Vote),
	}
}

// roundTally is the per-(phase, view) bookkeeping: who voted, and the share
// piles per block hash.
type roundTally struct {
	view   int64
	voted  map[int32]*types.Vote
	blocks map[string]*blockTally
}

type blockTally struct {
	signers []int32
	shares  [][]byte
	emitted bool
}

type newViewTally struct {
	seen   map[int32]*types.NewView
	shares [][]byte
	// highQC is the freshest certificate among the collected messages.
	highQC  *types.QuorumCert
	emitted bool
}

// AddVote verifies the vote's signature share and counts it. It returns a
// non-nil certificate exactly once per (block, phase, view): when this vote
// is the quorum-th distinct valid one. Duplicates return (nil, nil).
func (agg *Aggregator) AddVote(vote *types.Vote) (*types.QuorumCert, error) {
	if err := agg.checkVote(vote); err != nil {
		return nil, err
	}

	agg.mtx.Lock()
	defer agg.mtx.Unlock()

	key := roundKey(vote.Phase, vote.View)
	round, ok := agg.rounds[key]
	if !ok {
		round = &roundTally{
			view:   vote.View,
			voted:  make(map[int32]*types.Vote),
			blocks: make(map[string]*blockTally),
		}
		agg.rounds[key] = round
	}

	if prev, voted := round.voted[vote.ValidatorIndex]; voted {
		if bytes.Equal(prev.BlockHash, vote.BlockHash) {
			return nil, nil
		}
		return nil, ErrEquivocation{First: prev, Second: vote}
	}
	round.voted[vote.ValidatorIndex] = vote

	tally, ok := round.blocks[string(vote.BlockHash)]
	if !ok {
		tally = &blockTally{}
		round.blocks[string(vote.BlockHash)] = tally
	}
	tally.signers = append(tally.signers, vote.ValidatorIndex)
	tally.shares = append(tally.shares, vote.Signature)

	if tally.emitted || len(tally.signers) < agg.vals.Quorum() {
		return nil, nil
	}

	msg := types.QuorumSignBytes(agg.chainID, vote.BlockHash, vote.Phase, vote.View)
	aggSig, err := agg.vals.FederationPoly.Recover(msg, tally.shares, agg.vals.Size())
	if err != nil {
		return nil, errors.Wrap(err, "recover quorum signature")
	}
	tally.emitted = true

	return &types.QuorumCert{
		BlockHash:    vote.BlockHash,
		Phase:        vote.Phase,
		View:         vote.View,
		Signers:      append([]int32(nil), tally.signers...),
		AggSignature: aggSig,
	}, nil
}

// checkVote runs the stateless checks: structure, known voter, and the
// threshold share verifying at the voter's index.
func (agg *Aggregator) checkVote(vote *types.Vote) error {
	if err := vote.ValidateBasic(); err != nil {
		return ErrInvalidVote{Reason: err}
	}
	addr, val := agg.vals.GetByIndex(vote.ValidatorIndex)
	if val == nil {
		return ErrInvalidVote{Reason: fmt.Errorf("validator index %d outside federation", vote.ValidatorIndex)}
	}
	if !bytes.Equal(addr, vote.ValidatorAddress) {
		return ErrInvalidVote{Reason: fmt.Errorf("address %v does not match validator %d", vote.ValidatorAddress, vote.ValidatorIndex)}
	}
	idx, err := threshold.ShareIndex(vote.Signature)
	if err != nil {
		return ErrInvalidVote{Reason: err}
	}
	if idx != int(vote.ValidatorIndex) {
		return ErrInvalidVote{Reason: fmt.Errorf("signature share index %d does not match voter %d", idx, vote.ValidatorIndex)}
	}
	msg := types.VoteSignBytes(agg.chainID, vote)
	if err := agg.vals.FederationPoly.VerifyShare(msg, vote.Signature); err != nil {
		return ErrInvalidVote{Reason: err}
	}
	return nil
}

// AddNewView verifies and counts a new-view message for the view it abandons.
// At the quorum-th distinct message it recovers the timeout certificate,
// carrying the freshest HighQC among the collected messages. Exactly-once,
// like AddVote.
func (agg *Aggregator) AddNewView(nv *types.NewView) (*types.TimeoutCert, error) {
	if err := nv.ValidateBasic(); err != nil {
		return nil, ErrInvalidVote{Reason: err}
	}
	addr, val := agg.vals.GetByIndex(nv.ValidatorIndex)
	if val == nil {
		return nil, ErrInvalidVote{Reason: fmt.Errorf("validator index %d outside federation", nv.ValidatorIndex)}
	}
	if !bytes.Equal(addr, nv.ValidatorAddress) {
		return nil, ErrInvalidVote{Reason: fmt.Errorf("address %v does not match validator %d", nv.ValidatorAddress, nv.ValidatorIndex)}
	}
	if err := nv.HighQC.Verify(agg.chainID, agg.vals); err != nil {
		return nil, ErrInvalidVote{Reason: errors.Wrap(err, "new-view high qc")}
	}
	msg := types.NewViewSignBytes(agg.chainID, nv.View)
	if err := agg.vals.FederationPoly.VerifyShare(msg, nv.Signature); err != nil {
		return nil, ErrInvalidVote{Reason: err}
	}

	agg.mtx.Lock()
	defer agg.mtx.Unlock()

	tally, ok := agg.newViews[nv.View]
	if !ok {
		tally = &newViewTally{seen: make(map[int32]*types.NewView)}
		agg.newViews[nv.View] = tally
	}
	if _, seen := tally.seen[nv.ValidatorIndex]; seen {
		return nil, nil
	}
	tally.seen[nv.ValidatorIndex] = nv
	tally.shares = append(tally.shares, nv.Signature)
	if tally.highQC == nil || nv.HighQC.View > tally.highQC.View {
		tally.highQC = nv.HighQC
	}

	if tally.emitted || len(tally.seen) < agg.vals.Quorum() {
		return nil, nil
	}

	aggSig, err := agg.vals.FederationPoly.Recover(msg, tally.shares, agg.vals.Size())
	if err != nil {
		return nil, errors.Wrap(err, "recover timeout signature")
	}
	tally.emitted = true

	signers := make([]int32, 0, len(tally.seen))
	for idx := range tally.seen {
		signers = append(signers, idx)
	}
	return &types.TimeoutCert{
		View:         nv.View,
		HighQC:       tally.highQC.Copy(),
		Signers:      signers,
		AggSignature: aggSig,
	}, nil
}

// BufferVote stashes a vote whose block the engine has not accepted yet, so
// it can be replayed once the proposal arrives. The buffer is bounded;
// overflow drops the vote with ErrUnknownBlock.
func (agg *Aggregator) BufferVote(vote *types.Vote) error {
	agg.mtx.Lock()
	defer agg.mtx.Unlock()

	if agg.pendingSize >= maxPendingVotes {
		return ErrUnknownBlock
	}
	key := string(vote.BlockHash)
	for _, v := range agg.pending[key] {
		if v.Equal(vote) {
			return nil
		}
	}
	agg.pending[key] = append(agg.pending[key], vote)
	agg.pendingSize++
	return nil
}

// DrainPending removes and returns the buffered votes for blockHash. The
// caller replays them through AddVote.
func (agg *Aggregator) DrainPending(blockHash []byte) []*types.Vote {
	agg.mtx.Lock()
	defer agg.mtx.Unlock()

	key := string(blockHash)
	votes := agg.pending[key]
	if len(votes) == 0 {
		return nil
	}
	delete(agg.pending, key)
	agg.pendingSize -= len(votes)
	return votes
}

// PruneBelow drops tallies and buffered votes for views older than view.
// Equivocation within a pruned view is no longer detectable; by then the
// view-synchronized federation has moved on.
func (agg *Aggregator) PruneBelow(view int64) {
	agg.mtx.Lock()
	defer agg.mtx.Unlock()

	for key, round := range agg.rounds {
		if round.view < view {
			delete(agg.rounds, key)
		}
	}
	for v := range agg.newViews {
		if v < view {
			delete(agg.newViews, v)
		}
	}
	for key, votes := range agg.pending {
		keep := votes[:0]
		for _, v := range votes {
			if v.View >= view {
				keep = append(keep, v)
			}
		}
		agg.pendingSize -= len(votes) - len(keep)
		if len(keep) == 0 {
			delete(agg.pending, key)
		} else {
			agg.pending[key] = keep
		}
	}
}

func roundKey(phase types.Phase, view int64) string {
	return fmt.Sprintf("%d/%d", view, phase)
}
