package checkpoint

import (
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/log"

	"checkpointbft/interpreter"
	"checkpointbft/store"
	"checkpointbft/types"
)

// Assembler watches the committed chain grow and cuts checkpoint
// certificates at a fixed block-count interval. A range is cut as soon as
// the committed height reaches the next interval boundary; its end is the
// tip the commit certificate actually names, so the certificate stays
// self-contained (the tip may overshoot the boundary when one commit step
// finalizes several blocks).
//
// A certificate is persisted and handed to the Interpreter exactly once per
// range, fire-and-forget: delivery never blocks or retries, the store copy
// is the source of truth for anyone who missed it.
type Assembler struct {
	logger log.Logger

	chainID  string
	interval int64

	store  store.Store
	interp interpreter.Interpreter

	// lastEnd is the end height of the newest checkpoint already cut.
	lastEnd int64

	// window holds committed blocks past lastEnd, in height order.
	window []*types.Block
}

func NewAssembler(chainID string, interval int64, st store.Store, interp interpreter.Interpreter, lastEnd int64) *Assembler {
	if interval <= 0 {
		interval = types.DefaultCheckpointInterval
	}
	return &Assembler{
		logger:   log.NewNopLogger(),
		chainID:  chainID,
		interval: interval,
		store:    st,
		interp:   interp,
		lastEnd:  lastEnd,
	}
}

func (as *Assembler) SetLogger(logger log.Logger) {
	as.logger = logger
}

// LastEndHeight returns the end height of the newest checkpoint cut so far.
func (as *Assembler) LastEndHeight() int64 {
	return as.lastEnd
}

// OnCommit feeds the blocks one commit step finalized, in ascending height
// order, together with the certificate committing the range's tip. When the
// committed height reaches the next interval boundary, the accumulated
// range is cut.
//
// Called from the engine's receive routine only.
func (as *Assembler) OnCommit(committed []*types.Block, commitQC *types.QuorumCert) {
	for _, block := range committed {
		if block.Height <= as.lastEnd {
			// replayed on restart; already checkpointed
			continue
		}
		as.window = append(as.window, block)
	}
	if len(as.window) == 0 {
		return
	}

	tip := as.window[len(as.window)-1]
	if tip.Height < as.nextBoundary() {
		return
	}
	if !commitQC.ForBlock(tip) {
		// a replayed commit step whose qc names an older tip; wait for
		// the next commit to certify the full window
		return
	}
	as.cut(commitQC)
}

func (as *Assembler) nextBoundary() int64 {
	return (as.lastEnd/as.interval)*as.interval + as.interval
}

// cut assembles, persists and delivers the certificate for the whole window.
func (as *Assembler) cut(commitQC *types.QuorumCert) {
	hashes := make([]tmbytes.HexBytes, len(as.window))
	for i, b := range as.window {
		hashes[i] = b.Hash()
	}
	cert := &types.CheckpointCert{
		ChainID:     as.chainID,
		StartHeight: as.window[0].Height,
		EndHeight:   as.window[len(as.window)-1].Height,
		BlockHashes: hashes,
		CommitQC:    commitQC.Copy(),
	}
	as.lastEnd = cert.EndHeight
	as.window = as.window[:0]

	if err := as.store.SaveCheckpoint(cert); err != nil {
		as.logger.Error("failed to persist checkpoint", "cert", cert, "err", err)
	}
	as.logger.Info("checkpoint cut", "start", cert.StartHeight, "end", cert.EndHeight)
	as.interp.NewCheckpointCertificate(cert)
}
