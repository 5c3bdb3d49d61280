package state

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmtime "github.com/tendermint/tendermint/types/time"

	"checkpointbft/mempool"
	"checkpointbft/store"
	"checkpointbft/types"
)

// ErrInvalidBlock wraps the reason a block failed validation.
type ErrInvalidBlock struct {
	Reason error
}

func (e ErrInvalidBlock) Error() string {
	return fmt.Sprintf("invalid block: %v", e.Reason)
}

func (e ErrInvalidBlock) Unwrap() error { return e.Reason }

// BlockExecutor applies the engine's decisions to the state: admitting a
// proposed block into the tree, and making a certified chain of blocks
// durable. It owns the mempool bookkeeping that goes with both.
type BlockExecutor interface {
	// ValidateBlock checks a proposed block against the current state:
	// well-formed, right chain, known parent, consecutive height, valid
	// justify certificate, and a proposer signature by the view's leader.
	ValidateBlock(state State, block *types.Block) error

	// ApplyBlock admits a validated block into the tree as pending and locks
	// its transactions in the mempool.
	ApplyBlock(state State, block *types.Block) (State, error)

	// CommitBlocks makes the given blocks (ascending height, extending the
	// committed prefix) durable and releases their txs from the pool.
	CommitBlocks(state State, blocks []*types.Block) (State, error)

	SetLogger(logger log.Logger)
}

func NewBlockExecutor(store store.Store, mempool mempool.Mempool) BlockExecutor {
	return &blockExecutor{
		store:   store,
		mempool: mempool,
		logger:  log.NewNopLogger(),
	}
}

type blockExecutor struct {
	store   store.Store
	mempool mempool.Mempool

	logger log.Logger
}

// SetLogger implements BlockExecutor
func (exec *blockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

// ValidateBlock implements BlockExecutor
func (exec *blockExecutor) ValidateBlock(state State, block *types.Block) error {
	if err := block.ValidateBasic(); err != nil {
		return ErrInvalidBlock{err}
	}
	if block.ChainID != state.ChainID {
		return ErrInvalidBlock{fmt.Errorf("block for chain %q, want %q", block.ChainID, state.ChainID)}
	}

	parent, err := state.BlockTree.QueryBlockByHash(block.ParentHash)
	if err != nil {
		return ErrInvalidBlock{fmt.Errorf("unknown parent %X", block.ParentHash)}
	}
	if block.Height != parent.Height+1 {
		return ErrInvalidBlock{fmt.Errorf("height %d does not follow parent height %d", block.Height, parent.Height)}
	}
	if block.View <= parent.View {
		return ErrInvalidBlock{fmt.Errorf("view %d does not advance parent view %d", block.View, parent.View)}
	}

	// the justify certificate must certify the parent
	if !block.Justify.ForBlock(parent) {
		return ErrInvalidBlock{errors.New("justify certificate does not certify the parent")}
	}
	if err := block.Justify.Verify(state.ChainID, state.Validators); err != nil {
		return ErrInvalidBlock{errors.Wrap(err, "justify certificate")}
	}

	// only the view's leader may propose, and it must have signed
	proposer := state.Validators.GetProposer(block.View)
	if !block.ProposerAddr.Equal(proposer.Address) {
		return ErrInvalidBlock{fmt.Errorf("proposer %X is not the leader of view %d", block.ProposerAddr, block.View)}
	}
	signBytes := types.ProposalSignBytes(state.ChainID, types.NewProposal(block))
	if !proposer.PubKey.VerifySignature(signBytes, block.Signature) {
		return ErrInvalidBlock{errors.New("bad proposer signature")}
	}
	return nil
}

// ApplyBlock implements BlockExecutor
func (exec *blockExecutor) ApplyBlock(state State, block *types.Block) (State, error) {
	if err := state.BlockTree.AddBlock(block); err != nil {
		return state, err
	}
	state.PendingBlocks.AddBlock(block)

	// a tx carried by a pending block must not be proposed again
	if err := exec.mempool.LockTxs(block.Txs); err != nil {
		exec.logger.Error("lock txs failed", "block", block, "err", err)
	}

	newState := state.Copy()
	return newState, nil
}

// CommitBlocks implements BlockExecutor
func (exec *blockExecutor) CommitBlocks(state State, blocks []*types.Block) (State, error) {
	if len(blocks) == 0 {
		return state, nil
	}

	committedTxs := types.Txs{}
	for _, block := range blocks {
		block.BlockState = types.CommittedBlock
		if err := exec.store.SaveBlock(block); err != nil {
			return state, errors.Wrap(err, "persist committed block")
		}
		committedTxs = committedTxs.Append(block.Txs)
		exec.logger.Info("committed block", "height", block.Height, "hash", block.Hash(), "txs", len(block.Txs))
	}

	tip := blocks[len(blocks)-1]

	exec.mempool.Lock()
	if err := exec.mempool.Update(tip.Height, committedTxs); err != nil {
		exec.mempool.Unlock()
		return state, errors.Wrap(err, "update mempool")
	}
	exec.mempool.Unlock()

	newState := state.Copy()
	newState.PendingBlocks.RemoveBlocks(blocks)
	newState.LastCommittedHeight = tip.Height
	newState.LastCommittedHash = tip.Hash()
	newState.LastCommitTime = tmtime.Now()

	// settled ancestors and abandoned forks have no further use in memory;
	// the store holds the committed chain
	if pruned, err := newState.BlockTree.PruneToRoot(tip.Hash()); err != nil {
		return state, errors.Wrap(err, "prune block tree")
	} else if pruned > 0 {
		exec.logger.Debug("pruned block tree", "removed", pruned, "root", tip.Hash())
	}
	return newState, nil
}
