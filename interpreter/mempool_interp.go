package interpreter

import (
	"context"
	"sync"

	"github.com/tendermint/tendermint/libs/log"

	mempl "checkpointbft/mempool"
	"checkpointbft/types"
)

// MempoolInterpreter is the in-process application the node runs by default:
// block bodies are batches of mempool transactions, validation is tx
// well-formedness, and delivered checkpoints are retained for the rpc surface.
type MempoolInterpreter struct {
	mempool           mempl.Mempool
	maxBlockBytes     int64
	createEmptyBlocks bool

	mtx         sync.RWMutex
	checkpoints []*types.CheckpointCert

	logger log.Logger
}

var _ Interpreter = (*MempoolInterpreter)(nil)

type MempoolInterpreterOption func(*MempoolInterpreter)

// CreateEmptyBlocks lets the leader propose bodies with no transactions
// instead of skipping the view.
func CreateEmptyBlocks() MempoolInterpreterOption {
	return func(interp *MempoolInterpreter) {
		interp.createEmptyBlocks = true
	}
}

func NewMempoolInterpreter(mempool mempl.Mempool, maxBlockBytes int64, options ...MempoolInterpreterOption) *MempoolInterpreter {
	interp := &MempoolInterpreter{
		mempool:       mempool,
		maxBlockBytes: maxBlockBytes,
		logger:        log.NewNopLogger(),
	}
	for _, option := range options {
		option(interp)
	}
	return interp
}

func (interp *MempoolInterpreter) SetLogger(logger log.Logger) {
	interp.logger = logger
}

// CreateBlockBody reaps a batch of transactions. With an empty pool (and
// empty blocks disabled) it answers nil: the leader skips the view rather
// than proposing a hollow block.
func (interp *MempoolInterpreter) CreateBlockBody(ctx context.Context) (*types.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil // out of time, no answer
	}

	txs := interp.mempool.ReapTxs(interp.maxBlockBytes)
	if len(txs) == 0 && !interp.createEmptyBlocks {
		return nil, nil
	}
	return &types.Data{Txs: txs}, nil
}

// ValidateBlockBody accepts any body of distinct, well-formed transactions
// within the size limit.
func (interp *MempoolInterpreter) ValidateBlockBody(ctx context.Context, data *types.Data) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return NoAnswer, nil
	}
	if data == nil {
		return Reject, nil
	}
	if types.ComputeSizeForTxs(data.Txs) > interp.maxBlockBytes {
		return Reject, nil
	}

	seen := make(map[[mempl.TxKeySize]byte]struct{}, len(data.Txs))
	for _, tx := range data.Txs {
		if len(tx) == 0 {
			return Reject, nil
		}
		key := mempl.TxKey(tx)
		if _, dup := seen[key]; dup {
			return Reject, nil
		}
		seen[key] = struct{}{}
	}
	return Accept, nil
}

// NewCheckpointCertificate records the settled checkpoint. Fire-and-forget:
// nothing is reported back to the consensus core.
func (interp *MempoolInterpreter) NewCheckpointCertificate(cert *types.CheckpointCert) {
	interp.mtx.Lock()
	defer interp.mtx.Unlock()

	interp.checkpoints = append(interp.checkpoints, cert)
	interp.logger.Info("checkpoint delivered", "checkpoint", cert)
}

// Checkpoints returns the certificates delivered so far, oldest first.
func (interp *MempoolInterpreter) Checkpoints() []*types.CheckpointCert {
	interp.mtx.RLock()
	defer interp.mtx.RUnlock()

	return append([]*types.CheckpointCert(nil), interp.checkpoints...)
}
