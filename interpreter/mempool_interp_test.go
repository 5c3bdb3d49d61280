package interpreter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cfg "github.com/tendermint/tendermint/config"

	mempl "checkpointbft/mempool"
	"checkpointbft/types"
)

func newTestInterpreter(t *testing.T, options ...MempoolInterpreterOption) (*MempoolInterpreter, *mempl.ListMempool, func()) {
	config := cfg.ResetTestRoot("interpreter_test")
	mempool := mempl.NewListMempool(config.Mempool)
	interp := NewMempoolInterpreter(mempool, 1024, options...)
	return interp, mempool, func() { os.RemoveAll(config.RootDir) }
}

func TestCreateBlockBody(t *testing.T) {
	interp, mempool, cleanup := newTestInterpreter(t)
	defer cleanup()

	// empty pool, empty blocks disabled: no answer
	data, err := interp.CreateBlockBody(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, mempool.CheckTx(types.Tx("tx1"), mempl.TxInfo{}))
	require.NoError(t, mempool.CheckTx(types.Tx("tx2"), mempl.TxInfo{}))

	data, err = interp.CreateBlockBody(context.Background())
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Len(t, data.Txs, 2)
}

func TestCreateBlockBodyEmptyBlocks(t *testing.T) {
	interp, _, cleanup := newTestInterpreter(t, CreateEmptyBlocks())
	defer cleanup()

	data, err := interp.CreateBlockBody(context.Background())
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Len(t, data.Txs, 0)
}

func TestCreateBlockBodyExpiredContext(t *testing.T) {
	interp, mempool, cleanup := newTestInterpreter(t)
	defer cleanup()

	require.NoError(t, mempool.CheckTx(types.Tx("tx1"), mempl.TxInfo{}))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	// out of time is "no answer", not an error
	data, err := interp.CreateBlockBody(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestValidateBlockBody(t *testing.T) {
	interp, _, cleanup := newTestInterpreter(t)
	defer cleanup()

	ctx := context.Background()

	decision, err := interp.ValidateBlockBody(ctx, &types.Data{Txs: types.Txs{types.Tx("tx1")}})
	require.NoError(t, err)
	assert.Equal(t, Accept, decision)

	// nil body
	decision, err = interp.ValidateBlockBody(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, Reject, decision)

	// duplicated tx
	decision, err = interp.ValidateBlockBody(ctx, &types.Data{Txs: types.Txs{types.Tx("tx1"), types.Tx("tx1")}})
	require.NoError(t, err)
	assert.Equal(t, Reject, decision)

	// empty tx
	decision, err = interp.ValidateBlockBody(ctx, &types.Data{Txs: types.Txs{types.Tx("")}})
	require.NoError(t, err)
	assert.Equal(t, Reject, decision)

	// over the size limit
	big := make(types.Txs, 0)
	for i := 0; i < 100; i++ {
		big = append(big, make(types.Tx, 20))
	}
	decision, err = interp.ValidateBlockBody(ctx, &types.Data{Txs: big})
	require.NoError(t, err)
	assert.Equal(t, Reject, decision)

	// expired context: no answer, never a verdict
	expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()
	decision, err = interp.ValidateBlockBody(expired, &types.Data{Txs: types.Txs{types.Tx("tx1")}})
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, decision)
}

func TestNewCheckpointCertificate(t *testing.T) {
	interp, _, cleanup := newTestInterpreter(t)
	defer cleanup()

	cert := &types.CheckpointCert{ChainID: "CONSENSUS_TEST", StartHeight: 1, EndHeight: 1}
	interp.NewCheckpointCertificate(cert)
	interp.NewCheckpointCertificate(&types.CheckpointCert{ChainID: "CONSENSUS_TEST", StartHeight: 2, EndHeight: 2})

	cps := interp.Checkpoints()
	require.Len(t, cps, 2)
	assert.Equal(t, cert, cps[0])
}
