package store

import (
	"fmt"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"

	"checkpointbft/types"
)

// Store persists the committed chain, the emitted checkpoint certificates and
// the engine's durable voting state. Only committed data enters the store;
// pending blocks live in the block tree until their fate is settled.
type Store interface {
	// SaveBlock persists a committed block under its hash and height.
	SaveBlock(block *types.Block) error

	// LoadBlockByHash returns the committed block with the given hash,
	// or nil when unknown.
	LoadBlockByHash(hash []byte) (*types.Block, error)

	// LoadBlockByHeight returns the committed block at the given height,
	// or nil when unknown.
	LoadBlockByHeight(height int64) (*types.Block, error)

	// Height returns the height of the highest committed block, 0 when only
	// the genesis block is committed.
	Height() int64

	// SaveCheckpoint persists an emitted checkpoint certificate.
	SaveCheckpoint(cert *types.CheckpointCert) error

	// LoadCheckpoint returns the checkpoint certificate whose range ends at
	// endHeight, or nil when none was emitted for it.
	LoadCheckpoint(endHeight int64) (*types.CheckpointCert, error)

	// LoadLatestCheckpoint returns the newest emitted checkpoint, or nil.
	LoadLatestCheckpoint() (*types.CheckpointCert, error)

	// SaveEngineState durably records the engine's voting state. It must hit
	// disk before the vote or new-view it covers leaves the node.
	SaveEngineState(es EngineState) error

	// LoadEngineState returns the recorded voting state. A fresh store
	// returns a zero EngineState and no error.
	LoadEngineState() (EngineState, error)

	// Close releases the underlying database.
	Close() error
}

// EngineState is the part of the engine's state that must survive a restart:
// forgetting the lock or the current view would let the replica equivocate.
type EngineState struct {
	View     int64             `json:"view"`
	LockedQC *types.QuorumCert `json:"locked_qc"`
	HighQC   *types.QuorumCert `json:"high_qc"`
}

var (
	blockHashPrefix   = []byte("BH:")
	blockHeightPrefix = []byte("BN:")
	checkpointPrefix  = []byte("CP:")

	latestCheckpointKey = []byte("CP|latest")
	heightKey           = []byte("height")
	engineStateKey      = []byte("engine_state")
)

// NewBlockStore opens (or creates) a goleveldb-backed store in dir.
func NewBlockStore(name, dir string, logger log.Logger) (*BlockStore, error) {
	db, err := tmdb.NewDB(name, tmdb.GoLevelDBBackend, dir)
	if err != nil {
		return nil, errors.Wrap(err, "open block store")
	}
	return NewBlockStoreWithDB(db, logger), nil
}

func NewBlockStoreWithDB(db tmdb.DB, logger log.Logger) *BlockStore {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BlockStore{db: db, logger: logger}
}

type BlockStore struct {
	db tmdb.DB

	logger log.Logger
}

var _ Store = (*BlockStore)(nil)

func (bs *BlockStore) SaveBlock(block *types.Block) error {
	if block == nil {
		return errors.New("cannot save nil block")
	}

	bz, err := tmjson.Marshal(block)
	if err != nil {
		return errors.Wrap(err, "marshal block")
	}

	batch := bs.db.NewBatch()
	defer batch.Close()

	hash := block.Hash()
	if err := batch.Set(blockHashKey(hash), bz); err != nil {
		return err
	}
	if err := batch.Set(blockHeightKey(block.Height), hash); err != nil {
		return err
	}
	if block.Height > bs.Height() {
		if err := batch.Set(heightKey, int64ToBytes(block.Height)); err != nil {
			return err
		}
	}
	return batch.WriteSync()
}

func (bs *BlockStore) LoadBlockByHash(hash []byte) (*types.Block, error) {
	bz, err := bs.db.Get(blockHashKey(hash))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, nil
	}

	block := new(types.Block)
	if err := tmjson.Unmarshal(bz, block); err != nil {
		return nil, errors.Wrap(err, "unmarshal block")
	}
	return block, nil
}

func (bs *BlockStore) LoadBlockByHeight(height int64) (*types.Block, error) {
	hash, err := bs.db.Get(blockHeightKey(height))
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, nil
	}
	return bs.LoadBlockByHash(hash)
}

func (bs *BlockStore) Height() int64 {
	bz, err := bs.db.Get(heightKey)
	if err != nil || len(bz) == 0 {
		return 0
	}
	return bytesToInt64(bz)
}

func (bs *BlockStore) SaveCheckpoint(cert *types.CheckpointCert) error {
	if cert == nil {
		return errors.New("cannot save nil checkpoint")
	}

	bz, err := tmjson.Marshal(cert)
	if err != nil {
		return errors.Wrap(err, "marshal checkpoint")
	}

	batch := bs.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(checkpointKey(cert.EndHeight), bz); err != nil {
		return err
	}
	if err := batch.Set(latestCheckpointKey, int64ToBytes(cert.EndHeight)); err != nil {
		return err
	}
	return batch.WriteSync()
}

func (bs *BlockStore) LoadCheckpoint(endHeight int64) (*types.CheckpointCert, error) {
	bz, err := bs.db.Get(checkpointKey(endHeight))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, nil
	}

	cert := new(types.CheckpointCert)
	if err := tmjson.Unmarshal(bz, cert); err != nil {
		return nil, errors.Wrap(err, "unmarshal checkpoint")
	}
	return cert, nil
}

func (bs *BlockStore) LoadLatestCheckpoint() (*types.CheckpointCert, error) {
	bz, err := bs.db.Get(latestCheckpointKey)
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, nil
	}
	return bs.LoadCheckpoint(bytesToInt64(bz))
}

func (bs *BlockStore) SaveEngineState(es EngineState) error {
	bz, err := tmjson.Marshal(es)
	if err != nil {
		return errors.Wrap(err, "marshal engine state")
	}
	return bs.db.SetSync(engineStateKey, bz)
}

func (bs *BlockStore) LoadEngineState() (EngineState, error) {
	var es EngineState

	bz, err := bs.db.Get(engineStateKey)
	if err != nil {
		return es, err
	}
	if len(bz) == 0 {
		return es, nil
	}
	if err := tmjson.Unmarshal(bz, &es); err != nil {
		return es, errors.Wrap(err, "unmarshal engine state")
	}
	return es, nil
}

func (bs *BlockStore) Close() error {
	return bs.db.Close()
}

// ------------------------------

func blockHashKey(hash []byte) []byte {
	return append(blockHashPrefix, hash...)
}

func blockHeightKey(height int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", blockHeightPrefix, height))
}

func checkpointKey(endHeight int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", checkpointPrefix, endHeight))
}

func int64ToBytes(v int64) []byte {
	return []byte(fmt.Sprintf("%d", v))
}

func bytesToInt64(bz []byte) int64 {
	var v int64
	fmt.Sscanf(string(bz), "%d", &v)
	return v
}
