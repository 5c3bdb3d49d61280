package store

import (
	"checkpointbft/types"
)

// NewMockStore returns a Store that retains nothing. Tests that exercise
// consensus logic without persistence use it.
func NewMockStore() *MockStore {
	return &MockStore{}
}

type MockStore struct{}

var _ Store = (*MockStore)(nil)

func (*MockStore) SaveBlock(*types.Block) error                       { return nil }
func (*MockStore) LoadBlockByHash([]byte) (*types.Block, error)       { return nil, nil }
func (*MockStore) LoadBlockByHeight(int64) (*types.Block, error)      { return nil, nil }
func (*MockStore) Height() int64                                      { return 0 }
func (*MockStore) SaveCheckpoint(*types.CheckpointCert) error         { return nil }
func (*MockStore) LoadCheckpoint(int64) (*types.CheckpointCert, error) { return nil, nil }
func (*MockStore) LoadLatestCheckpoint() (*types.CheckpointCert, error) {
	return nil, nil
}
func (*MockStore) SaveEngineState(EngineState) error   { return nil }
func (*MockStore) LoadEngineState() (EngineState, error) {
	return EngineState{}, nil
}
func (*MockStore) Close() error { return nil }
