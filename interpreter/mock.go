package interpreter

import (
	"context"
	"sync"

	"checkpointbft/types"
)

// Mock is a scriptable Interpreter for tests. The zero value accepts
// everything and proposes empty bodies.
type Mock struct {
	mtx sync.Mutex

	// Silent makes every call answer NoAnswer / nil body.
	Silent bool
	// RejectAll makes ValidateBlockBody answer Reject.
	RejectAll bool
	// NextBody, when set, is returned by the next CreateBlockBody call.
	NextBody *types.Data

	Delivered []*types.CheckpointCert
}

var _ Interpreter = (*Mock)(nil)

func (m *Mock) CreateBlockBody(ctx context.Context) (*types.Data, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.Silent {
		return nil, nil
	}
	if m.NextBody != nil {
		body := m.NextBody
		m.NextBody = nil
		return body, nil
	}
	return &types.Data{Txs: types.Txs{}}, nil
}

func (m *Mock) ValidateBlockBody(ctx context.Context, data *types.Data) (Decision, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	switch {
	case m.Silent:
		return NoAnswer, nil
	case m.RejectAll:
		return Reject, nil
	default:
		return Accept, nil
	}
}

// SetSilent toggles Silent while the Mock is already in use.
func (m *Mock) SetSilent(silent bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.Silent = silent
}

func (m *Mock) NewCheckpointCertificate(cert *types.CheckpointCert) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.Delivered = append(m.Delivered, cert)
}

// DeliveredCheckpoints returns the certificates handed over so far.
func (m *Mock) DeliveredCheckpoints() []*types.CheckpointCert {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return append([]*types.CheckpointCert(nil), m.Delivered...)
}
