package mempool

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

func newMemMetric() *memMetric {
	return &memMetric{}
}

type memMetric struct {
	mtx           sync.RWMutex
	TxsNum        int   `json:"txs_num"`         // transactions in the pool
	PendingTxsNum int64 `json:"pending_txs_num"` // proposable transactions
	LockedTxsNum  int64 `json:"locked_txs_num"`  // transactions carried by pending blocks
	TotalTxsBytes int64 `json:"total_txs_bytes"` // total size of all transactions
}

func (mm *memMetric) JSONString() string {
	mm.mtx.RLock()
	defer mm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(mm)
	return s
}

func (mm *memMetric) MarkTxsNum(txsNum int) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.TxsNum = txsNum
}

func (mm *memMetric) MarkPendingTxsNum(pendingTxsNum int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.PendingTxsNum = pendingTxsNum
}

func (mm *memMetric) MarkLockedTxsNum(lockedTxsNum int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.LockedTxsNum = lockedTxsNum
}

func (mm *memMetric) MarkTotalTxsBytes(totalTxsBytes int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.TotalTxsBytes = totalTxsBytes
}
