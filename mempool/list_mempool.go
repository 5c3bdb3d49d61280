package mempool

import (
	"container/list"
	"crypto/sha256"
	"sync"
	"sync/atomic"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	"checkpointbft/libs/metric"
	"checkpointbft/types"
)

const (
	TxKeySize = 32
)

// txStatus distinguishes a transaction waiting to be proposed from one
// already carried by an uncommitted block.
type txStatus int32

const (
	txStatusPending = txStatus(0)
	txStatusLocked  = txStatus(1)
)

func NewListMempool(config *cfg.MempoolConfig, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		config: config,
		txs:    clist.New(),
		logger: log.NewNopLogger(),
		metric: newMemMetric(),
	}

	if config.CacheSize > 0 {
		mem.cache = newMapTxCache(config.CacheSize)
	} else {
		mem.cache = nopTxCache{}
	}

	mem.txsAvailable = make(chan struct{}, 1)

	for _, option := range options {
		option(mem)
	}

	return mem
}

// ListMempool keeps transactions in a concurrent linked list, the order they
// arrived in. Broadcast routines iterate the list while CheckTx appends.
type ListMempool struct {
	// Atomic integers
	height   int64 // the last block height Update()'d to
	txsBytes int64 // total size of mempool, in bytes

	txsAvailable chan struct{} // fires once per height when txs are waiting

	config *cfg.MempoolConfig

	updateMtx sync.RWMutex
	preCheck  PreCheckFunc

	txs    *clist.CList
	txsMap sync.Map // TxKey -> *clist.CElement

	// Keep a cache of already-seen txs so rebroadcasts die out quickly.
	cache txCache

	metric *memMetric
	logger log.Logger
}

var _ Mempool = (*ListMempool)(nil)

type ListMempoolOption func(mempool *ListMempool)

func SetPreCheck(precheck PreCheckFunc) ListMempoolOption {
	return func(mem *ListMempool) {
		mem.preCheck = precheck
	}
}

func (mem *ListMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

// RegisterMetric publishes the pool's counters under the "mempool" label.
func (mem *ListMempool) RegisterMetric(set *metric.MetricSet) error {
	return set.SetMetrics("mempool", mem.metric)
}

func (mem *ListMempool) CheckTx(tx types.Tx, txinfo TxInfo) error {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if size := tx.ComputeSize(); size > int64(mem.config.MaxTxBytes) {
		return ErrTxTooLarge{Max: int64(mem.config.MaxTxBytes), Actual: size}
	}

	if mem.preCheck != nil {
		if err := mem.preCheck(tx); err != nil {
			return err
		}
	}

	if memSize, txsBytes := mem.Size(), mem.TxsBytes(); memSize >= mem.config.Size ||
		tx.ComputeSize()+txsBytes > mem.config.MaxTxsBytes {
		return ErrMempoolIsFull{
			NumTxs: memSize, MaxTxs: mem.config.Size,
			TxsBytes: txsBytes, MaxTxsBytes: mem.config.MaxTxsBytes,
		}
	}

	if !mem.cache.Push(tx) {
		// Record the new sender for the tx we've already seen.
		if e, ok := mem.txsMap.Load(TxKey(tx)); ok {
			memTx := e.(*clist.CElement).Value.(*mempoolTx)
			memTx.senders.LoadOrStore(txinfo.SenderID, struct{}{})
		}
		return ErrTxInCache
	}

	if _, ok := mem.txsMap.Load(TxKey(tx)); ok {
		return ErrTxInMap
	}

	memTx := &mempoolTx{
		height: atomic.LoadInt64(&mem.height),
		tx:     tx,
	}
	memTx.senders.Store(txinfo.SenderID, struct{}{})

	mem.logger.Debug("added tx", "tx", tx.Hash(), "sender", txinfo.SenderID)
	mem.addTx(memTx)
	mem.notifyTxsAvailable()

	return nil
}

// ReapTxs gathers pending transactions in arrival order until maxBytes is
// reached. Locked transactions are skipped so two live proposals never carry
// the same tx.
func (mem *ListMempool) ReapTxs(maxBytes int64) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	var totalBytes int64
	txs := make(types.Txs, 0, mem.txs.Len())
	for e := mem.txs.Front(); e != nil; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		if memTx.Status() != txStatusPending {
			continue
		}
		size := memTx.tx.ComputeSize()
		if maxBytes >= 0 && totalBytes+size > maxBytes {
			return txs
		}
		totalBytes += size
		txs = append(txs, memTx.tx)
	}
	return txs
}

// ReapMaxTxs gathers up to max pending transactions in arrival order.
func (mem *ListMempool) ReapMaxTxs(max int) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if max < 0 {
		max = mem.txs.Len()
	}

	txs := make(types.Txs, 0, tmMin(mem.txs.Len(), max))
	for e := mem.txs.Front(); e != nil && len(txs) < max; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		if memTx.Status() != txStatusPending {
			continue
		}
		txs = append(txs, memTx.tx)
	}
	return txs
}

// Lock acquires the update write lock.
func (mem *ListMempool) Lock() {
	mem.updateMtx.Lock()
}

// Unlock releases the update write lock.
func (mem *ListMempool) Unlock() {
	mem.updateMtx.Unlock()
}

// Update removes the committed transactions from the pool. The caller holds
// the pool lock.
func (mem *ListMempool) Update(height int64, txs types.Txs) error {
	atomic.StoreInt64(&mem.height, height)

	for _, tx := range txs {
		if e, ok := mem.txsMap.Load(TxKey(tx)); ok {
			mem.removeTx(tx, e.(*clist.CElement))
		}
		// Committed txs stay in the cache: a later rebroadcast is a replay.
		mem.cache.Push(tx)
	}
	mem.updateMetric()
	return nil
}

// LockTxs marks txs as carried by a pending block. Unknown txs are skipped:
// a replica may commit a block whose txs it never gossiped.
func (mem *ListMempool) LockTxs(txs types.Txs) error {
	return mem.setStatus(txs, txStatusLocked)
}

// ReleaseTxs clears the pending mark, returning txs to proposable state.
func (mem *ListMempool) ReleaseTxs(txs types.Txs) error {
	return mem.setStatus(txs, txStatusPending)
}

func (mem *ListMempool) setStatus(txs types.Txs, status txStatus) error {
	for _, tx := range txs {
		e, ok := mem.txsMap.Load(TxKey(tx))
		if !ok {
			continue
		}
		memTx := e.(*clist.CElement).Value.(*mempoolTx)
		atomic.StoreInt32((*int32)(&memTx.status), int32(status))
	}
	mem.updateMetric()
	return nil
}

// Flush drops all transactions and resets the cache.
func (mem *ListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	mem.cache.Reset()

	for e := mem.txs.Front(); e != nil; e = e.Next() {
		mem.txs.Remove(e)
		e.DetachPrev()
	}
	mem.txsMap.Range(func(key, _ interface{}) bool {
		mem.txsMap.Delete(key)
		return true
	})
	atomic.StoreInt64(&mem.txsBytes, 0)
	mem.updateMetric()
}

func (mem *ListMempool) Size() int {
	return mem.txs.Len()
}

func (mem *ListMempool) TxsBytes() int64 {
	return atomic.LoadInt64(&mem.txsBytes)
}

// TxsAvailable returns a channel which fires once per height when
// transactions are waiting to be proposed.
func (mem *ListMempool) TxsAvailable() <-chan struct{} {
	return mem.txsAvailable
}

func (mem *ListMempool) notifyTxsAvailable() {
	select {
	case mem.txsAvailable <- struct{}{}:
	default:
	}
}

// addTx appends tx to the linked list and updates the fast lookup map and the
// total size counter.
func (mem *ListMempool) addTx(memTx *mempoolTx) {
	e := mem.txs.PushBack(memTx)
	mem.txsMap.Store(TxKey(memTx.tx), e)
	atomic.AddInt64(&mem.txsBytes, memTx.tx.ComputeSize())
	mem.updateMetric()
}

// removeTx unlinks tx from the list and the lookup map.
func (mem *ListMempool) removeTx(tx types.Tx, elem *clist.CElement) {
	mem.txs.Remove(elem)
	elem.DetachPrev()
	mem.txsMap.Delete(TxKey(tx))
	atomic.AddInt64(&mem.txsBytes, -tx.ComputeSize())
}

func (mem *ListMempool) updateMetric() {
	var locked int64
	for e := mem.txs.Front(); e != nil; e = e.Next() {
		if e.Value.(*mempoolTx).Status() == txStatusLocked {
			locked++
		}
	}
	mem.metric.MarkTxsNum(mem.Size())
	mem.metric.MarkLockedTxsNum(locked)
	mem.metric.MarkPendingTxsNum(int64(mem.Size()) - locked)
	mem.metric.MarkTotalTxsBytes(mem.TxsBytes())
}

func (mem *ListMempool) TxsWaitChan() <-chan struct{} {
	return mem.txs.WaitChan()
}

func (mem *ListMempool) TxsFront() *clist.CElement {
	return mem.txs.Front()
}

// ------------------------------

type txCache interface {
	Reset()
	Push(tx types.Tx) bool
	Remove(tx types.Tx)
}

// mapTxCache maintains an LRU cache of transaction hashes.
type mapTxCache struct {
	mtx      sync.Mutex
	size     int
	cacheMap map[[TxKeySize]byte]*list.Element
	list     *list.List
}

var _ txCache = (*mapTxCache)(nil)

func newMapTxCache(cacheSize int) *mapTxCache {
	return &mapTxCache{
		size:     cacheSize,
		cacheMap: make(map[[TxKeySize]byte]*list.Element, cacheSize),
		list:     list.New(),
	}
}

func (cache *mapTxCache) Reset() {
	cache.mtx.Lock()
	cache.cacheMap = make(map[[TxKeySize]byte]*list.Element, cache.size)
	cache.list.Init()
	cache.mtx.Unlock()
}

// Push returns false if the tx was already in the cache.
func (cache *mapTxCache) Push(tx types.Tx) bool {
	cache.mtx.Lock()
	defer cache.mtx.Unlock()

	key := TxKey(tx)
	if moved, exists := cache.cacheMap[key]; exists {
		cache.list.MoveToBack(moved)
		return false
	}

	if cache.list.Len() >= cache.size {
		front := cache.list.Front()
		if front != nil {
			frontKey := front.Value.([TxKeySize]byte)
			delete(cache.cacheMap, frontKey)
			cache.list.Remove(front)
		}
	}
	e := cache.list.PushBack(key)
	cache.cacheMap[key] = e
	return true
}

func (cache *mapTxCache) Remove(tx types.Tx) {
	cache.mtx.Lock()
	key := TxKey(tx)
	e := cache.cacheMap[key]
	delete(cache.cacheMap, key)
	if e != nil {
		cache.list.Remove(e)
	}
	cache.mtx.Unlock()
}

type nopTxCache struct{}

var _ txCache = nopTxCache{}

func (nopTxCache) Reset()             {}
func (nopTxCache) Push(types.Tx) bool { return true }
func (nopTxCache) Remove(types.Tx)    {}

// ------------------------------

type mempoolTx struct {
	height int64
	status txStatus

	tx      types.Tx
	senders sync.Map
}

// Height returns the height the pool was at when this tx arrived.
func (memTx *mempoolTx) Height() int64 {
	return atomic.LoadInt64(&memTx.height)
}

func (memTx *mempoolTx) Status() txStatus {
	return txStatus(atomic.LoadInt32((*int32)(&memTx.status)))
}

// ------------------------------

// TxKey is the fixed length array hash used as the key in maps.
func TxKey(tx types.Tx) [TxKeySize]byte {
	return sha256.Sum256(tx)
}

func txID(tx []byte) []byte {
	return types.Tx(tx).Hash()
}

func tmMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}
