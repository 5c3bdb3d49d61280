package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"checkpointbft/libs/utils"
)

// number of recent views the duration stats are computed over
const viewDurationWindow = 64

func newEngineMetric() *engineMetric {
	return &engineMetric{}
}

// engineMetric is the consensus entry of the node's metric set. The engine
// writes from its receive routine while the rpc surface renders concurrently,
// so the item carries its own lock; the MetricSet lock only covers the
// registry, not item internals.
type engineMetric struct {
	mtx sync.RWMutex

	CurView       int64     `json:"current_view"`
	Phase         string    `json:"phase"`
	ViewStartTime time.Time `json:"view_start_time"`

	IsProposer      bool   `json:"is_proposer"`
	ProposerAddress string `json:"proposer_address"`

	CommittedHeight int64 `json:"committed_height"`
	CommittedBlocks int64 `json:"committed_blocks"`
	Checkpoints     int64 `json:"checkpoints"`

	ViewChanges   int64 `json:"view_changes"`
	Equivocations int64 `json:"equivocations"`
	RejectedMsgs  int64 `json:"rejected_msgs"`

	AvgViewMs    float64 `json:"avg_view_ms"`
	MedianViewMs float64 `json:"median_view_ms"`

	viewDurations []float64
}

func (em *engineMetric) JSONString() string {
	em.mtx.RLock()
	defer em.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(em)
	return s
}

// EquivocationCount reports how many conflicting votes and proposals this
// node has seen.
func (em *engineMetric) EquivocationCount() int64 {
	em.mtx.RLock()
	defer em.mtx.RUnlock()
	return em.Equivocations
}

func (em *engineMetric) MarkView(view int64, phase string, start time.Time) {
	em.mtx.Lock()
	defer em.mtx.Unlock()

	if !em.ViewStartTime.IsZero() && start.After(em.ViewStartTime) {
		d := float64(start.Sub(em.ViewStartTime).Milliseconds())
		em.viewDurations = append(em.viewDurations, d)
		if len(em.viewDurations) > viewDurationWindow {
			em.viewDurations = em.viewDurations[1:]
		}
		em.AvgViewMs = utils.Avg(em.viewDurations...)
		// Median sorts in place, hand it a copy
		em.MedianViewMs = utils.Median(append([]float64(nil), em.viewDurations...)...)
	}
	em.CurView = view
	em.Phase = phase
	em.ViewStartTime = start
}

func (em *engineMetric) MarkPhase(phase string) {
	em.mtx.Lock()
	em.Phase = phase
	em.mtx.Unlock()
}

func (em *engineMetric) MarkProposer(isProposer bool, addr string) {
	em.mtx.Lock()
	em.IsProposer = isProposer
	em.ProposerAddress = addr
	em.mtx.Unlock()
}

func (em *engineMetric) MarkCommitted(height int64, blocks int) {
	em.mtx.Lock()
	em.CommittedHeight = height
	em.CommittedBlocks += int64(blocks)
	em.mtx.Unlock()
}

func (em *engineMetric) MarkCheckpoint() {
	em.mtx.Lock()
	em.Checkpoints++
	em.mtx.Unlock()
}

func (em *engineMetric) MarkViewChange() {
	em.mtx.Lock()
	em.ViewChanges++
	em.mtx.Unlock()
}

func (em *engineMetric) MarkEquivocation() {
	em.mtx.Lock()
	em.Equivocations++
	em.mtx.Unlock()
}

func (em *engineMetric) MarkRejectedMsg() {
	em.mtx.Lock()
	em.RejectedMsgs++
	em.mtx.Unlock()
}
