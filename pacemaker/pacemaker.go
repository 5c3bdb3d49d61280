package pacemaker

import (
	"fmt"
	"time"

	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/libs/sync"

	"checkpointbft/types"
)

const (
	defaultBaseTimeout = 3 * time.Second
	defaultMaxTimeout  = 60 * time.Second
)

// TimeoutInfo is delivered on Chan when a view expires without progress. A
// receiver must check View against the current view: a timer racing a view
// switch may still fire for the view just left.
type TimeoutInfo struct {
	Duration time.Duration `json:"duration"`
	View     int64         `json:"view"`
}

func (ti TimeoutInfo) String() string {
	return fmt.Sprintf("%v@%d", ti.Duration, ti.View)
}

// Pacemaker owns the view counter and the per-view timer. The view only moves
// forward; entering a view arms a fresh timer and cancels the old one. The
// timeout grows exponentially over consecutive viewless views and snaps back
// to the base as soon as a view makes progress, so a partitioned federation
// converges on a common view again.
//
// The pacemaker fires timeouts; acting on them (signing a new-view message,
// moving to the next view) is the engine's job.
type Pacemaker struct {
	service.BaseService

	mtx sync.Mutex

	vals *types.ValidatorSet

	view     int64
	failures int

	baseTimeout time.Duration
	maxTimeout  time.Duration

	timer    *time.Timer
	tockChan chan TimeoutInfo
}

type Option func(*Pacemaker)

// WithTimeouts overrides the base and cap of the view timer.
func WithTimeouts(base, max time.Duration) Option {
	return func(pm *Pacemaker) {
		pm.baseTimeout = base
		pm.maxTimeout = max
	}
}

func NewPacemaker(initialView int64, vals *types.ValidatorSet, options ...Option) *Pacemaker {
	pm := &Pacemaker{
		vals:        vals,
		view:        initialView,
		baseTimeout: defaultBaseTimeout,
		maxTimeout:  defaultMaxTimeout,
		tockChan:    make(chan TimeoutInfo, 1),
	}
	pm.BaseService = *service.NewBaseService(nil, "Pacemaker", pm)
	for _, option := range options {
		option(pm)
	}
	return pm
}

func (pm *Pacemaker) OnStart() error {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	pm.scheduleLocked()
	return nil
}

func (pm *Pacemaker) OnStop() {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	if pm.timer != nil {
		pm.timer.Stop()
	}
}

// Chan returns the timeout channel.
func (pm *Pacemaker) Chan() <-chan TimeoutInfo {
	return pm.tockChan
}

// CurView returns the view the pacemaker currently stands in.
func (pm *Pacemaker) CurView() int64 {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	return pm.view
}

// Proposer returns the leader of the given view under the fixed rotation.
func (pm *Pacemaker) Proposer(view int64) *types.Validator {
	return pm.vals.GetProposer(view)
}

// CurTimeout returns the duration the current view's timer was armed with.
func (pm *Pacemaker) CurTimeout() time.Duration {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	return pm.timeoutLocked()
}

// AdvanceTo enters the given view. Views are strictly monotonic: a target at
// or below the current view is refused. madeProgress resets the backoff
// (a certificate was formed); a timeout advance doubles it instead.
func (pm *Pacemaker) AdvanceTo(view int64, madeProgress bool) bool {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()

	if view <= pm.view {
		return false
	}
	pm.view = view
	if madeProgress {
		pm.failures = 0
	} else {
		pm.failures++
	}
	if pm.IsRunning() {
		pm.scheduleLocked()
	}
	return true
}

// scheduleLocked arms the timer for the current view. The fired timeout
// carries the view it was armed in, so a late fire for an abandoned view is
// recognizable downstream.
func (pm *Pacemaker) scheduleLocked() {
	if pm.timer != nil {
		pm.timer.Stop()
	}
	d := pm.timeoutLocked()
	view := pm.view
	pm.timer = time.AfterFunc(d, func() {
		select {
		case pm.tockChan <- TimeoutInfo{Duration: d, View: view}:
		case <-pm.Quit():
		}
	})
}

func (pm *Pacemaker) timeoutLocked() time.Duration {
	d := pm.baseTimeout
	for i := 0; i < pm.failures; i++ {
		d *= 2
		if d >= pm.maxTimeout {
			return pm.maxTimeout
		}
	}
	return d
}
