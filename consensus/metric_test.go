package consensus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// The rpc surface renders the metric while the engine's receive routine is
// still marking it; the item's own lock keeps the two apart.
func TestEngineMetricConcurrentRender(t *testing.T) {
	em := newEngineMetric()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		view := int64(1)
		for {
			select {
			case <-stop:
				return
			default:
			}
			em.MarkView(view, "Prepare", time.Now())
			em.MarkProposer(view%2 == 0, "")
			em.MarkCommitted(view, 1)
			em.MarkEquivocation()
			em.MarkRejectedMsg()
			view++
		}
	}()

	for i := 0; i < 200; i++ {
		assert.NotEmpty(t, em.JSONString())
	}
	close(stop)
	wg.Wait()

	assert.EqualValues(t, em.Equivocations, em.EquivocationCount())
}
