package metric

// MetricItem is implemented once per instrumented module; JSONString renders
// the module's counters for the rpc surface.
type MetricItem interface {
	JSONString() string
}

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}
