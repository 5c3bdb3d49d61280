package rpc

import (
	jsoniter "github.com/json-iterator/go"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultMetrics struct {
	Metrics map[string]jsoniter.RawMessage `json:"metrics"`
}

// JSONMetrics returns the counters of one label, or of every registered
// label when none is given.
func JSONMetrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	result := &ResultMetrics{Metrics: make(map[string]jsoniter.RawMessage)}

	var labels []string
	if label != "" {
		labels = []string{label}
	} else {
		labels = env.MetricSet.GetAllLabels()
	}

	for _, l := range labels {
		item := env.MetricSet.GetMetrics(l)
		if item != nil {
			result.Metrics[l] = jsoniter.RawMessage(item.JSONString())
		}
	}
	return result, nil
}
