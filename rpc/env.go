package rpc

import (
	"checkpointbft/consensus"
	"checkpointbft/libs/metric"
	"checkpointbft/mempool"
	"checkpointbft/store"
)

var env *Environment

func SetEnvironment(e *Environment) {
	env = e
}

// Environment holds the node internals the RPC handlers read from.
type Environment struct {
	Mempool    mempool.Mempool
	Consensus  *consensus.Engine
	BlockStore store.Store

	MetricSet *metric.MetricSet
}
