package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	// tx entry point
	"broadcast_tx": rpc.NewRPCFunc(BroadcastTxAsync, "tx"),

	// consensus introspection
	"round_state": rpc.NewRPCFunc(RoundState, ""),
	"block":       rpc.NewRPCFunc(Block, "height"),

	// checkpoint certificates
	"checkpoint":        rpc.NewRPCFunc(Checkpoint, "end_height"),
	"latest_checkpoint": rpc.NewRPCFunc(LatestCheckpoint, ""),

	// runtime counters
	"metrics": rpc.NewRPCFunc(JSONMetrics, "label"),
}
