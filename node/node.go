package node

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
	"github.com/tendermint/tendermint/version"

	"checkpointbft/checkpoint"
	"checkpointbft/consensus"
	"checkpointbft/interpreter"
	"checkpointbft/libs/metric"
	mempl "checkpointbft/mempool"
	"checkpointbft/pacemaker"
	"checkpointbft/privval"
	"checkpointbft/rpc"
	bkstate "checkpointbft/state"
	"checkpointbft/store"
	"checkpointbft/types"
)

// maxBlockBodyBytes bounds how many transaction bytes one block may carry.
const maxBlockBodyBytes int64 = 1024 * 1024

// Provider takes a config and a logger and returns a ready-to-go Node.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node assembles one federation member: storage, mempool, the mempool-backed
// Interpreter, the consensus engine with its pacemaker and checkpoint
// assembler, and the p2p and RPC surfaces.
type Node struct {
	service.BaseService

	config     *cfg.Config
	genesisDoc *types.GenesisDoc

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey

	// services
	blockStore       *store.BlockStore
	mempool          *mempl.ListMempool
	interp           *interpreter.MempoolInterpreter
	engine           *consensus.Engine
	consensusReactor *consensus.Reactor
	mempoolReactor   *mempl.Reactor
	metricSet        *metric.MetricSet

	rpcListeners []net.Listener
}

type Option func(*Node)

// DefaultNewNode loads the node key, genesis document and, when present, the
// private validator key from the locations the config names.
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load or gen node key %s: %w", config.NodeKeyFile(), err)
	}

	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}

	// without a validator key the node runs as an observer
	var privVal types.PrivValidator
	if tmos.FileExists(config.PrivValidatorKeyFile()) {
		privVal = privval.LoadFilePV(config.PrivValidatorKeyFile())
	}

	return NewNode(config, privVal, nodeKey, genDoc, logger)
}

func NewNode(
	config *cfg.Config,
	privVal types.PrivValidator,
	nodeKey *p2p.NodeKey,
	genDoc *types.GenesisDoc,
	logger log.Logger,
	options ...Option,
) (*Node, error) {
	st := bkstate.MakeGenesisState(genDoc)
	metricSet := metric.NewMetricSet()

	blockStore, err := store.NewBlockStore("checkpointbft", config.DBDir(), logger.With("module", "store"))
	if err != nil {
		return nil, err
	}

	mempool := mempl.NewListMempool(
		config.Mempool,
		mempl.SetPreCheck(mempl.PreCheckMaxBytes(maxBlockBodyBytes)),
	)
	mempool.SetLogger(logger.With("module", "mempool"))
	if err := mempool.RegisterMetric(metricSet); err != nil {
		return nil, err
	}
	mempoolReactor := mempl.NewReactor(config.Mempool, mempool)
	mempoolReactor.SetLogger(logger.With("module", "mempool"))

	blockExec := bkstate.NewBlockExecutor(blockStore, mempool)
	blockExec.SetLogger(logger.With("module", "state"))

	interp := interpreter.NewMempoolInterpreter(mempool, maxBlockBodyBytes)
	interp.SetLogger(logger.With("module", "interpreter"))

	// resume checkpointing after the last emitted certificate
	var lastEnd int64
	if latest, err := blockStore.LoadLatestCheckpoint(); err != nil {
		return nil, err
	} else if latest != nil {
		lastEnd = latest.EndHeight
	}
	checkpointer := checkpoint.NewAssembler(genDoc.ChainID, genDoc.CheckpointInterval, blockStore, interp, lastEnd)
	checkpointer.SetLogger(logger.With("module", "checkpoint"))

	pm := pacemaker.NewPacemaker(1, st.Validators)

	engine := consensus.NewDefaultEngine(
		config.Consensus,
		privVal,
		st,
		blockExec,
		blockStore,
		interp,
		pm,
		consensus.SetInitialHighQC(genDoc.GenesisQC),
		consensus.SetCheckpointer(checkpointer),
	)
	engine.SetLogger(logger.With("module", "consensus"))
	if err := engine.RegisterMetric(metricSet); err != nil {
		return nil, err
	}

	// a crashed replica must come back remembering its view and lock
	es, err := blockStore.LoadEngineState()
	if err != nil {
		return nil, err
	}
	engine.RestoreEngineState(es)

	consensusReactor := consensus.NewReactor(engine)
	consensusReactor.SetLogger(logger.With("module", "consensus"))

	nodeInfo, err := makeNodeInfo(config, nodeKey, genDoc)
	if err != nil {
		return nil, err
	}

	transport := p2p.NewMultiplexTransport(nodeInfo, *nodeKey, conn.DefaultMConnConfig())

	p2pLogger := logger.With("module", "p2p")
	sw := p2p.NewSwitch(config.P2P, transport)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("MEMPOOL", mempoolReactor)
	sw.AddReactor("CONSENSUS", consensusReactor)
	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)
	p2pLogger.Info("p2p node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())

	node := &Node{
		config:     config,
		genesisDoc: genDoc,

		transport: transport,
		sw:        sw,
		nodeInfo:  nodeInfo,
		nodeKey:   nodeKey,

		blockStore:       blockStore,
		mempool:          mempool,
		interp:           interp,
		engine:           engine,
		consensusReactor: consensusReactor,
		mempoolReactor:   mempoolReactor,
		metricSet:        metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)

	for _, option := range options {
		option(node)
	}
	return node, nil
}

func makeNodeInfo(config *cfg.Config, nodeKey *p2p.NodeKey, genDoc *types.GenesisDoc) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(8, 11, 0),
		DefaultNodeID:   nodeKey.ID(),
		Network:         genDoc.ChainID,
		Version:         version.TMCoreSemVer,
		Channels: []byte{
			mempl.MempoolChannel,
			consensus.ProposalChannel,
			consensus.VoteChannel,
			consensus.NewViewChannel,
			consensus.QCChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress
	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}
	nodeInfo.ListenAddr = lAddr

	err := nodeInfo.Validate()
	return nodeInfo, err
}

func (n *Node) OnStart() error {
	// the engine must be draining its queues before any peer can reach it
	if err := n.engine.Start(); err != nil {
		return err
	}

	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}
	if err := n.sw.Start(); err != nil {
		return err
	}

	err = n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return fmt.Errorf("could not dial peers from persistent_peers field: %w", err)
	}

	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}
	return nil
}

func (n *Node) OnStop() {
	for _, l := range n.rpcListeners {
		n.Logger.Info("closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("error closing listener", "listener", l, "err", err)
		}
	}

	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("error stopping switch", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("error closing transport", "err", err)
	}
	if err := n.engine.Stop(); err != nil {
		n.Logger.Error("error stopping consensus engine", "err", err)
	}
	if err := n.blockStore.Close(); err != nil {
		n.Logger.Error("error closing block store", "err", err)
	}
}

// startRPC serves the JSONRPC routes on every configured listen address.
func (n *Node) startRPC() ([]net.Listener, error) {
	rpc.SetEnvironment(&rpc.Environment{
		Mempool:    n.mempool,
		Consensus:  n.engine,
		BlockStore: n.blockStore,
		MetricSet:  n.metricSet,
	})

	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")
	listeners := make([]net.Listener, 0, len(listenAddrs))
	for _, listenAddr := range listenAddrs {
		rpcLogger := n.Logger.With("module", "rpc-server")

		mux := http.NewServeMux()
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		config := rpcserver.DefaultConfig()
		config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
				rpcLogger.Error("rpc server stopped", "err", err)
			}
		}()
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

func (n *Node) GenesisDoc() *types.GenesisDoc {
	return n.genesisDoc
}

func (n *Node) Engine() *consensus.Engine {
	return n.engine
}

func (n *Node) Mempool() *mempl.ListMempool {
	return n.mempool
}

func (n *Node) BlockStore() *store.BlockStore {
	return n.blockStore
}

// splitAndTrimEmpty slices s by sep, trims cutset from every element and
// drops the empty ones.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
