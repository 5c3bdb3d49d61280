package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	nm "checkpointbft/node"
)

// AddNodeFlags exposes the handful of config fields operators most often
// override on the command line.
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("moniker", config.Moniker, "node name")
	cmd.Flags().String("p2p.laddr", config.P2P.ListenAddress, "node p2p listen address")
	cmd.Flags().String("p2p.persistent_peers", config.P2P.PersistentPeers,
		"comma-delimited ID@host:port persistent peers")
	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress, "RPC listen address")
}

// NewRunNodeCmd returns the command that boots the federation member and
// blocks until it is signalled to stop.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "node",
		Aliases: []string{"run", "start"},
		Short:   "Run the federation node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}
			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}
			logger.Info("started node", "nodeInfo", n.NodeInfo())

			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "err", err)
					}
				}
			})

			// run forever; TrapSignal exits the process
			select {}
		},
	}
	AddNodeFlags(cmd)
	return cmd
}
