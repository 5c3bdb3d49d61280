package commands

import (
	"github.com/spf13/cobra"
	cfg "github.com/tendermint/tendermint/config"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"

	"checkpointbft/privval"
	"checkpointbft/types"
)

// InitFilesCmd sets up everything one federation member needs to run: its
// node key, its threshold key share and the shared genesis document. With
// the same seed, quorum and federation size on every member, each derives
// the same genesis and its own share.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a federation member",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().StringVar(&chainID, "chain-id", "checkpoint-chain", "chain identifier")
	InitFilesCmd.Flags().Int64Var(&seed, "seed", 1, "federation key seed, identical on every member")
	InitFilesCmd.MarkFlagRequired("seed")
	InitFilesCmd.Flags().Int64Var(&index, "index", 0, "this member's index in the federation ordering")
	InitFilesCmd.MarkFlagRequired("index")
	InitFilesCmd.Flags().IntVar(&quorum, "quorum", 3, "signature threshold, 2f+1 for a federation of 3f+1")
	InitFilesCmd.MarkFlagRequired("quorum")
	InitFilesCmd.Flags().IntVar(&federationSize, "federation-size", 4, "number of federation members")
	InitFilesCmd.MarkFlagRequired("federation-size")
	InitFilesCmd.Flags().Int64Var(&checkpointInterval, "checkpoint-interval", types.DefaultCheckpointInterval,
		"committed blocks per checkpoint certificate")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	// private validator
	privValKeyFile := config.PrivValidatorKeyFile()
	if tmos.FileExists(privValKeyFile) {
		logger.Info("Found private validator", "keyFile", privValKeyFile)
	} else {
		pv := privval.GenFilePV(privValKeyFile, quorum, int32(index), seed)
		pv.Save()
		logger.Info("Generated private validator", "keyFile", privValKeyFile)
	}

	// node key
	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}

	// genesis file
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
	} else {
		genDoc, err := makeGenesisDoc(chainID, seed, quorum, federationSize, checkpointInterval)
		if err != nil {
			return err
		}
		if err := genDoc.SaveAs(genFile); err != nil {
			return err
		}
		logger.Info("Generated genesis file", "path", genFile, "chain_id", genDoc.ChainID)
	}
	return nil
}
