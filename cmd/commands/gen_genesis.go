package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	"checkpointbft/crypto/bls"
	"checkpointbft/crypto/threshold"
	"checkpointbft/types"
)

// GenGenesisCmd writes the federation's genesis document. Generation is
// deterministic in the seed, so every member running it with the same flags
// derives the same document, genesis block and genesis certificate.
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate the federation genesis document",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

func init() {
	GenGenesisCmd.Flags().StringVar(&chainID, "chain-id", "checkpoint-chain", "chain identifier")
	GenGenesisCmd.Flags().Int64Var(&seed, "seed", 1, "federation key seed, identical on every member")
	GenGenesisCmd.MarkFlagRequired("seed")
	GenGenesisCmd.Flags().IntVar(&quorum, "quorum", 3, "signature threshold, 2f+1 for a federation of 3f+1")
	GenGenesisCmd.MarkFlagRequired("quorum")
	GenGenesisCmd.Flags().IntVar(&federationSize, "federation-size", 4, "number of federation members")
	GenGenesisCmd.MarkFlagRequired("federation-size")
	GenGenesisCmd.Flags().Int64Var(&checkpointInterval, "checkpoint-interval", types.DefaultCheckpointInterval,
		"committed blocks per checkpoint certificate")
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}

	genDoc, err := makeGenesisDoc(chainID, seed, quorum, federationSize, checkpointInterval)
	if err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile, "chain_id", genDoc.ChainID)
	return nil
}

func makeGenesisDoc(chainID string, seed int64, quorum, size int, interval int64) (*types.GenesisDoc, error) {
	primary := bls.GenPrivKeyWithSeed(seed)
	poly := threshold.Master(primary, quorum, seed)

	// the genesis time comes from the seed so every member derives the
	// same genesis block
	genDoc := &types.GenesisDoc{
		GenesisTime:        time.Unix(seed, 0).UTC(),
		ChainID:            chainID,
		FederationPoly:     poly.PubPoly(),
		CheckpointInterval: interval,
	}

	for i := 0; i < size; i++ {
		priv, err := poly.GetValue(int64(i))
		if err != nil {
			return nil, fmt.Errorf("failed to deal share %d: %w", i, err)
		}
		genDoc.Validators = append(genDoc.Validators, types.GenesisValidator{
			Address: types.GetAddress(priv.PubKey()),
			PubKey:  priv.PubKey(),
			Name:    fmt.Sprintf("validator-%d", i),
		})
	}

	qc, err := types.MakeGenesisQC(chainID, genDoc.GenesisBlock().Hash(), size, primary)
	if err != nil {
		return nil, fmt.Errorf("failed to sign the genesis certificate: %w", err)
	}
	genDoc.GenesisQC = qc

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return genDoc, nil
}
