package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"checkpointbft/privval"
)

// GenValidatorCmd deals this member's threshold key share from the
// federation seed. Every member runs it with the same seed and quorum but
// its own index.
var GenValidatorCmd = &cobra.Command{
	Use:     "gen-validator",
	Aliases: []string{"gen_validator"},
	Short:   "Generate this member's threshold key share",
	PreRun:  deprecateSnakeCase,
	RunE:    genValidator,
}

func init() {
	GenValidatorCmd.Flags().Int64Var(&seed, "seed", 1, "federation key seed, identical on every member")
	GenValidatorCmd.MarkFlagRequired("seed")
	GenValidatorCmd.Flags().Int64Var(&index, "index", 0, "this member's index in the federation ordering")
	GenValidatorCmd.MarkFlagRequired("index")
	GenValidatorCmd.Flags().IntVar(&quorum, "quorum", 3, "signature threshold, 2f+1 for a federation of 3f+1")
	GenValidatorCmd.MarkFlagRequired("quorum")
}

func genValidator(cmd *cobra.Command, args []string) error {
	privValKeyFile := config.PrivValidatorKeyFile()
	if tmos.FileExists(privValKeyFile) {
		logger.Info("Found private validator", "keyFile", privValKeyFile)
		return nil
	}

	pv := privval.GenFilePV(privValKeyFile, quorum, int32(index), seed)
	pv.Save()
	logger.Info("Generated private validator", "keyFile", privValKeyFile)

	jsbz, err := tmjson.MarshalIndent(struct {
		Address string `json:"address"`
		Index   int32  `json:"index"`
	}{pv.GetAddress().String(), pv.GetIndex()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(jsbz))
	return nil
}
