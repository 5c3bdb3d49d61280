package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"

	"checkpointbft/privval"
)

var ShowValidatorCmd = &cobra.Command{
	Use:     "show-validator",
	Aliases: []string{"show_validator"},
	Short:   "Show this member's validator identity",
	PreRun:  deprecateSnakeCase,
	RunE:    showValidator,
}

func showValidator(cmd *cobra.Command, args []string) error {
	pv := privval.LoadFilePV(config.PrivValidatorKeyFile())

	pubKey, err := pv.GetPubKey()
	if err != nil {
		return err
	}
	bz, err := tmjson.MarshalIndent(struct {
		Address string      `json:"address"`
		PubKey  interface{} `json:"pub_key"`
		Index   int32       `json:"index"`
	}{pv.GetAddress().String(), pubKey, pv.GetIndex()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(bz))
	return nil
}
