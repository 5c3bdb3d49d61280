package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "checkpointbft/cmd/commands"
	"checkpointbft/node"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenValidatorCmd,
		cmd.GenNodeKeyCmd,
		cmd.GenGenesisCmd,
		cmd.ShowNodeIDCmd,
		cmd.ShowValidatorCmd,
		cmd.VersionCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	rootCmd.AddCommand(cmd.NewRunNodeCmd(node.DefaultNewNode))

	baseCmd := cli.PrepareBaseCmd(rootCmd, "CHECKPOINTBFT",
		filepath.Join(homeDir(), ".checkpointbft"))
	if err := baseCmd.Execute(); err != nil {
		panic(err)
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
