package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print otaagent's build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("otaagent version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
