package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/testerman-project/testerman-core/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the testermanctl version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}
