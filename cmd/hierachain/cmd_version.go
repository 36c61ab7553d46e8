package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var cmdVersion = &cobra.Command{
	Use:   "version",
	Short: "Prints the software version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s v%s (%s %s/%s)\n", Name, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	cmdMain.AddCommand(cmdVersion)
}
