package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LeonardoPuccio/smartmove/pkg/runtime"
)

func VersionCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Long:  `Print version info`,
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		fmt.Printf("smartmove version: %s commit: %s built at: %s\n", runtime.Version, runtime.GitCommit, runtime.Timestamp)
		return nil
	}

	return command
}
