package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/proxyre/prebundle/cmd/prebundle/commands"
)

func main() {
	root := &cobra.Command{
		Use:           "prebundle",
		Short:         "Portable key-set bundles for homomorphic re-encryption",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Bool("quiet", false, "Suppress status output")

	root.AddCommand(
		commands.NewPackCommand(),
		commands.NewUnpackCommand(),
		commands.NewInspectCommand(),
		commands.NewSnapshotCommand(),
		commands.NewServeCommand(),
		commands.NewVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
