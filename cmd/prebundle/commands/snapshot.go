package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewSnapshotCommand() *cobra.Command {
	var (
		dir string
		out string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Stream a key directory as one compressed tar",
		Long: `Stream a key directory as one compressed tar

Unlike pack, snapshot copies the directory contents verbatim (no
manifest, no chunked worker) and writes the compressed stream as it
goes, so very large key sets never sit in memory whole.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			logger := getLogger(cmd)

			if out == "-" && isTerminal(os.Stdout) {
				return fmt.Errorf("refusing to write snapshot bytes to a terminal, use --out or redirect stdout")
			}

			store, err := getStore(dir, logger)
			if err != nil {
				return err
			}

			w := os.Stdout
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create snapshot file: %w", err)
				}
				defer f.Close()
				w = f
			}

			return store.Snapshot(w)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./keys", "Key directory to snapshot")
	cmd.Flags().StringVar(&out, "out", "-", "Output path, or - for stdout")

	return cmd
}
