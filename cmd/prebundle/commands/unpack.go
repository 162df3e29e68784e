package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/proxyre/prebundle/bundle"
)

func NewUnpackCommand() *cobra.Command {
	var (
		in  string
		dir string
	)

	cmd := &cobra.Command{
		Use:   "unpack",
		Short: "Unpack an archive into a key directory",
		Long: `Unpack an archive into a key directory

Extracts every artifact entry of a key-set archive into the persisted
filesystem layout: the fixed artifact filenames plus one pair of
indexed files per bootstrap entry. Entries the archive does not carry
are simply absent; an engine restore against the directory reports
precisely which mandatory artifact is missing.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			logger := getLogger(cmd)

			data, err := readInput(in)
			if err != nil {
				return err
			}

			archiver, err := bundle.NewArchiver(logger)
			if err != nil {
				return err
			}
			defer archiver.Close()

			arch, err := archiver.Unpack(data)
			if err != nil {
				return err
			}

			store, err := getStore(dir, logger)
			if err != nil {
				return err
			}
			if err := store.Import(arch); err != nil {
				return err
			}

			if logger != nil && arch.Manifest != nil {
				logger.Printf("Archive format %s, created %s", arch.Manifest.Format, arch.Manifest.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "keyset.pkb", "Archive path, or - for stdin")
	cmd.Flags().StringVar(&dir, "dir", "./keys", "Destination key directory")

	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return data, nil
}
