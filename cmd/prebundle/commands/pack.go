package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/proxyre/prebundle/bundle"
)

func NewPackCommand() *cobra.Command {
	var (
		dir       string
		out       string
		format    string
		chunkSize int
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Pack a key directory into a single archive",
		Long: `Pack a key directory into a single archive

Reads the fixed artifact files (and any indexed bootstrap pair files)
from a key directory and packs them into one compressed archive. The
pack runs on a background worker and is reassembled from ordered
chunks, so a stalled worker is bounded by --timeout.`,

		Example: `  # Pack a key directory
  prebundle pack --dir ./keys --out keyset.pkb

  # Pack to stdout for piping
  prebundle pack --dir ./keys --out - > keyset.pkb`,

		RunE: func(cmd *cobra.Command, args []string) error {
			logger := getLogger(cmd)

			f, err := parseFormat(format)
			if err != nil {
				return err
			}

			if out == "-" && isTerminal(os.Stdout) {
				return fmt.Errorf("refusing to write archive bytes to a terminal, use --out or redirect stdout")
			}

			store, err := getStore(dir, logger)
			if err != nil {
				return err
			}

			b, err := store.Load()
			if err != nil {
				return err
			}

			archiver, err := bundle.NewArchiver(logger)
			if err != nil {
				return err
			}
			defer archiver.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			cfg := &bundle.TransferConfig{ChunkSize: chunkSize, Logger: logger}
			data, err := archiver.PackChunked(ctx, b, bundle.DefaultFileNames(), f, cfg)
			if err != nil {
				return err
			}

			if out == "-" {
				if _, err := os.Stdout.Write(data); err != nil {
					return fmt.Errorf("failed to write archive to stdout: %w", err)
				}
			} else if err := os.WriteFile(out, data, 0600); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}

			if logger != nil {
				logger.Printf("Packed %d artifacts (%d bytes) from %s", len(b.EntryNames(bundle.DefaultFileNames())), len(data), dir)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./keys", "Key directory to pack")
	cmd.Flags().StringVar(&out, "out", "keyset.pkb", "Output archive path, or - for stdout")
	cmd.Flags().StringVar(&format, "format", "binary", "Serialization format recorded in the manifest (binary or json)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", bundle.DEFAULT_CHUNK_SIZE, "Transfer chunk size in bytes")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Abort the pack worker after this long")

	return cmd
}
