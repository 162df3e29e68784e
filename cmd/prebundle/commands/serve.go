package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/proxyre/prebundle/bundle"
	"github.com/proxyre/prebundle/server"
)

func NewServeCommand() *cobra.Command {
	var (
		dir       string
		addr      string
		format    string
		chunkSize int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the key set to websocket clients",
		Long: `Serve the key set to websocket clients

Clients connect to /keyset and receive the packed archive as ordered
chunk messages; /status reports what the server is holding. The key
set is read fresh from the directory on every request.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			logger := getLogger(cmd)

			f, err := parseFormat(format)
			if err != nil {
				return err
			}

			store, err := getStore(dir, logger)
			if err != nil {
				return err
			}

			archiver, err := bundle.NewArchiver(logger)
			if err != nil {
				return err
			}
			defer archiver.Close()

			srv := server.New(server.SourceFunc(store.Load), archiver, &server.Config{
				Addr:      addr,
				Format:    f,
				Names:     bundle.DefaultFileNames(),
				ChunkSize: chunkSize,
				Version:   version,
				Logger:    logger,
			})

			fmt.Fprintf(os.Stderr, "Serving key set from %s on %s\n", dir, addr)
			return srv.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "./keys", "Key directory to serve")
	cmd.Flags().StringVar(&addr, "addr", ":8585", "Listen address")
	cmd.Flags().StringVar(&format, "format", "binary", "Serialization format reported to clients")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", bundle.DEFAULT_CHUNK_SIZE, "Chunk size for streamed archives")

	return cmd
}
