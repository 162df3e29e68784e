package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/proxyre/prebundle/bundle"
	"github.com/proxyre/prebundle/engine"
	"github.com/proxyre/prebundle/internal/storage"
)

// stderrLogger routes status output to stderr so archive bytes can go
// to stdout.
type stderrLogger struct{}

func (stderrLogger) Printf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", v...)
}

func (stderrLogger) Println(v ...interface{}) {
	fmt.Fprintln(os.Stderr, v...)
}

func getLogger(cmd *cobra.Command) bundle.Logger {
	if quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet"); quiet {
		return nil
	}
	return stderrLogger{}
}

func getStore(dir string, logger bundle.Logger) (*storage.Store, error) {
	return storage.NewStore(dir, bundle.DefaultFileNames(), logger)
}

func parseFormat(name string) (engine.Format, error) {
	f, ok := engine.ParseFormat(name)
	if !ok {
		return f, fmt.Errorf("unknown serialization format %q (want binary or json)", name)
	}
	return f, nil
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
