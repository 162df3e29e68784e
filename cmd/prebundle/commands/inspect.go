package commands

import (
	"os"
	"sort"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/proxyre/prebundle/bundle"
)

// inspectOutput is the JSON shape of the inspect command.
type inspectOutput struct {
	Manifest *bundle.Manifest `json:"manifest,omitempty"`
	Entries  []entryInfo      `json:"entries"`
}

type entryInfo struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

func NewInspectCommand() *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show archive manifest and entries as JSON",

		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(in)
			if err != nil {
				return err
			}

			archiver, err := bundle.NewArchiver(nil)
			if err != nil {
				return err
			}
			defer archiver.Close()

			arch, err := archiver.Unpack(data)
			if err != nil {
				return err
			}

			out := inspectOutput{Manifest: arch.Manifest}
			entryNames := arch.EntryNames()
			sort.Strings(entryNames)
			for _, name := range entryNames {
				buf, _ := arch.Entry(name)
				out.Entries = append(out.Entries, entryInfo{Name: name, Size: len(buf)})
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&in, "in", "keyset.pkb", "Archive path, or - for stdin")

	return cmd
}
