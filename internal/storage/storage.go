// Package storage persists a key set as plain files in a directory:
// the same fixed artifact filenames the archive uses, plus one pair
// of indexed files per bootstrap entry. The directory form suits
// engines that load artifacts straight from a filesystem; Snapshot
// turns the directory into a single compressed stream for transport.
package storage

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/valyala/gozstd"

	"github.com/proxyre/prebundle/bundle"
)

// CompressionLevel is the zstd level used for directory snapshots.
const CompressionLevel = 3

// Store reads and writes key-set artifacts in one directory. It
// implements bundle.EntrySource, so Restore can run directly against
// a directory.
type Store struct {
	dir    string
	names  bundle.FileNames
	logger bundle.Logger
}

// NewStore creates the directory if needed and returns a store over it.
func NewStore(dir string, names bundle.FileNames, logger bundle.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	return &Store{dir: dir, names: names, logger: logger}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Write persists every present buffer of b under its fixed filename.
// Absent optional buffers produce no file. Key material gets 0600.
func (s *Store) Write(b *bundle.Bundle) error {
	src := b.Source(s.names)
	entryNames := b.EntryNames(s.names)
	for _, name := range entryNames {
		buf, ok := src.Entry(name)
		if !ok {
			continue
		}
		path := filepath.Join(s.dir, name)
		if err := os.WriteFile(path, buf, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if s.logger != nil {
		s.logger.Printf("Wrote %d artifact files to %s", len(entryNames), s.dir)
	}
	return nil
}

// Import writes every artifact entry of an opened archive into the
// directory, reproducing the persisted filesystem layout.
func (s *Store) Import(arch *bundle.Archive) error {
	entryNames := arch.EntryNames()
	sort.Strings(entryNames)
	for _, name := range entryNames {
		buf, _ := arch.Entry(name)
		if err := os.WriteFile(filepath.Join(s.dir, name), buf, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if s.logger != nil {
		s.logger.Printf("Imported %d artifact files into %s", len(entryNames), s.dir)
	}
	return nil
}

// Entry reads one named artifact file. A missing file reports
// absence, not an error; the deserializer decides what is mandatory.
func (s *Store) Entry(name string) ([]byte, bool) {
	buf, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, false
	}
	return buf, true
}

// Load rebuilds a Bundle model from the directory contents. Missing
// files yield absent buffers; indexed pair files are recognized by
// their "<index>_" prefix. Restore decides what is mandatory.
func (s *Store) Load() (*bundle.Bundle, error) {
	fileNames, err := s.List()
	if err != nil {
		return nil, err
	}

	b := bundle.NewBundle()
	assign := map[string]*[]byte{
		s.names.Context:             &b.Context,
		s.names.PublicKey:           &b.PublicKey,
		s.names.SecretKey:           &b.SecretKey,
		s.names.MultKey:             &b.MultKey,
		s.names.RotationKeys:        &b.RotationKeys,
		s.names.SwitchKey:           &b.SwitchKey,
		s.names.SecondaryContext:    &b.SecondaryContext,
		s.names.SecondaryRefreshKey: &b.SecondaryRefreshKey,
		s.names.SecondarySwitchKey:  &b.SecondarySwitchKey,
		s.names.KeyIndexList:        &b.KeyIndexList,
	}

	for _, name := range fileNames {
		buf, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}

		if dst, ok := assign[name]; ok {
			*dst = buf
			continue
		}

		prefix, base, found := strings.Cut(name, "_")
		if !found {
			continue
		}
		index, err := strconv.Atoi(prefix)
		if err != nil || index < 0 {
			continue
		}
		pair := b.BootstrapPairs[index]
		switch base {
		case s.names.BootRefreshKey:
			pair.RefreshKey = buf
		case s.names.BootSwitchingKey:
			pair.SwitchingKey = buf
		default:
			continue
		}
		b.BootstrapPairs[index] = pair
	}

	return b, nil
}

// List returns the artifact filenames present in the directory,
// sorted for deterministic snapshots.
func (s *Store) List() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}
	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.Type().IsRegular() {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Snapshot streams the whole directory as one zstd-compressed tar.
func (s *Store) Snapshot(w io.Writer) error {
	names, err := s.List()
	if err != nil {
		return err
	}

	zw := gozstd.NewWriterLevel(w, CompressionLevel)
	defer zw.Release()
	tw := tar.NewWriter(zw)

	for _, name := range names {
		buf, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		hdr := &tar.Header{Name: name, Mode: 0600, Size: int64(len(buf))}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write snapshot header %s: %w", name, err)
		}
		if _, err := tw.Write(buf); err != nil {
			return fmt.Errorf("failed to write snapshot entry %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush snapshot compressor: %w", err)
	}
	return nil
}
