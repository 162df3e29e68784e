package bundle

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/proxyre/prebundle/engine"
)

// Manifest is the metadata entry written into every packed archive.
// Unpack tolerates archives without one (older producers); when
// present it records which serialization format the buffers used.
type Manifest struct {
	Version   string    `json:"version"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []string  `json:"entries"`
}

// Archiver packs bundles into single compressed archives and opens
// them again. The underlying container is a tar stream inside one
// zstd frame, with deterministic entry order: the fixed name table
// order first, then bootstrap pairs by ascending index.
type Archiver struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  Logger
}

// NewArchiver creates an Archiver with default compression.
func NewArchiver(logger Logger) (*Archiver, error) {
	if logger == nil {
		logger = defaultLogger{}
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Archiver{encoder: encoder, decoder: decoder, logger: logger}, nil
}

// Close cleans up resources
func (a *Archiver) Close() {
	if a.encoder != nil {
		a.encoder.Close()
	}
	if a.decoder != nil {
		a.decoder.Close()
	}
}

// Pack writes every present buffer of b into a compressed archive
// under its fixed entry name. Absent optional buffers are skipped
// silently; which buffers are mandatory is enforced at restore time,
// not here. The archive always carries a manifest entry.
func (a *Archiver) Pack(b *Bundle, names FileNames, f engine.Format) ([]byte, error) {
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)

	manifest := Manifest{
		Version:   FORMAT_VERSION,
		Format:    f.String(),
		CreatedAt: time.Now().UTC(),
	}

	for _, nb := range b.named(names) {
		if nb.data == nil {
			continue
		}
		if err := writeEntry(tw, nb.name, nb.data); err != nil {
			return nil, err
		}
		manifest.Entries = append(manifest.Entries, nb.name)
	}

	for _, index := range b.sortedIndices() {
		pair := b.BootstrapPairs[index]
		if pair.RefreshKey != nil {
			name := names.RefreshKeyName(index)
			if err := writeEntry(tw, name, pair.RefreshKey); err != nil {
				return nil, err
			}
			manifest.Entries = append(manifest.Entries, name)
		}
		if pair.SwitchingKey != nil {
			name := names.SwitchingKeyName(index)
			if err := writeEntry(tw, name, pair.SwitchingKey); err != nil {
				return nil, err
			}
			manifest.Entries = append(manifest.Entries, name)
		}
	}

	manifestData, err := json.Marshal(&manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeEntry(tw, MANIFEST_FILE, manifestData); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return a.encoder.EncodeAll(raw.Bytes(), nil), nil
}

// Unpack decompresses and parses an archive. Corruption or an
// unsupported container fails the whole unpack; individual entries
// are looked up later, tolerantly, through Archive.Entry.
func (a *Archiver) Unpack(data []byte) (*Archive, error) {
	raw, err := a.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress archive: %w", err)
	}

	tr := tar.NewReader(bytes.NewReader(raw))
	entries := make(map[string][]byte)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive: %w", err)
		}
		buf, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", hdr.Name, err)
		}
		entries[hdr.Name] = buf
	}

	arch := &Archive{entries: entries}

	if manifestData, ok := entries[MANIFEST_FILE]; ok {
		var manifest Manifest
		if err := json.Unmarshal(manifestData, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
		arch.Manifest = &manifest
	}

	return arch, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write entry header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", name, err)
	}
	return nil
}

// Archive is an opened bundle archive: a set of named entries plus
// the parsed manifest, if the archive carried one.
type Archive struct {
	entries  map[string][]byte
	Manifest *Manifest
}

// Entry returns the named entry's bytes, or false if the archive has
// no such entry. Absence is not an error here: the deserializer
// decides which entries are mandatory.
func (a *Archive) Entry(name string) ([]byte, bool) {
	buf, ok := a.entries[name]
	return buf, ok
}

// EntryNames returns the names of all entries in the archive,
// excluding the manifest.
func (a *Archive) EntryNames() []string {
	entryNames := make([]string, 0, len(a.entries))
	for name := range a.entries {
		if name == MANIFEST_FILE {
			continue
		}
		entryNames = append(entryNames, name)
	}
	return entryNames
}

// Bundle reassembles the top-level named buffers into a Bundle model.
// Missing entries yield absent (nil) buffers. Bootstrap pairs are not
// resolved here: their index set is only knowable from the recovered
// index list, which the deserializer owns.
func (a *Archive) Bundle(names FileNames) *Bundle {
	b := NewBundle()
	assign := []struct {
		name string
		dst  *[]byte
	}{
		{names.Context, &b.Context},
		{names.PublicKey, &b.PublicKey},
		{names.SecretKey, &b.SecretKey},
		{names.MultKey, &b.MultKey},
		{names.RotationKeys, &b.RotationKeys},
		{names.SwitchKey, &b.SwitchKey},
		{names.SecondaryContext, &b.SecondaryContext},
		{names.SecondaryRefreshKey, &b.SecondaryRefreshKey},
		{names.SecondarySwitchKey, &b.SecondarySwitchKey},
		{names.KeyIndexList, &b.KeyIndexList},
	}
	for _, e := range assign {
		if buf, ok := a.entries[e.name]; ok {
			*e.dst = buf
		}
	}
	return b
}
