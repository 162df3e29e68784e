// Package bundle collects the serialized artifacts of a homomorphic
// key set into a single portable archive and reconstructs the exact
// engine state from one. It is the core of prebundle: the model of
// named artifact buffers, the serializer that drains a live engine,
// the archiver, the chunked transfer worker, and the deserializer
// that replays buffers through the engine in dependency order.
package bundle

import (
	"fmt"
	"log"
	"sort"
)

const (
	// FORMAT_VERSION is the archive manifest format version.
	FORMAT_VERSION = "1.0"

	// MANIFEST_FILE is the archive entry holding bundle metadata.
	MANIFEST_FILE = "manifest.json"
)

// Logger interface for bundle operations
type Logger interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

// defaultLogger is a simple logger implementation
type defaultLogger struct{}

func (d defaultLogger) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

func (d defaultLogger) Println(v ...interface{}) {
	log.Println(v...)
}

// BootstrapPair holds the two serialized halves of one indexed
// bootstrapping key pair.
type BootstrapPair struct {
	RefreshKey   []byte
	SwitchingKey []byte
}

// Bundle is the in-memory model of one key set: ten named optional
// byte buffers plus the indexed bootstrap pair collection. A nil
// buffer means the artifact is absent. A Bundle is populated exactly
// once (by Collect or by unpacking an archive), consumed exactly
// once, and never reused.
type Bundle struct {
	Context              []byte
	PublicKey            []byte
	SecretKey            []byte
	MultKey              []byte
	RotationKeys         []byte
	SwitchKey            []byte
	SecondaryContext     []byte
	SecondaryRefreshKey  []byte
	SecondarySwitchKey   []byte
	KeyIndexList         []byte

	// BootstrapPairs is keyed by engine-reported index. The map keeps
	// index uniqueness an invariant of the type itself.
	BootstrapPairs map[int]BootstrapPair

	// Indices preserves the engine-reported order of bootstrap
	// indices; it enumerates exactly the keys of BootstrapPairs.
	Indices []int
}

// NewBundle creates an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{BootstrapPairs: make(map[int]BootstrapPair)}
}

// FileNames is the fixed entry-name table of the wire contract. Each
// top-level artifact maps to one logical filename; each indexed
// bootstrap pair maps to two names formed by prefixing the base names
// with "<index>_".
type FileNames struct {
	Context             string
	PublicKey           string
	SecretKey           string
	MultKey             string
	RotationKeys        string
	SwitchKey           string
	SecondaryContext    string
	SecondaryRefreshKey string
	SecondarySwitchKey  string
	KeyIndexList        string

	// Base names for indexed bootstrap pair entries.
	BootRefreshKey   string
	BootSwitchingKey string
}

// DefaultFileNames returns the standard entry-name table.
func DefaultFileNames() FileNames {
	return FileNames{
		Context:             "context",
		PublicKey:           "publicKey",
		SecretKey:           "secretKey",
		MultKey:             "multKey",
		RotationKeys:        "rotationKeys",
		SwitchKey:           "switchKey",
		SecondaryContext:    "secondaryContext",
		SecondaryRefreshKey: "secondaryRefreshKey",
		SecondarySwitchKey:  "secondarySwitchKey",
		KeyIndexList:        "keyIndexList",
		BootRefreshKey:      "bootRefreshKey",
		BootSwitchingKey:    "bootSwitchingKey",
	}
}

// RefreshKeyName returns the entry name of the indexed refresh key.
func (n FileNames) RefreshKeyName(index int) string {
	return fmt.Sprintf("%d_%s", index, n.BootRefreshKey)
}

// SwitchingKeyName returns the entry name of the indexed switching key.
func (n FileNames) SwitchingKeyName(index int) string {
	return fmt.Sprintf("%d_%s", index, n.BootSwitchingKey)
}

// named returns the top-level artifacts of b in the fixed table
// order, pairing each entry name with its buffer (nil if absent).
func (b *Bundle) named(names FileNames) []namedBuffer {
	return []namedBuffer{
		{names.Context, b.Context},
		{names.PublicKey, b.PublicKey},
		{names.SecretKey, b.SecretKey},
		{names.MultKey, b.MultKey},
		{names.RotationKeys, b.RotationKeys},
		{names.SwitchKey, b.SwitchKey},
		{names.SecondaryContext, b.SecondaryContext},
		{names.SecondaryRefreshKey, b.SecondaryRefreshKey},
		{names.SecondarySwitchKey, b.SecondarySwitchKey},
		{names.KeyIndexList, b.KeyIndexList},
	}
}

type namedBuffer struct {
	name string
	data []byte
}

// sortedIndices returns the bootstrap indices in ascending order, for
// deterministic archive entry ordering.
func (b *Bundle) sortedIndices() []int {
	indices := make([]int, 0, len(b.BootstrapPairs))
	for index := range b.BootstrapPairs {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// EntryNames returns the names of all present artifacts in the
// deterministic pack order: named table order first, then bootstrap
// pairs by ascending index.
func (b *Bundle) EntryNames(names FileNames) []string {
	entryNames := make([]string, 0, 10+2*len(b.BootstrapPairs))
	for _, nb := range b.named(names) {
		if nb.data != nil {
			entryNames = append(entryNames, nb.name)
		}
	}
	for _, index := range b.sortedIndices() {
		pair := b.BootstrapPairs[index]
		if pair.RefreshKey != nil {
			entryNames = append(entryNames, names.RefreshKeyName(index))
		}
		if pair.SwitchingKey != nil {
			entryNames = append(entryNames, names.SwitchingKeyName(index))
		}
	}
	return entryNames
}

// Source adapts the in-memory bundle to an EntrySource under the
// given name table, so Restore can consume a bundle that never went
// through an archive.
func (b *Bundle) Source(names FileNames) EntrySource {
	return &bundleSource{bundle: b, names: names}
}

type bundleSource struct {
	bundle *Bundle
	names  FileNames
}

func (s *bundleSource) Entry(name string) ([]byte, bool) {
	for _, nb := range s.bundle.named(s.names) {
		if nb.name == name && nb.data != nil {
			return nb.data, true
		}
	}
	for index, pair := range s.bundle.BootstrapPairs {
		switch name {
		case s.names.RefreshKeyName(index):
			if pair.RefreshKey != nil {
				return pair.RefreshKey, true
			}
		case s.names.SwitchingKeyName(index):
			if pair.SwitchingKey != nil {
				return pair.SwitchingKey, true
			}
		}
	}
	return nil, false
}

// EntrySource reads one named artifact buffer, reporting absence
// without error. Archives, filesystem stores and in-memory bundles
// all implement it; the deserializer decides which entries are
// mandatory.
type EntrySource interface {
	Entry(name string) ([]byte, bool)
}
