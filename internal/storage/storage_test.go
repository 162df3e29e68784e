package storage_test

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/valyala/gozstd"

	"github.com/proxyre/prebundle/bundle"
	"github.com/proxyre/prebundle/engine"
	"github.com/proxyre/prebundle/internal/enginetest"
	"github.com/proxyre/prebundle/internal/storage"
)

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Printf(format string, v ...interface{}) {
	l.t.Logf(format, v...)
}

func (l *testLogger) Println(v ...interface{}) {
	l.t.Log(v...)
}

func TestStore(t *testing.T) {
	logger := &testLogger{t: t}
	names := bundle.DefaultFileNames()

	t.Run("WriteAndLoad", func(t *testing.T) {
		eng := enginetest.New("st-a", 0, 3)
		b, err := bundle.Collect(eng, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}

		store, err := storage.NewStore(t.TempDir(), names, logger)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if err := store.Write(b); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		loaded, err := store.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !bytes.Equal(loaded.Context, b.Context) {
			t.Error("context changed across write/load")
		}
		if len(loaded.BootstrapPairs) != 2 {
			t.Errorf("expected 2 bootstrap pairs, got %d", len(loaded.BootstrapPairs))
		}
		if !bytes.Equal(loaded.BootstrapPairs[3].SwitchingKey, b.BootstrapPairs[3].SwitchingKey) {
			t.Error("indexed pair changed across write/load")
		}
	})

	t.Run("RestoreFromDirectory", func(t *testing.T) {
		eng := enginetest.New("st-b", 1, 2)
		b, err := bundle.Collect(eng, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}

		store, err := storage.NewStore(t.TempDir(), names, logger)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if err := store.Write(b); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		restored := enginetest.NewEmpty()
		if err := bundle.Restore(restored, store, names, engine.Binary); err != nil {
			t.Fatalf("Restore from directory failed: %v", err)
		}
		if restored.Fingerprint() != eng.Fingerprint() {
			t.Error("directory restore differs from original engine")
		}
	})

	t.Run("MissingFileReportsAbsence", func(t *testing.T) {
		store, err := storage.NewStore(t.TempDir(), names, logger)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if _, ok := store.Entry(names.Context); ok {
			t.Error("missing file must report absence, not a buffer")
		}
	})

	t.Run("ImportFromArchive", func(t *testing.T) {
		eng := enginetest.New("st-c", 7)
		b, err := bundle.Collect(eng, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}

		archiver, err := bundle.NewArchiver(logger)
		if err != nil {
			t.Fatalf("NewArchiver failed: %v", err)
		}
		defer archiver.Close()

		data, err := archiver.Pack(b, names, engine.Binary)
		if err != nil {
			t.Fatalf("Pack failed: %v", err)
		}
		arch, err := archiver.Unpack(data)
		if err != nil {
			t.Fatalf("Unpack failed: %v", err)
		}

		store, err := storage.NewStore(t.TempDir(), names, logger)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if err := store.Import(arch); err != nil {
			t.Fatalf("Import failed: %v", err)
		}

		restored := enginetest.NewEmpty()
		if err := bundle.Restore(restored, store, names, engine.Binary); err != nil {
			t.Fatalf("Restore from imported directory failed: %v", err)
		}
		if restored.Fingerprint() != eng.Fingerprint() {
			t.Error("archive import lost artifact data")
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		eng := enginetest.New("st-d", 0)
		b, err := bundle.Collect(eng, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}

		dir := t.TempDir()
		store, err := storage.NewStore(dir, names, logger)
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if err := store.Write(b); err != nil {
			t.Fatalf("Write failed: %v", err)
		}

		var snap bytes.Buffer
		if err := store.Snapshot(&snap); err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}

		raw, err := gozstd.Decompress(nil, snap.Bytes())
		if err != nil {
			t.Fatalf("snapshot is not valid zstd: %v", err)
		}

		found := make(map[string][]byte)
		tr := tar.NewReader(bytes.NewReader(raw))
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("snapshot tar broken: %v", err)
			}
			buf, _ := io.ReadAll(tr)
			found[hdr.Name] = buf
		}

		onDisk, err := os.ReadFile(filepath.Join(dir, names.Context))
		if err != nil {
			t.Fatalf("reading context file: %v", err)
		}
		if !bytes.Equal(found[names.Context], onDisk) {
			t.Error("snapshot entry differs from file on disk")
		}
		if len(found) != len(b.EntryNames(names)) {
			t.Errorf("snapshot has %d entries, directory has %d files", len(found), len(b.EntryNames(names)))
		}
	})
}
