package bundle_test

import (
	"errors"
	"testing"

	"github.com/proxyre/prebundle/bundle"
	"github.com/proxyre/prebundle/engine"
	"github.com/proxyre/prebundle/internal/enginetest"
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

func TestCollect(t *testing.T) {
	t.Run("FullyInitializedEngine", func(t *testing.T) {
		eng := enginetest.New("seed-a", 0, 1, 7)

		b, err := bundle.Collect(eng, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}

		for _, buf := range [][]byte{
			b.Context, b.PublicKey, b.SecretKey, b.MultKey, b.RotationKeys,
			b.SwitchKey, b.SecondaryContext, b.SecondaryRefreshKey,
			b.SecondarySwitchKey, b.KeyIndexList,
		} {
			if len(buf) == 0 {
				t.Fatal("expected every named buffer present")
			}
		}

		if len(b.BootstrapPairs) != 3 {
			t.Errorf("expected 3 bootstrap pairs, got %d", len(b.BootstrapPairs))
		}
		for _, index := range []int{0, 1, 7} {
			pair, ok := b.BootstrapPairs[index]
			if !ok {
				t.Fatalf("missing bootstrap pair %d", index)
			}
			if len(pair.RefreshKey) == 0 || len(pair.SwitchingKey) == 0 {
				t.Errorf("bootstrap pair %d has empty halves", index)
			}
		}
	})

	t.Run("IndexIntegrity", func(t *testing.T) {
		for _, indices := range [][]int{{}, {3}, {5, 0, 12, 2}} {
			eng := enginetest.New("seed-b", indices...)

			b, err := bundle.Collect(eng, engine.Binary)
			if err != nil {
				t.Fatalf("Collect failed for %v: %v", indices, err)
			}

			if len(b.Indices) != len(indices) {
				t.Fatalf("expected %d indices, got %d", len(indices), len(b.Indices))
			}
			for i, index := range indices {
				if b.Indices[i] != index {
					t.Errorf("index order not engine-reported: got %v, want %v", b.Indices, indices)
					break
				}
			}
			if len(b.BootstrapPairs) != len(indices) {
				t.Errorf("pair count %d != index count %d", len(b.BootstrapPairs), len(indices))
			}
			for _, index := range indices {
				if _, ok := b.BootstrapPairs[index]; !ok {
					t.Errorf("index %d in list but not in pairs", index)
				}
			}

			// The serialized list decodes back to the same indices.
			decoded, err := eng.DeserializeIndexList(b.KeyIndexList, engine.Binary)
			if err != nil {
				t.Fatalf("index list did not round-trip: %v", err)
			}
			if len(decoded) != len(indices) {
				t.Errorf("decoded %d indices, want %d", len(decoded), len(indices))
			}
		}
	})

	t.Run("EmptyBootstrapStillHasIndexList", func(t *testing.T) {
		eng := enginetest.New("seed-c")

		b, err := bundle.Collect(eng, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if len(b.KeyIndexList) == 0 {
			t.Error("expected a serialized (empty) index list")
		}
		if len(b.BootstrapPairs) != 0 {
			t.Errorf("expected no pairs, got %d", len(b.BootstrapPairs))
		}
	})

	t.Run("FailFastOnAbsentArtifact", func(t *testing.T) {
		for _, artifact := range []string{"context", "secretKey", "secondary"} {
			eng := enginetest.New("seed-d", 1)
			eng.EmptyArtifact = artifact

			b, err := bundle.Collect(eng, engine.Binary)
			if !errors.Is(err, bundle.ErrMissingArtifact) {
				t.Errorf("artifact %s: expected ErrMissingArtifact, got %v", artifact, err)
			}
			if b != nil {
				t.Errorf("artifact %s: no partial bundle may be returned", artifact)
			}
		}
	})

	t.Run("FormatIsRecorded", func(t *testing.T) {
		eng := enginetest.New("seed-e", 2)

		b, err := bundle.Collect(eng, engine.JSON)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}

		// Buffers serialized as JSON must not deserialize as binary.
		if err := enginetest.NewEmpty().DeserializeContext(b.Context, engine.Binary); err == nil {
			t.Error("expected format mismatch to be rejected")
		}
	})
}
