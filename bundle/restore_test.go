package bundle_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/proxyre/prebundle/bundle"
	"github.com/proxyre/prebundle/engine"
	"github.com/proxyre/prebundle/internal/enginetest"
)

func collectAndPack(t *testing.T, eng *enginetest.Engine, archiver *bundle.Archiver, f engine.Format) []byte {
	t.Helper()
	b, err := bundle.Collect(eng, f)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	data, err := archiver.Pack(b, bundle.DefaultFileNames(), f)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	return data
}

func TestRestore(t *testing.T) {
	logger := &testLogger{t: t}
	names := bundle.DefaultFileNames()

	archiver, err := bundle.NewArchiver(logger)
	if err != nil {
		t.Fatalf("NewArchiver failed: %v", err)
	}
	defer archiver.Close()

	t.Run("FullRoundTrip", func(t *testing.T) {
		original := enginetest.New("rt-a", 0, 1, 5)
		data := collectAndPack(t, original, archiver, engine.Binary)

		restored := enginetest.NewEmpty()
		if err := bundle.RestoreArchive(restored, archiver, data, names, engine.Binary); err != nil {
			t.Fatalf("RestoreArchive failed: %v", err)
		}

		if restored.Fingerprint() != original.Fingerprint() {
			t.Error("restored engine state differs from original")
		}
		if !restored.Bound() {
			t.Error("secondary context not bound after restore")
		}
	})

	t.Run("OperationalEquivalence", func(t *testing.T) {
		original := enginetest.New("rt-b", 3)
		data := collectAndPack(t, original, archiver, engine.Binary)

		restored := enginetest.NewEmpty()
		if err := bundle.RestoreArchive(restored, archiver, data, names, engine.Binary); err != nil {
			t.Fatalf("RestoreArchive failed: %v", err)
		}

		plaintext := []byte("4217 records, column 3")
		ct, err := original.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		got, err := restored.Decrypt(ct)
		if err != nil {
			t.Fatalf("restored engine cannot decrypt: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Error("restored engine decrypts to different plaintext")
		}

		// Re-encryption through the restored engine retargets to a
		// third party's key set.
		recipient := enginetest.New("rt-b-recipient")
		preKey, err := restored.ReencryptionKey(recipient.PublicKeyBytes())
		if err != nil {
			t.Fatalf("ReencryptionKey failed: %v", err)
		}
		retargeted, err := restored.Reencrypt(ct, preKey)
		if err != nil {
			t.Fatalf("Reencrypt failed: %v", err)
		}
		got, err = recipient.Decrypt(retargeted)
		if err != nil {
			t.Fatalf("recipient cannot decrypt retargeted ciphertext: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Error("retargeted ciphertext decrypts to different plaintext")
		}
	})

	t.Run("ManifestFormatWins", func(t *testing.T) {
		original := enginetest.New("rt-c", 2)
		data := collectAndPack(t, original, archiver, engine.JSON)

		// Fallback says binary; the manifest recorded json.
		restored := enginetest.NewEmpty()
		if err := bundle.RestoreArchive(restored, archiver, data, names, engine.Binary); err != nil {
			t.Fatalf("RestoreArchive ignored the manifest format: %v", err)
		}
	})

	t.Run("MissingContextFailsBeforeAnyMutation", func(t *testing.T) {
		original := enginetest.New("rt-d", 1)
		b, err := bundle.Collect(original, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		b.Context = nil

		target := enginetest.NewEmpty()
		before := target.Fingerprint()

		err = bundle.Restore(target, b.Source(names), names, engine.Binary)
		if !errors.Is(err, bundle.ErrMissingArtifact) {
			t.Fatalf("expected ErrMissingArtifact, got %v", err)
		}
		if target.Fingerprint() != before {
			t.Error("failed restore must not mutate the engine")
		}
	})

	t.Run("MissingSecretKeyFails", func(t *testing.T) {
		original := enginetest.New("rt-e", 1)
		b, err := bundle.Collect(original, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		b.SecretKey = nil

		err = bundle.Restore(enginetest.NewEmpty(), b.Source(names), names, engine.Binary)
		if !errors.Is(err, bundle.ErrMissingArtifact) {
			t.Errorf("expected ErrMissingArtifact, got %v", err)
		}
	})

	t.Run("OptionalEvalKeysTolerated", func(t *testing.T) {
		original := enginetest.New("rt-f", 1)
		b, err := bundle.Collect(original, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		b.MultKey = nil
		b.RotationKeys = nil

		restored := enginetest.NewEmpty()
		if err := bundle.Restore(restored, b.Source(names), names, engine.Binary); err != nil {
			t.Fatalf("restore without eval keys failed: %v", err)
		}
		if restored.HasEvalKeys() {
			t.Error("eval keys should be absent on the restored engine")
		}
		if !restored.Bound() {
			t.Error("context should still be usable without eval keys")
		}
	})

	t.Run("EmptyIndexListRejected", func(t *testing.T) {
		original := enginetest.New("rt-g") // zero bootstrap pairs
		data := collectAndPack(t, original, archiver, engine.Binary)

		err := bundle.RestoreArchive(enginetest.NewEmpty(), archiver, data, names, engine.Binary)
		if !errors.Is(err, bundle.ErrEmptyIndexList) {
			t.Errorf("expected ErrEmptyIndexList, got %v", err)
		}
	})

	t.Run("ListedIndexWithMissingEntryIsFatal", func(t *testing.T) {
		original := enginetest.New("rt-h", 0, 4)
		b, err := bundle.Collect(original, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		// The index list still names 4, but its pair is gone.
		delete(b.BootstrapPairs, 4)

		err = bundle.Restore(enginetest.NewEmpty(), b.Source(names), names, engine.Binary)
		if !errors.Is(err, bundle.ErrEntryMissing) {
			t.Errorf("expected ErrEntryMissing, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "4_") {
			t.Errorf("error should name the missing indexed entry: %v", err)
		}
	})

	t.Run("EngineCodeTranslated", func(t *testing.T) {
		original := enginetest.New("rt-i", 1)
		b, err := bundle.Collect(original, engine.Binary)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}

		target := enginetest.NewEmpty()
		target.RejectArtifact = "context"
		target.RejectCode = enginetest.CodeBadBuffer

		err = bundle.Restore(target, b.Source(names), names, engine.Binary)
		if !errors.Is(err, bundle.ErrEngineRejected) {
			t.Fatalf("expected ErrEngineRejected, got %v", err)
		}
		if !strings.Contains(err.Error(), target.ErrorMessage(enginetest.CodeBadBuffer)) {
			t.Errorf("numeric engine code not translated to a message: %v", err)
		}
	})
}
