package bundle

import (
	"fmt"

	"github.com/proxyre/prebundle/engine"
)

// Restore replays artifact buffers from src through the engine to
// reconstruct a live cryptographic session. The replay order is
// strict: each step depends on objects produced by earlier ones. Any
// failure aborts the whole reconstruction; a partially restored
// engine is never reported as success.
//
// Mandatory entries: context, publicKey, secretKey, switchKey,
// secondaryContext, the secondary bootstrap pair and the index list.
// multKey and rotationKeys are optional; the restored session simply
// lacks the operations that need them.
func Restore(eng engine.Engine, src EntrySource, names FileNames, f engine.Format) error {
	// Step 1: primary context. Checked before any engine call so a
	// missing context mutates nothing.
	if err := installRequired(eng, src, names.Context, eng.DeserializeContext, f); err != nil {
		return err
	}

	// Step 2: key pair.
	if err := installRequired(eng, src, names.PublicKey, eng.DeserializePublicKey, f); err != nil {
		return err
	}
	if err := installRequired(eng, src, names.SecretKey, eng.DeserializeSecretKey, f); err != nil {
		return err
	}

	// Step 3: evaluation keys, installed only when present.
	if err := installOptional(eng, src, names.MultKey, eng.LoadMultKey, f); err != nil {
		return err
	}
	if err := installOptional(eng, src, names.RotationKeys, eng.LoadRotationKeys, f); err != nil {
		return err
	}

	// Steps 4 and 5: scheme-switching key, then the secondary context.
	if err := installRequired(eng, src, names.SwitchKey, eng.DeserializeSwitchKey, f); err != nil {
		return err
	}
	if err := installRequired(eng, src, names.SecondaryContext, eng.DeserializeSecondaryContext, f); err != nil {
		return err
	}

	// Step 6: the secondary context's own bootstrap pair, combined
	// into one key object and loaded as the primary bootstrap key.
	refresh, err := deserializeObject(eng, src, names.SecondaryRefreshKey, eng.DeserializeRefreshKey, f)
	if err != nil {
		return err
	}
	switching, err := deserializeObject(eng, src, names.SecondarySwitchKey, eng.DeserializeSwitchingKey, f)
	if err != nil {
		return err
	}
	key, err := eng.NewBootstrapKey(refresh, switching)
	if err != nil {
		return engineErr(eng, "secondary bootstrap key", err)
	}
	if err := eng.LoadBootstrapKey(key); err != nil {
		return engineErr(eng, "secondary bootstrap key", err)
	}

	// Step 7: recovered index list. A restored secondary context
	// needs at least one bootstrap entry to be usable.
	listBuf, ok := src.Entry(names.KeyIndexList)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEmptyIndexList, names.KeyIndexList)
	}
	indices, err := eng.DeserializeIndexList(listBuf, f)
	if err != nil {
		return engineErr(eng, names.KeyIndexList, err)
	}
	if len(indices) == 0 {
		return fmt.Errorf("%w: %s decoded to zero indices", ErrEmptyIndexList, names.KeyIndexList)
	}

	// Step 8: every listed pair. A listed index with a missing entry
	// is fatal, never skipped.
	for _, index := range indices {
		refresh, err := deserializeObject(eng, src, names.RefreshKeyName(index), eng.DeserializeRefreshKey, f)
		if err != nil {
			return err
		}
		switching, err := deserializeObject(eng, src, names.SwitchingKeyName(index), eng.DeserializeSwitchingKey, f)
		if err != nil {
			return err
		}
		key, err := eng.NewBootstrapKey(refresh, switching)
		if err != nil {
			return engineErr(eng, fmt.Sprintf("bootstrap key %d", index), err)
		}
		if err := eng.LoadBootstrapKeyAt(index, key); err != nil {
			return engineErr(eng, fmt.Sprintf("bootstrap key %d", index), err)
		}
	}

	// Step 9: bind the secondary context onto the primary.
	if err := eng.BindSecondaryContext(); err != nil {
		return engineErr(eng, "secondary context binding", err)
	}

	return nil
}

// RestoreArchive unpacks archive bytes and restores the engine from
// them in one call. The serialization format comes from the archive
// manifest when present, otherwise from fallback.
func RestoreArchive(eng engine.Engine, a *Archiver, data []byte, names FileNames, fallback engine.Format) error {
	arch, err := a.Unpack(data)
	if err != nil {
		return err
	}
	f := fallback
	if arch.Manifest != nil {
		if parsed, ok := engine.ParseFormat(arch.Manifest.Format); ok {
			f = parsed
		}
	}
	return Restore(eng, arch, names, f)
}

func installRequired(eng engine.Engine, src EntrySource, name string, install func([]byte, engine.Format) error, f engine.Format) error {
	buf, ok := src.Entry(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingArtifact, name)
	}
	if err := install(buf, f); err != nil {
		return engineErr(eng, name, err)
	}
	return nil
}

func installOptional(eng engine.Engine, src EntrySource, name string, install func([]byte, engine.Format) error, f engine.Format) error {
	buf, ok := src.Entry(name)
	if !ok {
		return nil
	}
	if err := install(buf, f); err != nil {
		return engineErr(eng, name, err)
	}
	return nil
}

func deserializeObject(eng engine.Engine, src EntrySource, name string, deserialize func([]byte, engine.Format) (engine.Object, error), f engine.Format) (engine.Object, error) {
	buf, ok := src.Entry(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryMissing, name)
	}
	obj, err := deserialize(buf, f)
	if err != nil {
		return nil, engineErr(eng, name, err)
	}
	return obj, nil
}
