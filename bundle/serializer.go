package bundle

import (
	"fmt"

	"github.com/proxyre/prebundle/engine"
)

// Collect drains a fully-initialized engine into a populated Bundle.
// Every top-level artifact must export to a non-empty buffer; any
// absent artifact or engine failure aborts the whole collection and
// no partial bundle is returned. An engine with zero bootstrap pairs
// is not an error: the serialized index list is simply empty.
func Collect(eng engine.Engine, f engine.Format) (*Bundle, error) {
	b := NewBundle()

	exports := []struct {
		name      string
		serialize func(engine.Format) ([]byte, error)
		dst       *[]byte
	}{
		{"context", eng.SerializeContext, &b.Context},
		{"publicKey", eng.SerializePublicKey, &b.PublicKey},
		{"secretKey", eng.SerializeSecretKey, &b.SecretKey},
		{"multKey", eng.SerializeMultKey, &b.MultKey},
		{"rotationKeys", eng.SerializeRotationKeys, &b.RotationKeys},
		{"switchKey", eng.SerializeSwitchKey, &b.SwitchKey},
		{"secondaryContext", eng.SerializeSecondaryContext, &b.SecondaryContext},
	}

	for _, e := range exports {
		buf, err := e.serialize(f)
		if err != nil {
			return nil, engineErr(eng, e.name, err)
		}
		if len(buf) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, e.name)
		}
		*e.dst = buf
	}

	// The secondary context's own bootstrap pair is read only after
	// the secondary context itself exported successfully.
	refresh, switching, err := eng.PrimaryBootstrapPair()
	if err != nil {
		return nil, engineErr(eng, "secondary bootstrap pair", err)
	}
	if b.SecondaryRefreshKey, err = serializeObject(eng, "secondaryRefreshKey", eng.SerializeRefreshKey, refresh, f); err != nil {
		return nil, err
	}
	if b.SecondarySwitchKey, err = serializeObject(eng, "secondarySwitchKey", eng.SerializeSwitchingKey, switching, f); err != nil {
		return nil, err
	}

	count := eng.BootstrapKeyCount()
	indices := make([]int, 0, count)

	for i := 0; i < count; i++ {
		entry, err := eng.BootstrapKeyAt(i)
		if err != nil {
			return nil, engineErr(eng, fmt.Sprintf("bootstrap pair at position %d", i), err)
		}

		var pair BootstrapPair
		name := fmt.Sprintf("bootstrap refresh key %d", entry.Index)
		if pair.RefreshKey, err = serializeObject(eng, name, eng.SerializeRefreshKey, entry.RefreshKey, f); err != nil {
			return nil, err
		}
		name = fmt.Sprintf("bootstrap switching key %d", entry.Index)
		if pair.SwitchingKey, err = serializeObject(eng, name, eng.SerializeSwitchingKey, entry.SwitchingKey, f); err != nil {
			return nil, err
		}

		if _, exists := b.BootstrapPairs[entry.Index]; exists {
			return nil, fmt.Errorf("%w: duplicate bootstrap index %d", ErrEngineRejected, entry.Index)
		}
		b.BootstrapPairs[entry.Index] = pair
		indices = append(indices, entry.Index)
	}

	// An empty index list still serializes: absence of bootstrap
	// pairs is a property of the key set, not a collection failure.
	b.KeyIndexList, err = eng.SerializeIndexList(indices, f)
	if err != nil {
		return nil, engineErr(eng, "keyIndexList", err)
	}
	if len(b.KeyIndexList) == 0 {
		return nil, fmt.Errorf("%w: keyIndexList", ErrMissingArtifact)
	}
	b.Indices = indices

	return b, nil
}

func serializeObject(eng engine.Engine, artifact string, serialize func(engine.Object, engine.Format) ([]byte, error), obj engine.Object, f engine.Format) ([]byte, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, artifact)
	}
	buf, err := serialize(obj, f)
	if err != nil {
		return nil, engineErr(eng, artifact, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, artifact)
	}
	return buf, nil
}
