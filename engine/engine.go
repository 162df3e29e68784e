// Package engine defines the capability surface of the external
// homomorphic-encryption engine. The engine owns all cryptographic
// objects; callers only ever see serialized byte buffers and opaque
// handles. Nothing in this package performs cryptography.
package engine

// Format selects the serialization mode for one key set. It is chosen
// once per bundle and must be identical on restore.
type Format int

const (
	// Binary is the engine's native binary serialization.
	Binary Format = iota

	// JSON is the engine's text serialization, for debugging and
	// interop at a size cost.
	JSON
)

func (f Format) String() string {
	switch f {
	case Binary:
		return "binary"
	case JSON:
		return "json"
	}
	return "unknown"
}

// ParseFormat parses a format name as produced by Format.String.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "binary":
		return Binary, true
	case "json":
		return JSON, true
	}
	return Binary, false
}

// Object is an opaque handle to an engine-owned cryptographic object.
// Handles are only meaningful to the engine that produced them and
// must not be inspected or retained across engine lifetimes.
type Object interface{}

// BootstrapEntry is one indexed bootstrapping key pair as reported by
// the engine. Index is non-negative and unique within one engine.
type BootstrapEntry struct {
	Index        int
	RefreshKey   Object
	SwitchingKey Object
}

// Engine is one loaded cryptographic session: a primary context, its
// key material, and an associated secondary (bit-level) context with
// an open-ended map of indexed bootstrapping key pairs.
//
// Serialize methods return the artifact as a byte buffer; an empty
// buffer means the artifact is absent or the engine failed to export
// it. Deserialize methods install buffers into the session and report
// failure either as a descriptive error or as a *CodeError carrying
// an engine-encoded numeric identifier (translate via ErrorMessage).
type Engine interface {
	// Exports of the primary context and its keys.
	SerializeContext(f Format) ([]byte, error)
	SerializePublicKey(f Format) ([]byte, error)
	SerializeSecretKey(f Format) ([]byte, error)
	SerializeMultKey(f Format) ([]byte, error)
	SerializeRotationKeys(f Format) ([]byte, error)
	SerializeSwitchKey(f Format) ([]byte, error)

	// Exports of the secondary context and its key objects.
	SerializeSecondaryContext(f Format) ([]byte, error)
	SerializeRefreshKey(obj Object, f Format) ([]byte, error)
	SerializeSwitchingKey(obj Object, f Format) ([]byte, error)
	SerializeIndexList(indices []int, f Format) ([]byte, error)

	// Imports, in the dependency order of reconstruction.
	DeserializeContext(buf []byte, f Format) error
	DeserializePublicKey(buf []byte, f Format) error
	DeserializeSecretKey(buf []byte, f Format) error
	LoadMultKey(buf []byte, f Format) error
	LoadRotationKeys(buf []byte, f Format) error
	DeserializeSwitchKey(buf []byte, f Format) error
	DeserializeSecondaryContext(buf []byte, f Format) error
	DeserializeRefreshKey(buf []byte, f Format) (Object, error)
	DeserializeSwitchingKey(buf []byte, f Format) (Object, error)
	DeserializeIndexList(buf []byte, f Format) ([]int, error)

	// Bootstrap key map of the secondary context.
	BootstrapKeyCount() int
	BootstrapKeyAt(i int) (BootstrapEntry, error)
	PrimaryBootstrapPair() (refresh, switching Object, err error)
	NewBootstrapKey(refresh, switching Object) (Object, error)
	LoadBootstrapKey(key Object) error
	LoadBootstrapKeyAt(index int, key Object) error

	// BindSecondaryContext attaches the reconstructed secondary
	// context back onto the primary context as its bit-level context.
	BindSecondaryContext() error

	// ErrorMessage translates an engine-encoded numeric error
	// identifier into a human-readable message.
	ErrorMessage(code int) string
}

// Cipher is the record-level encryption surface of the engine: cell
// encryption under the session's public key and derivation of proxy
// re-encryption credentials for retargeting ciphertexts.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)

	// ReencryptionKey derives a PRE credential allowing a proxy to
	// retarget ciphertexts to the holder of recipientPublicKey
	// without decryption.
	ReencryptionKey(recipientPublicKey []byte) ([]byte, error)

	// Reencrypt applies a PRE credential to a ciphertext.
	Reencrypt(ciphertext, preKey []byte) ([]byte, error)
}
