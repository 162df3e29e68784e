package enginetest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// ctPrefix marks fake ciphertexts so Decrypt can reject garbage.
var ctPrefix = []byte("fakect|")

// Encrypt XORs the plaintext with a keystream derived from the
// session's public key. Deterministic on purpose: tests compare
// ciphertexts across an engine and its restored copy.
func (e *Engine) Encrypt(plaintext []byte) ([]byte, error) {
	if e.publicKey == nil {
		return nil, fmt.Errorf("engine has no public key")
	}
	body := xorStream(streamKey(e.publicKey), plaintext)
	return append(append([]byte{}, ctPrefix...), body...), nil
}

func (e *Engine) Decrypt(ciphertext []byte) ([]byte, error) {
	if e.secretKey == nil {
		return nil, fmt.Errorf("engine has no secret key")
	}
	if !bytes.HasPrefix(ciphertext, ctPrefix) {
		return nil, fmt.Errorf("not a ciphertext")
	}
	return xorStream(streamKey(e.publicKey), ciphertext[len(ctPrefix):]), nil
}

// ReencryptionKey derives the fake PRE credential: the source stream
// key followed by the recipient's public key.
func (e *Engine) ReencryptionKey(recipientPublicKey []byte) ([]byte, error) {
	if e.secretKey == nil {
		return nil, fmt.Errorf("engine has no secret key")
	}
	src := streamKey(e.publicKey)
	out := make([]byte, 0, len(src)+len(recipientPublicKey))
	out = append(out, src[:]...)
	return append(out, recipientPublicKey...), nil
}

// Reencrypt retargets a ciphertext to the recipient encoded in the
// PRE credential.
func (e *Engine) Reencrypt(ciphertext, preKey []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, ctPrefix) {
		return nil, fmt.Errorf("not a ciphertext")
	}
	if len(preKey) <= sha256.Size {
		return nil, fmt.Errorf("malformed re-encryption key")
	}
	var src [sha256.Size]byte
	copy(src[:], preKey[:sha256.Size])
	recipientPub := preKey[sha256.Size:]

	plain := xorStream(src, ciphertext[len(ctPrefix):])
	body := xorStream(streamKey(recipientPub), plain)
	return append(append([]byte{}, ctPrefix...), body...), nil
}

// PublicKeyBytes exposes the fake public key material, so tests can
// derive re-encryption credentials targeting this engine.
func (e *Engine) PublicKeyBytes() []byte { return e.publicKey }

func streamKey(publicKey []byte) [sha256.Size]byte {
	return sha256.Sum256(append([]byte("stream/"), publicKey...))
}

func xorStream(key [sha256.Size]byte, data []byte) []byte {
	out := make([]byte, len(data))
	var block [sha256.Size]byte
	var counter [8]byte
	for i := 0; i < len(data); i += sha256.Size {
		binary.BigEndian.PutUint64(counter[:], uint64(i/sha256.Size))
		block = sha256.Sum256(append(key[:], counter[:]...))
		for j := 0; j < sha256.Size && i+j < len(data); j++ {
			out[i+j] = data[i+j] ^ block[j]
		}
	}
	return out
}
