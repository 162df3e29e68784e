// Package record applies selective homomorphic encryption to tabular
// records. Callers supply rows and a column-skip list; each processed
// row comes back with its sensitive cells replaced by base64
// ciphertext and, when a recipient is configured, a proxy
// re-encryption credential allowing that row's ciphertexts to be
// retargeted without decryption. Row iteration and CSV handling stay
// with the caller.
package record

import (
	"encoding/base64"
	"fmt"

	"github.com/proxyre/prebundle/engine"
)

// Config configures an Encryptor.
type Config struct {
	// SkipColumns lists zero-based column positions left in
	// plaintext.
	SkipColumns []int

	// RecipientPublicKey, when set, makes EncryptRow derive one PRE
	// credential per row for retargeting to this recipient.
	RecipientPublicKey []byte
}

// Encryptor encrypts rows cell by cell through the engine's cipher.
type Encryptor struct {
	cipher    engine.Cipher
	skip      map[int]bool
	recipient []byte
}

// NewEncryptor creates an Encryptor over the given cipher.
func NewEncryptor(cipher engine.Cipher, config *Config) *Encryptor {
	if config == nil {
		config = &Config{}
	}
	skip := make(map[int]bool, len(config.SkipColumns))
	for _, col := range config.SkipColumns {
		skip[col] = true
	}
	return &Encryptor{cipher: cipher, skip: skip, recipient: config.RecipientPublicKey}
}

// Skipped reports whether a column is left in plaintext.
func (e *Encryptor) Skipped(col int) bool {
	return e.skip[col]
}

// EncryptRow returns the transformed row and the row's base64 PRE
// credential (empty when no recipient is configured). Skipped cells
// pass through unchanged. Any cell failure aborts the whole row.
func (e *Encryptor) EncryptRow(row []string) ([]string, string, error) {
	out := make([]string, len(row))
	for col, cell := range row {
		if e.skip[col] {
			out[col] = cell
			continue
		}
		ct, err := e.cipher.Encrypt([]byte(cell))
		if err != nil {
			return nil, "", fmt.Errorf("failed to encrypt column %d: %w", col, err)
		}
		out[col] = base64.StdEncoding.EncodeToString(ct)
	}

	if e.recipient == nil {
		return out, "", nil
	}
	preKey, err := e.cipher.ReencryptionKey(e.recipient)
	if err != nil {
		return nil, "", fmt.Errorf("failed to derive re-encryption key: %w", err)
	}
	return out, base64.StdEncoding.EncodeToString(preKey), nil
}

// DecryptRow inverts EncryptRow for rows owned by this key set.
func (e *Encryptor) DecryptRow(row []string) ([]string, error) {
	out := make([]string, len(row))
	for col, cell := range row {
		if e.skip[col] {
			out[col] = cell
			continue
		}
		ct, err := base64.StdEncoding.DecodeString(cell)
		if err != nil {
			return nil, fmt.Errorf("column %d is not base64 ciphertext: %w", col, err)
		}
		plain, err := e.cipher.Decrypt(ct)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt column %d: %w", col, err)
		}
		out[col] = string(plain)
	}
	return out, nil
}

// ReencryptRow applies a PRE credential to every encrypted cell of a
// row, retargeting it to the credential's recipient. Skipped cells
// pass through.
func (e *Encryptor) ReencryptRow(row []string, preKeyB64 string) ([]string, error) {
	preKey, err := base64.StdEncoding.DecodeString(preKeyB64)
	if err != nil {
		return nil, fmt.Errorf("re-encryption key is not base64: %w", err)
	}
	out := make([]string, len(row))
	for col, cell := range row {
		if e.skip[col] {
			out[col] = cell
			continue
		}
		ct, err := base64.StdEncoding.DecodeString(cell)
		if err != nil {
			return nil, fmt.Errorf("column %d is not base64 ciphertext: %w", col, err)
		}
		retargeted, err := e.cipher.Reencrypt(ct, preKey)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encrypt column %d: %w", col, err)
		}
		out[col] = base64.StdEncoding.EncodeToString(retargeted)
	}
	return out, nil
}
