// Package cryptoutil implements the content-hashing and key-derivation
// primitives used by the sync engine: BLAKE3-256 content hashes on the
// active path, and an Argon2id/HKDF/XChaCha20-Poly1305 key hierarchy that
// is retained for a planned end-to-end encryption layer but not exercised
// by the current server-authenticated plaintext transport.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

func newSHA256() hash.Hash {
	return sha256.New()
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// HashSize is the BLAKE3 output length used throughout the sync protocol:
// 32 bytes, rendered as 64 lowercase hex characters.
const HashSize = 32

// authSalt is the fixed, zero-padded salt used for the second Argon2id pass
// that derives auth_hash from the auth key. It is a protocol constant the
// server derives and verifies auth_hash with — it must never change. It is
// not a secret; it exists only to domain-separate this hash from other uses
// of Argon2id with the same key.
var authSalt = padSalt("echopad-auth-v1")

// Argon2id parameters for the master key derivation (password -> master key).
const (
	masterKeyMemoryKiB = 64 * 1024
	masterKeyTime      = 3
	masterKeyThreads   = 1
	masterKeyLen       = 32
)

// Argon2id parameters for the auth-hash derivation (auth key -> auth_hash).
const (
	authHashMemoryKiB = 16 * 1024
	authHashTime      = 2
	authHashThreads   = 1
	authHashLen       = 32
)

// SaltSize is the length in bytes of a freshly generated registration salt.
const SaltSize = 32

// HashBytes computes the BLAKE3-256 hash of data and returns it as 64 lowercase
// hex characters.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader streams r through BLAKE3-256 without buffering the whole
// input in memory, for large attachment files.
func HashReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("cryptoutil: hashing stream: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyHash reports whether data's BLAKE3-256 hash equals the given hex
// digest, using a constant-time comparison of the digest bytes.
func VerifyHash(data []byte, expectedHex string) bool {
	want, err := hex.DecodeString(expectedHex)
	if err != nil || len(want) != HashSize {
		return false
	}

	got := blake3.Sum256(data)

	return subtle.ConstantTimeCompare(got[:], want) == 1
}

// NewSalt generates SaltSize bytes of cryptographically random salt for a
// new registration.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("cryptoutil: generating salt: %w", err)
	}

	return salt, nil
}

// DerivedKeys holds the two keys split from a password-derived master key:
// one for authenticating to the server, one for encrypting vault content.
// Neither is the master key itself, so neither alone can reconstruct it.
type DerivedKeys struct {
	AuthKey       []byte
	EncryptionKey []byte
}

// DeriveMasterKey runs Argon2id over password with the given salt, producing
// the 32-byte master key from which AuthKey and EncryptionKey are split via
// HKDF. This is the expensive, memory-hard step; callers should run it off
// the UI-blocking path.
func DeriveMasterKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, masterKeyTime, masterKeyMemoryKiB, masterKeyThreads, masterKeyLen)
}

// DeriveKeys splits a master key into an auth key and an encryption key via
// HKDF-SHA256 with distinct info strings, so that knowledge of one key
// cannot be used to recover the other.
func DeriveKeys(masterKey []byte) (DerivedKeys, error) {
	authKey, err := hkdfExpand(masterKey, "auth", masterKeyLen)
	if err != nil {
		return DerivedKeys{}, fmt.Errorf("cryptoutil: deriving auth key: %w", err)
	}

	encKey, err := hkdfExpand(masterKey, "encrypt", masterKeyLen)
	if err != nil {
		return DerivedKeys{}, fmt.Errorf("cryptoutil: deriving encryption key: %w", err)
	}

	return DerivedKeys{AuthKey: authKey, EncryptionKey: encKey}, nil
}

func hkdfExpand(secret []byte, info string, length int) ([]byte, error) {
	reader := hkdf.New(newSHA256, secret, nil, []byte(info))

	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}

	return out, nil
}

// HashAuthKey derives the value sent to the server in place of a password:
// a second, fixed-salt Argon2id pass over the auth key. The server never
// sees the password, the master key, or the encryption key.
func HashAuthKey(authKey []byte) string {
	hash := argon2.IDKey(authKey, authSalt, authHashTime, authHashMemoryKiB, authHashThreads, authHashLen)
	return encodeBase64(hash)
}

// EncryptionKeyFromPassword is the full registration-time derivation:
// password + salt -> master key -> {auth_key, encryption_key} -> auth_hash.
// It returns the auth hash to send to the server and the encryption key to
// retain locally (currently unused by the active push/pull path, kept for
// the planned E2E layer).
func EncryptionKeyFromPassword(password string, salt []byte) (authHash string, encryptionKey []byte, err error) {
	master := DeriveMasterKey(password, salt)

	keys, err := DeriveKeys(master)
	if err != nil {
		return "", nil, err
	}

	return HashAuthKey(keys.AuthKey), keys.EncryptionKey, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 under key, returning
// nonce||ciphertext. Used for vault-key wrapping and, in the planned E2E
// layer, file content and path encryption.
func Seal(key, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: constructing AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoutil: generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open decrypts a nonce||ciphertext blob produced by Seal.
func Open(key, sealed, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: constructing AEAD: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("cryptoutil: sealed data shorter than nonce")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decryption failed: %w", err)
	}

	return plaintext, nil
}

func padSalt(s string) []byte {
	const saltLen = 32

	out := make([]byte, saltLen)
	copy(out, s)

	return out
}
