// Package cipher seals uploaded files under a user passphrase.
//
// Envelope layout:
//
//	magic(4) | version(1) | flags(1) | salt(16) | nonce(12) | ciphertext
//
// The key is argon2id(passphrase, salt). The header up to the nonce is bound
// into the GCM tag together with the caller's AAD, so flipping a flag or the
// salt fails authentication like a wrong passphrase does.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/argon2"

	"github.com/blockvault/internal/apperr"
)

const (
	version   byte = 1
	saltSize       = 16
	nonceSize      = 12
	keySize        = 32

	headerSize = len(magic) + 2 + saltSize + nonceSize

	flagZstd byte = 1 << 0
)

const magic = "BVLT"

// argon2id parameters
const (
	kdfTime    = 1
	kdfMemory  = 64 * 1024
	kdfThreads = 4
)

var ErrDecrypt = apperr.New(apperr.InvalidInput, "decryption failed: wrong key, wrong aad or corrupted blob")

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// Options 加密选项
type Options struct {
	// Compress zstd-compresses the plaintext before sealing.
	Compress bool
}

// Encrypt seals plaintext without compression.
func Encrypt(plaintext []byte, passphrase string, aad []byte) ([]byte, error) {
	return Seal(plaintext, passphrase, aad, Options{})
}

// Seal encrypts plaintext into a self-describing envelope.
func Seal(plaintext []byte, passphrase string, aad []byte, opts Options) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("empty passphrase")
	}

	var flags byte
	body := plaintext
	if opts.Compress {
		body = encoder.EncodeAll(plaintext, make([]byte, 0, len(plaintext)/2))
		flags |= flagZstd
	}

	header := make([]byte, headerSize)
	copy(header, magic)
	header[len(magic)] = version
	header[len(magic)+1] = flags
	salt := header[len(magic)+2 : len(magic)+2+saltSize]
	nonce := header[len(magic)+2+saltSize:]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(body)+gcm.Overhead())
	copy(out, header)
	return gcm.Seal(out, nonce, body, additionalData(header, aad)), nil
}

// Decrypt opens an envelope produced by Seal. Every failure is ErrDecrypt.
func Decrypt(blob []byte, passphrase string, aad []byte) ([]byte, error) {
	if len(blob) < headerSize || string(blob[:len(magic)]) != magic || blob[len(magic)] != version {
		return nil, ErrDecrypt
	}
	header := blob[:headerSize]
	flags := header[len(magic)+1]
	salt := header[len(magic)+2 : len(magic)+2+saltSize]
	nonce := header[len(magic)+2+saltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, ErrDecrypt
	}
	body, err := gcm.Open(nil, nonce, blob[headerSize:], additionalData(header, aad))
	if err != nil {
		return nil, ErrDecrypt
	}

	if flags&flagZstd != 0 {
		plain, err := decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, ErrDecrypt
		}
		return plain, nil
	}
	return body, nil
}

func newGCM(passphrase string, salt []byte) (gocipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, kdfTime, kdfMemory, kdfThreads, keySize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return gocipher.NewGCM(block)
}

func additionalData(header, aad []byte) []byte {
	ad := make([]byte, 0, len(header)+len(aad))
	ad = append(ad, header...)
	return append(ad, aad...)
}
