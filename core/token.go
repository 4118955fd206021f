package core

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

// CipherAES256CBC is the only supported token cipher.
const CipherAES256CBC = "AES-256-CBC"

const (
	tokenIVSize  = aes.BlockSize
	tokenKeySize = 32
	tokenKeyInfo = "naija-emoji-api token key"
)

// SecretMaterial is the process-wide token secret. It is built once at
// startup and never rotated while the process runs.
type SecretMaterial struct {
	Secret string
	Cipher string
	IV     []byte
}

// NewSecretMaterial resolves the configured secret, cipher and IV. An empty
// IV in cfg yields a random one, so tokens from a previous process are never
// reproduced.
func NewSecretMaterial(cfg Config) (SecretMaterial, error) {
	m := SecretMaterial{Secret: cfg.TokenSecret, Cipher: cfg.TokenCipher}
	if cfg.TokenIV == "" {
		m.IV = make([]byte, tokenIVSize)
		if _, err := rand.Read(m.IV); err != nil {
			return SecretMaterial{}, fmt.Errorf("generate token iv: %w", err)
		}
		return m, nil
	}
	iv, err := hex.DecodeString(cfg.TokenIV)
	if err != nil {
		return SecretMaterial{}, fmt.Errorf("decode token iv: %w", err)
	}
	m.IV = iv
	return m, nil
}

// TokenCodec turns login material into an opaque bearer token. Tokens are
// never decrypted; the server only compares them.
type TokenCodec struct {
	block cipher.Block
	iv    []byte
}

func NewTokenCodec(m SecretMaterial) (*TokenCodec, error) {
	if !strings.EqualFold(m.Cipher, CipherAES256CBC) {
		return nil, fmt.Errorf("unsupported token cipher %q", m.Cipher)
	}
	if len(m.IV) != tokenIVSize {
		return nil, fmt.Errorf("token iv must be %d bytes, got %d", tokenIVSize, len(m.IV))
	}
	key := make([]byte, tokenKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(m.Secret), nil, []byte(tokenKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &TokenCodec{block: block, iv: bytes.Clone(m.IV)}, nil
}

// Generate encrypts material and returns it base64 encoded. Identical input
// gives an identical token for the lifetime of the codec.
func (c *TokenCodec) Generate(material string) string {
	plain := pkcs7Pad([]byte(material), aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, plain)
	return base64.StdEncoding.EncodeToString(out)
}

// TokenMaterial composes the plaintext a login token is generated from.
func TokenMaterial(username, password string, issuedAt int64) string {
	return fmt.Sprintf("%s-%s-%d", username, password, issuedAt)
}

// tokenDigest is what the credential store keeps instead of the raw token.
func tokenDigest(token string) string {
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}
