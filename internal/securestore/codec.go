package securestore

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"

	"did-vault/go-backend/internal/domains/contracts"
)

const (
	codecVersion  = 1
	codecSaltSize = 16
	cipherKeySize = 32
	macKeySize    = 32
	// version | time | memoryKB | threads
	codecHeaderSize = 1 + 4 + 4 + 1
)

var textEncoding = base64.RawURLEncoding

// Codec encrypts secrets under a password for storage and export.
//
// Layout before encoding: header | salt | iv | AES-256-CBC(PKCS#7) | HMAC-SHA256.
// A ciphertext that fails any check reports contracts.ErrWrongPassword.
type Codec struct {
	params KDFParams
}

func NewCodec(params KDFParams) *Codec {
	return &Codec{params: params.orDefault()}
}

func (c *Codec) Params() KDFParams {
	return c.params
}

func (c *Codec) Encrypt(plaintext []byte, password string) (string, error) {
	salt := make([]byte, codecSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	header := encodeHeader(c.params)
	keys := c.params.derive(password, salt, cipherKeySize+macKeySize)
	defer Scrub(keys)

	block, err := aes.NewCipher(keys[:cipherKeySize])
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer Scrub(padded)

	out := make([]byte, 0, len(header)+len(salt)+len(iv)+len(padded)+sha256.Size)
	out = append(out, header...)
	out = append(out, salt...)
	out = append(out, iv...)
	ctStart := len(out)
	out = append(out, make([]byte, len(padded))...)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[ctStart:], padded)

	mac := hmac.New(sha256.New, keys[cipherKeySize:])
	mac.Write(out)
	out = mac.Sum(out)
	return textEncoding.EncodeToString(out), nil
}

func (c *Codec) Decrypt(text, password string) ([]byte, error) {
	raw, err := textEncoding.DecodeString(text)
	if err != nil {
		return nil, contracts.ErrWrongPassword
	}
	minLen := codecHeaderSize + codecSaltSize + aes.BlockSize + aes.BlockSize + sha256.Size
	if len(raw) < minLen {
		return nil, contracts.ErrWrongPassword
	}
	params, ok := decodeHeader(raw[:codecHeaderSize])
	if !ok {
		return nil, contracts.ErrWrongPassword
	}
	body := raw[:len(raw)-sha256.Size]
	tag := raw[len(raw)-sha256.Size:]
	salt := body[codecHeaderSize : codecHeaderSize+codecSaltSize]
	iv := body[codecHeaderSize+codecSaltSize : codecHeaderSize+codecSaltSize+aes.BlockSize]
	ciphertext := body[codecHeaderSize+codecSaltSize+aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, contracts.ErrWrongPassword
	}

	keys := params.derive(password, salt, cipherKeySize+macKeySize)
	defer Scrub(keys)

	mac := hmac.New(sha256.New, keys[cipherKeySize:])
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), tag) {
		return nil, contracts.ErrWrongPassword
	}

	block, err := aes.NewCipher(keys[:cipherKeySize])
	if err != nil {
		return nil, err
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	plain, ok := pkcs7Unpad(padded, aes.BlockSize)
	if !ok {
		Scrub(padded)
		return nil, contracts.ErrWrongPassword
	}
	return plain, nil
}

// WithPlaintext decrypts text, hands the plaintext to fn and scrubs it on
// every return path. fn must not retain the slice.
func (c *Codec) WithPlaintext(text, password string, fn func(plain []byte) error) error {
	plain, err := c.Decrypt(text, password)
	if err != nil {
		return err
	}
	defer Scrub(plain)
	return fn(plain)
}

// ReEncrypt moves a ciphertext from one password to another.
func (c *Codec) ReEncrypt(text, oldPassword, newPassword string) (string, error) {
	var out string
	err := c.WithPlaintext(text, oldPassword, func(plain []byte) error {
		var err error
		out, err = c.Encrypt(plain, newPassword)
		return err
	})
	return out, err
}

func encodeHeader(p KDFParams) []byte {
	h := make([]byte, codecHeaderSize)
	h[0] = codecVersion
	binary.BigEndian.PutUint32(h[1:5], p.Time)
	binary.BigEndian.PutUint32(h[5:9], p.MemoryKB)
	h[9] = p.Threads
	return h
}

func decodeHeader(h []byte) (KDFParams, bool) {
	if h[0] != codecVersion {
		return KDFParams{}, false
	}
	p := KDFParams{
		Time:     binary.BigEndian.Uint32(h[1:5]),
		MemoryKB: binary.BigEndian.Uint32(h[5:9]),
		Threads:  h[9],
	}
	return p, p.Validate() == nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
