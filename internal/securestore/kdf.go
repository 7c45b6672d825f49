package securestore

import (
	"errors"

	"golang.org/x/crypto/argon2"
)

// KDFParams are the argon2id cost parameters. They are recorded next to every
// ciphertext so a store written with one setting stays readable under another.
type KDFParams struct {
	Time     uint32 `yaml:"time" json:"time"`
	MemoryKB uint32 `yaml:"memoryKB" json:"memory_kb"`
	Threads  uint8  `yaml:"threads" json:"threads"`
}

const (
	maxKDFTime     = 16
	maxKDFMemoryKB = 1 << 20
)

var errKDFParams = errors.New("kdf parameters out of range")

func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}
}

// FastKDFParams is only meant for tests.
func FastKDFParams() KDFParams {
	return KDFParams{Time: 1, MemoryKB: 1024, Threads: 1}
}

func (p KDFParams) Validate() error {
	if p.Time == 0 || p.Time > maxKDFTime || p.MemoryKB < 8 || p.MemoryKB > maxKDFMemoryKB || p.Threads == 0 {
		return errKDFParams
	}
	return nil
}

func (p KDFParams) orDefault() KDFParams {
	if p.Validate() != nil {
		return DefaultKDFParams()
	}
	return p
}

func (p KDFParams) derive(passphrase string, salt []byte, n uint32) []byte {
	pass := []byte(passphrase)
	defer Scrub(pass)
	return argon2.IDKey(pass, salt, p.Time, p.MemoryKB, p.Threads, n)
}

// Scrub zero-fills b.
func Scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
