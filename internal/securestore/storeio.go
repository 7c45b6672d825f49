package securestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// FileOptions describe a snapshot file. An empty Passphrase stores plain JSON.
type FileOptions struct {
	Path       string
	Passphrase string
	KDF        KDFParams
}

func (o FileOptions) Normalize() FileOptions {
	o.Path = strings.TrimSpace(o.Path)
	return o
}

func (o FileOptions) Encrypted() bool {
	return o.Passphrase != ""
}

// ReadJSON loads the snapshot into v. A missing file leaves v untouched and
// reports false.
func ReadJSON(opts FileOptions, v any) (bool, error) {
	raw, err := os.ReadFile(opts.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if opts.Encrypted() {
		plain, err := Decrypt(opts.Passphrase, raw)
		if err != nil {
			return false, err
		}
		defer Scrub(plain)
		raw = plain
	} else if IsEncrypted(raw) {
		return false, ErrAuthFailed
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, ErrInvalid
	}
	return true, nil
}

// WriteJSON marshals v, optionally encrypts it, and replaces the file through
// a rename so readers never observe a torn snapshot.
func WriteJSON(opts FileOptions, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if opts.Encrypted() {
		encrypted, err := EncryptWithParams(opts.Passphrase, payload, opts.KDF)
		Scrub(payload)
		if err != nil {
			return err
		}
		payload = encrypted
	}
	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(opts.Path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, opts.Path)
}
