package securestore

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestEnvelopeRoundtrip(t *testing.T) {
	data, err := EncryptWithParams("pass", []byte("secret"), FastKDFParams())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	plain, err := Decrypt("pass", data)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestEnvelopeTamperedFailsDeterministically(t *testing.T) {
	data, err := EncryptWithParams("pass", []byte("secret"), FastKDFParams())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if len(data) < 10 {
		t.Fatalf("unexpected encrypted payload size: %d", len(data))
	}
	data[len(data)-2] ^= 0xFF
	_, err = Decrypt("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestEnvelopeWrongPassphrase(t *testing.T) {
	data, err := EncryptWithParams("pass", []byte("secret"), FastKDFParams())
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := Decrypt("other", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if _, err := Decrypt("pass", []byte(`{"plain":true}`)); !errors.Is(err, ErrPlaintext) {
		t.Fatalf("expected ErrPlaintext, got %v", err)
	}
}

func TestWriteReadJSONFile(t *testing.T) {
	type snapshot struct {
		Items map[string]string `json:"items"`
	}
	for _, passphrase := range []string{"", "file-pass"} {
		opts := FileOptions{
			Path:       filepath.Join(t.TempDir(), "nested", "state.json"),
			Passphrase: passphrase,
			KDF:        FastKDFParams(),
		}
		var missing snapshot
		found, err := ReadJSON(opts, &missing)
		if err != nil || found {
			t.Fatalf("missing file: found=%v err=%v", found, err)
		}
		if err := WriteJSON(opts, snapshot{Items: map[string]string{"a": "b"}}); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		var got snapshot
		found, err = ReadJSON(opts, &got)
		if err != nil || !found {
			t.Fatalf("read failed: found=%v err=%v", found, err)
		}
		if got.Items["a"] != "b" {
			t.Fatalf("unexpected snapshot: %+v", got)
		}
	}
}

func TestReadJSONEncryptedWithoutPassphraseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := WriteJSON(FileOptions{Path: path, Passphrase: "p", KDF: FastKDFParams()}, map[string]int{"x": 1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var v map[string]int
	if _, err := ReadJSON(FileOptions{Path: path}, &v); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}
