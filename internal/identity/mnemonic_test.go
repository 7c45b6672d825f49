package identity

import (
	"errors"
	"strings"
	"testing"

	"did-vault/go-backend/internal/domains/contracts"
)

func TestValidateMnemonic(t *testing.T) {
	if err := ValidateMnemonic("", testMnemonic); err != nil {
		t.Fatalf("expected valid english mnemonic, got %v", err)
	}
	if err := ValidateMnemonic(LanguageEnglish, "  "+strings.ReplaceAll(testMnemonic, " ", "   ")+"\n"); err != nil {
		t.Fatalf("extra whitespace should be tolerated, got %v", err)
	}
	broken := strings.Replace(testMnemonic, "about", "abandon", 1)
	if err := ValidateMnemonic(LanguageEnglish, broken); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected checksum failure, got %v", err)
	}
	if err := ValidateMnemonic(LanguageFrench, testMnemonic); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("english words must not validate as french, got %v", err)
	}
	if err := ValidateMnemonic("klingon", testMnemonic); !errors.Is(err, ErrUnknownLanguage) {
		t.Fatalf("expected ErrUnknownLanguage, got %v", err)
	}
	if err := ValidateMnemonic("", ""); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for empty mnemonic, got %v", err)
	}
}

func TestGenerateMnemonicPerLanguage(t *testing.T) {
	for _, lang := range Languages() {
		words, err := GenerateMnemonic(lang)
		if err != nil {
			t.Fatalf("%s: generate failed: %v", lang, err)
		}
		if n := len(strings.Fields(words)); n != 12 {
			t.Fatalf("%s: expected 12 words, got %d", lang, n)
		}
		if err := ValidateMnemonic(lang, words); err != nil {
			t.Fatalf("%s: generated mnemonic does not validate: %v", lang, err)
		}
	}
}

func TestFromMnemonicPassphraseChangesRoot(t *testing.T) {
	a, err := FromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("root a failed: %v", err)
	}
	defer a.Wipe()
	b, err := FromMnemonic(testMnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("root b failed: %v", err)
	}
	defer b.Wipe()
	ka, _ := a.Derive(0)
	kb, _ := b.Derive(0)
	if ka.Address() == kb.Address() {
		t.Fatal("passphrase must change the derived identity")
	}
}
