package identity

import (
	"slices"
	"strings"
	"sync"

	"github.com/tyler-smith/go-bip39"
	"github.com/tyler-smith/go-bip39/wordlists"
)

const (
	LanguageEnglish            = "english"
	LanguageJapanese           = "japanese"
	LanguageChineseSimplified  = "chinese_simplified"
	LanguageChineseTraditional = "chinese_traditional"
	LanguageSpanish            = "spanish"
	LanguageFrench             = "french"
	LanguageItalian            = "italian"
	LanguageKorean             = "korean"

	mnemonicEntropyBits = 128
)

var wordLists = map[string][]string{
	LanguageEnglish:            wordlists.English,
	LanguageJapanese:           wordlists.Japanese,
	LanguageChineseSimplified:  wordlists.ChineseSimplified,
	LanguageChineseTraditional: wordlists.ChineseTraditional,
	LanguageSpanish:            wordlists.Spanish,
	LanguageFrench:             wordlists.French,
	LanguageItalian:            wordlists.Italian,
	LanguageKorean:             wordlists.Korean,
}

// go-bip39 keeps its word list in a package global.
var wordListMu sync.Mutex

func Languages() []string {
	out := make([]string, 0, len(wordLists))
	for lang := range wordLists {
		out = append(out, lang)
	}
	slices.Sort(out)
	return out
}

func normalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return LanguageEnglish
	}
	return language
}

func withWordList(language string, fn func()) error {
	list, ok := wordLists[normalizeLanguage(language)]
	if !ok {
		return ErrUnknownLanguage
	}
	wordListMu.Lock()
	defer wordListMu.Unlock()
	bip39.SetWordList(list)
	defer bip39.SetWordList(wordlists.English)
	fn()
	return nil
}

func NormalizeMnemonic(words string) string {
	return strings.Join(strings.Fields(words), " ")
}

// ValidateMnemonic checks words and checksum against the language's list.
// An empty language means english.
func ValidateMnemonic(language, words string) error {
	words = NormalizeMnemonic(words)
	if words == "" {
		return ErrInvalidMnemonic
	}
	valid := false
	if err := withWordList(language, func() {
		valid = bip39.IsMnemonicValid(words)
	}); err != nil {
		return err
	}
	if !valid {
		return ErrInvalidMnemonic
	}
	return nil
}

func GenerateMnemonic(language string) (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", err
	}
	defer zeroBytes(entropy)
	var (
		mnemonic string
		genErr   error
	)
	if err := withWordList(language, func() {
		mnemonic, genErr = bip39.NewMnemonic(entropy)
	}); err != nil {
		return "", err
	}
	return mnemonic, genErr
}

// FromMnemonic derives the root from a BIP39 sentence. Validation against a
// word list is the caller's job; see ValidateMnemonic.
func FromMnemonic(words, passphrase string) (*RootIdentity, error) {
	words = NormalizeMnemonic(words)
	if words == "" {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(words, passphrase)
	defer zeroBytes(seed)
	return FromSeed(seed)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
