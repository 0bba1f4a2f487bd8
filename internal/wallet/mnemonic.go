// Package wallet turns BIP39 mnemonics into Ergo signing keys.
package wallet

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/cosmos/go-bip39"
)

// DefaultWordCount is the phrase length used when none is requested.
const DefaultWordCount = 15

var (
	// ErrInvalidWordCount indicates an unsupported phrase length.
	ErrInvalidWordCount = errors.New("word count must be 12, 15, 18, 21 or 24")

	// ErrInvalidMnemonic indicates the mnemonic fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

	// ErrMnemonicFormat indicates a phrase that is not lower case words
	// separated by single spaces.
	ErrMnemonicFormat = errors.New("mnemonic must be lower case words separated by single spaces")

	whitespaceRegex   = regexp.MustCompile(`\s+`)
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)
	bulletListRegex   = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
	canonicalRegex    = regexp.MustCompile(`^[a-z]+( [a-z]+)*$`)

	entropyBits = map[int]int{12: 128, 15: 160, 18: 192, 21: 224, 24: 256} //nolint:gochecknoglobals // lookup table
)

// GenerateMnemonic creates a new English BIP39 phrase of wordCount words.
func GenerateMnemonic(wordCount int) (string, error) {
	bits, ok := entropyBits[wordCount]
	if !ok {
		return "", ErrInvalidWordCount
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", err
	}
	defer ZeroBytes(entropy)

	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks word count, word list membership and checksum of
// the normalized phrase.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonicInput(mnemonic)
	if _, ok := entropyBits[len(strings.Fields(normalized))]; !ok {
		return ErrInvalidMnemonic
	}
	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return ErrInvalidMnemonic
	}
	return nil
}

// CheckFormat rejects phrases that are not already in canonical form. Stored
// phrases must be canonical because the seed is derived from the exact bytes.
func CheckFormat(mnemonic string) error {
	if !canonicalRegex.MatchString(mnemonic) {
		return ErrMnemonicFormat
	}
	return nil
}

// NormalizeMnemonicInput lower cases input, strips list numbering and
// bullets, turns commas into spaces and collapses whitespace.
func NormalizeMnemonicInput(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// MnemonicToSeed converts a phrase and optional mnemonic passphrase into the
// 64 byte BIP39 seed. The caller must zero the seed.
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	normalized := NormalizeMnemonicInput(mnemonic)
	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		return nil, ErrInvalidMnemonic
	}
	return bip39.NewSeed(normalized, passphrase), nil
}

// IsValidWord reports whether word is in the English BIP39 list.
func IsValidWord(word string) bool {
	_, ok := slices.BinarySearch(bip39.WordList, strings.ToLower(word))
	return ok
}

// MaxTypoDistance is the largest edit distance offered as a suggestion.
const MaxTypoDistance = 2

// TypoInfo describes a word that is not in the BIP39 list.
type TypoInfo struct {
	Index      int
	Word       string
	Suggestion string
	Distance   int
}

// SuggestWord returns the closest BIP39 word within MaxTypoDistance, or "".
func SuggestWord(input string) string {
	input = strings.ToLower(input)

	minDist := math.MaxInt
	var suggestion string
	for _, word := range bip39.WordList {
		dist := levenshtein.ComputeDistance(input, word)
		if dist == 0 {
			return word
		}
		if dist < minDist {
			minDist, suggestion = dist, word
		}
	}
	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DetectTypos lists the words of mnemonic that are not BIP39 words.
func DetectTypos(mnemonic string) []TypoInfo {
	var typos []TypoInfo
	for i, word := range strings.Fields(NormalizeMnemonicInput(mnemonic)) {
		if IsValidWord(word) {
			continue
		}
		info := TypoInfo{Index: i, Word: word, Suggestion: SuggestWord(word)}
		if info.Suggestion != "" {
			info.Distance = levenshtein.ComputeDistance(word, info.Suggestion)
		}
		typos = append(typos, info)
	}
	return typos
}

// FormatTypoSuggestions renders typos one per line with 1-based positions.
func FormatTypoSuggestions(typos []TypoInfo) string {
	lines := make([]string, 0, len(typos))
	for _, typo := range typos {
		line := "Word " + strconv.Itoa(typo.Index+1) + ": '" + typo.Word + "'"
		if typo.Suggestion != "" {
			line += fmt.Sprintf(" - did you mean '%s'?", typo.Suggestion)
		} else {
			line += " is not a valid BIP39 word"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
