package wallet

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Vectors from the reference BIP39 suite, all with passphrase "TREZOR".
//
//nolint:gochecknoglobals // test vectors
var seedVectors = []struct {
	mnemonic string
	seed     string
}{
	{
		mnemonic: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		seed:     "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04",
	},
	{
		mnemonic: "legal winner thank year wave sausage worth useful legal winner thank yellow",
		seed:     "2e8905819b8723fe2c1d161860e5ee1830318dbf49a83bd451cfb8440c28bd6fa457fe1296106559a3c80937a1c1069be3a3a5bd381ee6260e8d9739fce1f607",
	},
	{
		mnemonic: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art",
		seed:     "bda85446c68413707090a52022edd26a1c9462295029f2e60cd7c4f2bbd3097170af7a4d73245cafa9c3cca8d561a7c3de6f5d4a10be8ed2a5e608d68f92fcc8",
	},
}

func TestGenerateMnemonic(t *testing.T) {
	t.Parallel()

	for count := range entropyBits {
		phrase, err := GenerateMnemonic(count)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(phrase), count)
		require.NoError(t, ValidateMnemonic(phrase))
		require.NoError(t, CheckFormat(phrase), "generated phrases are canonical")
	}

	a, err := GenerateMnemonic(DefaultWordCount)
	require.NoError(t, err)
	b, err := GenerateMnemonic(DefaultWordCount)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	for _, count := range []int{0, 11, 13, 27} {
		_, err := GenerateMnemonic(count)
		require.ErrorIs(t, err, ErrInvalidWordCount, "count %d", count)
	}
}

func TestCheckFormat(t *testing.T) {
	t.Parallel()

	ok := []string{"abandon", "abandon ability able"}
	bad := []string{"", " abandon", "abandon ", "abandon  able", "abandon\nable", "Abandon", "abandon,able", "abandon1"}

	for _, s := range ok {
		assert.NoError(t, CheckFormat(s), "%q", s)
	}
	for _, s := range bad {
		assert.ErrorIs(t, CheckFormat(s), ErrMnemonicFormat, "%q", s)
	}
}

func TestValidateMnemonic(t *testing.T) {
	t.Parallel()

	for _, v := range seedVectors {
		assert.NoError(t, ValidateMnemonic(v.mnemonic))
	}
	assert.NoError(t, ValidateMnemonic("  1. ABANDON abandon, abandon abandon abandon abandon abandon abandon abandon abandon abandon about\n"),
		"messy input is normalized first")

	invalid := map[string]string{
		"unknown word":     "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon xyz",
		"eleven words":     "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
		"bad checksum":     "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
		"empty":            "",
		"nine valid words": "abandon abandon abandon abandon abandon abandon abandon abandon abandon",
	}
	for name, phrase := range invalid {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.ErrorIs(t, ValidateMnemonic(phrase), ErrInvalidMnemonic)
		})
	}
}

func TestNormalizeMnemonicInput(t *testing.T) {
	t.Parallel()

	want := "abandon ability about"
	inputs := []string{
		"abandon ability about",
		"   abandon ability about\t",
		"abandon\n\nability   about",
		"ABANDON Ability aBoUt",
		"1. abandon\n2) ability\n3: about",
		"- abandon\n* ability\n• about",
		"abandon, ability,about",
	}
	for _, in := range inputs {
		assert.Equal(t, want, NormalizeMnemonicInput(in), "%q", in)
	}
	assert.Empty(t, NormalizeMnemonicInput(" \t\n"))
}

func TestMnemonicToSeed(t *testing.T) {
	t.Parallel()

	for _, v := range seedVectors {
		seed, err := MnemonicToSeed(v.mnemonic, "TREZOR")
		require.NoError(t, err)
		assert.Equal(t, v.seed, hex.EncodeToString(seed))
	}

	plain, err := MnemonicToSeed(seedVectors[0].mnemonic, "")
	require.NoError(t, err)
	assert.Len(t, plain, 64)
	assert.NotEqual(t, seedVectors[0].seed, hex.EncodeToString(plain), "the passphrase changes the seed")

	_, err = MnemonicToSeed("not a real phrase", "")
	require.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestIsValidWord(t *testing.T) {
	t.Parallel()
	assert.True(t, IsValidWord("zoo"))
	assert.True(t, IsValidWord("Abandon"))
	assert.False(t, IsValidWord("ergo"))
	assert.False(t, IsValidWord(""))
}

//nolint:misspell // intentional typos
func TestSuggestWord(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"abondon":   "abandon",
		"abadon":    "abandon",
		"abanddon":  "abandon",
		"ABONDON":   "abandon",
		"zooo":      "zoo",
		"lettter":   "letter",
		"abandon":   "abandon",
		"xyzqwerty": "",
		"abcdefg":   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, SuggestWord(in), "%q", in)
	}
}

//nolint:misspell // intentional typos
func TestDetectTypos(t *testing.T) {
	t.Parallel()

	typos := DetectTypos("abondon abandon abandon abandon abandon abandon abandon abandon abandon abandon qqqqqqqqq abouut")
	require.Len(t, typos, 3)

	assert.Equal(t, TypoInfo{Index: 0, Word: "abondon", Suggestion: "abandon", Distance: 1}, typos[0])
	assert.Equal(t, TypoInfo{Index: 10, Word: "qqqqqqqqq"}, typos[1])
	assert.Equal(t, 11, typos[2].Index)
	assert.Equal(t, "about", typos[2].Suggestion)

	assert.Empty(t, DetectTypos(seedVectors[0].mnemonic))
	assert.Empty(t, DetectTypos(""))
}

func TestFormatTypoSuggestions(t *testing.T) {
	t.Parallel()

	got := FormatTypoSuggestions([]TypoInfo{
		{Index: 0, Word: "abondon", Suggestion: "abandon", Distance: 1}, //nolint:misspell // intentional typo
		{Index: 4, Word: "qqqq"},
	})
	assert.Equal(t, "Word 1: 'abondon' - did you mean 'abandon'?\nWord 5: 'qqqq' is not a valid BIP39 word", got) //nolint:misspell // intentional typo
	assert.Empty(t, FormatTypoSuggestions(nil))
}

func TestZeroBytes(t *testing.T) {
	t.Parallel()
	b := []byte{1, 2, 3}
	ZeroBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
	ZeroBytes(nil)
}
