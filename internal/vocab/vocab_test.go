package vocab

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/captioner/internal/tokenizer"
)

var catCorpus = []string{"a cat sits", "a cat sits on a mat"}

func TestBuild_ThresholdAdmission(t *testing.T) {
	v, err := Build(catCorpus, 2, nil)
	require.NoError(t, err)

	for _, w := range []string{"a", "cat", "sits"} {
		assert.True(t, v.Contains(w), w)
	}
	for _, w := range []string{"on", "mat"} {
		assert.False(t, v.Contains(w), w)
		assert.Equal(t, UNKNOWN, v.Index(w))
	}
	assert.Equal(t, 7, v.Len())
	assert.Equal(t, 2, v.Threshold())
}

func TestBuild_AdmissionOrderFollowsCrossing(t *testing.T) {
	// "b" reaches 2 before "a" does.
	v, err := Build([]string{"a b", "b a"}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{PADToken, STARTToken, ENDToken, UNKNOWNToken, "b", "a"}, v.Tokens())
}

func TestBuild_EveryAdmittedTokenMeetsThreshold(t *testing.T) {
	corpus := []string{
		"a dog runs on the grass",
		"the dog jumps",
		"a child plays with a dog",
		"two dogs play in the snow",
	}
	word := tokenizer.NewWord()
	counts := map[string]int{}
	for _, c := range corpus {
		for _, w := range word.Tokenize(c) {
			counts[w]++
		}
	}
	for threshold := 1; threshold <= 4; threshold++ {
		v, err := Build(corpus, threshold, word)
		require.NoError(t, err)
		for i, tok := range v.Tokens() {
			if i <= int(UNKNOWN) {
				continue
			}
			assert.GreaterOrEqual(t, counts[tok], threshold, tok)
		}
		for w, c := range counts {
			assert.Equal(t, c >= threshold, v.Contains(w), "threshold %d token %q", threshold, w)
		}
	}
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(catCorpus, 0, nil)
	assert.Error(t, err)

	v, err := Build(nil, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Len(), "reserved tokens are always present")
}

func TestEncodeDecode(t *testing.T) {
	v, err := Build(catCorpus, 2, nil)
	require.NoError(t, err)

	a := v.Index("a")
	assert.Equal(t, []int32{a, UNKNOWN, UNKNOWN}, v.Encode("a dog runs"))
	assert.Empty(t, v.Encode(""))

	idx := v.Encode("A cat sits")
	words, err := v.Decode(idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "cat", "sits"}, words)

	_, err = v.Decode([]int32{0, int32(v.Len())})
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	_, err = v.Decode([]int32{-1})
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
}

func TestCheckReserved(t *testing.T) {
	v, err := Build(catCorpus, 2, nil)
	require.NoError(t, err)
	assert.NoError(t, v.CheckReserved([]int32{START, 4, END, PAD}))
	assert.ErrorIs(t, v.CheckReserved([]int32{START, 99}), ErrIndexOutOfRange)
	assert.True(t, IsSpecial(PAD))
	assert.False(t, IsSpecial(4))
}

func TestFingerprint(t *testing.T) {
	a, _ := Build(catCorpus, 2, nil)
	b, _ := Build(catCorpus, 2, nil)
	c, _ := Build(catCorpus, 1, nil)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)
}

func TestSaveLoad(t *testing.T) {
	v, err := Build(catCorpus, 1, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vocab.json")
	require.NoError(t, v.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, v.Tokens(), loaded.Tokens())
	assert.Equal(t, v.Threshold(), loaded.Threshold())
	assert.Equal(t, v.Fingerprint(), loaded.Fingerprint())
	assert.Equal(t, v.Encode("a cat on a mat"), loaded.Encode("a cat on a mat"))
}

func TestUnmarshal_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"bad json", `{`},
		{"version", `{"version":2,"frequency_threshold":1,"tokenizer":"word","tokens":["<PAD>","<SOS>","<EOS>","<UNK>"]}`},
		{"threshold", `{"version":1,"frequency_threshold":0,"tokenizer":"word","tokens":["<PAD>","<SOS>","<EOS>","<UNK>"]}`},
		{"reserved order", `{"version":1,"frequency_threshold":1,"tokenizer":"word","tokens":["<SOS>","<PAD>","<EOS>","<UNK>"]}`},
		{"too short", `{"version":1,"frequency_threshold":1,"tokenizer":"word","tokens":["<PAD>"]}`},
		{"duplicate", `{"version":1,"frequency_threshold":1,"tokenizer":"word","tokens":["<PAD>","<SOS>","<EOS>","<UNK>","a","a"]}`},
		{"tokenizer", `{"version":1,"frequency_threshold":1,"tokenizer":"nope","tokens":["<PAD>","<SOS>","<EOS>","<UNK>"]}`},
		{"fingerprint", `{"version":1,"frequency_threshold":1,"tokenizer":"word","tokens":["<PAD>","<SOS>","<EOS>","<UNK>"],"fingerprint":"abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.True(t, strings.Contains(err.Error(), "missing.json"))
}
