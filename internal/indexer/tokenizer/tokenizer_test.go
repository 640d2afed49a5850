package tokenizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeKeepsPositionsAcrossStopWords(t *testing.T) {
	tokens := Tokenize("The Cats of New York")
	require.Len(t, tokens, 5)
	assert.Equal(t, "the", tokens[0].Term)
	assert.Equal(t, "cat", tokens[1].Term)
	assert.Equal(t, 1, tokens[1].Position)
	assert.Equal(t, "york", tokens[4].Term)
	assert.Equal(t, 4, tokens[4].Position)
}

func TestWordsDropsPunctuation(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Words("Hello, world! (42)"))
}

func TestExtractPhrasesStopWords(t *testing.T) {
	e := NewExtractor("en-US")
	ctx := context.Background()

	unquoted, err := e.ExtractPhrases(ctx, "the running dogs", "en-US", "main", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "dog"}, unquoted)

	quoted, err := e.ExtractPhrases(ctx, "the running dogs", "en-US", "main", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "run", "dog"}, quoted)
}

func TestHashingIsStable(t *testing.T) {
	assert.Equal(t, HashWord("cat"), HashWord("cat"))
	assert.NotEqual(t, HashWord("cat"), HashWord("dog"))
	assert.Equal(t, HashWord("cat"), HashPhrase([]string{"cat"}))
	assert.NotEqual(t, AnyKey, DocKey)
}

func TestGuessLocale(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"hello world", "en-US"},
		{"привет мир", "ru"},
		{"東京タワー", "ja"},
		{"北京", "zh-CN"},
		{"", "en-US"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GuessLocale(tt.text, "en-US"), tt.text)
	}
}

func TestDetectQuestion(t *testing.T) {
	concise, raw, ok := DetectQuestion("What is the capital of France?", "en-US")
	require.True(t, ok)
	assert.Equal(t, "capital france", concise)
	assert.Equal(t, "what is the capital of france", raw)

	_, _, ok = DetectQuestion("capital of france", "en-US")
	assert.False(t, ok)

	_, _, ok = DetectQuestion("was ist das?", "de")
	assert.False(t, ok)
}

func TestLetterGloss(t *testing.T) {
	g, ok := LetterGloss("fr-FR")
	require.True(t, ok)
	assert.Equal(t, "lettre", g)
	_, ok = LetterGloss("zh-CN")
	assert.False(t, ok)
}
