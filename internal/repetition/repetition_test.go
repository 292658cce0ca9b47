package repetition

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRepetitive(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "empty", text: "", want: false},
		{name: "shorter than ten characters", text: "go go go", want: false},
		{name: "fewer than four words", text: "absolutely wonderful performance", want: false},
		{name: "ordinary sentence", text: "We should ship the release candidate after the review on Thursday.", want: false},
		{name: "hallucinated loop", text: "Thank you for watching. Thank you for watching. Thank you for watching.", want: true},
		{name: "short exact loop", text: "subscribe now subscribe now subscribe now", want: true},
		{name: "stop word loop ignored", text: "and the and the and the and the", want: false},
		{name: "punctuation and case do not hide loops", text: "Okay, OKAY! great job. okay great job, okay Great Job.", want: true},
		{name: "loop inside long text", text: strings.Repeat("the weather station reports heavy rain ", 6), want: true},
		{name: "two repeats are not enough", text: "red balloon floats, red balloon floats away", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsRepetitive(tc.text))
		})
	}
}

func TestIsRepetitiveNeverFlagsFewerThanFourTokens(t *testing.T) {
	for _, text := range []string{
		"repeat repeat repeat",
		"...!!! ??? loop, loop, loop",
		"a b c",
	} {
		require.False(t, IsRepetitive(text), text)
	}
}

func TestTokenize(t *testing.T) {
	require.Equal(t, []string{"hello", "world", "its", "fine"}, Tokenize("Hello, WORLD! it's -- fine."))
	require.Empty(t, Tokenize(" ... !!! "))
}

func TestRepetitionThreshold(t *testing.T) {
	require.Equal(t, 3, repetitionThreshold(10))
	require.Equal(t, 3, repetitionThreshold(20))
	require.Equal(t, 4, repetitionThreshold(21))
	require.Equal(t, 4, repetitionThreshold(50))
	require.Equal(t, 5, repetitionThreshold(51))
	require.Equal(t, 10, repetitionThreshold(150))
}

func TestCountMatches(t *testing.T) {
	words := strings.Fields("alpha beta gamma alpha beta delta alpha beta gamma")
	exact, fuzzy := countMatches(words, []string{"alpha", "beta", "gamma"})
	require.Equal(t, 2, exact)
	require.Equal(t, 0, fuzzy)

	exact, fuzzy = countMatches(
		strings.Fields("one two three four one two three five"),
		[]string{"one", "two", "three", "four"},
	)
	require.Equal(t, 1, exact)
	require.Equal(t, 1, fuzzy)
}
