package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONBare(t *testing.T) {
	var out struct {
		Score int `json:"score"`
	}
	ok := ParseJSON(`{"score": 7}`, &out)
	require.True(t, ok)
	assert.Equal(t, 7, out.Score)
}

func TestParseJSONFenced(t *testing.T) {
	var out struct {
		Decision string `json:"decision"`
	}
	text := "```json\n{\"decision\": \"novel\"}\n```"
	ok := ParseJSON(text, &out)
	require.True(t, ok)
	assert.Equal(t, "novel", out.Decision)
}

func TestParseJSONSurroundingProse(t *testing.T) {
	var out struct {
		Score int `json:"score"`
	}
	text := "Here is my assessment:\n\n{\"score\": 4}\n\nLet me know if you need more detail."
	ok := ParseJSON(text, &out)
	require.True(t, ok)
	assert.Equal(t, 4, out.Score)
}

func TestParseJSONArray(t *testing.T) {
	var out []string
	text := "The queries are: [\"sparse recovery\", \"compressed sensing\"]"
	ok := ParseJSON(text, &out)
	require.True(t, ok)
	assert.Equal(t, []string{"sparse recovery", "compressed sensing"}, out)
}

func TestParseJSONUnparseable(t *testing.T) {
	var out struct {
		Score int `json:"score"`
	}
	assert.False(t, ParseJSON("I cannot produce JSON for this request.", &out))
	assert.False(t, ParseJSON("", &out))
	assert.False(t, ParseJSON("{broken", &out))
}

func TestParseJSONFencedWithoutLanguage(t *testing.T) {
	var out map[string]any
	text := "```\n{\"a\": 1}\n```"
	require.True(t, ParseJSON(text, &out))
	assert.Equal(t, float64(1), out["a"])
}
