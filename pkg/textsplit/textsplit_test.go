package textsplit

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNaiveSplit_Short(t *testing.T) {
	chunks, err := NaiveSplit("hello", 500, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, chunks)
}

func TestNaiveSplit_Overlap(t *testing.T) {
	text := strings.Repeat("a", 10) + strings.Repeat("b", 10)
	chunks, err := NaiveSplit(text, 10, 2)
	require.NoError(t, err)

	require.Greater(t, len(chunks), 1)
	// 相邻块之间保留 2 个字符的重叠
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		assert.Equal(t, prev[len(prev)-2:], chunks[i][:2])
	}
}

func TestNaiveSplit_Multibyte(t *testing.T) {
	text := strings.Repeat("活动", 30)
	chunks, err := NaiveSplit(text, 10, 2)
	require.NoError(t, err)
	for _, c := range chunks {
		// 不能把多字节字符切到一半
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, len([]rune(c)), 10)
	}
}

func TestNaiveSplit_InvalidArgs(t *testing.T) {
	_, err := NaiveSplit("text", 50, 50)
	require.Error(t, err)
	_, err = NaiveSplit("text", 10, 50)
	require.Error(t, err)
}

func TestNaiveSplit_Empty(t *testing.T) {
	chunks, err := NaiveSplit("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
