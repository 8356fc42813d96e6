package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_ShortInputIsSingleChunk(t *testing.T) {
	chunks, err := ChunkText("  Hello world.  \n\n\n  Second line  ", 100, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world.\nSecond line", chunks[0])
}

func TestChunk_EmptyInput(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "spaces and newlines", text: "   \n\n  "},
		{name: "tabs and carriage returns", text: "\t\r\n \r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := ChunkText(tt.text, DefaultChunkSize, DefaultOverlap)
			require.NoError(t, err)
			assert.Empty(t, chunks)
		})
	}
}

func TestChunk_OverlapOnPlainWindows(t *testing.T) {
	text := strings.Repeat("abcdefghij", 5)
	const size, overlap = 20, 5

	chunks, err := ChunkText(text, size, overlap)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i := 0; i+1 < len(chunks); i++ {
		prev, next := chunks[i], chunks[i+1]
		assert.Equal(t, prev[len(prev)-overlap:], next[:overlap], "chunks %d and %d", i, i+1)
	}
}

func TestChunk_CoversWholeInput(t *testing.T) {
	text := strings.Repeat("0123456789", 7) + "xyz"
	const size, overlap = 16, 4

	chunks, err := ChunkText(text, size, overlap)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		rebuilt.WriteString(c[overlap:])
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunk_BoundaryPreference(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		size  int
		first string
	}{
		{
			name:  "sentence end past half the window",
			text:  strings.Repeat("a", 12) + ". " + strings.Repeat("b", 20),
			size:  20,
			first: strings.Repeat("a", 12) + ".",
		},
		{
			name:  "clause end past half the window",
			text:  strings.Repeat("x", 14) + "; " + strings.Repeat("y", 15),
			size:  20,
			first: strings.Repeat("x", 14) + ";",
		},
		{
			name:  "latest candidate wins",
			text:  strings.Repeat("a", 11) + ". bbb; " + strings.Repeat("c", 12),
			size:  20,
			first: strings.Repeat("a", 11) + ". bbb;",
		},
		{
			name:  "candidate before half the window is ignored",
			text:  "aaaa. " + strings.Repeat("b", 30),
			size:  20,
			first: "aaaa. " + strings.Repeat("b", 14),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := ChunkText(tt.text, tt.size, 2)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
			assert.Equal(t, tt.first, chunks[0])
		})
	}
}

func TestChunk_ThreeSentences(t *testing.T) {
	chunks, err := ChunkText("Sentence one. Sentence two. Sentence three.", 20, 5)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Sentence one.",
		"one. Sentence two.",
		"two. Sentence three",
		"three.",
	}, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 20)
	}
}

func TestChunk_CountsCharactersNotBytes(t *testing.T) {
	text := strings.Repeat("đ", 30)

	chunks, err := ChunkText(text, 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for _, c := range chunks[:3] {
		assert.Equal(t, 10, utf8.RuneCountInString(c))
	}
	assert.Equal(t, 6, utf8.RuneCountInString(chunks[3]))
}

func TestChunk_VietnameseSentences(t *testing.T) {
	text := "Xin chào các em.\n  Hôm nay chúng ta học phương trình bậc hai.  "

	chunks, err := ChunkText(text, DefaultChunkSize, DefaultOverlap)
	require.NoError(t, err)
	assert.Equal(t, []string{"Xin chào các em.\nHôm nay chúng ta học phương trình bậc hai."}, chunks)
}

func TestChunk_AlwaysProgresses(t *testing.T) {
	// A boundary cut shorter than the overlap would otherwise restart at 0.
	text := "aaaaaa. " + strings.Repeat("b", 20)

	chunks, err := ChunkText(text, 10, 8)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "aaaaaa.", chunks[0])
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
}

func TestChunk_InvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative size", size: -5, overlap: 0},
		{name: "negative overlap", size: 10, overlap: -1},
		{name: "overlap equals size", size: 10, overlap: 10},
		{name: "overlap exceeds size", size: 10, overlap: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := ChunkText("some text", tt.size, tt.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidChunkingParameters)
			assert.Nil(t, chunks)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := New()
		require.NoError(t, err)
		assert.Equal(t, DefaultChunkSize, c.Size())
		assert.Equal(t, DefaultOverlap, c.Overlap())
	})

	t.Run("options", func(t *testing.T) {
		c, err := New(WithSize(50), WithOverlap(0))
		require.NoError(t, err)
		assert.Equal(t, 50, c.Size())
		assert.Equal(t, 0, c.Overlap())
	})

	t.Run("rejects invalid options", func(t *testing.T) {
		_, err := New(WithSize(10), WithOverlap(10))
		assert.ErrorIs(t, err, ErrInvalidChunkingParameters)
	})
}

func TestChunker_SplitNumbersChunks(t *testing.T) {
	c, err := New(WithSize(20), WithOverlap(5))
	require.NoError(t, err)

	chunks := c.Split("Sentence one. Sentence two. Sentence three.")
	require.Len(t, chunks, 4)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.NotEmpty(t, ch.Content)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\nb\nc", Normalize(" a \n\n\n b\r\n\t c\t"))
	assert.Equal(t, "", Normalize("\n \n"))
	// Blank lines are dropped, so paragraph breaks never survive normalization.
	assert.NotContains(t, Normalize("para one\n\npara two"), "\n\n")
}
