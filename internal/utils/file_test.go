package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.o")

	_, ok := ModTime(path)
	assert.False(t, ok)
	assert.False(t, Exists(path))

	err := os.WriteFile(path, []byte("x"), 0o644)
	assert.NoError(t, err)

	when := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	assert.NoError(t, os.Chtimes(path, when, when))

	got, ok := ModTime(path)
	assert.True(t, ok)
	assert.True(t, when.Equal(got))
	assert.True(t, Exists(path))
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0.0 KB"},
		{512, "0.5 KB"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1024.0 KB"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, FormatSize(test.input), "FormatSize(%d)", test.input)
	}
}
