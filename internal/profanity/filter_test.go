package profanity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Check(t *testing.T) {
	f := New("frak")

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"clean", "photosynthesis needs light", nil},
		{"substring of a clean word", "classic assessment", nil},
		{"case insensitive", "well SHIT happens", []string{"shit"}},
		{"punctuation", "oh,damn!", []string{"damn"}},
		{"ordered and unique", "crap, frak and more crap", []string{"crap", "frak"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Check(tt.text))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# classroom list\n\nMitochondria\n  gronk  \n"), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"gronk"}, f.Check("total gronk"))
	assert.Equal(t, []string{"mitochondria"}, f.Check("the Mitochondria"))
	assert.Equal(t, []string{"bitch"}, f.Check("bitch"), "built-in words stay banned")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
