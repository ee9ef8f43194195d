package notes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRead_Text(t *testing.T) {
	dir := t.TempDir()
	p := write(t, dir, "File12_note.TXT", "\n  65F admitted with DKA.  \n")

	n, err := NewReader(Config{}, nil).Read(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "65F admitted with DKA.", n.Text)
	assert.Equal(t, "text", n.Method)
	assert.Equal(t, 1, n.Pages)
}

func TestRead_Errors(t *testing.T) {
	dir := t.TempDir()
	r := NewReader(Config{MaxBytes: 16}, nil)

	_, err := r.Read(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = r.Read(context.Background(), write(t, dir, "empty.txt", "   \n"))
	assert.True(t, errors.Is(err, ErrEmptyNote))

	_, err = r.Read(context.Background(), write(t, dir, "note.docx", "x"))
	assert.ErrorContains(t, err, "unsupported extension")

	_, err = r.Read(context.Background(), write(t, dir, "big.txt", "this note is longer than sixteen bytes"))
	assert.ErrorContains(t, err, "limit 16")

	_, err = r.Read(context.Background(), write(t, dir, "broken.pdf", "not a pdf"))
	assert.Error(t, err)

	_, err = r.Read(context.Background(), write(t, dir, "latin1.txt", "caf\xe9"))
	assert.ErrorContains(t, err, "UTF-8")
}
