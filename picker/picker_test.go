package picker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "zdocs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zdocs", "inner.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Beta.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.log"), []byte("a"), 0644))

	return dir
}

func names(t *testing.T, p *Picker) []string {
	t.Helper()

	entries, err := p.entries()
	require.NoError(t, err)

	out := []string{}
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestEntriesDirectoriesFirst(t *testing.T) {
	p := New(fixture(t))
	assert.Equal(t, []string{"zdocs", "alpha.log", "Beta.txt"}, names(t, p))
}

func TestFilter(t *testing.T) {
	p := New(fixture(t))
	p.prompt = func(string) (string, error) { return " TXT ", nil }

	_, done, err := p.choose(optFilter, 0)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, []string{"Beta.txt"}, names(t, p))
}

func TestChooseFile(t *testing.T) {
	dir := fixture(t)
	p := New(dir)

	path, done, err := p.choose(filepath.Join(dir, "alpha.log"), 3)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, filepath.Join(dir, "alpha.log"), path)
}

func TestChooseDirectoryNavigates(t *testing.T) {
	dir := fixture(t)
	p := New(dir)

	_, done, err := p.choose(filepath.Join(dir, "zdocs"), 3)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, filepath.Join(dir, "zdocs"), p.Dir())
	assert.Equal(t, []string{"inner.txt"}, names(t, p))

	opts := p.options(nil)
	assert.Equal(t, dir, opts[0].Value)
}

func TestCancel(t *testing.T) {
	p := New(fixture(t))

	_, done, err := p.choose(optCancel, 0)
	assert.True(t, done)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestPromptError(t *testing.T) {
	p := New(fixture(t))
	p.prompt = func(string) (string, error) { return "", errors.New("aborted") }

	_, done, err := p.choose(optFilter, 0)
	assert.True(t, done)
	assert.Error(t, err)
}

func TestPaging(t *testing.T) {
	dir := t.TempDir()
	for i := range PageSize + 5 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%02d", i)), nil, 0644))
	}

	p := New(dir)
	entries, err := p.entries()
	require.NoError(t, err)

	values := func() []string {
		out := []string{}
		for _, o := range p.options(entries) {
			out = append(out, o.Value)
		}
		return out
	}

	assert.Contains(t, values(), optNext)
	assert.NotContains(t, values(), optPrev)

	p.choose(optNext, len(entries))
	assert.Equal(t, 1, p.page)
	assert.Contains(t, values(), optPrev)
	assert.NotContains(t, values(), optNext)
	assert.Contains(t, values(), filepath.Join(dir, fmt.Sprintf("f%02d", PageSize+4)))

	p.choose(optNext, len(entries))
	assert.Equal(t, 1, p.page)
}
