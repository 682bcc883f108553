package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acme_corp"},
		{"  Acme   Corp  ", "acme_corp"},
		{"AT&T Inc.", "at_t_inc"},
		{"トヨタ自動車", "トヨタ自動車"},
		{"Japanese", "japanese"},
		{"../etc/passwd", "etc_passwd"},
		{"", "unnamed"},
		{"///", "unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
}

func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := Key{Company: "Acme Corp", Language: "English", SectionID: "basic"}

	_, err := s.Read(ctx, key)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Write(ctx, key, "# Basic\n\nfirst"))
	got, err := s.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "# Basic\n\nfirst", got)

	require.NoError(t, s.Write(ctx, key, "second"))
	got, err = s.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	other := Key{Company: "Acme Corp", Language: "Japanese", SectionID: "basic"}
	_, err = s.Read(ctx, other)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Write(ctx, Key{Company: "Acme Corp", Language: "English", SectionID: "swot"}, "s"))
	if l, ok := s.(Lister); ok {
		ids, err := l.List(ctx, "Acme Corp", "English")
		require.NoError(t, err)
		assert.Equal(t, []string{"basic", "swot"}, ids)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	storeContract(t, m)
	assert.Equal(t, 2, m.Len())
}

func TestFileStore(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	storeContract(t, s)

	key := Key{Company: "Acme Corp", Language: "English", SectionID: "basic"}
	assert.Equal(t, filepath.Join(root, "acme_corp_english", "basic.md"), s.Path(key))
	_, err = os.Stat(s.Path(key))
	assert.NoError(t, err)

	entries, err := os.ReadDir(s.Dir("Acme Corp", "English"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must not be left behind")
	}
}

func TestListDir_Missing(t *testing.T) {
	ids, err := ListDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "sections.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	storeContract(t, s)
}

type failingStore struct{ err error }

func (f failingStore) Write(context.Context, Key, string) error  { return f.err }
func (f failingStore) Read(context.Context, Key) (string, error) { return "", f.err }

func TestTee(t *testing.T) {
	ctx := context.Background()
	key := Key{Company: "A", Language: "English", SectionID: "basic"}

	t.Run("writes everywhere", func(t *testing.T) {
		a, b := NewMemory(), NewMemory()
		s := Tee(a, b)
		require.NoError(t, s.Write(ctx, key, "x"))
		assert.Equal(t, 1, a.Len())
		assert.Equal(t, 1, b.Len())
		got, err := s.Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "x", got)
	})

	t.Run("joins write errors", func(t *testing.T) {
		boom := errors.New("disk full")
		a := NewMemory()
		s := Tee(a, failingStore{err: boom})
		err := s.Write(ctx, key, "x")
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, a.Len())
	})

	t.Run("single store is returned as is", func(t *testing.T) {
		a := NewMemory()
		assert.Same(t, a, Tee(nil, a))
	})

	t.Run("read falls through to second store", func(t *testing.T) {
		a, b := NewMemory(), NewMemory()
		require.NoError(t, b.Write(ctx, key, "from b"))
		got, err := Tee(a, b).Read(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "from b", got)
	})
}

func TestFileStoreAt_CreatesOnWrite(t *testing.T) {
	root := filepath.Join(t.TempDir(), "run", "sections")
	s := FileStoreAt(root)
	assert.NoDirExists(t, root)

	key := Key{Company: "Acme", Language: "English", SectionID: "basic"}
	require.NoError(t, s.Write(context.Background(), key, "text"))
	got, err := s.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "text", got)
}
