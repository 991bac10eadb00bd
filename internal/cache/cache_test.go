package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	// Hash should be consistent
	assert.Equal(t, Hash("zlib"), Hash("zlib"))
	assert.Len(t, Hash("zlib"), 64)

	// Different input = different hash
	assert.NotEqual(t, Hash("zlib"), Hash("libpng"))

	// Part boundaries matter
	assert.NotEqual(t, Hash("ab", "c"), Hash("a", "bc"))
	assert.NotEqual(t, Hash("a", ""), Hash("a"))

	// Order matters
	assert.NotEqual(t, Hash("a", "b"), Hash("b", "a"))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "download::m::d", Key(ScopeDownload, "m", "d"))
}

func TestSizedValues(t *testing.T) {
	value := FormatSized("abc", 1234)
	assert.Equal(t, "abc::1234", value)

	sum, size, err := ParseSized(value)
	require.NoError(t, err)
	assert.Equal(t, "abc", sum)
	assert.Equal(t, int64(1234), size)

	_, _, err = ParseSized("abc")
	assert.Error(t, err)

	_, _, err = ParseSized("abc::xyz")
	assert.Error(t, err)
}

func TestDB_GetSet(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	// Missing is not an error
	value, found, err := db.Get("build-simple::m::s")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, value)

	err = db.Set("build-simple::m::s", "hash1")
	require.NoError(t, err)

	value, found, err = db.Get("build-simple::m::s")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hash1", value)

	// Replace
	err = db.Set("build-simple::m::s", "hash2")
	require.NoError(t, err)

	value, _, err = db.Get("build-simple::m::s")
	require.NoError(t, err)
	assert.Equal(t, "hash2", value)
}

func TestDB_Persistence(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Set("toolchain::a::a", "h"))
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	value, found, err := db.Get("toolchain::a::a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "h", value)
	assert.FileExists(t, filepath.Join(dir, DatabaseFile))
	assert.Equal(t, dir, db.Root())
}

func TestDB_Keys(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Set(Key(ScopeDownload, "m", "a"), "1::1"))
	require.NoError(t, db.Set(Key(ScopeDownload, "m", "b"), "2::2"))
	require.NoError(t, db.Set(Key(ScopeExtracted, "m", "a"), "1::1"))

	keys, err := db.Keys(ScopeDownload)
	require.NoError(t, err)
	assert.Equal(t, []string{"download::m::a", "download::m::b"}, keys)

	keys, err = db.Keys("")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	require.NoError(t, db.Delete(Key(ScopeDownload, "m", "a")))
	require.NoError(t, db.Delete("never-set"))

	keys, err = db.Keys(ScopeDownload)
	require.NoError(t, err)
	assert.Equal(t, []string{"download::m::b"}, keys)
}

func TestDB_ClearAndStats(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	defer db.Close()

	// Initially empty
	count, size, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(0), size)

	download := filepath.Join(dir, DownloadsDir, "m", "d")
	require.NoError(t, os.MkdirAll(filepath.Dir(download), 0o755))
	require.NoError(t, os.WriteFile(download, []byte("12345"), 0o644))

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, db.Set(Key(ScopeBuildSimple, "m", k), "h"))
	}

	count, size, err = db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, int64(5), size)

	require.NoError(t, db.Clear())

	_, found, err := db.Get(Key(ScopeBuildSimple, "m", "a"))
	require.NoError(t, err)
	assert.False(t, found, "Cache should be empty after clear")
	assert.NoDirExists(t, filepath.Join(dir, DownloadsDir))

	// Still usable after clear
	require.NoError(t, db.Set("k", "v"))
}

func TestNeedsUpdate(t *testing.T) {
	store := NewMemory()

	stale, err := NeedsUpdate(store, "k", "h1")
	require.NoError(t, err)
	assert.True(t, stale, "missing key needs update")

	require.NoError(t, store.Set("k", "h1"))

	stale, err = NeedsUpdate(store, "k", "h1")
	require.NoError(t, err)
	assert.False(t, stale)

	stale, err = NeedsUpdate(store, "k", "h2")
	require.NoError(t, err)
	assert.True(t, stale, "changed value needs update")

	store.GetErr = errors.New("disk on fire")
	_, err = NeedsUpdate(store, "k", "h1")
	assert.EqualError(t, err, "disk on fire")
}

// TestKeyIsolation verifies that the same step name under different scopes
// or modules never shares an entry
func TestKeyIsolation(t *testing.T) {
	store := NewMemory()
	x, y := Hash("x"), Hash("y")

	require.NoError(t, store.Set(Key(ScopeBuildSimple, x, "build"), "h"))

	for _, key := range []string{
		Key(ScopeBuildAutotools, x, "build"),
		Key(ScopeBuildSimple, y, "build"),
	} {
		_, found, err := store.Get(key)
		require.NoError(t, err)
		assert.False(t, found, "key %s should be independent", key)
	}

	require.NoError(t, store.Set(Key(ScopeBuildAutotools, x, "build"), "other"))

	value, _, err := store.Get(Key(ScopeBuildSimple, x, "build"))
	require.NoError(t, err)
	assert.Equal(t, "h", value)
}

func TestMemory(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Set("b", "2"))
	require.NoError(t, store.Set("a", "1"))

	assert.Equal(t, []string{"a", "b"}, store.Keys())
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Delete("a"))
	require.NoError(t, store.Delete("missing"))
	assert.Equal(t, []string{"b"}, store.Keys())

	store.SetErr = errors.New("read-only")
	assert.Error(t, store.Set("c", "3"))
	assert.Error(t, store.Delete("b"))
	assert.Equal(t, 1, store.Len())
}
