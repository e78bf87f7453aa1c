package termcache

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
)

var _ evs.Lookaside = (*DirCache)(nil)
var _ evs.Lookaside = (*BoltCache)(nil)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "termcache-test")
	require.NoError(t, err)
	return dir
}

func TestDirCache_RoundTrip(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	cache, err := NewDirCache(filepath.Join(dir, "concepts"))
	require.NoError(t, err)

	_, found, err := cache.Get(context.Background(), "C7057")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(context.Background(), "C7057", []byte(`{"code":"C7057"}`)))
	data, found, err := cache.Get(context.Background(), "C7057")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"code":"C7057"}`, string(data))

	_, err = os.Stat(filepath.Join(dir, "concepts", "C7057.json"))
	assert.NoError(t, err)
}

func TestDirCache_Overwrites(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	cache, err := NewDirCache(dir)
	require.NoError(t, err)

	require.NoError(t, cache.Put(context.Background(), "C1", []byte("old")))
	require.NoError(t, cache.Put(context.Background(), "C1", []byte("new")))

	data, _, err := cache.Get(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	files, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "temporary files should not be left behind")
}

func TestDirCache_RejectsPathLikeCodes(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	cache, err := NewDirCache(dir)
	require.NoError(t, err)

	assert.Error(t, cache.Put(context.Background(), "../C1", []byte("x")))
	_, _, err = cache.Get(context.Background(), "")
	assert.Error(t, err)
}
