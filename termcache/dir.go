package termcache

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DirCache keeps one JSON file per concept code in a directory.
type DirCache struct {
	dir string
}

func NewDirCache(dir string) (*DirCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory %s", dir)
	}
	return &DirCache{dir: dir}, nil
}

func (c *DirCache) Get(ctx context.Context, code string) ([]byte, bool, error) {
	path, err := c.path(code)
	if err != nil {
		return nil, false, err
	}
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s", path)
	}
	return data, true, nil
}

// Put writes through a temporary file so a reader never sees a half-written entry.
func (c *DirCache) Put(ctx context.Context, code string, data []byte) error {
	path, err := c.path(code)
	if err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(c.dir, "."+code+".")
	if err != nil {
		return errors.Wrapf(err, "creating temporary cache file for %s", code)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "writing cache entry for %s", code)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "writing cache entry for %s", code)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "storing cache entry for %s", code)
}

func (c *DirCache) path(code string) (string, error) {
	if code == "" || strings.ContainsAny(code, `/\`) || code == "." || code == ".." {
		return "", errors.Errorf("invalid concept code %q", code)
	}
	return filepath.Join(c.dir, code+".json"), nil
}
