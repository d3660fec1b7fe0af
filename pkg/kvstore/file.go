package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const fileExt = ".json"

// File keeps one document per key in a directory. Writes go through a
// temporary file and a rename so readers never see partial documents.
type File struct {
	dir string
}

// NewFile creates the directory when needed.
func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("kvstore: file store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "kvstore: create %s", dir)
	}
	return &File{dir: dir}, nil
}

// Get reads the document stored under key.
func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "kvstore: read %s", key)
	}
	return data, true, nil
}

// Set replaces the document stored under key.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "kvstore: write %s", key)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "kvstore: write %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "kvstore: write %s", key)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "kvstore: commit %s", key)
	}
	return nil
}

// Delete removes the document stored under key.
func (f *File) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "kvstore: delete %s", key)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error { return nil }

func (f *File) path(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." || strings.HasPrefix(key, ".") {
		return "", errors.Wrapf(ErrInvalidKey, "key %q", key)
	}
	return filepath.Join(f.dir, key+fileExt), nil
}
