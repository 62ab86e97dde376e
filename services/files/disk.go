package filesvc

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/elearning/core/file"
)

// DiskStorage keeps file contents under a root directory, sharded by the first two characters of the name.
type DiskStorage struct {
	root string
}

var _ file.Storage = (*DiskStorage)(nil)

func NewDiskStorage(root string) (*DiskStorage, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrapf(err, "creating media root %s", root)
	}
	return &DiskStorage{root: root}, nil
}

func (s *DiskStorage) path(name string) (string, error) {
	name = filepath.Base(name)
	if len(name) < 3 || strings.HasPrefix(name, ".") {
		return "", file.ErrNotFound
	}
	return filepath.Join(s.root, name[:2], name), nil
}

func (s *DiskStorage) Put(ctx context.Context, name string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fp, err := s.path(name)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o750); err != nil {
		return errors.Wrap(err, "creating file directory")
	}

	// write then rename so readers never see a partial file
	tmp := fp + ".tmp"
	if err = os.WriteFile(tmp, content, 0o640); err != nil {
		return errors.Wrap(err, "writing file")
	}
	if err = os.Rename(tmp, fp); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "renaming file")
	}
	return nil
}

func (s *DiskStorage) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp, err := s.path(name)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(fp)
	if os.IsNotExist(err) {
		return nil, file.ErrNotFound
	}
	return content, errors.Wrap(err, "reading file")
}

func (s *DiskStorage) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fp, err := s.path(name)
	if err != nil {
		return err
	}
	if err = os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting file")
	}
	return nil
}
