// Package filesvc stores the answer book files on the local disk.
package filesvc

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
	"github.com/trezcool/markit/core/answer"
)

// LocalStore keeps the files under `<root>/answer_books/<book id>/`.
type LocalStore struct {
	root string
}

var _ answer.FileStore = (*LocalStore)(nil)

func NewLocalStore(conf *core.Config) *LocalStore {
	root := conf.DataFolder
	if !filepath.IsAbs(root) {
		root = filepath.Join(conf.WorkDir, root)
	}
	return &LocalStore{root: root}
}

func (s *LocalStore) LocalPath(bookID int64, name string) string {
	return filepath.Join(s.root, filepath.FromSlash(answer.RemotePath(bookID, name)))
}

func (s *LocalStore) Exists(bookID int64, name string) (bool, error) {
	info, err := os.Stat(s.LocalPath(bookID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "checking file")
	}
	return !info.IsDir(), nil
}

func (s *LocalStore) Save(bookID int64, name string, content []byte) error {
	fp := s.LocalPath(bookID, name)
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return errors.Wrap(err, "creating book folder")
	}
	if err := os.WriteFile(fp, content, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	return nil
}

// Remove deletes the files of a book; missing files are ignored.
func (s *LocalStore) Remove(bookID int64, names ...string) error {
	for _, name := range names {
		if err := os.Remove(s.LocalPath(bookID, name)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing %s", name)
		}
	}
	return nil
}
