package selection

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Source opens the content of a candidate file. Content is only read when
// the merge pipeline reaches the file.
type Source interface {
	Open() (io.ReadCloser, error)
}

// Releaser is implemented by sources that hold a resource (a spooled temp
// file) that must be freed once the file leaves its workspace.
type Releaser interface {
	Release() error
}

// File is a user-selected candidate. Two files are the same candidate when
// name and size match, whatever their content.
type File struct {
	Name   string
	Size   int64
	Source Source
}

type key struct {
	name string
	size int64
}

func (f *File) key() key {
	return key{name: f.Name, size: f.Size}
}

// ReadAll materializes the full content.
func (f *File) ReadAll() ([]byte, error) {
	if f.Source == nil {
		return nil, errors.Errorf("file %q has no content source", f.Name)
	}
	rc, err := f.Source.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", f.Name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", f.Name)
	}
	return data, nil
}

// Release frees the backing resource, if any.
func (f *File) Release() error {
	if r, ok := f.Source.(Releaser); ok {
		return r.Release()
	}
	return nil
}

// NewPathFile describes a file on local disk. The display name is the base
// name of path and the size is taken from the file system.
func NewPathFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}
	if info.IsDir() {
		return nil, errors.Errorf("%s is a directory", path)
	}
	return &File{Name: filepath.Base(path), Size: info.Size(), Source: PathSource(path)}, nil
}

// PathSource reads content from a path that stays owned by the caller.
type PathSource string

func (p PathSource) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}
