package workspace

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/Lucifer7355/pdfmerge/selection"
)

// Spool stores uploaded content in temp files until the file leaves the
// workspace.
type Spool struct {
	dir string
}

// NewSpool spools into dir. The directory is created by the first Save.
func NewSpool(dir string) (*Spool, error) {
	if dir == "" {
		return nil, errors.New("empty spool directory")
	}
	return &Spool{dir: dir}, nil
}

// Save copies r into a new temp file. The returned file's size is the
// number of bytes actually written.
func (s *Spool) Save(name string, r io.Reader) (*selection.File, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create spool directory")
	}
	tmp, err := os.CreateTemp(s.dir, "upload-*.pdf")
	if err != nil {
		return nil, errors.Wrap(err, "create temp file")
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Wrap(err, "save upload")
	}
	return &selection.File{Name: name, Size: n, Source: spooled(tmp.Name())}, nil
}

// Close removes the spool directory with everything left in it.
func (s *Spool) Close() error {
	return os.RemoveAll(s.dir)
}

type spooled string

func (p spooled) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

func (p spooled) Release() error {
	if err := os.Remove(string(p)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
