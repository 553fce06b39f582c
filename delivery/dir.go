package delivery

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Dir writes documents into a local directory, replacing any previous file
// of the same name.
type Dir struct {
	Path string
}

func (d Dir) Deliver(_ context.Context, name string, data []byte) (*Receipt, error) {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}
	path, err := filepath.Abs(filepath.Join(d.Path, name))
	if err != nil {
		return nil, errors.Wrap(err, "resolve output path")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, errors.Wrap(err, "write merged document")
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return &Receipt{Name: name, URL: u.String(), Size: len(data)}, nil
}
