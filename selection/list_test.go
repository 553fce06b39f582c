package selection

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bytesSource []byte

func (b bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func names(files []*File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}

func sized(name string, size int64) *File {
	return &File{Name: name, Size: size, Source: bytesSource(make([]byte, size))}
}

func TestAddKeepsInsertionOrder(t *testing.T) {
	l := NewList()
	require.NoError(t, l.Add(sized("a.pdf", 1000)))
	require.NoError(t, l.Add(sized("b.pdf", 2000)))
	require.NoError(t, l.Add(sized("c.PDF", 10)))

	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.PDF"}, names(l.Files()))
}

func TestAddRejectsDuplicateNameAndSize(t *testing.T) {
	l := NewList()
	require.NoError(t, l.Add(sized("a.pdf", 1000)))

	err := l.Add(&File{Name: "a.pdf", Size: 1000, Source: bytesSource("different content")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.Equal(t, `File "a.pdf" is already added`, err.Error())
	assert.Equal(t, 1, l.Len())

	// same name, other size is a different candidate
	require.NoError(t, l.Add(sized("a.pdf", 1001)))
	assert.Equal(t, 2, l.Len())
}

func TestAddRejectsNonPDF(t *testing.T) {
	l := NewList()
	for _, name := range []string{"notes.txt", "scan.pdf.png", "pdf", "archive.pdfx", ""} {
		err := l.Add(sized(name, 1))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrNotPDF), name)
	}
	assert.Equal(t, 0, l.Len())

	err := l.Add(sized("report.txt", 5))
	assert.Equal(t, `File "report.txt" is not a PDF file`, err.Error())
}

func TestDuplicateCheckedBeforeType(t *testing.T) {
	l := &List{files: []*File{sized("x.txt", 3)}}
	err := l.Add(sized("x.txt", 3))
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestRemoveShiftsLaterElements(t *testing.T) {
	l := NewList()
	a, b, c := sized("a.pdf", 1), sized("b.pdf", 2), sized("c.pdf", 3)
	for _, f := range []*File{a, b, c} {
		require.NoError(t, l.Add(f))
	}

	removed, err := l.Remove(0)
	require.NoError(t, err)
	assert.Same(t, a, removed)

	files := l.Files()
	require.Len(t, files, 2)
	assert.Same(t, b, files[0])
	assert.Same(t, c, files[1])
}

func TestRemoveOutOfRange(t *testing.T) {
	l := NewList()
	require.NoError(t, l.Add(sized("a.pdf", 1)))

	for _, i := range []int{-1, 1, 7} {
		_, err := l.Remove(i)
		assert.True(t, errors.Is(err, ErrOutOfRange), "index %d", i)
	}
	assert.Equal(t, 1, l.Len())
}

func TestCanMergeTracksLength(t *testing.T) {
	l := NewList()
	steps := []struct {
		add    *File
		remove int
		want   bool
	}{
		{add: sized("a.pdf", 1), want: false},
		{add: sized("b.pdf", 1), want: true},
		{add: sized("c.pdf", 1), want: true},
		{remove: 0, want: true},
		{remove: 0, want: false},
		{add: sized("a.pdf", 1), want: true},
		{remove: 1, want: false},
		{remove: 0, want: false},
	}
	for i, s := range steps {
		if s.add != nil {
			require.NoError(t, l.Add(s.add))
		} else {
			_, err := l.Remove(s.remove)
			require.NoError(t, err)
		}
		assert.Equal(t, s.want, l.CanMerge(), "step %d", i)
		assert.Equal(t, l.Len() >= 2, l.CanMerge(), "step %d", i)
	}
}

func TestFilesIsSnapshot(t *testing.T) {
	l := NewList()
	require.NoError(t, l.Add(sized("a.pdf", 1)))
	require.NoError(t, l.Add(sized("b.pdf", 1)))

	snap := l.Files()
	_, err := l.Remove(0)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names(snap))
	assert.Equal(t, []string{"b.pdf"}, names(l.Files()))
}

func TestClearReturnsEverything(t *testing.T) {
	l := NewList()
	require.NoError(t, l.Add(sized("a.pdf", 1)))
	require.NoError(t, l.Add(sized("b.pdf", 1)))

	assert.Len(t, l.Clear(), 2)
	assert.Equal(t, 0, l.Len())
}

func TestPathFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o644))

	f, err := NewPathFile(path)
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", f.Name)
	assert.EqualValues(t, 13, f.Size)

	data, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	_, err = NewPathFile(dir)
	assert.Error(t, err)
}

type failingSource struct{}

func (failingSource) Open() (io.ReadCloser, error) { return nil, os.ErrPermission }

func TestReadAllWrapsOpenError(t *testing.T) {
	f := &File{Name: "locked.pdf", Size: 1, Source: failingSource{}}
	_, err := f.ReadAll()
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.Contains(t, err.Error(), "locked.pdf")
}
