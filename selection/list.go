// Package selection keeps the ordered, deduplicated list of files a user
// picked for merging.
package selection

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrDuplicate is informational: the candidate is already selected.
	ErrDuplicate = errors.New("is already added")
	// ErrNotPDF rejects names without a .pdf suffix.
	ErrNotPDF = errors.New("is not a PDF file")
	// ErrOutOfRange is returned by Remove for a position outside the list.
	ErrOutOfRange = errors.New("position out of range")
)

// RejectError names the candidate that Add turned away. Its message is the
// user-facing notice.
type RejectError struct {
	Name string
	Err  error
}

func (e *RejectError) Error() string {
	return "File \"" + e.Name + "\" " + e.Err.Error()
}

func (e *RejectError) Unwrap() error { return e.Err }

// MinMergeCount is the smallest selection that may be merged.
const MinMergeCount = 2

// List is an insertion-ordered selection. It is not safe for concurrent use;
// the owning workspace serializes access.
type List struct {
	files []*File
}

// NewList returns an empty selection.
func NewList() *List {
	return &List{}
}

// Check reports whether a file with this name and size would be accepted by
// Add, without changing the list.
// The duplicate check runs before the type check.
func (l *List) Check(name string, size int64) error {
	k := key{name: name, size: size}
	for _, f := range l.files {
		if f.key() == k {
			return &RejectError{Name: name, Err: ErrDuplicate}
		}
	}
	if !IsPDFName(name) {
		return &RejectError{Name: name, Err: ErrNotPDF}
	}
	return nil
}

// Add appends f unless it duplicates an element or is not a PDF.
func (l *List) Add(f *File) error {
	if err := l.Check(f.Name, f.Size); err != nil {
		return err
	}
	l.files = append(l.files, f)
	return nil
}

// Remove deletes and returns the element at the zero-based position i.
func (l *List) Remove(i int) (*File, error) {
	if i < 0 || i >= len(l.files) {
		return nil, errors.Wrapf(ErrOutOfRange, "remove %d", i)
	}
	f := l.files[i]
	l.files = append(l.files[:i], l.files[i+1:]...)
	return f, nil
}

// Len returns the number of selected files.
func (l *List) Len() int {
	return len(l.files)
}

// CanMerge gates the merge trigger.
func (l *List) CanMerge() bool {
	return len(l.files) >= MinMergeCount
}

// Files returns a snapshot; later mutations of the list do not affect it.
func (l *List) Files() []*File {
	out := make([]*File, len(l.files))
	copy(out, l.files)
	return out
}

// Clear empties the list and returns what it held.
func (l *List) Clear() []*File {
	out := l.files
	l.files = nil
	return out
}

// IsPDFName reports whether name ends in ".pdf", ignoring case.
func IsPDFName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}
