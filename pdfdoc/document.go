// Package pdfdoc is the document model the merge pipeline works against.
// Parsing, page extraction and serialization are done by pdfcpu; this
// package only tracks which source pages make up an output document.
package pdfdoc

import (
	"bytes"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
)

var (
	// ErrEmptyDocument is returned when saving a document without pages.
	ErrEmptyDocument = errors.New("document has no pages")
	// ErrPageOutOfRange is returned by CopyPages for an unknown page index.
	ErrPageOutOfRange = errors.New("page index out of range")
)

// ParseError reports input pdfcpu could not read as a PDF.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// Options configures an Engine.
type Options struct {
	// Strict switches pdfcpu from relaxed to strict validation.
	Strict bool
	// UseConfigDir lets pdfcpu create and read its user configuration
	// directory. Off by default: the merge needs no user fonts.
	UseConfigDir bool
}

// Engine creates and parses documents.
type Engine struct {
	strict bool
}

// NewEngine returns an engine. Disabling the pdfcpu configuration directory
// is process wide.
func NewEngine(opts Options) *Engine {
	if !opts.UseConfigDir {
		api.DisableConfigDir()
	}
	return &Engine{strict: opts.Strict}
}

// configuration returns a fresh pdfcpu configuration; pdfcpu writes to it
// during a call, so calls never share one.
func (e *Engine) configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if e.strict {
		conf.ValidationMode = model.ValidationStrict
	} else {
		conf.ValidationMode = model.ValidationRelaxed
	}
	return conf
}

// Create returns an empty output document.
func (e *Engine) Create() *Document {
	return &Document{engine: e}
}

// Parse reads and validates data.
func (e *Engine) Parse(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, &ParseError{Err: errors.New("empty input")}
	}
	ctx, err := api.ReadContext(bytes.NewReader(data), e.configuration())
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, &ParseError{Err: err}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &ParseError{Err: err}
	}

	d := &Document{engine: e, raw: data, ctx: ctx}
	d.pages = make([]Page, ctx.PageCount)
	for i := range d.pages {
		d.pages[i] = Page{src: d, nr: i + 1}
	}
	return d, nil
}

// Page is a handle to one page of a parsed source document.
type Page struct {
	src *Document
	nr  int
}

// Number is the 1-based page number inside the source document.
func (p Page) Number() int { return p.nr }

// Document is either a parsed source (raw bytes plus pdfcpu context) or an
// output document assembled from pages of sources.
type Document struct {
	engine *Engine
	raw    []byte
	ctx    *model.Context
	pages  []Page
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// PageIndices returns 0..PageCount-1 in document order.
func (d *Document) PageIndices() []int {
	out := make([]int, len(d.pages))
	for i := range out {
		out[i] = i
	}
	return out
}

// CopyPages returns handles for the given zero-based indices of src, in the
// order requested. The pages are not part of d until added with AddPage.
func (d *Document) CopyPages(src *Document, indices []int) ([]Page, error) {
	out := make([]Page, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(src.pages) {
			return nil, errors.Wrapf(ErrPageOutOfRange, "page %d of %d", i, len(src.pages))
		}
		out = append(out, src.pages[i])
	}
	return out, nil
}

// AddPage appends p after all pages added so far.
func (d *Document) AddPage(p Page) {
	d.pages = append(d.pages, p)
}

// Save serializes the document.
func (d *Document) Save() ([]byte, error) {
	if len(d.pages) == 0 {
		return nil, ErrEmptyDocument
	}
	segments, err := d.segments()
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := api.MergeRaw(segments, &out, false, d.engine.configuration()); err != nil {
		return nil, errors.Wrap(err, "write merged document")
	}
	return out.Bytes(), nil
}

// segments splits the page sequence into runs of ascending pages from one
// source and serializes each run on its own.
func (d *Document) segments() ([]io.ReadSeeker, error) {
	var out []io.ReadSeeker
	for start := 0; start < len(d.pages); {
		src := d.pages[start].src
		end := start + 1
		for end < len(d.pages) && d.pages[end].src == src && d.pages[end].nr > d.pages[end-1].nr {
			end++
		}

		nrs := make([]int, 0, end-start)
		for _, p := range d.pages[start:end] {
			nrs = append(nrs, p.nr)
		}
		data, err := src.extract(nrs)
		if err != nil {
			return nil, err
		}
		out = append(out, bytes.NewReader(data))
		start = end
	}
	return out, nil
}

// extract returns a standalone PDF holding the given 1-based pages.
func (d *Document) extract(nrs []int) ([]byte, error) {
	if d.ctx == nil {
		return nil, errors.New("pages must come from a parsed document")
	}
	if wholeDocument(nrs, d.ctx.PageCount) {
		return d.raw, nil
	}
	ctx, err := pdfcpu.ExtractPages(d.ctx, nrs, false)
	if err != nil {
		return nil, errors.Wrap(err, "extract pages")
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, errors.Wrap(err, "write extracted pages")
	}
	return buf.Bytes(), nil
}

func wholeDocument(nrs []int, count int) bool {
	if len(nrs) != count {
		return false
	}
	for i, nr := range nrs {
		if nr != i+1 {
			return false
		}
	}
	return true
}
