// Package pdftest builds small PDFs for tests and inspects results.
//
// Every page of a fixture gets its own width so tests can tell pages apart
// after a merge by reading the MediaBox back.
package pdftest

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/require"

	"github.com/Lucifer7355/pdfmerge/selection"
)

// PageHeight is the height in points of every fixture page.
const PageHeight = 700

func init() {
	api.DisableConfigDir()
}

// Document returns a PDF with one page per width (points).
func Document(t testing.TB, widths ...float64) []byte {
	t.Helper()
	require.NotEmpty(t, widths, "a fixture needs at least one page")

	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i, w := range widths {
		doc.AddPageFormat("P", gofpdf.SizeType{Wd: w, Ht: PageHeight})
		doc.SetXY(20, 20)
		doc.Cellf(0, 14, "page %d", i+1)
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

// File wraps data as an in-memory selection candidate.
func File(name string, data []byte) *selection.File {
	return &selection.File{Name: name, Size: int64(len(data)), Source: memory(data)}
}

type memory []byte

func (m memory) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m)), nil
}

// Widths returns a run of n distinct widths starting at base, one point apart.
func Widths(base float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + float64(i)
	}
	return out
}

// PageWidths reads back the MediaBox width of every page, in page order,
// rounded to two decimals.
func PageWidths(t testing.TB, data []byte) []float64 {
	t.Helper()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	require.NoError(t, err)
	require.NoError(t, ctx.EnsurePageCount())

	out := make([]float64, 0, ctx.PageCount)
	for nr := 1; nr <= ctx.PageCount; nr++ {
		_, _, inh, err := ctx.PageDict(nr, false)
		require.NoError(t, err)
		require.NotNil(t, inh)
		require.NotNil(t, inh.MediaBox, "page %d has no MediaBox", nr)
		out = append(out, math.Round(inh.MediaBox.Width()*100)/100)
	}
	return out
}

// CountPages counts pages with an independent reader.
func CountPages(t testing.TB, data []byte) int {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return r.NumPage()
}
