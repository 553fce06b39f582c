// Package merge runs a merge session: every selected file is parsed in
// selection order, its pages are appended to one output document, and the
// result is serialized and handed to a deliverer.
package merge

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Lucifer7355/pdfmerge/delivery"
	"github.com/Lucifer7355/pdfmerge/pdfdoc"
	"github.com/Lucifer7355/pdfmerge/selection"
	"github.com/Lucifer7355/pdfmerge/status"
)

// User-facing texts written to the status channel.
const (
	MsgInsufficient = "Please select at least 2 PDF files."
	MsgInProgress   = "A merge is already in progress."
	MsgBusy         = "The server is busy merging other documents. Try again shortly."
	MsgStarted      = "Merging PDFs..."
	MsgSucceeded    = "PDFs merged successfully! Download started."
	MsgFailedPrefix = "Error merging PDFs: "

	progressStart  = "Processing..."
	progressSaving = "Saving merged PDF..."
)

// State of a pipeline.
type State int

const (
	Idle State = iota
	Validating
	Processing
	Finalizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Processing:
		return "processing"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Reporter is the status channel a session writes to. *status.Board
// implements it.
type Reporter interface {
	Notify(sev status.Severity, text string)
	ShowProgress(text string)
	SetProgress(percent int, text string)
	HideProgress()
}

// Documents creates and parses documents. *pdfdoc.Engine implements it.
type Documents interface {
	Create() *pdfdoc.Document
	Parse(data []byte) (*pdfdoc.Document, error)
}

// Options configures a Pipeline.
type Options struct {
	Documents Documents
	Deliverer delivery.Deliverer
	// Slots, when set, is shared by all pipelines of the process; a session
	// needs one unit to start.
	Slots *semaphore.Weighted
	Log   *logrus.Entry
	// OnTransition observes every state change. index is the 1-based file
	// number while Processing and zero otherwise.
	OnTransition func(s State, index int)
}

// Result describes a delivered merge.
type Result struct {
	Files   int
	Pages   int
	Bytes   int
	Receipt *delivery.Receipt
	Elapsed time.Duration
}

// Outcome is what Start eventually yields.
type Outcome struct {
	Result *Result
	Err    error
}

// Pipeline runs one session at a time. A second invocation while a session
// is in flight is rejected with ErrInProgress.
type Pipeline struct {
	docs         Documents
	deliverer    delivery.Deliverer
	slots        *semaphore.Weighted
	log          *logrus.Entry
	onTransition func(State, int)

	running atomic.Bool

	mu    sync.Mutex
	state State
}

// New returns an idle pipeline.
func New(opts Options) *Pipeline {
	if opts.Log == nil {
		opts.Log = logrus.WithField("component", "MergePipeline")
	}
	return &Pipeline{
		docs:         opts.Documents,
		deliverer:    opts.Deliverer,
		slots:        opts.Slots,
		log:          opts.Log,
		onTransition: opts.OnTransition,
	}
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Released reports whether the deliverer already dropped the document
// behind r.
func (p *Pipeline) Released(r *delivery.Receipt) bool {
	return delivery.Released(p.deliverer, r)
}

// Running reports whether a session is in flight.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

func (p *Pipeline) transition(s State, index int) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	if p.onTransition != nil {
		p.onTransition(s, index)
	}
}

// Start validates the request and runs the session in its own goroutine.
// Validation failures are returned directly and reported to r; everything
// after that arrives on the channel, which yields exactly one Outcome.
func (p *Pipeline) Start(ctx context.Context, files []*selection.File, r Reporter) (<-chan Outcome, error) {
	if !p.running.CompareAndSwap(false, true) {
		r.Notify(status.Error, MsgInProgress)
		return nil, ErrInProgress
	}

	p.transition(Validating, 0)
	if len(files) < selection.MinMergeCount {
		p.transition(Failed, 0)
		p.running.Store(false)
		r.Notify(status.Error, MsgInsufficient)
		return nil, ErrInsufficientSelection
	}
	if p.slots != nil && !p.slots.TryAcquire(1) {
		p.transition(Failed, 0)
		p.running.Store(false)
		r.Notify(status.Error, MsgBusy)
		return nil, ErrBusy
	}

	snapshot := make([]*selection.File, len(files))
	copy(snapshot, files)

	out := make(chan Outcome, 1)
	go func() {
		res, err := p.run(ctx, snapshot, r)
		if p.slots != nil {
			p.slots.Release(1)
		}
		// free before publishing so a caller woken by the outcome can start again
		p.running.Store(false)
		out <- Outcome{Result: res, Err: err}
		close(out)
	}()
	return out, nil
}

// Run is Start followed by waiting for the outcome.
func (p *Pipeline) Run(ctx context.Context, files []*selection.File, r Reporter) (*Result, error) {
	ch, err := p.Start(ctx, files, r)
	if err != nil {
		return nil, err
	}
	o := <-ch
	return o.Result, o.Err
}

func (p *Pipeline) run(ctx context.Context, files []*selection.File, r Reporter) (*Result, error) {
	start := time.Now()
	n := len(files)
	log := p.log.WithField("files", n)
	log.Info("[MergePipeline] ➜ Merge started")

	r.ShowProgress(progressStart)
	r.Notify(status.Info, MsgStarted)

	out := p.docs.Create()
	for i, f := range files {
		idx := i + 1
		p.transition(Processing, idx)
		if err := ctx.Err(); err != nil {
			return nil, p.fail(r, log, &ProcessingError{Index: idx, Name: f.Name, Stage: StageCanceled, Err: err})
		}
		r.SetProgress(Percent(idx, n), fmt.Sprintf("Processing %s...", f.Name))

		data, err := f.ReadAll()
		if err != nil {
			return nil, p.fail(r, log, &ProcessingError{Index: idx, Name: f.Name, Stage: StageRead, Err: err})
		}
		src, err := p.docs.Parse(data)
		if err != nil {
			return nil, p.fail(r, log, &ProcessingError{Index: idx, Name: f.Name, Stage: StageParse, Err: err})
		}
		pages, err := out.CopyPages(src, src.PageIndices())
		if err != nil {
			return nil, p.fail(r, log, &ProcessingError{Index: idx, Name: f.Name, Stage: StageCopy, Err: err})
		}
		for _, pg := range pages {
			out.AddPage(pg)
		}
		log.WithFields(logrus.Fields{"file": f.Name, "index": idx, "pages": len(pages)}).Info("[MergePipeline] ✅ File appended")
	}

	p.transition(Finalizing, 0)
	r.SetProgress(100, progressSaving)
	data, err := out.Save()
	if err != nil {
		return nil, p.fail(r, log, &ProcessingError{Stage: StageSave, Err: err})
	}

	p.transition(Done, 0)
	receipt, err := p.deliverer.Deliver(ctx, delivery.FileName, data)
	if err != nil {
		return nil, p.fail(r, log, &ProcessingError{Stage: StageDeliver, Err: err})
	}

	r.HideProgress()
	r.Notify(status.Success, MsgSucceeded)

	res := &Result{
		Files:   n,
		Pages:   out.PageCount(),
		Bytes:   len(data),
		Receipt: receipt,
		Elapsed: time.Since(start),
	}
	log.WithFields(logrus.Fields{"pages": res.Pages, "bytes": res.Bytes}).Infof("[MergePipeline] ✅ Merge delivered in %s", res.Elapsed)
	return res, nil
}

func (p *Pipeline) fail(r Reporter, log *logrus.Entry, pe *ProcessingError) error {
	p.transition(Failed, 0)
	r.HideProgress()
	r.Notify(status.Error, MsgFailedPrefix+pe.Err.Error())
	log.WithError(pe).Error("[MergePipeline] ❌ Merge failed")
	return pe
}

// Percent is the progress reported while processing file i of n.
func Percent(i, n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Round(float64(i*100) / float64(n)))
}
