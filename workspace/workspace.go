// Package workspace ties one user's selection list, status board and merge
// pipeline together. Host adapters (HTTP, shell) only talk to a Workspace.
package workspace

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Lucifer7355/pdfmerge/delivery"
	"github.com/Lucifer7355/pdfmerge/merge"
	"github.com/Lucifer7355/pdfmerge/selection"
	"github.com/Lucifer7355/pdfmerge/status"
)

// Entry is one row of the rendered selection list.
type Entry struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	SizeText string `json:"size_text"`
}

// View is everything a host needs to render the workspace.
type View struct {
	Files    []Entry           `json:"files"`
	CanMerge bool              `json:"can_merge"`
	Merging  bool              `json:"merging"`
	State    string            `json:"state"`
	Message  status.Message    `json:"message"`
	Progress status.Progress   `json:"progress"`
	Download *delivery.Receipt `json:"download,omitempty"`
}

// Workspace is safe for concurrent use.
type Workspace struct {
	id       string
	board    *status.Board
	pipeline *merge.Pipeline
	spool    *Spool
	log      *logrus.Entry
	now      func() time.Time

	mu       sync.Mutex
	list     *selection.List
	deferred []*selection.File
	result   *merge.Result
	touched  time.Time
}

// New builds a workspace. spool may be nil when every file is added with
// Add rather than Upload.
func New(id string, pipeline *merge.Pipeline, spool *Spool) *Workspace {
	w := &Workspace{
		id:       id,
		board:    status.NewBoard(),
		pipeline: pipeline,
		spool:    spool,
		log:      logrus.WithFields(logrus.Fields{"component": "Workspace", "workspace": id}),
		now:      time.Now,
		list:     selection.NewList(),
	}
	w.touched = w.now()
	return w
}

// ID identifies the workspace.
func (w *Workspace) ID() string { return w.id }

// Board is the workspace status channel.
func (w *Workspace) Board() *status.Board { return w.board }

func (w *Workspace) touch() {
	w.touched = w.now()
}

// IdleSince returns the time of the last call that used the workspace.
func (w *Workspace) IdleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.touched
}

// Add puts f at the end of the selection. A rejected file is reported on the
// board (duplicates as info, other rejections as error) and released.
func (w *Workspace) Add(f *selection.File) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if err := w.list.Add(f); err != nil {
		w.reject(err)
		f.Release()
		return err
	}
	w.log.WithFields(logrus.Fields{"file": f.Name, "size": f.Size}).Info("[Workspace] ✅ File added")
	return nil
}

// Upload checks name and size against the selection, spools r and adds it.
// Rejected uploads are never written to disk.
func (w *Workspace) Upload(name string, size int64, r io.Reader) error {
	if w.spool == nil {
		return errors.New("workspace does not accept uploads")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	if err := w.list.Check(name, size); err != nil {
		w.reject(err)
		return err
	}

	f, err := w.spool.Save(name, r)
	if err != nil {
		w.board.Notify(status.Error, fmt.Sprintf("Could not store %q: %v", name, err))
		w.log.WithError(err).WithField("file", name).Error("[Workspace] ❌ Upload failed")
		return err
	}
	if err := w.list.Add(f); err != nil {
		// size on disk differed from the announced size and collided
		w.reject(err)
		f.Release()
		return err
	}
	w.log.WithFields(logrus.Fields{"file": name, "size": f.Size}).Info("[Workspace] ✅ File uploaded")
	return nil
}

func (w *Workspace) reject(err error) {
	sev := status.Error
	if errors.Is(err, selection.ErrDuplicate) {
		sev = status.Info
	}
	w.board.Notify(sev, err.Error())
	w.log.WithField("reason", err.Error()).Info("[Workspace] ➜ File rejected")
}

// Remove deletes the file at the zero-based position i.
func (w *Workspace) Remove(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	f, err := w.list.Remove(i)
	if err != nil {
		w.board.Notify(status.Error, fmt.Sprintf("No file at position %d", i))
		return err
	}
	w.releaseLocked(f)
	w.log.WithField("file", f.Name).Info("[Workspace] ✅ File removed")
	return nil
}

// releaseLocked frees f now, or after the running session if there is one:
// the session works on a snapshot that may still reference f.
func (w *Workspace) releaseLocked(f *selection.File) {
	if w.pipeline.Running() {
		w.deferred = append(w.deferred, f)
		return
	}
	if err := f.Release(); err != nil {
		w.log.WithError(err).Warn("[Workspace] ❌ Could not release file")
	}
}

func (w *Workspace) releaseDeferredLocked() {
	for _, f := range w.deferred {
		if err := f.Release(); err != nil {
			w.log.WithError(err).Warn("[Workspace] ❌ Could not release file")
		}
	}
	w.deferred = nil
}

// CanMerge reports whether the merge trigger is enabled.
func (w *Workspace) CanMerge() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.list.CanMerge()
}

// Files returns a snapshot of the selection.
func (w *Workspace) Files() []*selection.File {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.list.Files()
}

// StartMerge starts a session on the current selection. The selection is
// never changed by the session, whatever its outcome.
func (w *Workspace) StartMerge(ctx context.Context) (<-chan merge.Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	ch, err := w.pipeline.Start(ctx, w.list.Files(), w.board)
	if err != nil {
		return nil, err
	}
	w.result = nil

	done := make(chan merge.Outcome, 1)
	go func() {
		o := <-ch
		w.mu.Lock()
		w.result = o.Result
		w.releaseDeferredLocked()
		w.touch()
		w.mu.Unlock()
		done <- o
		close(done)
	}()
	return done, nil
}

// Merge runs a session and waits for it.
func (w *Workspace) Merge(ctx context.Context) (*merge.Result, error) {
	ch, err := w.StartMerge(ctx)
	if err != nil {
		return nil, err
	}
	o := <-ch
	return o.Result, o.Err
}

// Merging reports whether a session is in flight.
func (w *Workspace) Merging() bool {
	return w.pipeline.Running()
}

// View renders the current state. A download is offered until the
// deliverer releases it.
func (w *Workspace) View() View {
	w.mu.Lock()
	files := w.list.Files()
	canMerge := w.list.CanMerge()
	var download *delivery.Receipt
	if w.result != nil && w.result.Receipt != nil {
		if w.pipeline.Released(w.result.Receipt) {
			w.result = nil
		} else {
			download = w.result.Receipt
		}
	}
	w.mu.Unlock()

	entries := make([]Entry, 0, len(files))
	for i, f := range files {
		entries = append(entries, Entry{Index: i, Name: f.Name, Size: f.Size, SizeText: selection.FormatSize(f.Size)})
	}
	return View{
		Files:    entries,
		CanMerge: canMerge,
		Merging:  w.pipeline.Running(),
		State:    w.pipeline.State().String(),
		Message:  w.board.Message(),
		Progress: w.board.Progress(),
		Download: download,
	}
}

// Close releases every file and the spool. The workspace must not be used
// afterwards.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.list.Clear() {
		f.Release()
	}
	w.releaseDeferredLocked()
	if w.spool != nil {
		return w.spool.Close()
	}
	return nil
}
