package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Lucifer7355/pdfmerge/merge"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// SpoolRoot holds one spool directory per workspace. Empty means a new
	// directory under os.TempDir, removed again by Close.
	SpoolRoot string
	// IdleTimeout evicts workspaces nobody used for that long.
	IdleTimeout time.Duration
	// Merge is the template for every workspace pipeline.
	Merge merge.Options
}

// Registry owns the workspaces of a running server. Nothing survives a
// restart.
type Registry struct {
	root      string
	ownsRoot  bool
	idle      time.Duration
	mergeOpts merge.Options
	log       *logrus.Entry
	now       func() time.Time

	mu    sync.Mutex
	items map[string]*Workspace
}

// NewRegistry prepares the spool root.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	r := &Registry{
		root:      opts.SpoolRoot,
		idle:      opts.IdleTimeout,
		mergeOpts: opts.Merge,
		log:       logrus.WithField("component", "Registry"),
		now:       time.Now,
		items:     make(map[string]*Workspace),
	}
	if r.idle <= 0 {
		r.idle = 30 * time.Minute
	}
	if r.root == "" {
		dir, err := os.MkdirTemp("", "pdfmerge-")
		if err != nil {
			return nil, errors.Wrap(err, "create spool root")
		}
		r.root, r.ownsRoot = dir, true
	} else if err := os.MkdirAll(r.root, 0o700); err != nil {
		return nil, errors.Wrap(err, "create spool root")
	}
	return r, nil
}

// Create registers a new, empty workspace.
func (r *Registry) Create() (*Workspace, error) {
	id := uuid.New().String()
	spool, err := NewSpool(filepath.Join(r.root, id))
	if err != nil {
		return nil, err
	}

	opts := r.mergeOpts
	log := logrus.WithFields(logrus.Fields{"component": "MergePipeline", "workspace": id})
	opts.Log = log
	observe := opts.OnTransition
	opts.OnTransition = func(s merge.State, index int) {
		log.WithFields(logrus.Fields{"state": s.String(), "index": index}).Debug("[MergePipeline] ➜ State changed")
		if observe != nil {
			observe(s, index)
		}
	}
	ws := New(id, merge.New(opts), spool)
	ws.now = r.now
	ws.touched = r.now()

	r.mu.Lock()
	r.items[id] = ws
	r.mu.Unlock()
	r.log.WithField("workspace", id).Info("[Registry] ✅ Workspace created")
	return ws, nil
}

// Get returns a registered workspace.
func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.items[id]
	return ws, ok
}

// Len returns the number of workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep closes workspaces idle for longer than the idle timeout. Workspaces
// with a merge in flight are kept.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var stale []*Workspace
	for id, ws := range r.items {
		if ws.Merging() || ws.IdleSince().After(cutoff) {
			continue
		}
		stale = append(stale, ws)
		delete(r.items, id)
	}
	r.mu.Unlock()

	for _, ws := range stale {
		if err := ws.Close(); err != nil {
			r.log.WithError(err).WithField("workspace", ws.ID()).Warn("[Registry] ❌ Could not clean workspace")
		}
	}
	if len(stale) > 0 {
		r.log.WithField("evicted", len(stale)).Info("[Registry] ✅ Idle workspaces evicted")
	}
	return len(stale)
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close closes every workspace and removes the spool root if the registry
// created it.
func (r *Registry) Close() error {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range items {
		ws.Close()
	}
	if r.ownsRoot {
		return os.RemoveAll(r.root)
	}
	return nil
}
