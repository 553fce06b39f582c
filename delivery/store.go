package delivery

import (
	"bytes"
	"context"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StoreOptions configures a Store.
type StoreOptions struct {
	// Prefix is the URL path the store is mounted at, e.g. "/downloads/".
	Prefix string
	// ReleaseDelay is how long an entry survives after its first download
	// started.
	ReleaseDelay time.Duration
	// TTL releases entries nobody fetched.
	TTL time.Duration
	Log *logrus.Entry
}

// Store keeps merged documents in memory behind one-off URLs of the form
// <Prefix><token>/<name>. It is the server-side twin of a browser object URL.
type Store struct {
	prefix       string
	releaseDelay time.Duration
	ttl          time.Duration
	log          *logrus.Entry

	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	name    string
	data    []byte
	created time.Time
	timer   *time.Timer
	fetched bool
}

// NewStore returns an empty store.
func NewStore(opts StoreOptions) *Store {
	if opts.Prefix == "" {
		opts.Prefix = "/downloads/"
	}
	if !strings.HasSuffix(opts.Prefix, "/") {
		opts.Prefix += "/"
	}
	if opts.ReleaseDelay <= 0 {
		opts.ReleaseDelay = 100 * time.Millisecond
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Log == nil {
		opts.Log = logrus.WithField("component", "DownloadStore")
	}
	return &Store{
		prefix:       opts.Prefix,
		releaseDelay: opts.ReleaseDelay,
		ttl:          opts.TTL,
		log:          opts.Log,
		entries:      make(map[string]*entry),
		now:          time.Now,
	}
}

// Deliver stores data and returns its URL.
func (s *Store) Deliver(_ context.Context, name string, data []byte) (*Receipt, error) {
	token := uuid.New().String()
	now := s.now()

	s.mu.Lock()
	e := &entry{name: name, data: data, created: now}
	e.timer = time.AfterFunc(s.ttl, func() { s.release(token, "expired") })
	s.entries[token] = e
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"token": token, "bytes": len(data)}).Info("[DownloadStore] ✅ Document ready for download")
	expires := now.Add(s.ttl)
	return &Receipt{
		Name:    name,
		URL:     s.prefix + token + "/" + name,
		Size:    len(data),
		Expires: &expires,
	}, nil
}

// Released reports whether the entry behind r is gone, either downloaded
// and released or expired.
func (s *Store) Released(r *Receipt) bool {
	token, _, _ := strings.Cut(strings.TrimPrefix(r.URL, s.prefix), "/")
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[token]
	return !ok
}

// ServeHTTP serves GET and HEAD <Prefix><token>/<name>. The first GET
// schedules the release of the entry; the response itself is served from a
// reference taken before that. HEAD never consumes the entry.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, s.prefix)
	token, name, _ := strings.Cut(rest, "/")

	s.mu.Lock()
	e, ok := s.entries[token]
	if ok && e.name != name {
		ok = false
	}
	if ok && !e.fetched && r.Method == http.MethodGet {
		e.fetched = true
		e.timer.Stop()
		e.timer = time.AfterFunc(s.releaseDelay, func() { s.release(token, "downloaded") })
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "download not found or expired", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": e.name}))
	http.ServeContent(w, r, e.name, e.created, bytes.NewReader(e.data))
}

func (s *Store) release(token, reason string) {
	s.mu.Lock()
	_, ok := s.entries[token]
	delete(s.entries, token)
	s.mu.Unlock()
	if ok {
		s.log.WithFields(logrus.Fields{"token": token, "reason": reason}).Debug("[DownloadStore] released")
	}
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close drops every entry.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, token)
	}
}
