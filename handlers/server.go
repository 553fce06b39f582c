// Package handlers is the HTTP surface of the merge service. Every browser
// session owns one workspace, identified by a signed cookie.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Lucifer7355/pdfmerge/workspace"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Options configures a Server.
type Options struct {
	Registry *workspace.Registry
	Tokens   *workspace.Tokens
	// Downloads serves delivered documents under /downloads/. Nil when the
	// deliverer hands out absolute URLs.
	Downloads http.Handler
	// MaxUploadBytes caps one upload request body.
	MaxUploadBytes int64
	// MaxMemoryBytes is the part of a multipart body kept in memory.
	MaxMemoryBytes int64
	// Context outlives single requests; merges started over HTTP are canceled
	// when it is done.
	Context context.Context
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// Server holds the handlers.
type Server struct {
	registry  *workspace.Registry
	tokens    *workspace.Tokens
	downloads http.Handler
	maxUpload int64
	maxMemory int64
	ctx       context.Context
	secure    bool
	log       *logrus.Entry
}

// New returns a server for opts.
func New(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	if opts.MaxMemoryBytes <= 0 {
		opts.MaxMemoryBytes = 20 << 20 // 20MB
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return &Server{
		registry:  opts.Registry,
		tokens:    opts.Tokens,
		downloads: opts.Downloads,
		maxUpload: opts.MaxUploadBytes,
		maxMemory: opts.MaxMemoryBytes,
		ctx:       opts.Context,
		secure:    opts.SecureCookies,
		log:       logrus.WithField("component", "HTTP"),
	}
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.IndexHandler)
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /files", s.StatusHandler)
	mux.HandleFunc("GET /status", s.StatusHandler)
	mux.HandleFunc("POST /files", s.UploadHandler)
	mux.HandleFunc("DELETE /files/{index}", s.RemoveHandler)
	mux.HandleFunc("POST /files/{index}/remove", s.RemoveHandler)
	mux.HandleFunc("POST /merge", s.MergeHandler)
	if s.downloads != nil {
		mux.Handle("GET /downloads/", s.downloads)
	}
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux)
	return mux
}

// wantsHTML is true for plain browser form posts, which get a redirect back
// to the page instead of a JSON body.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (s *Server) redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
