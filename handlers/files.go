package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Lucifer7355/pdfmerge/selection"
	"github.com/Lucifer7355/pdfmerge/workspace"
)

// UploadResult reports what happened to one uploaded part.
type UploadResult struct {
	Name  string `json:"name"`
	Added bool   `json:"added"`
	Error string `json:"error,omitempty"`
}

type uploadResponse struct {
	Results []UploadResult `json:"results"`
	workspace.View
}

// UploadHandler adds every part of the multipart field "files" to the
// selection, in the order the client sent them.
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.log.WithField("handler", "UploadHandler")
	log.Info("[UploadHandler] ➜ Received request at ", start.Format(time.RFC3339))

	ws, ok := s.mustWorkspace(w, r, "UploadHandler")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.WithError(err).Warn("[UploadHandler] ❌ Upload too large")
			jsonError(w, fmt.Sprintf("Upload exceeds %s", selection.FormatSize(s.maxUpload)), http.StatusRequestEntityTooLarge)
			return
		}
		log.WithError(err).Warn("[UploadHandler] ❌ Error parsing form")
		jsonError(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		log.Warn("[UploadHandler] ❌ No files in request")
		jsonError(w, "Missing 'files' field", http.StatusBadRequest)
		return
	}

	results := make([]UploadResult, 0, len(files))
	for i, fh := range files {
		res := UploadResult{Name: fh.Filename}
		file, err := fh.Open()
		if err != nil {
			log.WithError(err).Errorf("[UploadHandler] ❌ Error opening file %d", i+1)
			res.Error = "could not read upload"
			results = append(results, res)
			continue
		}
		err = ws.Upload(fh.Filename, fh.Size, file)
		file.Close()
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Added = true
		}
		results = append(results, res)
	}

	log.WithFields(logrus.Fields{"parts": len(files), "workspace": ws.ID()}).Info("[UploadHandler] ✅ Response sent in ", time.Since(start))
	if wantsHTML(r) {
		s.redirectHome(w, r)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Results: results, View: ws.View()})
}

// RemoveHandler drops the file at the zero-based position in the path.
func (s *Server) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.mustWorkspace(w, r, "RemoveHandler")
	if !ok {
		return
	}

	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		jsonError(w, "Invalid file position", http.StatusBadRequest)
		return
	}
	if err := ws.Remove(i); err != nil {
		if wantsHTML(r) {
			s.redirectHome(w, r)
			return
		}
		if errors.Is(err, selection.ErrOutOfRange) {
			jsonError(w, fmt.Sprintf("No file at position %d", i), http.StatusNotFound)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if wantsHTML(r) {
		s.redirectHome(w, r)
		return
	}
	writeJSON(w, http.StatusOK, ws.View())
}

// StatusHandler returns the workspace view: list, message, progress and the
// latest download.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.mustWorkspace(w, r, "StatusHandler")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.View())
}
