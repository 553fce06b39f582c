package handlers

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Lucifer7355/pdfmerge/merge"
)

// MergeHandler starts a merge of the current selection and answers right
// away; clients follow progress on /status.
func (s *Server) MergeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := s.log.WithField("handler", "MergeHandler")
	log.Info("[MergeHandler] ➜ Received request at ", start.Format(time.RFC3339))

	ws, ok := s.mustWorkspace(w, r, "MergeHandler")
	if !ok {
		return
	}
	log = log.WithField("workspace", ws.ID())

	ch, err := ws.StartMerge(s.ctx)
	if err != nil {
		log.WithError(err).Warn("[MergeHandler] ❌ Merge not started")
		if wantsHTML(r) {
			s.redirectHome(w, r)
			return
		}
		switch {
		case errors.Is(err, merge.ErrInsufficientSelection):
			jsonError(w, merge.MsgInsufficient, http.StatusBadRequest)
		case errors.Is(err, merge.ErrInProgress):
			jsonError(w, merge.MsgInProgress, http.StatusConflict)
		case errors.Is(err, merge.ErrBusy):
			w.Header().Set("Retry-After", "5")
			jsonError(w, merge.MsgBusy, http.StatusServiceUnavailable)
		default:
			jsonError(w, "Failed to start merge", http.StatusInternalServerError)
		}
		return
	}

	go func() {
		o := <-ch
		if o.Err != nil {
			return
		}
		log.WithFields(logrus.Fields{"pages": o.Result.Pages, "url": o.Result.Receipt.URL}).Info("[MergeHandler] ✅ Merged PDF ready")
	}()

	log.Info("[MergeHandler] ✅ Merge accepted in ", time.Since(start))
	if wantsHTML(r) {
		s.redirectHome(w, r)
		return
	}
	writeJSON(w, http.StatusAccepted, ws.View())
}
