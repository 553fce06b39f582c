package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "ok",
		"message":    "PDF merge is live",
		"time":       time.Now().Format(time.RFC3339),
		"workspaces": s.registry.Len(),
	})
}
