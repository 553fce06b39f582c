package handlers

import (
	"net/http"

	"github.com/Lucifer7355/pdfmerge/workspace"
)

const sessionCookie = "pdfmerge_session"

// workspaceFor returns the workspace of the caller, creating one (and the
// cookie pointing at it) for new, expired or forged sessions.
func (s *Server) workspaceFor(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, error) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, err := s.tokens.Parse(c.Value); err == nil {
			if ws, ok := s.registry.Get(id); ok {
				return ws, nil
			}
		}
	}

	ws, err := s.registry.Create()
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(ws.ID())
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return ws, nil
}

func (s *Server) mustWorkspace(w http.ResponseWriter, r *http.Request, handler string) (*workspace.Workspace, bool) {
	ws, err := s.workspaceFor(w, r)
	if err != nil {
		s.log.WithError(err).Errorf("[%s] ❌ Could not open workspace", handler)
		jsonError(w, "Could not open workspace", http.StatusInternalServerError)
		return nil, false
	}
	return ws, true
}
