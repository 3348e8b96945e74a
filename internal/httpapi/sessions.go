package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/valpere/legtrans/internal/language"
	"github.com/valpere/legtrans/internal/session"
)

// sessionView is the JSON form of a session snapshot.
type sessionView struct {
	ID            string `json:"id"`
	RawText       string `json:"rawText"`
	CommittedText string `json:"committedText"`
	Completion    string `json:"completion"`
	Phase         string `json:"phase"`
	From          string `json:"from"`
	To            string `json:"to"`
	Inflight      int    `json:"inflight"`
	Generation    uint64 `json:"generation"`
	Location      string `json:"location"`
}

func viewOf(s *session.Session, st session.State) sessionView {
	return sessionView{
		ID:            s.ID,
		RawText:       st.RawText,
		CommittedText: st.CommittedText,
		Completion:    st.Completion,
		Phase:         st.Phase.String(),
		From:          st.Pair.From,
		To:            st.Pair.To,
		Inflight:      st.Inflight,
		Generation:    st.Generation,
		Location:      s.Location.String(),
	}
}

// createRequest opens a new session at Location, or reopens the session
// named by Resume from its stored location.
type createRequest struct {
	Location string `json:"location"`
	Resume   string `json:"resume"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := decodeJSON(r, &body); err != nil {
		s.badBody(w, err)
		return
	}
	if body.Resume != "" {
		sess, err := s.Sessions.Resume(r.Context(), body.Resume)
		if err != nil {
			s.writeSessionError(w, err)
			return
		}
		writeJSON(w, s.Logger, http.StatusOK, viewOf(sess, sess.Controller.Snapshot()))
		return
	}
	if body.Location == "" {
		body.Location = "/"
	}

	sess, err := s.Sessions.Create(r.Context(), body.Location)
	if errors.Is(err, session.ErrTooManySessions) {
		s.writeSessionError(w, err)
		return
	}
	if err != nil {
		s.Logger.Error("create session failed", "error", err)
		writeError(w, s.Logger, http.StatusBadRequest, fmt.Sprintf("Could not create session: %v", err))
		return
	}
	writeJSON(w, s.Logger, http.StatusCreated, viewOf(sess, sess.Controller.Snapshot()))
}

// lookup resolves the {id} parameter, answering 404 itself when needed.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.Logger, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.Logger, http.StatusOK, viewOf(sess, sess.Controller.Snapshot()))
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) changeText(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body textRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badBody(w, err)
		return
	}

	if err := sess.Controller.HandleChangeTextToTranslate(body.Text); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, s.Logger, http.StatusOK, viewOf(sess, sess.Controller.Snapshot()))
}

type languagesRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) setLanguages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body languagesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badBody(w, err)
		return
	}
	pair, err := language.ParsePair(body.From, body.To)
	if err != nil {
		writeError(w, s.Logger, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Sessions.SetLanguagePair(sess.ID, pair); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, s.Logger, http.StatusOK, viewOf(sess, sess.Controller.Snapshot()))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.Sessions.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, s.Logger, http.StatusNotFound, "Session not found")
	case errors.Is(err, session.ErrClosed):
		writeError(w, s.Logger, http.StatusGone, "Session closed")
	case errors.Is(err, session.ErrTooManySessions):
		writeError(w, s.Logger, http.StatusServiceUnavailable, "Too many open sessions")
	default:
		s.Logger.Error("session operation failed", "error", err)
		writeError(w, s.Logger, http.StatusInternalServerError, err.Error())
	}
}
