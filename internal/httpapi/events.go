package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// heartbeat keeps idle streams from being cut by proxies.
const heartbeat = 25 * time.Second

// events streams the session as server-sent events: "state" carries a
// snapshot after every change and "error" carries a user notification.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.Logger.Error("events: streaming not supported")
		return
	}

	// The idle clock restarts when the stream ends.
	defer sess.Touch()
	states, cancelStates := sess.States.Subscribe()
	defer cancelStates()
	notes, cancelNotes := sess.Notifications.Subscribe()
	defer cancelNotes()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(event string, v any) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			s.Logger.Error("events: encode failed", "error", err)
			return true
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send("state", viewOf(sess, sess.Controller.Snapshot())) {
		return
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.Logger.Debug("events: client disconnected", "session", sess.ID)
			return
		case <-sess.Controller.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if !send("state", viewOf(sess, st)) {
				return
			}
		case n, ok := <-notes:
			if !ok {
				return
			}
			if !send("error", n) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
