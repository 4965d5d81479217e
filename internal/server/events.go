package server

import (
	"net/http"

	"github.com/leapstack-labs/dante/internal/notifier"
	"github.com/starfederation/datastar-go/datastar"
)

// eventSignals is the signal patch pushed to event stream clients.
type eventSignals struct {
	Workspace string          `json:"workspace"`
	Path      string          `json:"path"`
	Busy      bool            `json:"busy"`
	Event     *notifier.Event `json:"event,omitempty"`
}

// handleEvents is the long-lived SSE endpoint. It sends the current
// workspace state once, then one patch per change event. It never takes
// the session gate, so a busy engine does not stall the stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	updates := s.backend.Subscribe()
	defer s.backend.Unsubscribe(updates)

	if err := sse.MarshalAndPatchSignals(s.signals(nil)); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(s.signals(&ev)); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}

func (s *Server) signals(ev *notifier.Event) eventSignals {
	return eventSignals{
		Workspace: s.backend.WorkspaceName(),
		Path:      s.backend.CurrentWorkspace(),
		Busy:      s.backend.Status().Busy,
		Event:     ev,
	}
}
