package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/leapstack-labs/dante/internal/importer"
	"github.com/leapstack-labs/dante/pkg/core"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Step  string `json:"step,omitempty"`
}

// objectBody is the response of GET /api/objects/{name}.
type objectBody struct {
	core.NamedObject
	Tabular bool `json:"tabular"`
}

// workspaceBody is both the request of the workspace actions and the
// response describing the current workspace.
type workspaceBody struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Status())
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := s.backend.ListObjects(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if objects == nil {
		objects = []core.NamedObject{}
	}
	writeJSON(w, http.StatusOK, objects)
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	obj, err := s.backend.Lookup(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objectBody{NamedObject: obj, Tabular: obj.Tabular()})
}

// handleTable returns the whole table, or the first ?limit= rows.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	var t *core.Table
	if limit > 0 {
		t, err = s.backend.Preview(r.Context(), name, limit)
	} else {
		t, err = s.backend.GetTable(r.Context(), name)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.backend.Tree(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var spec core.ImportSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	res, err := s.backend.RunImport(r.Context(), spec, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleWorkspace(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentWorkspace())
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	s.workspaceAction(w, r, true, s.backend.LoadWorkspace)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.workspaceAction(w, r, false, s.backend.SaveWorkspace)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.CloseWorkspace(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.currentWorkspace())
}

func (s *Server) workspaceAction(w http.ResponseWriter, r *http.Request, needPath bool, fn func(context.Context, string) error) {
	var body workspaceBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
			return
		}
	}
	if needPath && body.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "path is required"})
		return
	}
	if err := fn(r.Context(), body.Path); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.currentWorkspace())
}

func (s *Server) currentWorkspace() workspaceBody {
	return workspaceBody{Path: s.backend.CurrentWorkspace(), Name: s.backend.WorkspaceName()}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if limit == 0 {
		limit = 50
	}
	entries, err := s.backend.History(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*core.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

// statusOf maps the typed errors of the bridge onto HTTP status codes.
func statusOf(err error) int {
	var (
		invalid  *core.InvalidSpecError
		mismatch *core.ColumnCountMismatchError
		notTab   *core.NotTabularError
		evalErr  *core.EvaluationError
		loadErr  *core.LoadError
		saveErr  *core.SaveError
	)
	switch {
	case errors.Is(err, core.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &invalid), errors.As(err, &mismatch):
		return http.StatusBadRequest
	case errors.As(err, &notTab), errors.As(err, &evalErr), errors.As(err, &loadErr), errors.As(err, &saveErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	body := errorBody{Error: err.Error()}
	var stepErr *importer.StepError
	if errors.As(err, &stepErr) {
		body.Step = string(stepErr.Step)
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
