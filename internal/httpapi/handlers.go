package httpapi

// file: internal/httpapi/handlers.go

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dkoosis/cowgnition/internal/eventgate"
	"github.com/dkoosis/cowgnition/internal/producer"
	"github.com/go-chi/chi/v5"
)

// ServiceInfo backs the /_info endpoints.
type ServiceInfo struct {
	Name    string
	Version string
	Home    string
}

// Server holds the wiring needed to build EventGate's HTTP routes.
type Server struct {
	gate   *eventgate.Gate
	info   ServiceInfo
	strict bool
}

// NewServer builds a Server. strict toggles the "any invalid ⇒ 400"
// deployment variant described in spec §6.
func NewServer(gate *eventgate.Gate, info ServiceInfo, strict bool) *Server {
	return &Server{gate: gate, info: info, strict: strict}
}

// Router builds the chi.Router exposing every endpoint in spec §6.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.handleRoot)
	r.Post("/v1/events", s.handleEvents)
	r.Get("/_info", s.handleInfo)
	r.Get("/_info/name", s.handleInfoField("name"))
	r.Get("/_info/version", s.handleInfoField("version"))
	r.Get("/_info/home", s.handleInfoField("home"))
	r.Get("/robots.txt", s.handleRobots)
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.URL.Query()["spec"]; ok {
		writeJSON(w, http.StatusOK, openAPIDocument(s.info))
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    s.info.Name,
		"version": s.info.Version,
		"home":    s.info.Home,
	})
}

func (s *Server) handleInfoField(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var value string
		switch field {
		case "name":
			value = s.info.Name
		case "version":
			value = s.info.Version
		case "home":
			value = s.info.Home
		}
		writeJSON(w, http.StatusOK, map[string]string{field: value})
	}
}

func (s *Server) handleRobots(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "User-agent: *\nDisallow: /\n")
}

// handleEvents implements POST /v1/events per spec §6: accepts a single
// event object or a JSON array of events, routes via the Hasty producer and
// may reply immediately when ?hasty=true, and otherwise replies with the
// per-batch disposition (204/207/400).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := decodeEvents(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	hasty := r.URL.Query().Get("hasty") == "true"
	ctx := producer.WithHasty(r.Context(), hasty)

	if len(events) == 0 {
		writeJSON(w, http.StatusNoContent, nil)
		return
	}

	if hasty {
		writeJSON(w, http.StatusNoContent, nil)
		detached := context.WithoutCancel(ctx)
		go s.gate.Process(detached, events)
		return
	}

	result := s.gate.Process(ctx, events)
	s.writeResult(w, result)
}

func (s *Server) writeResult(w http.ResponseWriter, result eventgate.ProcessResult) {
	switch {
	case len(result.Invalid) == 0 && len(result.Error) == 0:
		writeJSON(w, http.StatusNoContent, nil)
	case len(result.Success) == 0:
		writeJSON(w, http.StatusBadRequest, resultBody(result))
	case s.strict && len(result.Invalid) > 0:
		writeJSON(w, http.StatusBadRequest, resultBody(result))
	default:
		writeJSON(w, http.StatusMultiStatus, resultBody(result))
	}
}

func resultBody(result eventgate.ProcessResult) map[string]interface{} {
	return map[string]interface{}{
		"invalid": entries(result.Invalid),
		"error":   entries(result.Error),
	}
}

func entries(statuses []eventgate.EventStatus) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, map[string]interface{}{
			"status":  st.Status,
			"event":   st.Event,
			"context": st.Context,
		})
	}
	return out
}

// decodeEvents accepts either a single JSON object or a JSON array of
// objects, per spec §6 ("a single JSON event object, or a JSON array of
// such").
func decodeEvents(body io.Reader) ([]map[string]interface{}, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var array []map[string]interface{}
	if err := json.Unmarshal(raw, &array); err == nil {
		return array, nil
	}

	var single map[string]interface{}
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []map[string]interface{}{single}, nil
}
