package http

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/domain/stepper"
	"github.com/sophialabs/mapforge/internal/infrastructure/usecases"
)

// contextResponse is the wire form of a processing context.
type contextResponse struct {
	*processing.Context
	Errors []string `json:"errors"`
}

func respond(pc *processing.Context) contextResponse {
	errs := pc.ErrorMessages()
	if errs == nil {
		errs = []string{}
	}
	return contextResponse{Context: pc, Errors: errs}
}

func respondAll(pcs []*processing.Context) []contextResponse {
	out := make([]contextResponse, 0, len(pcs))
	for _, pc := range pcs {
		if pc != nil {
			out = append(out, respond(pc))
		}
	}
	return out
}

// testRun holds the query parameters shared by the test and batch endpoints.
type testRun struct {
	send bool
	mode stepper.EditorMode
	step *int
}

func (t testRun) message(m *mapping.Mapping, topic string, payload []byte) usecases.Message {
	if topic == "" {
		topic = sampleTopic(m)
	}
	return usecases.Message{
		Mapping: m,
		Topic:   topic,
		Payload: payload,
		Send:    t.send,
		Test:    true,
		Mode:    t.mode,
		Step:    t.step,
	}
}

// parseTestRun reads ?send, ?mode and ?step and refuses mappings whose
// effective configuration forbids test transformations. It writes the error
// response itself.
func parseTestRun(w http.ResponseWriter, r *http.Request, m *mapping.Mapping) (testRun, bool) {
	q := r.URL.Query()
	var t testRun
	t.send, _ = strconv.ParseBool(q.Get("send"))

	mode, err := stepper.ParseEditorMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return t, false
	}
	t.mode = mode

	if raw := q.Get("step"); raw != "" {
		step, err := strconv.Atoi(raw)
		if err != nil || step < stepper.StepSelectConnector || step > stepper.StepTestMapping {
			writeError(w, http.StatusBadRequest, "invalid_step", "step must be between 0 and 4")
			return t, false
		}
		t.step = &step
	}

	if err := usecases.CheckTestRun(m, mode); err != nil {
		writeError(w, http.StatusConflict, "test_not_allowed", err.Error())
		return t, false
	}
	return t, true
}

// handleTestMapping runs the request body through one mapping. Without
// ?send=true the requests are built but not dispatched.
func (s *Server) handleTestMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.repo.LoadByID(r.Context(), chi.URLParam(r, "mappingID"))
	if err != nil {
		writeStoreError(w, err, "load_failed")
		return
	}
	run, ok := parseTestRun(w, r, m)
	if !ok {
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}

	pc := s.uc.Process.Execute(r.Context(), run.message(m, r.URL.Query().Get("topic"), payload))
	writeJSON(w, http.StatusOK, respond(pc))
}

type batchItem struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleBatchMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.repo.LoadByID(r.Context(), chi.URLParam(r, "mappingID"))
	if err != nil {
		writeStoreError(w, err, "load_failed")
		return
	}
	run, ok := parseTestRun(w, r, m)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	var items []batchItem
	if err := json.Unmarshal(body, &items); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "expected an array of {topic, payload}: "+err.Error())
		return
	}

	msgs := make([]usecases.Message, len(items))
	for i, it := range items {
		msgs[i] = run.message(m, it.Topic, rawPayload(it.Payload))
	}

	results, err := s.uc.Batch.Execute(r.Context(), msgs)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "cancelled", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, respondAll(results))
}

// rawPayload unwraps a JSON string so text formats like CSV or hex can be
// submitted inside a JSON document.
func rawPayload(p json.RawMessage) []byte {
	var text string
	if len(p) > 0 && p[0] == '"' && json.Unmarshal(p, &text) == nil {
		return []byte(text)
	}
	return p
}

func sampleTopic(m *mapping.Mapping) string {
	if m.MappingTopicSample != "" {
		return m.MappingTopicSample
	}
	return m.MappingTopic
}

// handleOutbound feeds a platform notification through every matching OUTBOUND mapping.
func (s *Server) handleOutbound(w http.ResponseWriter, r *http.Request) {
	api, err := mapping.ParseAPI(strings.ToUpper(chi.URLParam(r, "api")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_api", err.Error())
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	writeJSON(w, http.StatusOK, respondAll(s.uc.Route.Outbound(r.Context(), api, payload)))
}

func (s *Server) handleListCodeTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.repo.CodeTemplates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load_failed", err.Error())
		return
	}
	out := make([]mapping.CodeTemplate, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

type renderRequest struct {
	MappingID string         `json:"mappingId"`
	Vars      map[string]any `json:"vars"`
}

func (s *Server) handleRenderCodeTemplate(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid render request: "+err.Error())
			return
		}
	}

	var m *mapping.Mapping
	if req.MappingID != "" {
		if m, err = s.repo.LoadByID(r.Context(), req.MappingID); err != nil {
			writeStoreError(w, err, "load_failed")
			return
		}
	}

	code, err := s.uc.Render.Execute(r.Context(), chi.URLParam(r, "templateID"), m, req.Vars)
	if err != nil {
		writeStoreError(w, err, "render_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"code":    code,
		"encoded": mapping.EncodeCode(code),
	})
}
