package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/trace"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
	"github.com/sophialabs/mapforge/internal/infrastructure/services"
	"github.com/sophialabs/mapforge/internal/infrastructure/usecases"
)

const maxBodySize = 10 << 20 // 10 MB

// UseCases groups the use cases served over HTTP.
type UseCases struct {
	Load    *usecases.LoadMappingsUseCase
	Save    *usecases.SaveMappingUseCase
	Delete  *usecases.DeleteMappingUseCase
	Process *usecases.ProcessMessageUseCase
	Batch   *usecases.ProcessBatchUseCase
	Route   *usecases.RouteMessageUseCase
	Render  *usecases.RenderTemplateUseCase
}

// Server is the HTTP API of the mapping service.
type Server struct {
	router    *chi.Mux
	rebuildMu sync.Mutex
	uc        UseCases
	repo      mapping.Repository
	traceBuf  *trace.RingBuffer
	logger    ports.Logger
	paging    services.Paging
	onRebuild []func(*services.MappingIndex)
}

// NewServer creates a new Server.
func NewServer(uc UseCases, repo mapping.Repository, traceBuf *trace.RingBuffer, logger ports.Logger) *Server {
	s := &Server{
		uc:       uc,
		repo:     repo,
		traceBuf: traceBuf,
		logger:   logger,
		paging:   services.DefaultPaging,
	}
	s.router = s.buildRouter()
	return s
}

// OnRebuild registers fn to run after every index swap, e.g. to refresh
// broker subscriptions.
func (s *Server) OnRebuild(fn func(*services.MappingIndex)) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	s.onRebuild = append(s.onRebuild, fn)
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/mappings", s.handleListMappings)
		r.Post("/mappings", s.handleCreateMapping)
		r.Get("/mappings/{mappingID}", s.handleGetMapping)
		r.Put("/mappings/{mappingID}", s.handleUpdateMapping)
		r.Delete("/mappings/{mappingID}", s.handleDeleteMapping)
		r.Post("/mappings/{mappingID}/test", s.handleTestMapping)
		r.Post("/mappings/{mappingID}/batch", s.handleBatchMapping)
		r.Get("/mappings/{mappingID}/stepper", s.handleStepper)
		r.Post("/outbound/{api}", s.handleOutbound)
		r.Get("/code-templates", s.handleListCodeTemplates)
		r.Post("/code-templates/{templateID}/render", s.handleRenderCodeTemplate)
		r.Get("/trace", s.handleGetTrace)
		r.Post("/reload", s.handleReload)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
	})
	return r
}

// Rebuild atomically swaps the mapping index and notifies listeners. Serialized via mutex.
func (s *Server) Rebuild(idx *services.MappingIndex) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	s.uc.Route.SetIndex(idx)
	for _, fn := range s.onRebuild {
		fn(idx)
	}
	s.logger.Info("mapping index swapped", "mappings", idx.Len(), "topics", len(idx.Topics()))
}

// Reload loads mappings and service configuration from the store and swaps them in.
func (s *Server) Reload(ctx context.Context) error {
	idx, err := s.uc.Load.Execute(ctx)
	if err != nil {
		return err
	}
	cfg, err := s.uc.Load.ServiceConfiguration(ctx)
	if err != nil {
		return err
	}
	s.uc.Process.SetServiceConfiguration(cfg)
	s.Rebuild(idx)
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"mappings": s.uc.Route.Index().Len(),
	})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := trace.Query{
		Limit:      10,
		MappingID:  params.Get("mapping"),
		FailedOnly: params.Get("failed") == "true",
	}
	if v, err := strconv.Atoi(params.Get("last")); err == nil && v > 0 {
		q.Limit = v
	}
	if v, err := strconv.ParseUint(params.Get("after"), 10, 64); err == nil {
		q.After = v
	}

	entries := s.traceBuf.Query(q)
	if entries == nil {
		entries = []trace.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		s.logger.Error("reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reload_failed", "mapping reload failed, check server logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "mappings reloaded",
	})
}

// reloadAfterWrite refreshes the index after a successful store write.
func (s *Server) reloadAfterWrite(w http.ResponseWriter, r *http.Request, op string) bool {
	if err := s.Reload(r.Context()); err != nil {
		s.logger.Error("reload after "+op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reload_failed", err.Error())
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error, code string) {
	switch {
	case errors.Is(err, mapping.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, usecases.ErrInvalidMapping):
		writeError(w, http.StatusBadRequest, code, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, code, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
