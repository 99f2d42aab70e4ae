package http

import (
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
	"github.com/sophialabs/mapforge/internal/domain/stepper"
	"github.com/sophialabs/mapforge/internal/infrastructure/services"
)

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	all, err := s.repo.LoadAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load_failed", err.Error())
		return
	}

	if q := strings.ToLower(r.URL.Query().Get("q")); q != "" {
		all = slices.DeleteFunc(all, func(m *mapping.Mapping) bool {
			return !strings.Contains(strings.ToLower(m.Name), q) &&
				!strings.Contains(strings.ToLower(m.MappingTopic), q) &&
				!strings.Contains(strings.ToLower(m.Identifier), q)
		})
	}
	if dir := r.URL.Query().Get("direction"); dir != "" {
		all = slices.DeleteFunc(all, func(m *mapping.Mapping) bool {
			return !strings.EqualFold(string(m.Direction), dir)
		})
	}
	slices.SortStableFunc(all, func(a, b *mapping.Mapping) int {
		return strings.Compare(a.ID, b.ID)
	})

	writeJSON(w, http.StatusOK, services.Paginate(all, s.paging, r.URL.Query()))
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	m, err := s.repo.LoadByID(r.Context(), chi.URLParam(r, "mappingID"))
	if err != nil {
		writeStoreError(w, err, "load_failed")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCreateMapping(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMapping(w, r)
	if !ok {
		return
	}
	saved, err := s.uc.Save.Execute(r.Context(), "", m)
	if err != nil {
		writeStoreError(w, err, "invalid_mapping")
		return
	}
	if !s.reloadAfterWrite(w, r, "create") {
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	m, ok := decodeMapping(w, r)
	if !ok {
		return
	}
	saved, err := s.uc.Save.Execute(r.Context(), chi.URLParam(r, "mappingID"), m)
	if err != nil {
		writeStoreError(w, err, "invalid_mapping")
		return
	}
	if !s.reloadAfterWrite(w, r, "update") {
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Delete.Execute(r.Context(), chi.URLParam(r, "mappingID")); err != nil {
		writeStoreError(w, err, "delete_failed")
		return
	}
	if !s.reloadAfterWrite(w, r, "delete") {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStepper(w http.ResponseWriter, r *http.Request) {
	m, err := s.repo.LoadByID(r.Context(), chi.URLParam(r, "mappingID"))
	if err != nil {
		writeStoreError(w, err, "load_failed")
		return
	}

	mode, err := stepper.ParseEditorMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}

	overrides := stepper.AppliedOverrideDescriptions(stepper.ContextFor(m, mode))
	if overrides == nil {
		overrides = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"config":    stepper.ForMapping(m, mode),
		"overrides": overrides,
	})
}

func decodeMapping(w http.ResponseWriter, r *http.Request) (*mapping.Mapping, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return nil, false
	}
	var m mapping.Mapping
	if err := json.Unmarshal(body, &m); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid mapping JSON: "+err.Error())
		return nil, false
	}
	return &m, true
}
