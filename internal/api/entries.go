package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taarskog/somweb-bridge/internal/entry"
)

// handleListEntries returns all stored device configurations.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.repo.List(r.Context())
	if err != nil {
		s.log.Error("failed to list entries", "error", err)
		writeInternalError(w, "failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleGetEntry returns one stored device configuration.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.repo.Get(r.Context(), chi.URLParam(r, "entryID"))
	if err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			writeNotFound(w, "entry not found")
			return
		}
		s.log.Error("failed to load entry", "error", err)
		writeInternalError(w, "failed to load entry")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleCreateEntry validates user-supplied device configuration against
// the live device, stores it, and launches its runtime.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var in entry.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if in.Mode == "" {
		in.Mode = entry.ModeLocal
	}
	if !in.Mode.Valid() {
		writeBadRequest(w, "mode must be \"local\" or \"cloud\"")
		return
	}

	result, err := entry.Validate(r.Context(), s.validator, in)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	created, err := s.repo.Create(r.Context(), result.UDI, result.Title, in)
	if err != nil {
		if errors.Is(err, entry.ErrEntryExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device is already configured")
			return
		}
		s.log.Error("failed to store entry", "udi", result.UDI, "error", err)
		writeInternalError(w, "failed to store entry")
		return
	}

	if err := s.hub.Add(created); err != nil {
		s.log.Error("failed to start runtime for new entry", "entry_id", created.ID, "error", err)
	}

	s.log.Info("entry created", "entry_id", created.ID, "udi", created.UDI)
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateEntry reconfigures an entry: the new settings are
// validated against the live device before the store is touched, and
// the runtime restarts with the new session on success.
func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")

	if _, err := s.repo.Get(r.Context(), entryID); err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			writeNotFound(w, "entry not found")
			return
		}
		s.log.Error("failed to load entry", "error", err)
		writeInternalError(w, "failed to load entry")
		return
	}

	var in entry.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if in.Mode == "" {
		in.Mode = entry.ModeLocal
	}
	if !in.Mode.Valid() {
		writeBadRequest(w, "mode must be \"local\" or \"cloud\"")
		return
	}

	result, err := entry.Validate(r.Context(), s.validator, in)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	updated, err := s.repo.Update(r.Context(), entryID, result.UDI, result.Title, in)
	if err != nil {
		switch {
		case errors.Is(err, entry.ErrEntryNotFound):
			writeNotFound(w, "entry not found")
		case errors.Is(err, entry.ErrEntryExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "udi belongs to another entry")
		default:
			s.log.Error("failed to update entry", "entry_id", entryID, "error", err)
			writeInternalError(w, "failed to update entry")
		}
		return
	}

	if err := s.hub.Reload(updated); err != nil {
		s.log.Error("failed to reload runtime", "entry_id", entryID, "error", err)
	}

	s.log.Info("entry reconfigured", "entry_id", entryID, "udi", updated.UDI)
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteEntry removes an entry and stops its runtime.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")

	if err := s.repo.Delete(r.Context(), entryID); err != nil {
		if errors.Is(err, entry.ErrEntryNotFound) {
			writeNotFound(w, "entry not found")
			return
		}
		s.log.Error("failed to delete entry", "entry_id", entryID, "error", err)
		writeInternalError(w, "failed to delete entry")
		return
	}

	// The runtime may have already stopped (e.g. rejected credentials);
	// a missing runtime is not an error here.
	if err := s.hub.Remove(entryID); err != nil && !errors.Is(err, entry.ErrEntryNotFound) {
		s.log.Error("failed to stop runtime", "entry_id", entryID, "error", err)
	}

	s.log.Info("entry deleted", "entry_id", entryID)
	w.WriteHeader(http.StatusNoContent)
}
