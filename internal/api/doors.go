package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taarskog/somweb-bridge/internal/hub"
	"github.com/taarskog/somweb-bridge/internal/somweb"
)

// doorView is the API representation of one door with its last polled
// status.
type doorView struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// stateResponse is the snapshot view for one device.
type stateResponse struct {
	UDI                     string             `json:"udi"`
	IsAdmin                 bool               `json:"is_admin"`
	Doors                   []doorView         `json:"doors"`
	DeviceInfo              *somweb.DeviceInfo `json:"device_info,omitempty"`
	FirmwareUpdateAvailable bool               `json:"firmware_update_available"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

type actionRequest struct {
	Action string `json:"action"`
}

// runtimeFor resolves the live runtime for an entry, writing the error
// response when it is missing.
func (s *Server) runtimeFor(w http.ResponseWriter, r *http.Request) (*hub.Runtime, bool) {
	entryID := chi.URLParam(r, "entryID")
	rt, ok := s.hub.Runtime(entryID)
	if !ok {
		writeNotFound(w, "no runtime for entry; check the entry id and its credentials")
		return nil, false
	}
	return rt, true
}

// handleGetState returns the device's latest coordinator snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtimeFor(w, r)
	if !ok {
		return
	}

	coord := rt.Coordinator()
	data, ok := coord.Data()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotReady, "device has not completed its first poll")
		return
	}

	resp := stateResponse{
		UDI:                     coord.UDI(),
		IsAdmin:                 coord.IsAdmin(),
		FirmwareUpdateAvailable: data.FirmwareUpdateAvailable,
		DeviceInfo:              data.DeviceInfo,
		UpdatedAt:               data.UpdatedAt,
	}
	for _, door := range coord.Doors() {
		status, ok := data.Doors[door.ID]
		if !ok {
			status = somweb.DoorUnknown
		}
		resp.Doors = append(resp.Doors, doorView{ID: door.ID, Name: door.Name, Status: string(status)})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListDoors returns the device's doors with their last statuses.
func (s *Server) handleListDoors(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtimeFor(w, r)
	if !ok {
		return
	}

	coord := rt.Coordinator()
	data, _ := coord.Data()

	doors := make([]doorView, 0)
	for _, door := range coord.Doors() {
		status := somweb.DoorUnknown
		if s, ok := data.Doors[door.ID]; ok {
			status = s
		}
		doors = append(doors, doorView{ID: door.ID, Name: door.Name, Status: string(status)})
	}

	writeJSON(w, http.StatusOK, map[string]any{"doors": doors})
}

// handleDoorAction triggers an open or close and reports whether the
// door reached the requested state.
func (s *Server) handleDoorAction(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.runtimeFor(w, r)
	if !ok {
		return
	}

	doorID, err := strconv.Atoi(chi.URLParam(r, "doorID"))
	if err != nil {
		writeBadRequest(w, "door id must be an integer")
		return
	}

	coord := rt.Coordinator()
	if _, ok := coord.DoorByID(doorID); !ok {
		writeNotFound(w, "door not found")
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	var target somweb.DoorStatus
	switch req.Action {
	case string(somweb.ActionOpen):
		target = somweb.DoorOpen
	case string(somweb.ActionClose):
		target = somweb.DoorClosed
	default:
		writeBadRequest(w, "action must be \"open\" or \"close\"")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ActionTimeout())
	defer cancel()

	success := coord.ExecuteDoorAction(ctx, doorID, target)
	if !success {
		writeError(w, http.StatusBadGateway, ErrCodeCannotConnect, "door did not reach the requested state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"door_id": doorID,
		"action":  req.Action,
		"success": true,
	})
}
