// Copyright 2026 The HostelHub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hostelhub/hostelhub/internal/booking"
	"github.com/hostelhub/hostelhub/internal/observability/logger"
	"github.com/hostelhub/hostelhub/internal/session"
)

// CreateSessionRequest represents a booking request body
type CreateSessionRequest struct {
	Name          string `json:"name" example:"Asha"`
	PhoneNumber   string `json:"phoneNumber" example:"9876543210"`
	Duration      int    `json:"duration" example:"30"`
	MachineNumber int    `json:"machineNumber" example:"1"`
}

// CreateSession books a machine
// @Summary Book a washing machine
// @Description Create a new booking session if the machine is free for the requested window
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Booking Data"
// @Success 201 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.bookingService.Book(r.Context(), session.Input{
		Name:            req.Name,
		PhoneNumber:     req.PhoneNumber,
		MachineNumber:   req.MachineNumber,
		DurationMinutes: req.Duration,
	})
	if err != nil {
		var verr *session.ValidationError
		switch {
		case errors.As(err, &verr):
			respondError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, booking.ErrMachineInUse):
			respondError(w, http.StatusBadRequest, "This machine is already in use for the requested duration")
		default:
			slog.ErrorContext(r.Context(), "failed to create session",
				logger.MachineNumber(req.MachineNumber),
				logger.Error(err),
			)
			respondServerError(w, "Error creating session", err)
		}
		return
	}

	slog.InfoContext(r.Context(), "session created",
		logger.SessionID(sess.ID),
		logger.MachineNumber(sess.MachineNumber),
		logger.DurationMinutes(sess.DurationMinutes),
		logger.RemoteAddr(getIPAddress(r)),
	)

	h.invalidateStatusCache(r)

	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Session created successfully",
		"session": sess,
	})
}

// ListSessions returns every session, newest first
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} map[string]any
// @Router /sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	h.listSessions(w, r, false)
}

// ListActiveSessions returns only active sessions, newest first
// @Summary List active sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} map[string]any
// @Router /sessions/active [get]
func (h *Handler) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	h.listSessions(w, r, true)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	sessions, err := h.bookingService.Sessions(r.Context(), activeOnly)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list sessions", logger.Error(err))
		respondServerError(w, "Error fetching sessions", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
	})
}

// DeleteSession ends a session and frees its machine
// @Summary Delete a session
// @Description End a booking (pickup), making the machine available again
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /sessions/{id} [delete]
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.bookingService.Release(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "Session not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to delete session",
			logger.SessionID(id),
			logger.Error(err),
		)
		respondServerError(w, "Error deleting session", err)
		return
	}

	h.invalidateStatusCache(r)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Session deleted successfully",
	})
}

// MachineStatus returns the status board, one entry per known machine
// @Summary Machine status board
// @Description Derived occupancy state for every machine
// @Tags Machines
// @Produce json
// @Success 200 {object} map[string]any
// @Router /machine-status [get]
func (h *Handler) MachineStatus(w http.ResponseWriter, r *http.Request) {
	if h.statusCache != nil {
		if machines, ok := h.statusCache.Get(r.Context()); ok {
			respondJSON(w, http.StatusOK, map[string]any{"machines": machines})
			return
		}
	}

	machines, err := h.bookingService.MachineStatuses(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to fetch machine status", logger.Error(err))
		respondServerError(w, "Error fetching machine status", err)
		return
	}

	if h.statusCache != nil {
		if err := h.statusCache.Set(r.Context(), machines); err != nil {
			slog.WarnContext(r.Context(), "failed to cache machine status", logger.Error(err))
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"machines": machines,
	})
}

func (h *Handler) invalidateStatusCache(r *http.Request) {
	if h.statusCache == nil {
		return
	}
	if err := h.statusCache.Invalidate(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "failed to invalidate status cache", logger.Error(err))
	}
}

// respondServerError reports an unexpected failure. The underlying error is
// passed through for the client but treated as opaque.
func respondServerError(w http.ResponseWriter, message string, err error) {
	respondJSON(w, http.StatusInternalServerError, map[string]string{
		"message": message,
		"error":   err.Error(),
	})
}
