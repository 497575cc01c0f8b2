/**
 * @description
 * This file contains the HTTP handlers for the slot service's API endpoints.
 * Handlers parse incoming requests, call the orchestrator, and map its
 * outcomes onto transport responses. The two successful outcomes of a slot
 * request — assigned and queued — map to 201 and 202; both are business-level
 * successes, never errors.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/app"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/domain"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/store"
)

// SlotHandlers holds the application service that handlers will use.
type SlotHandlers struct {
	service *app.Service
}

// NewSlotHandlers creates a new instance of SlotHandlers.
func NewSlotHandlers(service *app.Service) *SlotHandlers {
	return &SlotHandlers{service: service}
}

// slotRequestResponse is sent back to the client after a slot request has been
// accepted. Queued requests carry a human-readable hint that capacity is
// expected to free up.
type slotRequestResponse struct {
	Request *domain.SlotRequest `json:"request"`
	Queued  bool                `json:"queued"`
	Message string              `json:"message"`
}

// RequestSlotHandler handles requests for a seat on a provider.
func (h *SlotHandlers) RequestSlotHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	var payload domain.CreateSlotRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.ProviderID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "provider_id is required")
		return
	}

	result, err := h.service.RequestSlot(r.Context(), userID, payload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if result.Queued {
		h.writeJSON(w, http.StatusAccepted, slotRequestResponse{
			Request: result.Request,
			Queued:  true,
			Message: "No seat is free right now. Your request is queued and will be assigned as soon as capacity is available.",
		})
		return
	}

	h.writeJSON(w, http.StatusCreated, slotRequestResponse{
		Request: result.Request,
		Queued:  false,
		Message: "Slot assigned.",
	})
}

// ListRequestsHandler returns all slot requests of the authenticated user.
func (h *SlotHandlers) ListRequestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	requests, err := h.service.GetUserRequests(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if requests == nil {
		requests = []domain.SlotRequest{}
	}

	h.writeJSON(w, http.StatusOK, requests)
}

// CancelRequestHandler lets the authenticated user withdraw a pending request.
func (h *SlotHandlers) CancelRequestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	if err := h.service.CancelRequest(r.Context(), requestID, userID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.RequestStatusCancelled)})
}

// ListSlotsHandler returns the authenticated user's active slots with the
// non-sensitive subscription summary.
func (h *SlotHandlers) ListSlotsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	slots, err := h.service.GetUserSlots(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if slots == nil {
		slots = []domain.UserSlot{}
	}

	h.writeJSON(w, http.StatusOK, slots)
}

// ReleaseSlotHandler gives the authenticated user's seat back to the pool.
func (h *SlotHandlers) ReleaseSlotHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUserID(w, r)
	if !ok {
		return
	}

	slotID, err := uuid.Parse(chi.URLParam(r, "slotID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid slot ID")
		return
	}

	if err := h.service.ReleaseSlot(r.Context(), slotID, userID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

type rejectRequestPayload struct {
	Reason string `json:"reason"`
}

// RejectRequestHandler lets an operator decline a pending request. It sits
// behind the internal API key middleware.
func (h *SlotHandlers) RejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	var payload rejectRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.RejectRequest(r.Context(), requestID, payload.Reason); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.RequestStatusRejected)})
}

func (h *SlotHandlers) authenticatedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, "Invalid user ID in token")
		return uuid.Nil, false
	}

	return userID, true
}

// writeServiceError maps orchestrator errors onto the HTTP taxonomy.
func (h *SlotHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var rateLimitErr *app.RateLimitError

	switch {
	case errors.As(err, &rateLimitErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimitErr.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many slot requests. Please try again shortly.")
	case errors.Is(err, store.ErrProviderNotFound):
		h.writeError(w, http.StatusNotFound, "Provider not found")
	case errors.Is(err, store.ErrCountryNotFound):
		h.writeError(w, http.StatusNotFound, "Country not found or inactive")
	case errors.Is(err, app.ErrCountryNotSupported):
		h.writeError(w, http.StatusUnprocessableEntity, "Country is not supported by this provider")
	case errors.Is(err, store.ErrAlreadyAssigned):
		h.writeError(w, http.StatusConflict, "You already hold an active slot for this provider")
	case errors.Is(err, app.ErrDuplicateRequest):
		h.writeError(w, http.StatusConflict, "You already have an open request for this provider and country")
	case errors.Is(err, store.ErrRequestNotFound), errors.Is(err, store.ErrSlotNotFound):
		h.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrRequestNotPending):
		h.writeError(w, http.StatusConflict, "Request is no longer pending")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *SlotHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *SlotHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
