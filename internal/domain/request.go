/**
 * @description
 * This file defines the slot request lifecycle. A request is created as
 * pending, moves to assigned the moment the engine commits a seat, and can be
 * cancelled by the user or rejected by an operator while still pending.
 * Requests that stay pending are drained oldest-first by the scheduler binary.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the lifecycle state of a slot request.
type RequestStatus string

const (
	// RequestStatusPending means the request is queued waiting for capacity.
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusAssigned means a seat has been committed for the request.
	RequestStatusAssigned RequestStatus = "assigned"
	// RequestStatusRejected means an operator declined the request.
	RequestStatusRejected RequestStatus = "rejected"
	// RequestStatusCancelled means the requesting user withdrew it.
	RequestStatusCancelled RequestStatus = "cancelled"
)

// SlotRequest represents a user's ask for a seat on a provider, optionally
// narrowed to a country.
type SlotRequest struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"user_id"`
	ProviderID     uuid.UUID     `json:"provider_id"`
	CountryID      *uuid.UUID    `json:"country_id,omitempty"`
	Status         RequestStatus `json:"status"`
	AssignedSlotID *uuid.UUID    `json:"assigned_slot_id,omitempty"`
	RequestedAt    time.Time     `json:"requested_at"`
	ProcessedAt    *time.Time    `json:"processed_at,omitempty"`
}

// CreateSlotRequestPayload is the input for requesting a slot.
type CreateSlotRequestPayload struct {
	ProviderID uuid.UUID  `json:"provider_id"`
	CountryID  *uuid.UUID `json:"country_id,omitempty"`
}

// SlotRequestResult is the orchestrator's answer to a slot request. Both
// outcomes are business-level successes: either a seat was committed, or the
// request was queued for the replenishment worker.
type SlotRequestResult struct {
	Request *SlotRequest `json:"request"`
	Queued  bool         `json:"queued"`
}
