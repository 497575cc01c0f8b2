/**
 * @description
 * This file defines the domain model for slot assignments. A slot assignment
 * ties one user to one seat on a subscription account. Assignments are created
 * only by the assignment engine's atomic claim and are never updated in place;
 * releasing a slot soft-deactivates the row.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SlotAssignment represents one occupied seat on a subscription account.
type SlotAssignment struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	AssignedAt     time.Time `json:"assigned_at"`
	IsActive       bool      `json:"is_active"`
}

// UserSlot is a slot assignment joined with the non-sensitive summary of the
// subscription account backing it, as returned to API clients.
type UserSlot struct {
	Assignment   SlotAssignment      `json:"assignment"`
	Subscription SubscriptionSummary `json:"subscription"`
}
