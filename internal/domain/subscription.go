/**
 * @description
 * This file defines the domain model for shared subscription accounts. A
 * subscription account is one third-party login (e.g., a streaming service
 * account) with a fixed number of seats that the slot pool hands out to users.
 *
 * @dependencies
 * - time: Standard Go library.
 * - github.com/google/uuid: For entity identifiers.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionAccount represents one shared third-party account in the pool.
// AvailableSlots is mutated only by the claim/release paths in the store.
type SubscriptionAccount struct {
	ID             uuid.UUID  `json:"id"`
	ProviderID     uuid.UUID  `json:"provider_id"`
	CountryID      *uuid.UUID `json:"country_id,omitempty"`
	AvailableSlots int        `json:"available_slots"`
	TotalSlots     int        `json:"total_slots"`
	IsActive       bool       `json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// HasCapacity reports whether the account still has at least one free seat.
func (s *SubscriptionAccount) HasCapacity() bool {
	return s.AvailableSlots > 0
}

// IsUsable reports whether the account may back new assignments at the given
// instant: it must be active and not expired.
func (s *SubscriptionAccount) IsUsable(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return false
	}
	return true
}

// SubscriptionSummary is the non-sensitive view of a subscription account
// returned alongside a user's slots. It deliberately carries no credential
// fields.
type SubscriptionSummary struct {
	ID         uuid.UUID  `json:"id"`
	ProviderID uuid.UUID  `json:"provider_id"`
	CountryID  *uuid.UUID `json:"country_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
