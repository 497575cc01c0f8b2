/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations the slot service needs. The interface keeps
 * the engine and orchestrator decoupled from PostgreSQL so they can be
 * exercised in tests with stub repositories.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Catalog lookups
	FindProviderByID(ctx context.Context, providerID uuid.UUID) (*domain.Provider, error)
	FindCountryByID(ctx context.Context, countryID uuid.UUID) (*domain.Country, error)

	// Subscription account methods
	// Usable candidates: active, unexpired, available_slots > 0, ordered by
	// available_slots DESC then created_at ASC.
	FindUsableSubscriptions(ctx context.Context, providerID uuid.UUID, countryID *uuid.UUID) ([]domain.SubscriptionAccount, error)
	FindSubscriptionByID(ctx context.Context, subscriptionID uuid.UUID) (*domain.SubscriptionAccount, error)
	// ClaimSlot atomically consumes one seat: per-(user, provider) claim
	// lock, conditional decrement, in-tx duplicate-guard re-check, assignment
	// insert. ErrSlotConflict when the last seat was lost to a concurrent
	// claim; ErrAlreadyAssigned when the user already holds a seat on the
	// provider.
	ClaimSlot(ctx context.Context, subscriptionID, userID, providerID uuid.UUID) (*domain.SlotAssignment, error)

	// Slot assignment methods
	HasActiveAssignmentForProvider(ctx context.Context, userID, providerID uuid.UUID) (bool, error)
	CountActiveAssignments(ctx context.Context, subscriptionID uuid.UUID) (int, error)
	FindActiveAssignmentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.UserSlot, error)
	ReleaseSlot(ctx context.Context, assignmentID, userID uuid.UUID) error

	// Slot request methods
	CreateSlotRequest(ctx context.Context, req *domain.SlotRequest) error
	FindOpenRequestByTuple(ctx context.Context, userID, providerID uuid.UUID, countryID *uuid.UUID) (*domain.SlotRequest, error)
	FindRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.SlotRequest, error)
	FindRequestsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.SlotRequest, error)
	FindPendingRequests(ctx context.Context, limit int) ([]domain.SlotRequest, error)
	MarkRequestAssigned(ctx context.Context, requestID, slotID uuid.UUID, processedAt time.Time) error
	CancelSlotRequest(ctx context.Context, requestID, userID uuid.UUID) error
	RejectSlotRequest(ctx context.Context, requestID uuid.UUID, reason string) error
}
