/**
 * @description
 * This file implements the slot assignment engine: for one
 * (user, provider, country?) tuple it decides whether capacity exists right
 * now and, if so, claims a seat indivisibly through the repository's atomic
 * claim.
 *
 * Selection policy: pack nearly-full accounts first. Among usable candidates
 * the engine picks the one with the fewest remaining seats, breaking ties in
 * favor of the oldest-created account, which keeps the number of
 * partially-filled accounts in circulation low.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/domain"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/store"
)

// ErrNoCapacity signals that no usable account has a free seat. It is a
// queued business outcome, not a client error; callers translate it into a
// pending request rather than a failure response.
var ErrNoCapacity = errors.New("no capacity available in the pool")

// Engine decides and commits slot assignments against the shared pool.
type Engine struct {
	repo store.Repository
}

// NewEngine creates a new assignment engine.
func NewEngine(repo store.Repository) *Engine {
	return &Engine{repo: repo}
}

// AssignSlot attempts to claim one seat for the user on the given provider,
// optionally narrowed to a country.
//
// The flow is: duplicate guard, candidate fetch, fewest-remaining-seats
// selection, atomic claim. A claim conflict (another caller took the last
// seat of the chosen account) retries against the next-best candidate;
// exhausting all candidates yields ErrNoCapacity. Store errors propagate
// unchanged.
func (e *Engine) AssignSlot(ctx context.Context, userID, providerID uuid.UUID, countryID *uuid.UUID) (*domain.SlotAssignment, error) {
	// 1. A user holds at most one active seat per provider, regardless of
	// which account or country backs it.
	alreadyAssigned, err := e.repo.HasActiveAssignmentForProvider(ctx, userID, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing provider assignment: %w", err)
	}
	if alreadyAssigned {
		return nil, store.ErrAlreadyAssigned
	}

	// 2. Fetch usable candidates. Empty pool is the queued outcome.
	candidates, err := e.repo.FindUsableSubscriptions(ctx, providerID, countryID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch usable subscription accounts: %w", err)
	}

	// 3-4. Claim the most nearly-full candidate; on a lost race drop it and
	// retry the next-best one.
	for len(candidates) > 0 {
		idx := pickFullestCandidate(candidates)
		chosen := candidates[idx]

		assignment, err := e.repo.ClaimSlot(ctx, chosen.ID, userID, providerID)
		switch {
		case err == nil:
			return assignment, nil
		case errors.Is(err, store.ErrSlotConflict):
			candidates = append(candidates[:idx], candidates[idx+1:]...)
		default:
			return nil, err
		}
	}

	return nil, ErrNoCapacity
}

// pickFullestCandidate returns the index of the candidate with the smallest
// positive remaining seat count. Candidates arrive ordered by available_slots
// DESC then created_at ASC, so the strict comparison lands on the
// oldest-created account when seat counts tie.
func pickFullestCandidate(candidates []domain.SubscriptionAccount) int {
	best := -1
	for i, c := range candidates {
		if c.AvailableSlots <= 0 {
			continue
		}
		if best == -1 || c.AvailableSlots < candidates[best].AvailableSlots {
			best = i
		}
	}
	if best == -1 {
		// The candidate query only returns positive seat counts; fall back to
		// the last element which the retry loop will discard on conflict.
		return len(candidates) - 1
	}
	return best
}
