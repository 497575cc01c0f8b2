package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/domain"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/store"
)

type engineRepoStub struct {
	store.Repository

	hasActive     bool
	hasActiveErr  error
	candidates    []domain.SubscriptionAccount
	candidatesErr error
	conflictIDs   map[uuid.UUID]bool
	claimErr      error

	claimOrder []uuid.UUID
}

func (s *engineRepoStub) HasActiveAssignmentForProvider(ctx context.Context, userID, providerID uuid.UUID) (bool, error) {
	return s.hasActive, s.hasActiveErr
}

func (s *engineRepoStub) FindUsableSubscriptions(ctx context.Context, providerID uuid.UUID, countryID *uuid.UUID) ([]domain.SubscriptionAccount, error) {
	if s.candidatesErr != nil {
		return nil, s.candidatesErr
	}
	return s.candidates, nil
}

func (s *engineRepoStub) ClaimSlot(ctx context.Context, subscriptionID, userID, providerID uuid.UUID) (*domain.SlotAssignment, error) {
	s.claimOrder = append(s.claimOrder, subscriptionID)
	if s.conflictIDs[subscriptionID] {
		return nil, store.ErrSlotConflict
	}
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return &domain.SlotAssignment{
		ID:             uuid.New(),
		UserID:         userID,
		SubscriptionID: subscriptionID,
		AssignedAt:     time.Now().UTC(),
		IsActive:       true,
	}, nil
}

func account(id uuid.UUID, slots int, createdAt time.Time) domain.SubscriptionAccount {
	return domain.SubscriptionAccount{
		ID:             id,
		ProviderID:     uuid.New(),
		AvailableSlots: slots,
		TotalSlots:     5,
		IsActive:       true,
		CreatedAt:      createdAt,
	}
}

func TestAssignSlot_PacksMostNearlyFullAccount(t *testing.T) {
	roomy := uuid.New()
	nearlyFull := uuid.New()
	now := time.Now().UTC()

	// Candidates arrive ordered available_slots DESC, created_at ASC.
	repo := &engineRepoStub{
		candidates: []domain.SubscriptionAccount{
			account(roomy, 3, now.Add(-time.Hour)),
			account(nearlyFull, 1, now),
		},
	}
	engine := NewEngine(repo)

	assignment, err := engine.AssignSlot(context.Background(), uuid.New(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("AssignSlot returned error: %v", err)
	}
	if assignment.SubscriptionID != nearlyFull {
		t.Fatalf("expected the account with 1 remaining slot to be packed, got %s", assignment.SubscriptionID)
	}
}

func TestAssignSlot_TieBreaksOnOldestAccount(t *testing.T) {
	oldest := uuid.New()
	newest := uuid.New()
	now := time.Now().UTC()

	repo := &engineRepoStub{
		candidates: []domain.SubscriptionAccount{
			account(oldest, 2, now.Add(-48*time.Hour)),
			account(newest, 2, now),
		},
	}
	engine := NewEngine(repo)

	assignment, err := engine.AssignSlot(context.Background(), uuid.New(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("AssignSlot returned error: %v", err)
	}
	if assignment.SubscriptionID != oldest {
		t.Fatalf("expected the oldest account on a slot-count tie, got %s", assignment.SubscriptionID)
	}
}

func TestAssignSlot_AlreadyAssignedGuardBlocksSecondSeat(t *testing.T) {
	repo := &engineRepoStub{
		hasActive:  true,
		candidates: []domain.SubscriptionAccount{account(uuid.New(), 1, time.Now().UTC())},
	}
	engine := NewEngine(repo)

	_, err := engine.AssignSlot(context.Background(), uuid.New(), uuid.New(), nil)
	if !errors.Is(err, store.ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
	if len(repo.claimOrder) != 0 {
		t.Fatalf("expected no claim attempts after the duplicate guard, got %d", len(repo.claimOrder))
	}
}

func TestAssignSlot_EmptyPoolReturnsNoCapacity(t *testing.T) {
	repo := &engineRepoStub{}
	engine := NewEngine(repo)

	_, err := engine.AssignSlot(context.Background(), uuid.New(), uuid.New(), nil)
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity, got %v", err)
	}
}

func TestAssignSlot_RetriesNextBestCandidateOnConflict(t *testing.T) {
	roomy := uuid.New()
	nearlyFull := uuid.New()
	now := time.Now().UTC()

	repo := &engineRepoStub{
		candidates: []domain.SubscriptionAccount{
			account(roomy, 3, now.Add(-time.Hour)),
			account(nearlyFull, 1, now),
		},
		conflictIDs: map[uuid.UUID]bool{nearlyFull: true},
	}
	engine := NewEngine(repo)

	assignment, err := engine.AssignSlot(context.Background(), uuid.New(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("AssignSlot returned error: %v", err)
	}
	if len(repo.claimOrder) != 2 || repo.claimOrder[0] != nearlyFull || repo.claimOrder[1] != roomy {
		t.Fatalf("expected claim order [nearly-full, roomy], got %v", repo.claimOrder)
	}
	if assignment.SubscriptionID != roomy {
		t.Fatalf("expected fallback to the next-best candidate, got %s", assignment.SubscriptionID)
	}
}

func TestAssignSlot_LastSeatLostToRaceReturnsNoCapacity(t *testing.T) {
	lastSeat := uuid.New()

	// The losing side of a race for the final seat: the candidate query still
	// saw one free slot, but the conditional decrement finds none left.
	repo := &engineRepoStub{
		candidates:  []domain.SubscriptionAccount{account(lastSeat, 1, time.Now().UTC())},
		conflictIDs: map[uuid.UUID]bool{lastSeat: true},
	}
	engine := NewEngine(repo)

	_, err := engine.AssignSlot(context.Background(), uuid.New(), uuid.New(), nil)
	if !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity after losing the race, got %v", err)
	}
}

func TestAssignSlot_StoreErrorPropagatesUnchanged(t *testing.T) {
	storeErr := errors.New("db unavailable")
	repo := &engineRepoStub{
		candidates: []domain.SubscriptionAccount{account(uuid.New(), 2, time.Now().UTC())},
		claimErr:   storeErr,
	}
	engine := NewEngine(repo)

	_, err := engine.AssignSlot(context.Background(), uuid.New(), uuid.New(), nil)
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
}
