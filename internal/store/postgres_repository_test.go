package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/domain"
)

// These tests exercise the real SQL, so they need a database. They are skipped
// unless TEST_DATABASE_URL points at a disposable Postgres instance.
func newTestRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database-backed tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS subscription_accounts (
			id UUID PRIMARY KEY,
			provider_id UUID NOT NULL,
			country_id UUID,
			available_slots INT NOT NULL,
			total_slots INT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS slot_assignments (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			subscription_id UUID NOT NULL,
			assigned_at TIMESTAMPTZ NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			released_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS slot_requests (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			provider_id UUID NOT NULL,
			country_id UUID,
			status TEXT NOT NULL,
			assigned_slot_id UUID,
			requested_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ,
			rejection_reason TEXT
		)`,
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to prepare test schema: %v", err)
		}
	}

	return NewPostgresRepository(pool)
}

func insertAccount(t *testing.T, repo *PostgresRepository, providerID uuid.UUID, slots int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := repo.db.Exec(context.Background(), `
		INSERT INTO subscription_accounts (id, provider_id, available_slots, total_slots, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, id, providerID, slots, slots)
	if err != nil {
		t.Fatalf("failed to insert subscription account: %v", err)
	}
	return id
}

func activeAssignmentCount(t *testing.T, repo *PostgresRepository, userID, providerID uuid.UUID) int {
	t.Helper()
	var count int
	err := repo.db.QueryRow(context.Background(), `
		SELECT COUNT(*)
		FROM slot_assignments sa
		JOIN subscription_accounts s ON s.id = sa.subscription_id
		WHERE sa.user_id = $1 AND s.provider_id = $2 AND sa.is_active = TRUE
	`, userID, providerID).Scan(&count)
	if err != nil {
		t.Fatalf("failed to count active assignments: %v", err)
	}
	return count
}

func TestClaimSlot_ConcurrentClaimsOnDifferentAccountsCommitOnce(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	providerID := uuid.New()
	userID := uuid.New()
	accountA := insertAccount(t, repo, providerID, 3)
	accountB := insertAccount(t, repo, providerID, 3)

	// The same user racing two claims against two different accounts of one
	// provider must come out with exactly one active seat. Row locks do not
	// collide here, so only the per-(user, provider) claim lock serializes them.
	start := make(chan struct{})
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, accountID := range []uuid.UUID{accountA, accountB} {
		wg.Add(1)
		go func(i int, accountID uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[i] = repo.ClaimSlot(ctx, accountID, userID, providerID)
		}(i, accountID)
	}
	close(start)
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyAssigned):
			conflicts++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one committed claim and one ErrAlreadyAssigned, got %d successes and %d conflicts (%v)", successes, conflicts, errs)
	}
	if got := activeAssignmentCount(t, repo, userID, providerID); got != 1 {
		t.Fatalf("expected 1 active assignment for the user on the provider, got %d", got)
	}
}

func TestClaimSlot_SequentialSecondClaimConflicts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	providerID := uuid.New()
	userID := uuid.New()
	accountA := insertAccount(t, repo, providerID, 2)
	accountB := insertAccount(t, repo, providerID, 2)

	if _, err := repo.ClaimSlot(ctx, accountA, userID, providerID); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if _, err := repo.ClaimSlot(ctx, accountB, userID, providerID); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned on a second account of the same provider, got %v", err)
	}
	if got := activeAssignmentCount(t, repo, userID, providerID); got != 1 {
		t.Fatalf("expected 1 active assignment, got %d", got)
	}

	// And the failed claim must not have leaked the seat it decremented.
	account, err := repo.FindSubscriptionByID(ctx, accountB)
	if err != nil {
		t.Fatalf("failed to load account: %v", err)
	}
	if account.AvailableSlots != 2 {
		t.Fatalf("expected the rolled-back claim to restore 2 available slots, got %d", account.AvailableSlots)
	}
}

func TestFindOpenRequestByTuple_ReleasedSeatUnblocksTuple(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	providerID := uuid.New()
	userID := uuid.New()
	accountID := insertAccount(t, repo, providerID, 2)

	assignment, err := repo.ClaimSlot(ctx, accountID, userID, providerID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	request := &domain.SlotRequest{
		ID:          uuid.New(),
		UserID:      userID,
		ProviderID:  providerID,
		Status:      domain.RequestStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := repo.CreateSlotRequest(ctx, request); err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if err := repo.MarkRequestAssigned(ctx, request.ID, assignment.ID, time.Now().UTC()); err != nil {
		t.Fatalf("failed to mark request assigned: %v", err)
	}

	// While the seat is held, the assigned request still blocks the tuple.
	if _, err := repo.FindOpenRequestByTuple(ctx, userID, providerID, nil); err != nil {
		t.Fatalf("expected the assigned request to count as open while the seat is active, got %v", err)
	}

	if err := repo.ReleaseSlot(ctx, assignment.ID, userID); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// After release the old assigned request is resolved and the user may
	// request the identical tuple again.
	if _, err := repo.FindOpenRequestByTuple(ctx, userID, providerID, nil); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected no open request after releasing the seat, got %v", err)
	}
}
