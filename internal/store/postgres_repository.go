/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL for subscription accounts, slot
 * assignments, slot requests, and the catalog lookups the orchestrator
 * validates against.
 *
 * The claim path is the concurrency-critical piece: ClaimSlot wraps the
 * conditional seat decrement, the one-seat-per-provider re-check, and the
 * assignment insert in a single transaction, so a claim either fully commits
 * or fully no-ops.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/domain"
)

var (
	ErrProviderNotFound     = errors.New("provider not found")
	ErrCountryNotFound      = errors.New("country not found")
	ErrSubscriptionNotFound = errors.New("subscription account not found")
	ErrRequestNotFound      = errors.New("slot request not found")
	ErrSlotNotFound         = errors.New("slot assignment not found")
	ErrRequestNotPending    = errors.New("slot request is not pending")
	ErrSlotConflict         = errors.New("subscription account has no free seat")
	ErrAlreadyAssigned      = errors.New("user already holds an active slot for this provider")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindProviderByID retrieves a provider together with its supported-country set.
func (r *PostgresRepository) FindProviderByID(ctx context.Context, providerID uuid.UUID) (*domain.Provider, error) {
	var provider domain.Provider
	query := `SELECT id, name FROM providers WHERE id = $1`
	err := r.db.QueryRow(ctx, query, providerID).Scan(&provider.ID, &provider.Name)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	countriesQuery := `
		SELECT c.id, c.is_active AND pc.is_active
		FROM provider_countries pc
		JOIN countries c ON c.id = pc.country_id
		WHERE pc.provider_id = $1
	`
	rows, err := r.db.Query(ctx, countriesQuery, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pc domain.ProviderCountry
		if err := rows.Scan(&pc.ID, &pc.IsActive); err != nil {
			return nil, err
		}
		provider.SupportedCountries = append(provider.SupportedCountries, pc)
	}

	return &provider, rows.Err()
}

// FindCountryByID retrieves a catalog country row.
func (r *PostgresRepository) FindCountryByID(ctx context.Context, countryID uuid.UUID) (*domain.Country, error) {
	var country domain.Country
	query := `SELECT id, code, name, is_active FROM countries WHERE id = $1`
	err := r.db.QueryRow(ctx, query, countryID).Scan(&country.ID, &country.Code, &country.Name, &country.IsActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCountryNotFound
		}
		return nil, err
	}
	return &country, nil
}

// FindUsableSubscriptions retrieves all subscription accounts that can back a
// new assignment for the provider (and country, when given), ordered by
// available_slots DESC then created_at ASC.
func (r *PostgresRepository) FindUsableSubscriptions(ctx context.Context, providerID uuid.UUID, countryID *uuid.UUID) ([]domain.SubscriptionAccount, error) {
	var accounts []domain.SubscriptionAccount
	query := `
		SELECT id, provider_id, country_id, available_slots, total_slots, is_active, expires_at, created_at
		FROM subscription_accounts
		WHERE provider_id = $1
		  AND ($2::uuid IS NULL OR country_id = $2)
		  AND is_active = TRUE
		  AND (expires_at IS NULL OR expires_at > NOW())
		  AND available_slots > 0
		ORDER BY available_slots DESC, created_at ASC
	`
	rows, err := r.db.Query(ctx, query, providerID, countryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var account domain.SubscriptionAccount
		err := rows.Scan(
			&account.ID, &account.ProviderID, &account.CountryID, &account.AvailableSlots,
			&account.TotalSlots, &account.IsActive, &account.ExpiresAt, &account.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, rows.Err()
}

// FindSubscriptionByID retrieves a single subscription account.
func (r *PostgresRepository) FindSubscriptionByID(ctx context.Context, subscriptionID uuid.UUID) (*domain.SubscriptionAccount, error) {
	var account domain.SubscriptionAccount
	query := `
		SELECT id, provider_id, country_id, available_slots, total_slots, is_active, expires_at, created_at
		FROM subscription_accounts
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, subscriptionID).Scan(
		&account.ID, &account.ProviderID, &account.CountryID, &account.AvailableSlots,
		&account.TotalSlots, &account.IsActive, &account.ExpiresAt, &account.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ClaimSlot performs the atomic seat claim for one subscription account.
// The conditional decrement gates the insert: when another claim already
// consumed the last seat, zero rows update and the transaction rolls back with
// ErrSlotConflict, leaving no partial state.
func (r *PostgresRepository) ClaimSlot(ctx context.Context, subscriptionID, userID, providerID uuid.UUID) (*domain.SlotAssignment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Serialize same-user claims across all of the provider's accounts.
	// Row locks alone only serialize claims that touch the same account row;
	// two claims against different accounts would otherwise both pass the
	// guard below under READ COMMITTED. The advisory lock is released on
	// commit or rollback.
	lockQuery := `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`
	if _, err := tx.Exec(ctx, lockQuery, userID, providerID); err != nil {
		return nil, fmt.Errorf("failed to acquire claim lock: %w", err)
	}

	// 2. Conditionally consume one seat. The WHERE clause re-validates
	// usability so a deactivated or expired account loses the race too.
	decrementQuery := `
		UPDATE subscription_accounts
		SET available_slots = available_slots - 1, updated_at = NOW()
		WHERE id = $1
		  AND available_slots > 0
		  AND is_active = TRUE
		  AND (expires_at IS NULL OR expires_at > NOW())
	`
	result, err := tx.Exec(ctx, decrementQuery, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement available slots: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrSlotConflict
	}

	// 3. Re-check the one-seat-per-provider guard. The advisory lock above
	// makes this sound: a concurrent claim for the same (user, provider) has
	// either committed its assignment (visible here) or not yet started.
	var existing int
	guardQuery := `
		SELECT COUNT(*)
		FROM slot_assignments sa
		JOIN subscription_accounts s ON s.id = sa.subscription_id
		WHERE sa.user_id = $1 AND s.provider_id = $2 AND sa.is_active = TRUE
	`
	if err := tx.QueryRow(ctx, guardQuery, userID, providerID).Scan(&existing); err != nil {
		return nil, fmt.Errorf("failed to re-check provider assignment guard: %w", err)
	}
	if existing > 0 {
		return nil, ErrAlreadyAssigned
	}

	// 4. Insert the assignment.
	var assignment domain.SlotAssignment
	insertQuery := `
		INSERT INTO slot_assignments (id, user_id, subscription_id, assigned_at, is_active)
		VALUES ($1, $2, $3, NOW(), TRUE)
		RETURNING id, user_id, subscription_id, assigned_at, is_active
	`
	err = tx.QueryRow(ctx, insertQuery, uuid.New(), userID, subscriptionID).Scan(
		&assignment.ID, &assignment.UserID, &assignment.SubscriptionID,
		&assignment.AssignedAt, &assignment.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert slot assignment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit slot claim: %w", err)
	}
	return &assignment, nil
}

// HasActiveAssignmentForProvider reports whether the user already holds an
// active seat anywhere on the provider, across all accounts and countries.
func (r *PostgresRepository) HasActiveAssignmentForProvider(ctx context.Context, userID, providerID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM slot_assignments sa
			JOIN subscription_accounts s ON s.id = sa.subscription_id
			WHERE sa.user_id = $1 AND s.provider_id = $2 AND sa.is_active = TRUE
		)
	`
	if err := r.db.QueryRow(ctx, query, userID, providerID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CountActiveAssignments returns the number of active seats on one account.
func (r *PostgresRepository) CountActiveAssignments(ctx context.Context, subscriptionID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM slot_assignments WHERE subscription_id = $1 AND is_active = TRUE`
	if err := r.db.QueryRow(ctx, query, subscriptionID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// FindActiveAssignmentsByUserID retrieves the user's active slots joined with
// the non-sensitive subscription summary. Credential columns are never selected.
func (r *PostgresRepository) FindActiveAssignmentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.UserSlot, error) {
	var slots []domain.UserSlot
	query := `
		SELECT sa.id, sa.user_id, sa.subscription_id, sa.assigned_at, sa.is_active,
		       s.id, s.provider_id, s.country_id, s.expires_at
		FROM slot_assignments sa
		JOIN subscription_accounts s ON s.id = sa.subscription_id
		WHERE sa.user_id = $1 AND sa.is_active = TRUE
		ORDER BY sa.assigned_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var slot domain.UserSlot
		err := rows.Scan(
			&slot.Assignment.ID, &slot.Assignment.UserID, &slot.Assignment.SubscriptionID,
			&slot.Assignment.AssignedAt, &slot.Assignment.IsActive,
			&slot.Subscription.ID, &slot.Subscription.ProviderID,
			&slot.Subscription.CountryID, &slot.Subscription.ExpiresAt,
		)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

// ReleaseSlot soft-deactivates a user's assignment and restores one seat on
// the backing account, capped at total_slots so a double release can never
// oversell later claims.
func (r *PostgresRepository) ReleaseSlot(ctx context.Context, assignmentID, userID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var subscriptionID uuid.UUID
	deactivateQuery := `
		UPDATE slot_assignments
		SET is_active = FALSE, released_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_active = TRUE
		RETURNING subscription_id
	`
	err = tx.QueryRow(ctx, deactivateQuery, assignmentID, userID).Scan(&subscriptionID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrSlotNotFound
		}
		return fmt.Errorf("failed to deactivate slot assignment: %w", err)
	}

	restoreQuery := `
		UPDATE subscription_accounts
		SET available_slots = LEAST(available_slots + 1, total_slots), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, restoreQuery, subscriptionID); err != nil {
		return fmt.Errorf("failed to restore seat on subscription account: %w", err)
	}

	return tx.Commit(ctx)
}

// CreateSlotRequest persists a new pending slot request.
func (r *PostgresRepository) CreateSlotRequest(ctx context.Context, req *domain.SlotRequest) error {
	query := `
		INSERT INTO slot_requests (id, user_id, provider_id, country_id, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, req.ID, req.UserID, req.ProviderID, req.CountryID, req.Status, req.RequestedAt)
	return err
}

// FindOpenRequestByTuple looks up an unresolved request for the exact
// (user, provider, country) tuple. Used by the duplicate-request guard.
// A request counts as unresolved while it is pending, or while it is assigned
// and its slot is still active; once the seat is released the old assigned
// request no longer blocks re-requesting the tuple.
func (r *PostgresRepository) FindOpenRequestByTuple(ctx context.Context, userID, providerID uuid.UUID, countryID *uuid.UUID) (*domain.SlotRequest, error) {
	var req domain.SlotRequest
	query := `
		SELECT id, user_id, provider_id, country_id, status, assigned_slot_id, requested_at, processed_at
		FROM slot_requests
		WHERE user_id = $1
		  AND provider_id = $2
		  AND country_id IS NOT DISTINCT FROM $3
		  AND (
			status = 'pending'
			OR (status = 'assigned' AND EXISTS (
				SELECT 1 FROM slot_assignments sa
				WHERE sa.id = slot_requests.assigned_slot_id AND sa.is_active = TRUE
			))
		  )
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, userID, providerID, countryID).Scan(
		&req.ID, &req.UserID, &req.ProviderID, &req.CountryID,
		&req.Status, &req.AssignedSlotID, &req.RequestedAt, &req.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindRequestByID retrieves a single slot request.
func (r *PostgresRepository) FindRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.SlotRequest, error) {
	var req domain.SlotRequest
	query := `
		SELECT id, user_id, provider_id, country_id, status, assigned_slot_id, requested_at, processed_at
		FROM slot_requests
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&req.ID, &req.UserID, &req.ProviderID, &req.CountryID,
		&req.Status, &req.AssignedSlotID, &req.RequestedAt, &req.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindRequestsByUserID retrieves all requests a user has made, newest first.
func (r *PostgresRepository) FindRequestsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.SlotRequest, error) {
	var requests []domain.SlotRequest
	query := `
		SELECT id, user_id, provider_id, country_id, status, assigned_slot_id, requested_at, processed_at
		FROM slot_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var req domain.SlotRequest
		err := rows.Scan(
			&req.ID, &req.UserID, &req.ProviderID, &req.CountryID,
			&req.Status, &req.AssignedSlotID, &req.RequestedAt, &req.ProcessedAt,
		)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// FindPendingRequests retrieves pending requests oldest-first for the
// replenishment worker. The batch is bounded so one run stays cheap.
func (r *PostgresRepository) FindPendingRequests(ctx context.Context, limit int) ([]domain.SlotRequest, error) {
	if limit <= 0 {
		limit = 100
	}

	var requests []domain.SlotRequest
	query := `
		SELECT id, user_id, provider_id, country_id, status, assigned_slot_id, requested_at, processed_at
		FROM slot_requests
		WHERE status = 'pending'
		ORDER BY requested_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var req domain.SlotRequest
		err := rows.Scan(
			&req.ID, &req.UserID, &req.ProviderID, &req.CountryID,
			&req.Status, &req.AssignedSlotID, &req.RequestedAt, &req.ProcessedAt,
		)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// MarkRequestAssigned transitions a pending request to assigned, recording the
// committed slot and processing time. Only pending requests transition.
func (r *PostgresRepository) MarkRequestAssigned(ctx context.Context, requestID, slotID uuid.UUID, processedAt time.Time) error {
	query := `
		UPDATE slot_requests
		SET status = 'assigned', assigned_slot_id = $2, processed_at = $3
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, requestID, slotID, processedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRequestNotPending
	}
	return nil
}

// CancelSlotRequest lets the requesting user withdraw a still-pending request.
func (r *PostgresRepository) CancelSlotRequest(ctx context.Context, requestID, userID uuid.UUID) error {
	query := `
		UPDATE slot_requests
		SET status = 'cancelled', processed_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, requestID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRequestNotPending
	}
	return nil
}

// RejectSlotRequest lets an operator decline a still-pending request.
func (r *PostgresRepository) RejectSlotRequest(ctx context.Context, requestID uuid.UUID, reason string) error {
	query := `
		UPDATE slot_requests
		SET status = 'rejected', processed_at = NOW(), rejection_reason = $2
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, requestID, reason)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRequestNotPending
	}
	return nil
}
