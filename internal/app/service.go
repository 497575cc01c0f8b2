/**
 * @description
 * This file contains the core business logic for the slot service. The
 * `Service` struct is the subscription request orchestrator: it validates
 * inputs against the provider/country catalog, applies the fail-fast
 * duplicate guards, owns the slot request lifecycle, invokes the assignment
 * engine, and publishes slot lifecycle events.
 *
 * Key behavior:
 * - Validation and duplicate checks run before any row is written.
 * - A request that finds capacity returns assigned; one that does not stays
 *   pending and returns with a queued indicator. Both are successes.
 * - Event publishing is best-effort and never fails the business operation.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/domain"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/store"
	"github.com/VanGoethe/buddyPass-backend-sub000/pkg/rabbitmq"
)

var (
	// ErrCountryNotSupported means the country exists but is not in the
	// provider's active supported-country set.
	ErrCountryNotSupported = errors.New("country is not supported by this provider")
	// ErrDuplicateRequest means the user already has an unresolved request
	// for the identical (provider, country) tuple.
	ErrDuplicateRequest = errors.New("an open slot request already exists for this provider and country")
)

// RateLimitError reports that a caller exceeded the request rate limit.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfterSeconds)
}

// RequestRateLimiter throttles slot requests per subject across instances.
type RequestRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for slot requests.
type Service struct {
	repo          store.Repository
	engine        *Engine
	eventProducer rabbitmq.Publisher
	eventExchange string

	rateLimiter           RequestRateLimiter
	requestLimitPerMinute int
}

// NewService creates a new slot service instance.
func NewService(repo store.Repository, engine *Engine, producer rabbitmq.Publisher, eventExchange string) *Service {
	return &Service{
		repo:          repo,
		engine:        engine,
		eventProducer: producer,
		eventExchange: eventExchange,
	}
}

// SetRequestRateLimiter enables distributed per-user request throttling.
func (s *Service) SetRequestRateLimiter(limiter RequestRateLimiter, limitPerMinute int) {
	s.rateLimiter = limiter
	s.requestLimitPerMinute = limitPerMinute
}

// RequestSlot handles a user's ask for a seat on a provider.
//
// Validation order matters: catalog checks and both duplicate guards fail
// fast before the request row is persisted, so a rejected call leaves no
// state behind. Only then is the pending request written and the engine
// invoked.
func (s *Service) RequestSlot(ctx context.Context, userID uuid.UUID, payload domain.CreateSlotRequestPayload) (*domain.SlotRequestResult, error) {
	if err := s.consumeRequestRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	// 1. Validate the provider and, when given, the country.
	provider, err := s.repo.FindProviderByID(ctx, payload.ProviderID)
	if err != nil {
		return nil, err
	}
	if payload.CountryID != nil {
		country, err := s.repo.FindCountryByID(ctx, *payload.CountryID)
		if err != nil {
			return nil, err
		}
		if !country.IsActive {
			return nil, store.ErrCountryNotFound
		}
		if !provider.SupportsCountry(country.ID) {
			return nil, ErrCountryNotSupported
		}
	}

	// 2. Fail-fast duplicate guards, before any mutation.
	alreadyAssigned, err := s.repo.HasActiveAssignmentForProvider(ctx, userID, payload.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing provider assignment: %w", err)
	}
	if alreadyAssigned {
		return nil, store.ErrAlreadyAssigned
	}

	_, err = s.repo.FindOpenRequestByTuple(ctx, userID, payload.ProviderID, payload.CountryID)
	if err == nil {
		return nil, ErrDuplicateRequest
	}
	if !errors.Is(err, store.ErrRequestNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate request: %w", err)
	}

	// 3. Persist the request as pending.
	request := &domain.SlotRequest{
		ID:          uuid.New(),
		UserID:      userID,
		ProviderID:  payload.ProviderID,
		CountryID:   payload.CountryID,
		Status:      domain.RequestStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateSlotRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("failed to create slot request: %w", err)
	}

	// 4. Invoke the engine and resolve the request.
	assignment, err := s.engine.AssignSlot(ctx, userID, payload.ProviderID, payload.CountryID)
	switch {
	case err == nil:
		return s.resolveAssignedRequest(ctx, request, assignment)
	case errors.Is(err, ErrNoCapacity):
		// Queued outcome: the request stays pending for the replenishment
		// worker; the caller gets an immediate queued response.
		s.publishEvent(ctx, rabbitmq.RoutingKeyRequestQueued, rabbitmq.RequestQueuedEvent{
			RequestID:  request.ID,
			UserID:     userID,
			ProviderID: payload.ProviderID,
			Timestamp:  time.Now().UTC(),
		})
		return &domain.SlotRequestResult{Request: request, Queued: true}, nil
	case errors.Is(err, store.ErrAlreadyAssigned):
		// A concurrent request for the same user won the race between the
		// fail-fast guard and the claim. Close the row we just wrote so the
		// worker never replays a request that can only conflict.
		if rejectErr := s.repo.RejectSlotRequest(ctx, request.ID, "user already holds a slot for this provider"); rejectErr != nil {
			log.Printf("level=warn component=slot_service msg=\"failed to close conflicting request\" request_id=%s err=%v", request.ID, rejectErr)
		}
		return nil, store.ErrAlreadyAssigned
	default:
		// Store failure after the pending row was written: the request stays
		// pending and the worker will retry it once the store recovers.
		log.Printf("level=error component=slot_service msg=\"engine failed; request left pending\" request_id=%s err=%v", request.ID, err)
		return nil, err
	}
}

func (s *Service) resolveAssignedRequest(ctx context.Context, request *domain.SlotRequest, assignment *domain.SlotAssignment) (*domain.SlotRequestResult, error) {
	processedAt := time.Now().UTC()
	if err := s.repo.MarkRequestAssigned(ctx, request.ID, assignment.ID, processedAt); err != nil {
		// The seat is committed; the request row update failing is a store
		// fault that must surface rather than be papered over.
		log.Printf("level=error component=slot_service msg=\"assignment committed but request update failed\" request_id=%s slot_id=%s err=%v", request.ID, assignment.ID, err)
		return nil, fmt.Errorf("failed to mark request assigned: %w", err)
	}

	request.Status = domain.RequestStatusAssigned
	request.AssignedSlotID = &assignment.ID
	request.ProcessedAt = &processedAt

	s.publishEvent(ctx, rabbitmq.RoutingKeySlotAssigned, rabbitmq.SlotAssignedEvent{
		RequestID:      request.ID,
		UserID:         request.UserID,
		ProviderID:     request.ProviderID,
		SubscriptionID: assignment.SubscriptionID,
		SlotID:         assignment.ID,
		Timestamp:      processedAt,
	})

	return &domain.SlotRequestResult{Request: request, Queued: false}, nil
}

// GetUserSlots returns the user's active assignments, each joined with the
// non-sensitive summary of its backing subscription account.
func (s *Service) GetUserSlots(ctx context.Context, userID uuid.UUID) ([]domain.UserSlot, error) {
	return s.repo.FindActiveAssignmentsByUserID(ctx, userID)
}

// GetUserRequests returns all slot requests the user has made.
func (s *Service) GetUserRequests(ctx context.Context, userID uuid.UUID) ([]domain.SlotRequest, error) {
	return s.repo.FindRequestsByUserID(ctx, userID)
}

// CancelRequest lets the requesting user withdraw a pending request.
func (s *Service) CancelRequest(ctx context.Context, requestID, userID uuid.UUID) error {
	return s.repo.CancelSlotRequest(ctx, requestID, userID)
}

// RejectRequest lets an operator decline a pending request.
func (s *Service) RejectRequest(ctx context.Context, requestID uuid.UUID, reason string) error {
	return s.repo.RejectSlotRequest(ctx, requestID, reason)
}

// ReleaseSlot gives a user's seat back to the pool.
func (s *Service) ReleaseSlot(ctx context.Context, assignmentID, userID uuid.UUID) error {
	if err := s.repo.ReleaseSlot(ctx, assignmentID, userID); err != nil {
		return err
	}

	s.publishEvent(ctx, rabbitmq.RoutingKeySlotReleased, rabbitmq.SlotReleasedEvent{
		UserID:    userID,
		SlotID:    assignmentID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (s *Service) consumeRequestRateLimit(ctx context.Context, userID uuid.UUID) error {
	if s.rateLimiter == nil || s.requestLimitPerMinute <= 0 {
		return nil
	}

	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "slot_request", userID.String(), s.requestLimitPerMinute, time.Minute)
	if err != nil {
		// Rate limiting is protective, not correctness-bearing; a limiter
		// outage must not take the request path down with it.
		log.Printf("level=warn component=slot_service msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, err)
		return nil
	}
	if count > s.requestLimitPerMinute {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.eventProducer == nil {
		return
	}
	if err := s.eventProducer.Publish(ctx, s.eventExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=slot_service msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}
