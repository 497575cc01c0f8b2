/**
 * @description
 * Scheduled job implementations for the slot service's replenishment worker.
 * The worker drains pending slot requests oldest-first through the assignment
 * engine whenever new capacity may have appeared, outside the synchronous
 * request path.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/domain"
	"github.com/VanGoethe/buddyPass-backend-sub000/internal/store"
	"github.com/VanGoethe/buddyPass-backend-sub000/pkg/rabbitmq"
)

// PendingRequestStore defines the database operations needed by the jobs.
type PendingRequestStore interface {
	FindPendingRequests(ctx context.Context, limit int) ([]domain.SlotRequest, error)
	FindActiveAssignmentsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.UserSlot, error)
	MarkRequestAssigned(ctx context.Context, requestID, slotID uuid.UUID, processedAt time.Time) error
	RejectSlotRequest(ctx context.Context, requestID uuid.UUID, reason string) error
}

// Assigner is the engine surface the worker drives.
type Assigner interface {
	AssignSlot(ctx context.Context, userID, providerID uuid.UUID, countryID *uuid.UUID) (*domain.SlotAssignment, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo          PendingRequestStore
	engine        Assigner
	eventProducer rabbitmq.Publisher
	eventExchange string
	logger        *slog.Logger
	batchSize     int
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo PendingRequestStore, engine Assigner, producer rabbitmq.Publisher, eventExchange string, logger *slog.Logger, batchSize int) *Jobs {
	return &Jobs{
		repo:          repo,
		engine:        engine,
		eventProducer: producer,
		eventExchange: eventExchange,
		logger:        logger,
		batchSize:     batchSize,
	}
}

type poolKey struct {
	providerID uuid.UUID
	countryID  uuid.UUID
	anyCountry bool
}

func keyFor(req domain.SlotRequest) poolKey {
	k := poolKey{providerID: req.ProviderID}
	if req.CountryID != nil {
		k.countryID = *req.CountryID
	} else {
		k.anyCountry = true
	}
	return k
}

// ProcessPendingRequests is the job that re-evaluates queued slot requests in
// FIFO order (oldest requested_at first). Once a provider/country pool proved
// empty during a run, younger requests for the same pool are skipped so they
// cannot jump the queue when a seat frees mid-run.
func (j *Jobs) ProcessPendingRequests() {
	j.logger.Info("starting pending slot request job")
	ctx := context.Background()

	requests, err := j.repo.FindPendingRequests(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("failed to fetch pending slot requests", "error", err)
		return
	}

	if len(requests) == 0 {
		j.logger.Info("no pending slot requests to process")
		return
	}

	j.logger.Info("found pending slot requests", "count", len(requests))

	exhausted := make(map[poolKey]bool)
	assigned := 0

	for _, req := range requests {
		if exhausted[keyFor(req)] {
			continue
		}

		assignment, err := j.engine.AssignSlot(ctx, req.UserID, req.ProviderID, req.CountryID)
		switch {
		case err == nil:
			processedAt := time.Now().UTC()
			if markErr := j.repo.MarkRequestAssigned(ctx, req.ID, assignment.ID, processedAt); markErr != nil {
				// The seat is committed; resolveHeldSeat attaches it to the
				// still-pending request on the next run.
				j.logger.Error("assignment committed but request update failed", "request_id", req.ID, "slot_id", assignment.ID, "error", markErr)
				continue
			}
			assigned++
			j.publishAssigned(ctx, req, assignment, processedAt)

		case errors.Is(err, ErrNoCapacity):
			exhausted[keyFor(req)] = true

		case errors.Is(err, store.ErrAlreadyAssigned):
			j.resolveHeldSeat(ctx, req)

		default:
			j.logger.Error("failed to assign pending request", "request_id", req.ID, "error", err)
		}
	}

	j.logger.Info("pending slot request job finished", "assigned", assigned)
}

// resolveHeldSeat closes a pending request whose user already holds an active
// seat on the provider. When the held seat satisfies the request's tuple the
// request is marked assigned to it; this is the recovery path for a prior run
// that committed the claim but failed to update the request, and it records
// the truthful outcome. Only a seat that cannot satisfy the tuple (a
// different-country assignment on the same provider) gets the request
// rejected.
func (j *Jobs) resolveHeldSeat(ctx context.Context, req domain.SlotRequest) {
	slots, err := j.repo.FindActiveAssignmentsByUserID(ctx, req.UserID)
	if err != nil {
		j.logger.Error("failed to load user assignments for conflicting request", "request_id", req.ID, "error", err)
		return
	}

	for _, slot := range slots {
		if slot.Subscription.ProviderID != req.ProviderID {
			continue
		}
		if req.CountryID != nil && (slot.Subscription.CountryID == nil || *slot.Subscription.CountryID != *req.CountryID) {
			continue
		}
		if markErr := j.repo.MarkRequestAssigned(ctx, req.ID, slot.Assignment.ID, time.Now().UTC()); markErr != nil {
			j.logger.Error("failed to attach held seat to pending request", "request_id", req.ID, "slot_id", slot.Assignment.ID, "error", markErr)
		}
		return
	}

	if rejectErr := j.repo.RejectSlotRequest(ctx, req.ID, "user already holds a slot for this provider"); rejectErr != nil {
		j.logger.Error("failed to close conflicting pending request", "request_id", req.ID, "error", rejectErr)
	}
}

func (j *Jobs) publishAssigned(ctx context.Context, req domain.SlotRequest, assignment *domain.SlotAssignment, processedAt time.Time) {
	if j.eventProducer == nil {
		return
	}
	event := rabbitmq.SlotAssignedEvent{
		RequestID:      req.ID,
		UserID:         req.UserID,
		ProviderID:     req.ProviderID,
		SubscriptionID: assignment.SubscriptionID,
		SlotID:         assignment.ID,
		Timestamp:      processedAt,
	}
	if err := j.eventProducer.Publish(ctx, j.eventExchange, rabbitmq.RoutingKeySlotAssigned, event); err != nil {
		j.logger.Warn("slot assigned event publish failed", "request_id", req.ID, "error", err)
	}
}
