package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

const actionSync billing.Action = "sync_subscription"

type subscriptionLookup interface {
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Enrollment, error)
}

// SubscriptionSyncService overwrites local subscription fields with fresher provider state.
type SubscriptionSyncService struct {
	lifecycle
	lookup   subscriptionLookup
	provider PaymentProvider
}

// NewSubscriptionSyncService constructs the service.
func NewSubscriptionSyncService(enrollments enrollmentStore, lookup subscriptionLookup, provider PaymentProvider, audit auditLogger, logger *zap.Logger, opts ...LifecycleOption) *SubscriptionSyncService {
	return &SubscriptionSyncService{
		lifecycle: newLifecycle("subscription-sync-service", enrollments, audit, logger, opts),
		lookup:    lookup,
		provider:  provider,
	}
}

// Sync reads the provider subscription and applies every field that changed.
func (s *SubscriptionSyncService) Sync(ctx context.Context, enrollmentID string, actor models.Actor) (*models.ActionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !e.HasSubscription() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment has no subscription to sync")
	}
	return s.refresh(ctx, e, actor)
}

// HandleEvent refreshes the enrollment behind a verified provider webhook. Events for
// unknown subscriptions, unrelated types, or older than the last sync are ignored.
func (s *SubscriptionSyncService) HandleEvent(ctx context.Context, event models.ProviderEvent) (*models.ActionResult, error) {
	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	if !RefreshesSubscription(event.Type) || event.SubscriptionID == "" {
		log.Debug("provider event ignored")
		return &models.ActionResult{Success: true, Message: "event ignored"}, nil
	}
	e, err := s.lookup.FindBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Info("provider event for unknown subscription", zap.String("subscription_id", event.SubscriptionID))
			return &models.ActionResult{Success: true, Message: "subscription not linked to an enrollment"}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if e.SubscriptionSyncedAt != nil && !event.OccurredAt.IsZero() && !event.OccurredAt.After(*e.SubscriptionSyncedAt) {
		log.Info("stale provider event skipped", zap.String("enrollment_id", e.ID), zap.Time("synced_at", *e.SubscriptionSyncedAt))
		return unchanged(e, billing.DeriveState(e), "event is older than the last sync"), nil
	}
	return s.refresh(ctx, e, models.Actor{})
}

// RefreshesSubscription reports whether a provider event type can change subscription state.
func RefreshesSubscription(eventType string) bool {
	return strings.HasPrefix(eventType, "customer.subscription.") ||
		strings.HasPrefix(eventType, "invoice.payment_")
}

func (s *SubscriptionSyncService) refresh(ctx context.Context, e *models.Enrollment, actor models.Actor) (*models.ActionResult, error) {
	details, err := s.provider.GetSubscriptionDetails(ctx, e.SubscriptionID())
	if err != nil {
		return nil, s.providerFailure(e, actionSync, err, "failed to load subscription from provider")
	}
	if details.ObservedAt.IsZero() {
		details.ObservedAt = s.now()
	}

	after := e.Clone()
	diff := billing.DiffRemote(after, *details)
	state := billing.DeriveState(e)
	if diff.Stale {
		return unchanged(e, state, "provider state is not newer than the last sync"), nil
	}
	if !diff.Changed() {
		return unchanged(e, state, "subscription already in sync"), nil
	}
	for _, c := range diff.Changes {
		s.logger.Info("subscription field synced",
			zap.String("enrollment_id", e.ID),
			zap.String("subscription_id", e.SubscriptionID()),
			zap.String("field", c.Field),
			zap.String("old", c.Old),
			zap.String("new", c.New),
			zap.String("reason", c.Reason),
		)
	}
	if err := s.commit(ctx, e, after, actor, actionSync, models.AuditActionSubscriptionSync); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetSubscription(ctx, e.ID, details)
	}
	result := stateResult(e, after, "subscription synced from provider")
	result.AppliedChanges = lo.Map(diff.Changes, func(c billing.FieldChange, _ int) string { return c.Field })
	result.Details = map[string]interface{}{"changes": diff.Changes}
	return result, nil
}
