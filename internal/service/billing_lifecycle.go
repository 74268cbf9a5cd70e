package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/billing"
	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/internal/repository"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
	"github.com/noah-isme/course-billing-api/pkg/logger"
)

type enrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdateBilling(ctx context.Context, enrollment *models.Enrollment) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type subscriptionCache interface {
	GetSubscription(ctx context.Context, enrollmentID string) (*models.SubscriptionDetails, bool)
	SetSubscription(ctx context.Context, enrollmentID string, details *models.SubscriptionDetails)
	InvalidateSubscription(ctx context.Context, enrollmentID string)
}

// Notifier publishes subscription events. Delivery is best-effort and must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, event models.SubscriptionEvent)
}

// LifecycleOption configures the collaborators shared by the billing services.
type LifecycleOption func(*lifecycle)

// WithSubscriptionCache invalidates cached provider details after each committed change.
func WithSubscriptionCache(cache subscriptionCache) LifecycleOption {
	return func(l *lifecycle) {
		if cache != nil {
			l.cache = cache
		}
	}
}

// WithNotifier sets the event publisher.
func WithNotifier(n Notifier) LifecycleOption {
	return func(l *lifecycle) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithMetrics records action outcomes.
func WithMetrics(m *MetricsService) LifecycleOption {
	return func(l *lifecycle) { l.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// lifecycle holds the load, commit and side-effect steps every billing action shares:
// validate, call the provider, persist, audit, invalidate cache, notify.
type lifecycle struct {
	enrollments enrollmentStore
	audit       auditLogger
	cache       subscriptionCache
	notifier    Notifier
	metrics     *MetricsService
	logger      *zap.Logger
	policy      BillingPolicy
	source      string
	now         func() time.Time
}

func newLifecycle(source string, enrollments enrollmentStore, audit auditLogger, logger *zap.Logger, opts []LifecycleOption) lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := lifecycle{
		enrollments: enrollments,
		audit:       audit,
		logger:      logger,
		policy:      DefaultBillingPolicy(),
		source:      source,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&l)
		}
	}
	return l
}

func (l *lifecycle) load(ctx context.Context, id string) (*models.Enrollment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment id is required")
	}
	enrollment, err := l.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Timezone == "" {
		enrollment.Timezone = l.policy.DefaultTimezone
	}
	return enrollment, nil
}

// check gates action on the current state and counts rejected attempts.
func (l *lifecycle) check(e *models.Enrollment, action billing.Action) (models.SubscriptionState, error) {
	state, err := billing.Check(e, action)
	if err != nil {
		l.metrics.RecordAction(string(action), "invalid_state")
	}
	return state, err
}

// commit persists the staged enrollment and fires the post-commit side effects.
func (l *lifecycle) commit(ctx context.Context, before, after *models.Enrollment, actor models.Actor, action billing.Action, auditAction string) error {
	if err := l.enrollments.UpdateBilling(ctx, after); err != nil {
		l.metrics.RecordAction(string(action), "persist_error")
		if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "enrollment was modified by another request, reload and retry")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist enrollment")
	}
	l.metrics.RecordAction(string(action), "success")
	l.emitAudit(ctx, actor, auditAction, "enrollment", after.ID, before, after)
	if l.cache != nil {
		l.cache.InvalidateSubscription(ctx, after.ID)
	}
	l.notify(ctx, before, after, actor, string(action))
	return nil
}

func (l *lifecycle) notify(ctx context.Context, before, after *models.Enrollment, actor models.Actor, action string) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(ctx, models.SubscriptionEvent{
		EnrollmentID: after.ID,
		PayerID:      after.PayerID,
		Action:       action,
		FromState:    billing.DeriveState(before),
		ToState:      billing.DeriveState(after),
		ActorID:      actor.ID,
		OccurredAt:   l.now(),
	})
}

// providerFailure logs the provider error with its identifiers and returns the user-facing error.
func (l *lifecycle) providerFailure(e *models.Enrollment, action billing.Action, err error, message string) error {
	l.metrics.RecordAction(string(action), "provider_error")
	logger.Subscription(l.logger, e.ID, e.StripeSubscriptionID).Error("payment provider call failed",
		zap.String("action", string(action)),
		zap.Error(err),
	)
	return appErrors.Provider(err, message)
}

func (l *lifecycle) emitAudit(ctx context.Context, actor models.Actor, action, resource, resourceID string, before, after interface{}) {
	if l.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		OldValues:  marshalSnapshot(before),
		NewValues:  marshalSnapshot(after),
		IPAddress:  "system",
		UserAgent:  l.source,
	}
	if origin, ok := models.RequestOriginFrom(ctx); ok {
		log.IPAddress = origin.IPAddress
		log.UserAgent = origin.UserAgent
	}
	if actor.ID != "" {
		id := actor.ID
		log.UserID = &id
	}
	if err := l.audit.CreateAuditLog(ctx, log); err != nil {
		l.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func marshalSnapshot(v interface{}) []byte {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func requireActor(actor models.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageBilling() {
		return appErrors.Clone(appErrors.ErrForbidden, "role may not manage billing")
	}
	return nil
}

func stateResult(before, after *models.Enrollment, message string) *models.ActionResult {
	return &models.ActionResult{
		Success:    true,
		Changed:    true,
		Message:    message,
		FromState:  billing.DeriveState(before),
		ToState:    billing.DeriveState(after),
		Enrollment: after,
	}
}
