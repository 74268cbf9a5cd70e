package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/pkg/jobs"
)

// NotificationSink delivers one subscription event. Returning an error schedules a retry.
type NotificationSink interface {
	Deliver(ctx context.Context, event models.SubscriptionEvent) error
}

// NotificationSinkFunc adapts a function to NotificationSink.
type NotificationSinkFunc func(ctx context.Context, event models.SubscriptionEvent) error

// Deliver implements NotificationSink.
func (f NotificationSinkFunc) Deliver(ctx context.Context, event models.SubscriptionEvent) error {
	return f(ctx, event)
}

type eventQueue interface {
	TryEnqueue(job jobs.Job) error
}

// NotificationService hands subscription events to a background queue.
type NotificationService struct {
	queue   eventQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the service. Start the queue returned by NewNotificationQueue before use.
func NewNotificationService(queue eventQueue, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, metrics: metrics, logger: logger}
}

// NewNotificationQueue builds the worker pool that drains events into sink.
func NewNotificationQueue(sink NotificationSink, metrics *MetricsService, cfg jobs.QueueConfig) *jobs.Queue {
	if sink == nil {
		sink = LogSink(cfg.Logger)
	}
	return jobs.NewQueue("notifications", func(ctx context.Context, job jobs.Job) error {
		event, ok := job.Payload.(models.SubscriptionEvent)
		if !ok {
			metrics.RecordNotification("invalid")
			return nil
		}
		if err := sink.Deliver(ctx, event); err != nil {
			metrics.RecordNotification("retry")
			return err
		}
		metrics.RecordNotification("delivered")
		return nil
	}, cfg)
}

// LogSink writes events to the structured log.
func LogSink(logger *zap.Logger) NotificationSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NotificationSinkFunc(func(ctx context.Context, event models.SubscriptionEvent) error {
		logger.Info("subscription event",
			zap.String("enrollment_id", event.EnrollmentID),
			zap.String("payer_id", event.PayerID),
			zap.String("action", event.Action),
			zap.String("from_state", string(event.FromState)),
			zap.String("to_state", string(event.ToState)),
			zap.String("actor_id", event.ActorID),
		)
		return nil
	})
}

// Notify enqueues the event without blocking. A full or stopped queue drops it.
func (s *NotificationService) Notify(ctx context.Context, event models.SubscriptionEvent) {
	if s == nil || s.queue == nil {
		return
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("%s:%s:%d", event.EnrollmentID, event.Action, event.OccurredAt.UnixNano()),
		Type:    "subscription." + event.Action,
		Payload: event,
	}
	if err := s.queue.TryEnqueue(job); err != nil {
		outcome := "dropped"
		if !errors.Is(err, jobs.ErrQueueFull) {
			outcome = "unavailable"
		}
		s.metrics.RecordNotification(outcome)
		s.logger.Warn("subscription event not queued",
			zap.String("enrollment_id", event.EnrollmentID),
			zap.String("action", event.Action),
			zap.Error(err),
		)
		return
	}
	s.metrics.RecordNotification("queued")
}
