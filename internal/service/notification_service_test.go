package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-billing-api/internal/models"
	"github.com/noah-isme/course-billing-api/pkg/jobs"
)

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func sampleEvent() models.SubscriptionEvent {
	return models.SubscriptionEvent{
		EnrollmentID: "enr-1",
		Action:       "cancel",
		FromState:    models.StateActive,
		ToState:      models.StatePendingCancellation,
		ActorID:      "admin-1",
		OccurredAt:   testNow,
	}
}

func TestNotificationServiceQueuesEvent(t *testing.T) {
	queue := &queueStub{}
	metrics := NewMetricsService()
	svc := NewNotificationService(queue, metrics, nil)

	svc.Notify(context.Background(), sampleEvent())

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "subscription.cancel", queue.jobs[0].Type)
	assert.Equal(t, sampleEvent(), queue.jobs[0].Payload)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notifications.WithLabelValues("queued")))
}

func TestNotificationServiceDropsWhenFull(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewNotificationService(&queueStub{err: jobs.ErrQueueFull}, metrics, nil)

	svc.Notify(context.Background(), sampleEvent())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notifications.WithLabelValues("dropped")))
}

func TestNotificationQueueDeliversWithRetry(t *testing.T) {
	var (
		mu        sync.Mutex
		attempts  int
		delivered []models.SubscriptionEvent
	)
	sink := NotificationSinkFunc(func(ctx context.Context, event models.SubscriptionEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("smtp unavailable")
		}
		delivered = append(delivered, event)
		return nil
	})
	metrics := NewMetricsService()
	queue := NewNotificationQueue(sink, metrics, jobs.QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond})
	queue.Start(context.Background())
	defer queue.Stop()

	NewNotificationService(queue, metrics, nil).Notify(context.Background(), sampleEvent())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notifications.WithLabelValues("retry")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notifications.WithLabelValues("delivered")))
}

func TestInstrumentedProviderRecordsOutcome(t *testing.T) {
	inner := newProviderStub()
	inner.errs["pause"] = errors.New("rate limited")
	metrics := NewMetricsService()
	provider := NewInstrumentedProvider(inner, metrics, nil)

	require.NoError(t, provider.UndoCancellation(context.Background(), "sub_1"))
	require.Error(t, provider.PauseCollection(context.Background(), "sub_1"))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.providerCalls.WithLabelValues("undo_cancellation", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.providerCalls.WithLabelValues("pause_collection", "error")))
	assert.Equal(t, []string{"undo", "pause"}, inner.calls)
}
