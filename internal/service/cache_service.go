package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheService fronts the provider subscription reads with a short-lived cache.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// SubscriptionKey is the cache key of an enrollment's provider subscription details.
func SubscriptionKey(enrollmentID string) string {
	return fmt.Sprintf("billing:subscription:%s", enrollmentID)
}

// GetSubscription returns cached provider details; ok is false on a miss or error.
func (s *CacheService) GetSubscription(ctx context.Context, enrollmentID string) (*models.SubscriptionDetails, bool) {
	if !s.Enabled() {
		return nil, false
	}
	start := time.Now()
	var details models.SubscriptionDetails
	err := s.repo.Get(ctx, SubscriptionKey(enrollmentID), &details)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("enrollment_id", enrollmentID), zap.Error(err))
		}
		return nil, false
	}
	return &details, true
}

// SetSubscription stores provider details. Failures are logged and swallowed.
func (s *CacheService) SetSubscription(ctx context.Context, enrollmentID string, details *models.SubscriptionDetails) {
	if !s.Enabled() || details == nil {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, SubscriptionKey(enrollmentID), details, s.defaultTTL)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}

// InvalidateSubscription drops cached provider details after a committed mutation.
func (s *CacheService) InvalidateSubscription(ctx context.Context, enrollmentID string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.Delete(ctx, SubscriptionKey(enrollmentID)); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}
