package service

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	appErrors "github.com/campuskit/scheduler-api/pkg/errors"
)

type availabilityRepository interface {
	Get(ctx context.Context, facultyID string) (bool, error)
	GetMany(ctx context.Context, facultyIDs []string) (map[string]bool, error)
	Set(ctx context.Context, facultyID string, available bool) error
}

// AvailabilityService owns the per-faculty booking gate. Reads go through a
// short-lived in-process cache; the flag is consulted on every student slot
// listing and every claim, so it is the hottest read in the system.
type AvailabilityService struct {
	repo   availabilityRepository
	cache  *gocache.Cache
	slots  slotCacheInvalidator
	logger *zap.Logger
}

// NewAvailabilityService constructs AvailabilityService with the given local
// cache TTL.
func NewAvailabilityService(repo availabilityRepository, slots slotCacheInvalidator, ttl time.Duration, logger *zap.Logger) *AvailabilityService {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		repo:   repo,
		cache:  gocache.New(ttl, 2*ttl),
		slots:  slots,
		logger: logger,
	}
}

// Get returns whether the faculty currently accepts bookings. Faculty without
// a stored flag default to available.
func (s *AvailabilityService) Get(ctx context.Context, facultyID string) (bool, error) {
	if cached, ok := s.cache.Get(availabilityKey(facultyID)); ok {
		return cached.(bool), nil
	}
	available, err := s.repo.Get(ctx, facultyID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read availability")
	}
	s.cache.SetDefault(availabilityKey(facultyID), available)
	return available, nil
}

// GetMany resolves the gate for several faculty in one read, serving what it
// can from cache.
func (s *AvailabilityService) GetMany(ctx context.Context, facultyIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(facultyIDs))
	var misses []string
	for _, id := range facultyIDs {
		if cached, ok := s.cache.Get(availabilityKey(id)); ok {
			result[id] = cached.(bool)
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) > 0 {
		fetched, err := s.repo.GetMany(ctx, misses)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read availability")
		}
		for id, available := range fetched {
			result[id] = available
			s.cache.SetDefault(availabilityKey(id), available)
		}
	}
	return result, nil
}

// Set persists the faculty's gate flag and drops the caches that depend on it.
func (s *AvailabilityService) Set(ctx context.Context, facultyID string, available bool) error {
	if err := s.repo.Set(ctx, facultyID, available); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update availability")
	}
	s.cache.Delete(availabilityKey(facultyID))
	if s.slots != nil {
		if err := s.slots.DeleteByPattern(ctx, studentSlotCachePattern); err != nil {
			s.logger.Warn("slot cache invalidation failed", zap.Error(err))
		}
	}
	s.logger.Info("availability updated",
		zap.String("faculty_id", facultyID),
		zap.Bool("available", available))
	return nil
}

func availabilityKey(facultyID string) string {
	return fmt.Sprintf("availability:%s", facultyID)
}
