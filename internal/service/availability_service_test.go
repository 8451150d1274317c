package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAvailabilityRepo struct {
	flags    map[string]bool
	getCalls int
	setCalls int
}

func (m *mockAvailabilityRepo) Get(ctx context.Context, facultyID string) (bool, error) {
	m.getCalls++
	available, ok := m.flags[facultyID]
	if !ok {
		return true, nil
	}
	return available, nil
}

func (m *mockAvailabilityRepo) GetMany(ctx context.Context, facultyIDs []string) (map[string]bool, error) {
	m.getCalls++
	result := make(map[string]bool, len(facultyIDs))
	for _, id := range facultyIDs {
		if available, ok := m.flags[id]; ok {
			result[id] = available
		} else {
			result[id] = true
		}
	}
	return result, nil
}

func (m *mockAvailabilityRepo) Set(ctx context.Context, facultyID string, available bool) error {
	m.setCalls++
	if m.flags == nil {
		m.flags = make(map[string]bool)
	}
	m.flags[facultyID] = available
	return nil
}

func TestAvailabilityServiceCachesReads(t *testing.T) {
	repo := &mockAvailabilityRepo{flags: map[string]bool{"faculty-1": false}}
	svc := NewAvailabilityService(repo, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	available, err := svc.Get(ctx, "faculty-1")
	require.NoError(t, err)
	assert.False(t, available)
	assert.Equal(t, 1, repo.getCalls)

	available, err = svc.Get(ctx, "faculty-1")
	require.NoError(t, err)
	assert.False(t, available)
	assert.Equal(t, 1, repo.getCalls)
}

func TestAvailabilityServiceDefaultsToAvailable(t *testing.T) {
	repo := &mockAvailabilityRepo{}
	svc := NewAvailabilityService(repo, nil, time.Minute, zap.NewNop())

	available, err := svc.Get(context.Background(), "faculty-unknown")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestAvailabilityServiceSetInvalidatesCaches(t *testing.T) {
	repo := &mockAvailabilityRepo{flags: map[string]bool{"faculty-1": true}}
	inv := &mockInvalidator{}
	svc := NewAvailabilityService(repo, inv, time.Minute, zap.NewNop())
	ctx := context.Background()

	available, err := svc.Get(ctx, "faculty-1")
	require.NoError(t, err)
	assert.True(t, available)

	require.NoError(t, svc.Set(ctx, "faculty-1", false))
	assert.Contains(t, inv.patterns, studentSlotCachePattern)

	// The local entry was dropped, so the next read sees the new flag.
	available, err = svc.Get(ctx, "faculty-1")
	require.NoError(t, err)
	assert.False(t, available)
	assert.Equal(t, 2, repo.getCalls)
}

func TestAvailabilityServiceGetManyMixesCacheAndStore(t *testing.T) {
	repo := &mockAvailabilityRepo{flags: map[string]bool{"faculty-1": false, "faculty-2": true}}
	svc := NewAvailabilityService(repo, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Get(ctx, "faculty-1")
	require.NoError(t, err)

	flags, err := svc.GetMany(ctx, []string{"faculty-1", "faculty-2"})
	require.NoError(t, err)
	assert.False(t, flags["faculty-1"])
	assert.True(t, flags["faculty-2"])
	assert.Equal(t, 2, repo.getCalls)
}
