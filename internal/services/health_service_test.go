package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	hs := NewHealthServiceWithLogger("1.2.3", newTestLogger())

	status := hs.HealthCheck(context.Background())
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestLivenessCheck(t *testing.T) {
	hs := NewHealthServiceWithLogger("1.2.3", newTestLogger())

	status := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", status.Status)
	require.NotNil(t, status.Runtime)
	assert.Contains(t, status.Runtime, "uptime")
	assert.Contains(t, status.Runtime, "go_version")
	assert.Contains(t, status.Runtime, "goroutines")
}

func TestReadinessCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("not ready before the universe loads", func(t *testing.T) {
		svc, paths := newTestService(t, relaxedHub())
		hs := NewHealthService("test", paths, svc, nil, newTestLogger())

		status := hs.ReadinessCheck(ctx)
		assert.Equal(t, "not_ready", status.Status)

		universe, ok := status.Services["universe"].(ServiceHealth)
		require.True(t, ok)
		assert.Equal(t, "not_ready", universe.Status)

		data, ok := status.Services["data"].(ServiceHealth)
		require.True(t, ok)
		assert.Equal(t, "ready", data.Status)

		jobs, ok := status.Services["jobs"].(ServiceHealth)
		require.True(t, ok)
		assert.Equal(t, "ready", jobs.Status)
	})

	t.Run("ready once the universe is loaded", func(t *testing.T) {
		svc, paths := newTestService(t, relaxedHub())
		_, err := svc.LoadUniverse(ctx)
		require.NoError(t, err)

		hs := NewHealthService("test", paths, svc, nil, newTestLogger())
		status := hs.ReadinessCheck(ctx)
		assert.Equal(t, "ready", status.Status)

		universe, ok := status.Services["universe"].(ServiceHealth)
		require.True(t, ok)
		assert.Equal(t, "ready", universe.Status)
		assert.Contains(t, universe.Message, "4 instruments")
	})

	t.Run("not ready without dependencies", func(t *testing.T) {
		hs := NewHealthServiceWithLogger("test", newTestLogger())

		status := hs.ReadinessCheck(ctx)
		assert.Equal(t, "not_ready", status.Status)

		data, ok := status.Services["data"].(ServiceHealth)
		require.True(t, ok)
		assert.Equal(t, "not_ready", data.Status)
	})
}

func TestVersionInfo(t *testing.T) {
	t.Run("with build info", func(t *testing.T) {
		hs := NewHealthServiceWithBuildInfo("2.0.0", "2026-08-25T10:00:00Z", "abc123",
			nil, nil, nil, newTestLogger())

		info := hs.Version()
		assert.Equal(t, "2.0.0", info["version"])
		assert.Equal(t, "2026-08-25T10:00:00Z", info["build_time"])
		assert.Equal(t, "abc123", info["build_id"])
		assert.Contains(t, info, "go_version")
		assert.Contains(t, info, "os")
		assert.Contains(t, info, "arch")
		assert.Contains(t, info, "start_time")
	})

	t.Run("without build info", func(t *testing.T) {
		hs := NewHealthServiceWithLogger("2.0.0", newTestLogger())

		info := hs.Version()
		assert.NotContains(t, info, "build_time")
		assert.NotContains(t, info, "build_id")
	})
}

func TestSystemStats(t *testing.T) {
	svc, paths := newTestService(t, relaxedHub())
	hs := NewHealthService("test", paths, svc, nil, newTestLogger())

	stats, err := hs.SystemStats(context.Background())
	require.NoError(t, err)

	// Four price files plus the distributions file live under data/.
	assert.GreaterOrEqual(t, stats.TotalFiles, 5)
	assert.Positive(t, stats.TotalSizeBytes)
	assert.Zero(t, stats.ActiveJobs)
	assert.Zero(t, stats.WebSocketClients)
	assert.NotEmpty(t, stats.GoVersion)
	assert.NotEmpty(t, stats.OS)
	assert.NotEmpty(t, stats.Arch)
}

func TestGetDetailedHealth(t *testing.T) {
	ctx := context.Background()
	svc, paths := newTestService(t, relaxedHub())
	hs := NewHealthService("test", paths, svc, nil, newTestLogger())

	t.Run("before load", func(t *testing.T) {
		detailed := hs.GetDetailedHealth(ctx)
		assert.Contains(t, detailed, "health")
		assert.Contains(t, detailed, "readiness")
		assert.Contains(t, detailed, "liveness")
		assert.Contains(t, detailed, "stats")
		assert.NotContains(t, detailed, "universe")
	})

	t.Run("after load", func(t *testing.T) {
		_, err := svc.LoadUniverse(ctx)
		require.NoError(t, err)

		detailed := hs.GetDetailedHealth(ctx)
		assert.Contains(t, detailed, "universe")
	})
}
