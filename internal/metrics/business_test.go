package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertBizMetricLine checks that the Prometheus output contains a business metric
// matching the given name, partial label pattern, and value. Uses regex to handle
// extra OTel scope labels injected by the Prometheus exporter.
func assertBizMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func TestNewBusinessMetrics(t *testing.T) {
	t.Run("Success_CreateBusinessMetrics", func(t *testing.T) {
		provider, err := NewProvider("test_app")
		require.NoError(t, err)

		businessMetrics, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")

		require.NoError(t, err)
		assert.NotNil(t, businessMetrics)
	})
}

func TestBusinessMetrics_RecordOperation(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordSuccessfulOperation", func(t *testing.T) {
		// Should not panic
		bm.RecordOperation(context.Background(), "profile", "profile_create", "success")
	})

	t.Run("Success_RecordFailedOperation", func(t *testing.T) {
		// Should not panic
		bm.RecordOperation(context.Background(), "profile", "profile_create", "error")
	})

	t.Run("Success_RecordMultipleDomains", func(t *testing.T) {
		bm.RecordOperation(context.Background(), "profile", "profile_create", "success")
		bm.RecordOperation(context.Background(), "resolver", "envelope_resolve", "success")
		bm.RecordOperation(context.Background(), "rotation", "record_migrate", "error")
	})
}

func TestBusinessMetrics_RecordDuration(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordSuccessfulDuration", func(t *testing.T) {
		// Should not panic
		bm.RecordDuration(context.Background(), "profile", "profile_create", 123*time.Millisecond, "success")
	})

	t.Run("Success_RecordFailedDuration", func(t *testing.T) {
		// Should not panic
		bm.RecordDuration(context.Background(), "profile", "profile_create", 456*time.Millisecond, "error")
	})
}

func TestBusinessMetrics_RecordCacheAccess(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordHitAndMiss", func(t *testing.T) {
		// Should not panic
		bm.RecordCacheAccess(context.Background(), true)
		bm.RecordCacheAccess(context.Background(), false)
	})
}

func TestNewNoOpBusinessMetrics(t *testing.T) {
	noOpMetrics := NewNoOpBusinessMetrics()

	assert.NotNil(t, noOpMetrics)
	assert.IsType(t, &NoOpBusinessMetrics{}, noOpMetrics)

	t.Run("NoOp_RecordOperationDoesNotPanic", func(t *testing.T) {
		// Should not panic or do anything
		noOpMetrics.RecordOperation(context.Background(), "profile", "profile_create", "success")
		noOpMetrics.RecordOperation(context.Background(), "resolver", "envelope_resolve", "error")
	})

	t.Run("NoOp_RecordDurationDoesNotPanic", func(t *testing.T) {
		// Should not panic or do anything
		noOpMetrics.RecordDuration(
			context.Background(),
			"profile",
			"profile_create",
			100*time.Millisecond,
			"success",
		)
	})

	t.Run("NoOp_RecordCacheAccessDoesNotPanic", func(t *testing.T) {
		noOpMetrics.RecordCacheAccess(context.Background(), true)
	})
}

func TestBusinessMetrics_Integration(t *testing.T) {
	provider, err := NewProvider("integration_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "integration_test")
	require.NoError(t, err)

	ctx := context.Background()

	// Record operation counts
	bm.RecordOperation(ctx, "profile", "profile_create", "success")
	bm.RecordOperation(ctx, "profile", "profile_create", "success")
	bm.RecordOperation(ctx, "profile", "profile_create", "error")
	bm.RecordOperation(ctx, "resolver", "envelope_resolve", "success")
	bm.RecordOperation(ctx, "rotation", "record_migrate", "success")

	// Record operation durations
	bm.RecordDuration(ctx, "profile", "profile_create", 50*time.Millisecond, "success")
	bm.RecordDuration(ctx, "profile", "profile_create", 60*time.Millisecond, "success")
	bm.RecordDuration(ctx, "resolver", "envelope_resolve", 10*time.Millisecond, "success")

	// Record cache lookups
	bm.RecordCacheAccess(ctx, true)
	bm.RecordCacheAccess(ctx, true)
	bm.RecordCacheAccess(ctx, false)

	// Verify metrics in Prometheus registry
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	provider.Handler().ServeHTTP(w, req)

	output := w.Body.String()

	// Check operation counts
	assertBizMetricLine(
		t,
		output,
		`integration_test_operations_total`,
		`domain="profile".*operation="profile_create".*status="success"`,
		`2`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operations_total`,
		`domain="profile".*operation="profile_create".*status="error"`,
		`1`,
	)

	// Check durations (existence)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operation_duration_seconds_count`,
		`domain="profile".*operation="profile_create".*status="success"`,
		`2`,
	)

	// Check cache lookups
	assertBizMetricLine(
		t,
		output,
		`integration_test_resolver_cache_total`,
		`result="hit"`,
		`2`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_resolver_cache_total`,
		`result="miss"`,
		`1`,
	)
}
