package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/swebench-aug/strengthen/pkg/history"
	"github.com/swebench-aug/strengthen/pkg/models"
)

// newTestClient spins up a disposable Postgres container, applies embedded
// migrations through NewClient, and registers cleanup.
func newTestClient(t *testing.T) *history.Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("strengthen_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pgContainer)
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := history.NewClient(ctx, history.Config{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Database:        "strengthen_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestRecordPhaseOutcomeAndSummary(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.RecordRun(ctx, models.RunRecord{
		RunID:     "run-1",
		Benchmark: "swebench-lite",
		Model:     "gpt-test",
		StartedAt: time.Now(),
	}))

	require.NoError(t, client.RecordPhaseOutcome(ctx, "run-1", "instance-a", "test_gen.evaluate", models.PhaseOutcome{
		Status:         "ok",
		CoverageRate:   0.82,
		DurationMillis: 1200,
	}))
	require.NoError(t, client.RecordPhaseOutcome(ctx, "run-1", "instance-b", "test_gen.evaluate", models.PhaseOutcome{
		Status: "error",
		Error:  "container timeout",
	}))

	// Upsert over the same key must replace, not duplicate.
	require.NoError(t, client.RecordPhaseOutcome(ctx, "run-1", "instance-a", "test_gen.evaluate", models.PhaseOutcome{
		Status:       "ok",
		CoverageRate: 0.91,
	}))

	summary, err := client.Summary(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "run-1", summary.Run.RunID)
	require.Equal(t, 2, summary.InstanceCount)
	require.Equal(t, 1, summary.PhaseCounts["test_gen.evaluate"].Passed)
	require.Equal(t, 1, summary.PhaseCounts["test_gen.evaluate"].Errored)
}

func TestListRunsFiltersAndOrders(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	require.NoError(t, client.RecordRun(ctx, models.RunRecord{RunID: "run-old", Benchmark: "bench-a", Model: "m1", StartedAt: older}))
	require.NoError(t, client.RecordRun(ctx, models.RunRecord{RunID: "run-new", Benchmark: "bench-a", Model: "m1", StartedAt: newer}))
	require.NoError(t, client.RecordRun(ctx, models.RunRecord{RunID: "run-other", Benchmark: "bench-b", Model: "m2", StartedAt: newer}))

	runs, err := client.ListRuns(ctx, models.RunFilters{Benchmark: "bench-a"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-new", runs[0].RunID)
	require.Equal(t, "run-old", runs[1].RunID)

	limited, err := client.ListRuns(ctx, models.RunFilters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestSummaryUnknownRun(t *testing.T) {
	client := newTestClient(t)
	_, err := client.Summary(context.Background(), "does-not-exist")
	require.Error(t, err)
}
