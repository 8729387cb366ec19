//go:build integration

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresRegistry(t *testing.T) {
	ctx := context.Background()

	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("readmit"),
		postgres.WithUsername("readmit"),
		postgres.WithPassword("readmit"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveTrainingRun(ctx, testTrainingRun("pg-a", base)))
	require.NoError(t, s.SaveTrainingRun(ctx, testTrainingRun("pg-b", base.Add(time.Minute))))

	list, err := s.ListTrainingRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "pg-b", list[0].RunID)

	require.NoError(t, s.SaveScoringRun(ctx, &ScoringRun{RunID: "pg-s", ModelPath: "m", Input: "i", Output: "o", Rows: 3}))
	scores, err := s.ListScoringRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, scores, 1)

	// reopening applies no new migrations
	s2, err := Open(ctx, dsn)
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}
