package repository_test

import (
	"context"
	"testing"
	"time"

	"istory-server/internal/model"
	"istory-server/internal/repository"
	"istory-server/migrations"
	"istory-server/pkg/migration"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode.")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: ".",
		MigrationsFS:   migrations.FS,
	}, pool, zap.NewNop())
	require.NoError(t, migrator.Up())

	return pool
}

func TestMetadataUpsertIdempotence(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := repository.NewPgMetadataRepository(pool, zap.NewNop())

	insight := "first pass"
	fields := model.SanitizedMetadata{
		Themes:            []string{"loss", "family"},
		EmotionalTone:     model.ToneReflective,
		LifeDomain:        model.DomainFamily,
		IntensityScore:    0.7,
		SignificanceScore: 0.9,
		PeopleMentioned:   []string{"mira"},
		PlacesMentioned:   []string{},
		TimeReferences:    []string{"yesterday"},
		BriefInsight:      &insight,
	}

	first, err := repo.Upsert(ctx, "story-1", fields)
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisCompleted, first.AnalysisStatus)
	assert.False(t, first.IsCanonical)

	// The author flags the story, then a re-analysis runs. The flag
	// must survive.
	_, err = repo.SetCanonical(ctx, "story-1", true)
	require.NoError(t, err)

	fields.IntensityScore = 0.3
	second, err := repo.Upsert(ctx, "story-1", fields)
	require.NoError(t, err)
	assert.True(t, second.IsCanonical)
	assert.Equal(t, 0.3, second.IntensityScore)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt) || second.UpdatedAt.Equal(first.UpdatedAt))

	// Still exactly one row.
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM story_metadata WHERE story_id = $1`, "story-1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSetCanonicalCreatesMinimalRow(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := repository.NewPgMetadataRepository(pool, zap.NewNop())

	meta, err := repo.SetCanonical(ctx, "never-analyzed", true)
	require.NoError(t, err)
	assert.True(t, meta.IsCanonical)
	assert.Equal(t, model.AnalysisPending, meta.AnalysisStatus)
	assert.Equal(t, model.ToneNeutral, meta.EmotionalTone)
	assert.Equal(t, 0.5, meta.IntensityScore)
}

func TestMarkProcessingLifecycle(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := repository.NewPgMetadataRepository(pool, zap.NewNop())

	// First analysis of a fresh story: readers see the in-flight
	// status before any metadata has been stored.
	require.NoError(t, repo.MarkProcessing(ctx, "story-proc"))
	meta, err := repo.GetByStoryID(ctx, "story-proc")
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisProcessing, meta.AnalysisStatus)

	_, err = repo.Upsert(ctx, "story-proc", model.SanitizedMetadata{
		Themes:          []string{},
		EmotionalTone:   model.ToneNeutral,
		LifeDomain:      model.DomainGeneral,
		PeopleMentioned: []string{},
		PlacesMentioned: []string{},
		TimeReferences:  []string{},
	})
	require.NoError(t, err)

	// Re-analysis flips the completed row back to processing without
	// touching the stored fields.
	require.NoError(t, repo.MarkProcessing(ctx, "story-proc"))
	meta, err = repo.GetByStoryID(ctx, "story-proc")
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisProcessing, meta.AnalysisStatus)
	assert.Equal(t, model.ToneNeutral, meta.EmotionalTone)
}

func TestPendingLogUniqueness(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := repository.NewPgVerificationRepository(pool, zap.NewNop())

	_, err := repo.CreatePending(ctx, "story-2", "run-a")
	require.NoError(t, err)

	// Second pending dispatch for the same story hits the partial
	// unique index.
	_, err = repo.CreatePending(ctx, "story-2", "run-b")
	assert.ErrorIs(t, err, repository.ErrDispatchPending)

	// Completing frees the slot for a fresh dispatch.
	require.NoError(t, repo.CompletePending(ctx, "story-2"))
	_, err = repo.CreatePending(ctx, "story-2", "run-c")
	assert.NoError(t, err)
}

func TestExpireOlderThan(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := repository.NewPgVerificationRepository(pool, zap.NewNop())

	_, err := repo.CreatePending(ctx, "story-3", "run-x")
	require.NoError(t, err)

	// Nothing is older than a cutoff in the past.
	n, err := repo.ExpireOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	// A future cutoff sweeps the fresh row.
	n, err = repo.ExpireOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	pending, err := repo.HasPending(ctx, "story-3")
	require.NoError(t, err)
	assert.False(t, pending)
}
