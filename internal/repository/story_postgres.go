package repository

import (
	"context"
	"errors"
	"fmt"

	"istory-server/internal/model"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const getStoryForVerificationQuery = `
	SELECT id, author_wallet, content, created_at
	FROM stories WHERE id = $1`

type pgStoryRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ StoryRepository = (*pgStoryRepository)(nil)

func NewPgStoryRepository(db *pgxpool.Pool, logger *zap.Logger) StoryRepository {
	return &pgStoryRepository{db: db, logger: logger.Named("PgStoryRepo")}
}

func (r *pgStoryRepository) GetForVerification(ctx context.Context, storyID string) (*model.Story, error) {
	var story model.Story
	err := pgxscan.Get(ctx, r.db, &story, getStoryForVerificationQuery, storyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if schemaMissing(err) {
			return nil, ErrSchemaMissing
		}
		return nil, fmt.Errorf("failed to get story %s: %w", storyID, err)
	}
	return &story, nil
}
