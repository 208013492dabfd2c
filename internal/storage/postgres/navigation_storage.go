package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// NavigationStorage implements Postgres persistence for navigation nodes
type NavigationStorage struct {
	db     *sqlx.DB
	logger arbor.ILogger
}

// NewNavigationStorage creates a new navigation storage instance
func NewNavigationStorage(db *sqlx.DB, logger arbor.ILogger) *NavigationStorage {
	return &NavigationStorage{db: db, logger: logger}
}

const upsertNavigationSQL = `
	INSERT INTO navigation_nodes (id, title, source_url, parent_id, last_scraped_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (source_url) DO UPDATE SET
		title = EXCLUDED.title,
		parent_id = EXCLUDED.parent_id,
		last_scraped_at = EXCLUDED.last_scraped_at
	RETURNING id, title, source_url, parent_id, last_scraped_at`

// Upsert inserts or updates a node keyed on source_url and returns the
// stored row with last_scraped_at refreshed.
func (s *NavigationStorage) Upsert(ctx context.Context, node *models.NavigationNode) (*models.NavigationNode, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}

	id := node.ID
	if id == "" {
		id = common.NewID()
	}

	var stored models.NavigationNode
	err := s.db.GetContext(ctx, &stored, upsertNavigationSQL,
		id, node.Title, node.SourceURL, node.ParentID, time.Now().UTC())
	if err != nil {
		return nil, models.NewDatabaseError("navigation.upsert", err)
	}

	s.logger.Debug().
		Str("id", stored.ID).
		Str("source_url", stored.SourceURL).
		Msg("Navigation node upserted")
	return &stored, nil
}

// GetByID fetches a node by primary key.
func (s *NavigationStorage) GetByID(ctx context.Context, id string) (*models.NavigationNode, error) {
	var node models.NavigationNode
	err := s.db.GetContext(ctx, &node,
		`SELECT id, title, source_url, parent_id, last_scraped_at
		 FROM navigation_nodes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("navigation node", id)
	}
	if err != nil {
		return nil, models.NewDatabaseError("navigation.get_by_id", err)
	}
	return &node, nil
}

// GetBySourceURL fetches a node by its unique source URL.
func (s *NavigationStorage) GetBySourceURL(ctx context.Context, sourceURL string) (*models.NavigationNode, error) {
	var node models.NavigationNode
	err := s.db.GetContext(ctx, &node,
		`SELECT id, title, source_url, parent_id, last_scraped_at
		 FROM navigation_nodes WHERE source_url = $1`, sourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("navigation node", sourceURL)
	}
	if err != nil {
		return nil, models.NewDatabaseError("navigation.get_by_source_url", err)
	}
	return &node, nil
}

// List returns all nodes ordered by title for deterministic tree assembly.
func (s *NavigationStorage) List(ctx context.Context) ([]*models.NavigationNode, error) {
	nodes := []*models.NavigationNode{}
	err := s.db.SelectContext(ctx, &nodes,
		`SELECT id, title, source_url, parent_id, last_scraped_at
		 FROM navigation_nodes ORDER BY title, id`)
	if err != nil {
		return nil, models.NewDatabaseError("navigation.list", err)
	}
	return nodes, nil
}
