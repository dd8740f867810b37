package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

var tagColumns = []string{"id", "name", "value", "usage", "color", "priority"}

// TagStorage implements the TagStorage interface for PostgreSQL
type TagStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewTagStorage creates a new TagStorage instance
func NewTagStorage(db *DB, logger arbor.ILogger) interfaces.TagStorage {
	return &TagStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TagStorage) CreateTag(ctx context.Context, tag *models.Tag) error {
	sqlQuery, args, err := s.db.qb.Insert("tags").
		Columns("name", "value", "usage", "color", "priority").
		Values(tag.Name, tag.Value, string(tag.Usage), tag.Color, tag.Priority).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := s.db.conn.QueryRowContext(ctx, sqlQuery, args...).Scan(&tag.ID); err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

func (s *TagStorage) GetTag(ctx context.Context, id uint64) (*models.Tag, error) {
	sqlQuery, args, err := s.db.qb.Select(tagColumns...).From("tags").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	tag, err := scanTag(s.db.conn.QueryRowContext(ctx, sqlQuery, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return tag, nil
}

func (s *TagStorage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	sqlQuery, args, err := s.db.qb.Select(tagColumns...).From("tags").OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.conn.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *TagStorage) UpdateTag(ctx context.Context, tag *models.Tag) error {
	sqlQuery, args, err := s.db.qb.Update("tags").
		Set("name", tag.Name).
		Set("value", tag.Value).
		Set("usage", string(tag.Usage)).
		Set("color", tag.Color).
		Set("priority", tag.Priority).
		Where(squirrel.Eq{"id": tag.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	return execAffectingOne(ctx, s.db, sqlQuery, args, interfaces.ErrTagNotFound, "update tag")
}

func (s *TagStorage) DeleteTag(ctx context.Context, id uint64) error {
	sqlQuery, args, err := s.db.qb.Delete("tags").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	return execAffectingOne(ctx, s.db, sqlQuery, args, interfaces.ErrTagNotFound, "delete tag")
}

func (s *TagStorage) CountTags(ctx context.Context) (int, error) {
	return count(ctx, s.db, "tags")
}

func scanTag(row rowScanner) (*models.Tag, error) {
	var (
		tag   models.Tag
		usage string
	)
	if err := row.Scan(&tag.ID, &tag.Name, &tag.Value, &usage, &tag.Color, &tag.Priority); err != nil {
		return nil, err
	}
	tag.Usage = models.TagUsage(usage)
	return &tag, nil
}

// execAffectingOne runs a write and maps zero affected rows to notFound
func execAffectingOne(ctx context.Context, db *DB, sqlQuery string, args []interface{}, notFound error, action string) error {
	result, err := db.conn.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return notFound
	}
	return nil
}

func count(ctx context.Context, db *DB, table string) (int, error) {
	sqlQuery, args, err := db.qb.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var n int
	if err := db.conn.QueryRowContext(ctx, sqlQuery, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
