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

var strategyColumns = []string{
	"id", "name", "format", "merge_output_format", "embed_thumbnail", "extract_audio",
	"audio_format", "priority", "is_enabled", "is_default",
}

// StrategyStorage implements the StrategyStorage interface for PostgreSQL
type StrategyStorage struct {
	db     *DB
	logger arbor.ILogger
}

// NewStrategyStorage creates a new StrategyStorage instance
func NewStrategyStorage(db *DB, logger arbor.ILogger) interfaces.StrategyStorage {
	return &StrategyStorage{
		db:     db,
		logger: logger,
	}
}

func (s *StrategyStorage) CreateStrategy(ctx context.Context, strategy *models.OptionStrategy) error {
	sqlQuery, args, err := s.db.qb.Insert("strategies").
		Columns(strategyColumns[1:]...).
		Values(
			strategy.Name, strategy.Format, strategy.MergeOutputFormat, strategy.EmbedThumbnail,
			strategy.ExtractAudio, strategy.AudioFormat, strategy.Priority, strategy.IsEnabled, strategy.IsDefault,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if err := s.db.conn.QueryRowContext(ctx, sqlQuery, args...).Scan(&strategy.ID); err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}
	return nil
}

func (s *StrategyStorage) GetStrategy(ctx context.Context, id uint64) (*models.OptionStrategy, error) {
	sqlQuery, args, err := s.db.qb.Select(strategyColumns...).From("strategies").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	strategy, err := scanStrategy(s.db.conn.QueryRowContext(ctx, sqlQuery, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrStrategyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}
	return strategy, nil
}

func (s *StrategyStorage) ListStrategies(ctx context.Context) ([]*models.OptionStrategy, error) {
	return s.list(ctx, nil)
}

func (s *StrategyStorage) ListEnabled(ctx context.Context) ([]*models.OptionStrategy, error) {
	return s.list(ctx, squirrel.Eq{"is_enabled": true})
}

func (s *StrategyStorage) UpdateStrategy(ctx context.Context, strategy *models.OptionStrategy) error {
	sqlQuery, args, err := s.db.qb.Update("strategies").
		Set("name", strategy.Name).
		Set("format", strategy.Format).
		Set("merge_output_format", strategy.MergeOutputFormat).
		Set("embed_thumbnail", strategy.EmbedThumbnail).
		Set("extract_audio", strategy.ExtractAudio).
		Set("audio_format", strategy.AudioFormat).
		Set("priority", strategy.Priority).
		Set("is_enabled", strategy.IsEnabled).
		Set("is_default", strategy.IsDefault).
		Where(squirrel.Eq{"id": strategy.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	return execAffectingOne(ctx, s.db, sqlQuery, args, interfaces.ErrStrategyNotFound, "update strategy")
}

func (s *StrategyStorage) DeleteStrategy(ctx context.Context, id uint64) error {
	sqlQuery, args, err := s.db.qb.Delete("strategies").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	return execAffectingOne(ctx, s.db, sqlQuery, args, interfaces.ErrStrategyNotFound, "delete strategy")
}

func (s *StrategyStorage) UpdatePriorities(ctx context.Context, priorities map[uint64]int) error {
	return s.db.Serializable(ctx, func(tx *sql.Tx) error {
		for id, priority := range priorities {
			sqlQuery, args, err := s.db.qb.Update("strategies").
				Set("priority", priority).
				Where(squirrel.Eq{"id": id}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}

			result, err := tx.ExecContext(ctx, sqlQuery, args...)
			if err != nil {
				return err
			}
			if rows, _ := result.RowsAffected(); rows == 0 {
				return fmt.Errorf("%w: %d", interfaces.ErrStrategyNotFound, id)
			}
		}
		return nil
	})
}

func (s *StrategyStorage) CountStrategies(ctx context.Context) (int, error) {
	return count(ctx, s.db, "strategies")
}

func (s *StrategyStorage) list(ctx context.Context, where squirrel.Sqlizer) ([]*models.OptionStrategy, error) {
	query := s.db.qb.Select(strategyColumns...).From("strategies").OrderBy("priority ASC", "id ASC")
	if where != nil {
		query = query.Where(where)
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.conn.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	defer rows.Close()

	var strategies []*models.OptionStrategy
	for rows.Next() {
		strategy, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		strategies = append(strategies, strategy)
	}
	return strategies, rows.Err()
}

func scanStrategy(row rowScanner) (*models.OptionStrategy, error) {
	var strategy models.OptionStrategy
	err := row.Scan(
		&strategy.ID, &strategy.Name, &strategy.Format, &strategy.MergeOutputFormat,
		&strategy.EmbedThumbnail, &strategy.ExtractAudio, &strategy.AudioFormat,
		&strategy.Priority, &strategy.IsEnabled, &strategy.IsDefault,
	)
	if err != nil {
		return nil, err
	}
	return &strategy, nil
}
