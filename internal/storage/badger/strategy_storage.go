package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const strategySequence = "strategy_seq"

// StrategyStorage implements the StrategyStorage interface for Badger
type StrategyStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStrategyStorage creates a new StrategyStorage instance
func NewStrategyStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StrategyStorage {
	return &StrategyStorage{
		db:     db,
		logger: logger,
	}
}

func (s *StrategyStorage) CreateStrategy(ctx context.Context, strategy *models.OptionStrategy) error {
	id, err := s.db.NextID(strategySequence)
	if err != nil {
		return err
	}
	strategy.ID = id

	if err := s.db.Store().Insert(id, strategy); err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}
	return nil
}

func (s *StrategyStorage) GetStrategy(ctx context.Context, id uint64) (*models.OptionStrategy, error) {
	var strategy models.OptionStrategy
	if err := s.db.Store().Get(id, &strategy); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrStrategyNotFound
		}
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}
	return &strategy, nil
}

func (s *StrategyStorage) ListStrategies(ctx context.Context) ([]*models.OptionStrategy, error) {
	var strategies []models.OptionStrategy
	if err := s.db.Store().Find(&strategies, nil); err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	return byPriority(strategies), nil
}

func (s *StrategyStorage) ListEnabled(ctx context.Context) ([]*models.OptionStrategy, error) {
	var strategies []models.OptionStrategy
	if err := s.db.Store().Find(&strategies, badgerhold.Where("IsEnabled").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list enabled strategies: %w", err)
	}
	return byPriority(strategies), nil
}

func (s *StrategyStorage) UpdateStrategy(ctx context.Context, strategy *models.OptionStrategy) error {
	if err := s.db.Store().Update(strategy.ID, strategy); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrStrategyNotFound
		}
		return fmt.Errorf("failed to update strategy: %w", err)
	}
	return nil
}

func (s *StrategyStorage) DeleteStrategy(ctx context.Context, id uint64) error {
	if err := s.db.Store().Delete(id, &models.OptionStrategy{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrStrategyNotFound
		}
		return fmt.Errorf("failed to delete strategy: %w", err)
	}
	return nil
}

// UpdatePriorities reorders strategies in a single transaction; an unknown id aborts the whole batch
func (s *StrategyStorage) UpdatePriorities(ctx context.Context, priorities map[uint64]int) error {
	err := s.db.Store().Badger().Update(func(tx *badger.Txn) error {
		for id, priority := range priorities {
			var strategy models.OptionStrategy
			if err := s.db.Store().TxGet(tx, id, &strategy); err != nil {
				if errors.Is(err, badgerhold.ErrNotFound) {
					return fmt.Errorf("%w: %d", interfaces.ErrStrategyNotFound, id)
				}
				return err
			}
			strategy.Priority = priority
			if err := s.db.Store().TxUpdate(tx, id, &strategy); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrStrategyNotFound) {
			return err
		}
		return fmt.Errorf("failed to update strategy priorities: %w", err)
	}
	return nil
}

func (s *StrategyStorage) CountStrategies(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.OptionStrategy{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count strategies: %w", err)
	}
	return int(count), nil
}

// byPriority orders ascending by priority, id breaking ties
func byPriority(strategies []models.OptionStrategy) []*models.OptionStrategy {
	result := make([]*models.OptionStrategy, len(strategies))
	for i := range strategies {
		result[i] = &strategies[i]
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority < result[j].Priority
		}
		return result[i].ID < result[j].ID
	})
	return result
}
