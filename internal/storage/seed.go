package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
	"gopkg.in/yaml.v3"
)

// StrategyFile is the YAML layout of storage.strategies_file
type StrategyFile struct {
	Strategies []*models.OptionStrategy `yaml:"strategies"`
}

// SeedDefaults populates empty tag and strategy stores. Strategies come from
// strategiesFile when it exists and parses, otherwise from the built-in cascade.
// Stores that already hold records are left alone.
func SeedDefaults(ctx context.Context, manager interfaces.StorageManager, strategiesFile string, logger arbor.ILogger) error {
	if err := seedTags(ctx, manager.TagStorage(), logger); err != nil {
		return err
	}
	return seedStrategies(ctx, manager.StrategyStorage(), strategiesFile, logger)
}

func seedTags(ctx context.Context, tags interfaces.TagStorage, logger arbor.ILogger) error {
	count, err := tags.CountTags(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Debug().Int("count", count).Msg("Tags already present, skipping seed")
		return nil
	}

	for _, tag := range models.DefaultTags() {
		if err := tags.CreateTag(ctx, tag); err != nil {
			return fmt.Errorf("failed to seed tag %s: %w", tag.Name, err)
		}
	}
	logger.Info().Int("count", len(models.DefaultTags())).Msg("Default tags seeded")
	return nil
}

func seedStrategies(ctx context.Context, strategies interfaces.StrategyStorage, strategiesFile string, logger arbor.ILogger) error {
	count, err := strategies.CountStrategies(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Debug().Int("count", count).Msg("Strategies already present, skipping seed")
		return nil
	}

	seed := models.DefaultStrategies()
	source := "built-in"

	if strategiesFile != "" {
		loaded, err := LoadStrategiesFile(strategiesFile)
		switch {
		case os.IsNotExist(err):
			logger.Debug().Str("file", strategiesFile).Msg("Strategies file does not exist, using built-in defaults")
		case err != nil:
			logger.Warn().Err(err).Str("file", strategiesFile).Msg("Failed to load strategies file, using built-in defaults")
		case len(loaded) == 0:
			logger.Warn().Str("file", strategiesFile).Msg("Strategies file is empty, using built-in defaults")
		default:
			seed = loaded
			source = strategiesFile
		}
	}

	for _, strategy := range seed {
		if err := strategies.CreateStrategy(ctx, strategy); err != nil {
			return fmt.Errorf("failed to seed strategy %s: %w", strategy.Name, err)
		}
	}
	logger.Info().Int("count", len(seed)).Str("source", source).Msg("Option strategies seeded")
	return nil
}

// LoadStrategiesFile parses and validates a YAML strategy list.
// A missing file is reported with an error satisfying os.IsNotExist.
func LoadStrategiesFile(path string) ([]*models.OptionStrategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file StrategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse strategies YAML: %w", err)
	}

	for i, strategy := range file.Strategies {
		if err := strategy.Validate(); err != nil {
			return nil, fmt.Errorf("strategy %d (%s) is invalid: %w", i, strategy.Name, err)
		}
	}
	return file.Strategies, nil
}
