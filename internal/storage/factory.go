package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/storage/badger"
	"github.com/ternarybob/tubeq/internal/storage/postgres"
)

// NewStorageManager creates a new storage manager based on config
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Type {
	case "", "badger":
		return badger.NewManager(logger, &config.Storage.Badger)
	case "postgres":
		return postgres.NewManager(logger, &config.Storage.Postgres)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected 'badger' or 'postgres')", config.Storage.Type)
	}
}
