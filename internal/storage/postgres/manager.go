package postgres

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
)

// Manager implements the StorageManager interface for PostgreSQL
type Manager struct {
	db       *DB
	job      interfaces.JobStorage
	tag      interfaces.TagStorage
	strategy interfaces.StrategyStorage
	logger   arbor.ILogger
}

// NewManager creates a new PostgreSQL storage manager
func NewManager(logger arbor.ILogger, config *common.PostgresConfig) (interfaces.StorageManager, error) {
	db, err := NewDB(logger, config)
	if err != nil {
		return nil, err
	}
	return newManager(db, logger), nil
}

func newManager(db *DB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		job:      NewJobStorage(db, logger),
		tag:      NewTagStorage(db, logger),
		strategy: NewStrategyStorage(db, logger),
		logger:   logger,
	}
}

func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

func (m *Manager) TagStorage() interfaces.TagStorage {
	return m.tag
}

func (m *Manager) StrategyStorage() interfaces.StrategyStorage {
	return m.strategy
}

// DB returns the underlying *sql.DB
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Conn()
	}
	return nil
}

func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
