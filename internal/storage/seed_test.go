package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = t.TempDir()

	manager, err := NewStorageManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestSeedDefaults_BuiltIn(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, SeedDefaults(ctx, manager, "", arbor.NewLogger()))

	tags, err := manager.TagStorage().ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "youtube_later", tags[0].Value)
	assert.Equal(t, 1, tags[0].Priority)

	strategies, err := manager.StrategyStorage().ListStrategies(ctx)
	require.NoError(t, err)
	assert.Len(t, strategies, 9)

	enabled, err := manager.StrategyStorage().ListEnabled(ctx)
	require.NoError(t, err)
	assert.Len(t, enabled, 8)
	assert.Equal(t, "main", enabled[0].Name)

	// Seeding twice leaves existing records alone
	require.NoError(t, SeedDefaults(ctx, manager, "", arbor.NewLogger()))
	count, err := manager.StrategyStorage().CountStrategies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}

func TestSeedDefaults_FromYAML(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategies:
  - name: audio only
    format: bestaudio
    extract_audio: true
    audio_format: m4a
    priority: 0
    enabled: true
  - name: anything
    priority: 1
    enabled: true
`), 0644))

	require.NoError(t, SeedDefaults(ctx, manager, path, arbor.NewLogger()))

	enabled, err := manager.StrategyStorage().ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "audio only", enabled[0].Name)
	assert.True(t, enabled[0].ExtractAudio)
}

func TestLoadStrategiesFile(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadStrategiesFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, os.IsNotExist(err))

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("strategies:\n  - name: x\n    extract_audio: true\n"), 0644))
	_, err = LoadStrategiesFile(invalid)
	assert.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("strategies: [\n"), 0644))
	_, err = LoadStrategiesFile(broken)
	assert.Error(t, err)
}

func TestNewStorageManager_UnknownType(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Storage.Type = "sqlite"
	_, err := NewStorageManager(arbor.NewLogger(), config)
	assert.Error(t, err)
}
