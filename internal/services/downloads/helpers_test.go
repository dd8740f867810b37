package downloads

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
	"github.com/ternarybob/tubeq/internal/storage/badger"
)

// MockDownloader is a mock implementation of interfaces.Downloader
type MockDownloader struct {
	mock.Mock
}

func (m *MockDownloader) Download(ctx context.Context, url string, strategy *models.OptionStrategy, onProgress interfaces.ProgressFunc) (*interfaces.DownloadResult, error) {
	args := m.Called(ctx, url, strategy, onProgress)
	result, _ := args.Get(0).(*interfaces.DownloadResult)
	return result, args.Error(1)
}

// MockFetcher is a mock implementation of interfaces.MetadataFetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchMetadata(ctx context.Context, url string) (*interfaces.Metadata, error) {
	args := m.Called(ctx, url)
	meta, _ := args.Get(0).(*interfaces.Metadata)
	return meta, args.Error(1)
}

// staticStrategies serves a fixed strategy list
type staticStrategies struct {
	list []*models.OptionStrategy
	err  error
}

func (s staticStrategies) ListEnabled(ctx context.Context) ([]*models.OptionStrategy, error) {
	return s.list, s.err
}

// fetchFunc adapts a function to interfaces.MetadataFetcher
type fetchFunc func(ctx context.Context, url string) (*interfaces.Metadata, error)

func (f fetchFunc) FetchMetadata(ctx context.Context, url string) (*interfaces.Metadata, error) {
	return f(ctx, url)
}

// downloadFunc adapts a function to interfaces.Downloader
type downloadFunc func(ctx context.Context, url string, strategy *models.OptionStrategy, onProgress interfaces.ProgressFunc) (*interfaces.DownloadResult, error)

func (f downloadFunc) Download(ctx context.Context, url string, strategy *models.OptionStrategy, onProgress interfaces.ProgressFunc) (*interfaces.DownloadResult, error) {
	return f(ctx, url, strategy, onProgress)
}

// recordingEvents captures published events
type recordingEvents struct {
	mu     sync.Mutex
	events []interfaces.Event
}

func (r *recordingEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) error { return nil }

func (r *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return r.Publish(ctx, event)
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) types() []interfaces.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]interfaces.EventType, len(r.events))
	for i, e := range r.events {
		result[i] = e.Type
	}
	return result
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

// titleFetcher resolves every URL to a title derived from its last path segment
func titleFetcher() fetchFunc {
	return func(ctx context.Context, url string) (*interfaces.Metadata, error) {
		return &interfaces.Metadata{
			Title:         "Video " + url[strings.LastIndex(url, "/")+1:],
			Thumbnail:     "https://img.example.com/thumb.jpg",
			EstimatedSize: 1000,
		}, nil
	}
}

// writeVideo creates a staged download file in dir, as yt-dlp would
func writeVideo(dir, url string) (*interfaces.DownloadResult, error) {
	name := fmt.Sprintf("20240101_%s.mp4", url[strings.LastIndex(url, "/")+1:])
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("video:"+url), 0644); err != nil {
		return nil, err
	}
	return &interfaces.DownloadResult{Success: true, LocalPath: path}, nil
}

func mustEnqueue(t *testing.T, service *JobService, url string) *models.Job {
	t.Helper()
	job, created, err := service.Enqueue(context.Background(), url, nil)
	require.NoError(t, err)
	require.True(t, created)
	return job
}

func getJob(t *testing.T, storage interfaces.StorageManager, id uint64) *models.Job {
	t.Helper()
	job, err := storage.JobStorage().Get(context.Background(), id)
	require.NoError(t, err)
	return job
}
