package interfaces

import (
	"context"

	"github.com/ternarybob/tubeq/internal/models"
)

// Metadata is what a metadata fetch resolves for a URL
type Metadata struct {
	Title         string `json:"title"`
	Thumbnail     string `json:"thumbnail"`
	EstimatedSize int64  `json:"estimatedSize"`
}

// DownloadProgress is one progress report from a running download
type DownloadProgress struct {
	Percent int
	Speed   string
	ETA     string
}

// ProgressFunc receives progress reports; it may be called from a reader goroutine
type ProgressFunc func(progress DownloadProgress)

// DownloadResult reports the outcome of a single strategy attempt
type DownloadResult struct {
	Success    bool
	LocalPath  string
	ErrorLines []string
}

// MetadataFetcher resolves title/thumbnail/size for a URL
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, url string) (*Metadata, error)
}

// PlaylistExpander lists the entry URLs behind a playlist link
type PlaylistExpander interface {
	ExpandPlaylist(ctx context.Context, url string) ([]string, error)
}

// Downloader attempts a download of url with one option strategy
type Downloader interface {
	Download(ctx context.Context, url string, strategy *models.OptionStrategy, onProgress ProgressFunc) (*DownloadResult, error)
}

// StrategyProvider returns the enabled strategies in ascending priority
type StrategyProvider interface {
	ListEnabled(ctx context.Context) ([]*models.OptionStrategy, error)
}

// ToolManager reports and updates the external download tool
type ToolManager interface {
	Version(ctx context.Context) (string, error)
	Update(ctx context.Context) (string, error)
}

// Placer moves a finished download into its final location
type Placer interface {
	Place(ctx context.Context, job *models.Job, tag *models.Tag, localPath string) (string, error)
}

// Mirror copies a placed file to secondary storage
type Mirror interface {
	Upload(ctx context.Context, path string) error
}
