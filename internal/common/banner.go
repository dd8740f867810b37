package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the effective settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.PrintSimple("tubeq", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("storage", config.Storage.Type).
		Int("max_downloads", config.Scheduler.MaxConcurrentDownloads).
		Str("poll_interval", config.Scheduler.PollInterval).
		Str("output_root", config.Placement.Root).
		Msg("tubeq starting")
}
