package ytdlp

import (
	"github.com/ternarybob/tubeq/internal/models"
)

// buildDownloadArgs translates an option strategy into yt-dlp arguments (without the URL)
func buildDownloadArgs(strategy *models.OptionStrategy, workDir, outputTemplate, cookiesPath string) []string {
	args := []string{
		"--newline",
		"--progress",
		"--no-colors",
		"--no-playlist",
		"--force-overwrites",
		"--no-simulate",
		"-P", workDir,
		"-o", outputTemplate,
		"--print", "after_move:filepath",
	}

	if strategy != nil {
		if strategy.Format != "" {
			args = append(args, "-f", strategy.Format)
		}
		if strategy.MergeOutputFormat != "" {
			args = append(args, "--merge-output-format", strategy.MergeOutputFormat)
		}
		if strategy.EmbedThumbnail {
			args = append(args, "--embed-thumbnail")
		}
		if strategy.ExtractAudio {
			args = append(args, "-x")
			if strategy.AudioFormat != "" {
				args = append(args, "--audio-format", strategy.AudioFormat)
			}
		}
	}

	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}
	return args
}

func buildMetadataArgs(cookiesPath string) []string {
	args := []string{"-J", "--no-playlist", "--no-warnings"}
	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}
	return args
}
