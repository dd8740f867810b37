package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// playlistInfo is the subset of `yt-dlp -J --flat-playlist` output we read
type playlistInfo struct {
	Entries []playlistEntry `json:"entries"`
}

type playlistEntry struct {
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
}

func buildPlaylistArgs(cookiesPath string) []string {
	args := []string{"-J", "--flat-playlist", "--no-warnings"}
	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}
	return args
}

// ExpandPlaylist lists the entry URLs of a playlist without resolving each
// entry. A URL that is not a playlist expands to itself.
func (c *Client) ExpandPlaylist(ctx context.Context, url string) ([]string, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("playlist URL is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	args := append(buildPlaylistArgs(c.cookiesPath()), url)
	cmd := exec.CommandContext(ctx, c.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp playlist listing failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	entries, err := ParsePlaylistEntries(stdout.Bytes(), url)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().Str("url", url).Int("entries", len(entries)).Msg("Playlist expanded")
	return entries, nil
}

// ParsePlaylistEntries decodes flat playlist output into entry URLs, in
// playlist order. Entries without a URL are dropped; output with no entries
// yields fallback alone.
func ParsePlaylistEntries(data []byte, fallback string) ([]string, error) {
	var info playlistInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp playlist: %w", err)
	}

	urls := make([]string, 0, len(info.Entries))
	for _, entry := range info.Entries {
		url := strings.TrimSpace(entry.URL)
		if url == "" {
			url = strings.TrimSpace(entry.WebpageURL)
		}
		if url != "" {
			urls = append(urls, url)
		}
	}
	if len(urls) == 0 {
		return []string{fallback}, nil
	}
	return urls, nil
}
