package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ternarybob/tubeq/internal/interfaces"
)

// videoInfo is the subset of `yt-dlp -J` output we read
type videoInfo struct {
	Title     string       `json:"title"`
	Thumbnail string       `json:"thumbnail"`
	Formats   []formatInfo `json:"formats"`
}

type formatInfo struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	Height         *int     `json:"height"`
	VBR            *float64 `json:"vbr"`
	ABR            *float64 `json:"abr"`
	FileSize       *float64 `json:"filesize"`
	FileSizeApprox *float64 `json:"filesize_approx"`
}

func (f formatInfo) hasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

func (f formatInfo) hasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// size prefers the exact size over the approximation; ok is false when neither is known
func (f formatInfo) size() (int64, bool) {
	if f.FileSize != nil {
		return int64(*f.FileSize), true
	}
	if f.FileSizeApprox != nil {
		return int64(*f.FileSizeApprox), true
	}
	return 0, false
}

func valueOr[T int | float64](v *T) T {
	if v == nil {
		return 0
	}
	return *v
}

// FetchMetadata runs `yt-dlp -J` and resolves title, thumbnail and estimated size
func (c *Client) FetchMetadata(ctx context.Context, url string) (*interfaces.Metadata, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("video URL is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	args := append(buildMetadataArgs(c.cookiesPath()), url)
	cmd := exec.CommandContext(ctx, c.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp metadata failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty output")
	}

	metadata, err := ParseMetadata(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("url", url).
		Str("title", metadata.Title).
		Str("estimated_size", humanize.Bytes(uint64(metadata.EstimatedSize))).
		Msg("Metadata resolved")

	return metadata, nil
}

// ParseMetadata decodes `yt-dlp -J` output. A missing title is an error so the
// job stays eligible for another metadata attempt.
func ParseMetadata(data []byte) (*interfaces.Metadata, error) {
	var info videoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp metadata: %w", err)
	}
	if strings.TrimSpace(info.Title) == "" {
		return nil, fmt.Errorf("yt-dlp metadata has no title")
	}

	return &interfaces.Metadata{
		Title:         info.Title,
		Thumbnail:     info.Thumbnail,
		EstimatedSize: EstimateSize(info.Formats),
	}, nil
}

// EstimateSize adds the best 720p-1080p video stream (vbr <= 5000) to the best
// audio-only stream, preferring m4a at or under 128 kbps. Formats without a
// known size are ignored.
func EstimateSize(formats []formatInfo) int64 {
	var videos, m4aAudio, anyAudio []formatInfo

	for _, f := range formats {
		if _, ok := f.size(); !ok {
			continue
		}
		switch {
		case f.hasVideo():
			height := valueOr(f.Height)
			if height >= 720 && height <= 1080 && valueOr(f.VBR) <= 5000 {
				videos = append(videos, f)
			}
		case f.hasAudio():
			anyAudio = append(anyAudio, f)
			if f.Ext == "m4a" && valueOr(f.ABR) <= 128 {
				m4aAudio = append(m4aAudio, f)
			}
		}
	}

	sort.SliceStable(videos, func(i, j int) bool {
		hi, hj := valueOr(videos[i].Height), valueOr(videos[j].Height)
		if hi != hj {
			return hi > hj
		}
		return valueOr(videos[i].VBR) > valueOr(videos[j].VBR)
	})
	byABR := func(list []formatInfo) {
		sort.SliceStable(list, func(i, j int) bool { return valueOr(list[i].ABR) > valueOr(list[j].ABR) })
	}
	byABR(m4aAudio)
	byABR(anyAudio)

	var total int64
	if len(videos) > 0 {
		size, _ := videos[0].size()
		total += size
	}
	audio := m4aAudio
	if len(audio) == 0 {
		audio = anyAudio
	}
	if len(audio) > 0 {
		size, _ := audio[0].size()
		total += size
	}
	return total
}
