package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Version reports the installed yt-dlp version, preferring the version file
// written at image build time over spawning the binary.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c.versionFile != "" {
		if data, err := os.ReadFile(c.versionFile); err == nil {
			if version := strings.TrimSpace(string(data)); version != "" {
				return version, nil
			}
		}
	}

	out, err := c.runSimple(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Update runs the self-updater and returns its output
func (c *Client) Update(ctx context.Context) (string, error) {
	c.logger.Info().Str("binary", c.binary).Msg("Updating yt-dlp")

	out, err := c.runSimple(ctx, "-U")
	if err != nil {
		return out, err
	}

	if c.versionFile != "" {
		if version, verr := c.runSimple(ctx, "--version"); verr == nil {
			if werr := os.WriteFile(c.versionFile, []byte(strings.TrimSpace(version)+"\n"), 0644); werr != nil {
				c.logger.Debug().Err(werr).Str("file", c.versionFile).Msg("Could not refresh yt-dlp version file")
			}
		}
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) runSimple(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("yt-dlp %s failed: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
