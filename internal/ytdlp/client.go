// -----------------------------------------------------------------------
// yt-dlp client - runs the external downloader and streams its output
// -----------------------------------------------------------------------

package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
)

// OutputStream identifies which pipe a line came from
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// maxKeep bounds the output retained per stream for error reporting
const maxKeep = 8192

// Client wraps the yt-dlp binary
type Client struct {
	binary          string
	workDir         string
	cookiesFile     string
	outputTemplate  string
	versionFile     string
	metadataTimeout time.Duration
	logger          arbor.ILogger
}

// NewClient creates a yt-dlp client from configuration
func NewClient(config *common.YtDlpConfig, logger arbor.ILogger) *Client {
	binary := config.Binary
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Client{
		binary:          binary,
		workDir:         config.WorkDir,
		cookiesFile:     config.CookiesFile,
		outputTemplate:  config.OutputTemplate,
		versionFile:     config.VersionFile,
		metadataTimeout: common.ParseDurationOrDefault(config.MetadataTimeout, 2*time.Minute),
		logger:          logger,
	}
}

var (
	_ interfaces.MetadataFetcher = (*Client)(nil)
	_ interfaces.Downloader      = (*Client)(nil)
	_ interfaces.ToolManager     = (*Client)(nil)
)

// Download runs one attempt with the given strategy. A non-nil error always
// comes with a result carrying the tool's error lines.
func (c *Client) Download(ctx context.Context, url string, strategy *models.OptionStrategy, onProgress interfaces.ProgressFunc) (*interfaces.DownloadResult, error) {
	if strings.TrimSpace(url) == "" {
		return &interfaces.DownloadResult{}, fmt.Errorf("video URL is required")
	}
	if err := os.MkdirAll(c.workDir, 0755); err != nil {
		return &interfaces.DownloadResult{}, fmt.Errorf("failed to create work directory: %w", err)
	}

	args := buildDownloadArgs(strategy, c.workDir, c.outputTemplate, c.cookiesPath())
	args = append(args, url)

	strategyName := "default"
	if strategy != nil {
		strategyName = strategy.Name
	}
	c.logger.Debug().Str("url", url).Str("strategy", strategyName).Strs("args", args).Msg("Starting yt-dlp download")

	var (
		mu       sync.Mutex
		lastPath string
	)
	onLine := func(stream OutputStream, line string) {
		if progress, ok := ParseProgressLine(line); ok {
			if onProgress != nil {
				onProgress(progress)
			}
			return
		}
		if stream == StreamStdout {
			if path, ok := parsePrintedPath(line); ok {
				mu.Lock()
				lastPath = path
				mu.Unlock()
			}
		}
	}

	stdout, stderr, err := c.run(ctx, args, onLine)
	if err != nil {
		return &interfaces.DownloadResult{ErrorLines: errorLines(stderr, stdout)}, err
	}

	mu.Lock()
	path := lastPath
	mu.Unlock()

	if path == "" {
		return &interfaces.DownloadResult{ErrorLines: errorLines(stderr, stdout)}, fmt.Errorf("yt-dlp did not report an output file")
	}
	if _, err := os.Stat(path); err != nil {
		return &interfaces.DownloadResult{ErrorLines: errorLines(stderr, stdout)}, fmt.Errorf("yt-dlp output file missing: %w", err)
	}

	return &interfaces.DownloadResult{Success: true, LocalPath: path}, nil
}

// cookiesPath returns the configured cookies file when it exists
func (c *Client) cookiesPath() string {
	if strings.TrimSpace(c.cookiesFile) == "" {
		return ""
	}
	if _, err := os.Stat(c.cookiesFile); err != nil {
		return ""
	}
	return c.cookiesFile
}

// run starts the binary and feeds every stdout/stderr line to onLine.
// The returned buffers hold at most maxKeep bytes each.
func (c *Client) run(ctx context.Context, args []string, onLine func(stream OutputStream, line string)) (string, string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", "", fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start yt-dlp: %w", err)
	}

	var (
		outBuf strings.Builder
		errBuf strings.Builder
		mu     sync.Mutex
		wg     sync.WaitGroup
	)

	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&outBuf, &errBuf, stream, line)
			mu.Unlock()

			if onLine != nil {
				onLine(stream, line)
			}
		}
	}

	wg.Add(2)
	go read(StreamStdout, stdoutPipe)
	go read(StreamStderr, stderrPipe)
	wg.Wait()

	waitErr := cmd.Wait()

	mu.Lock()
	stdout := strings.TrimSpace(outBuf.String())
	stderr := strings.TrimSpace(errBuf.String())
	mu.Unlock()

	if waitErr != nil {
		if ctx.Err() != nil {
			return stdout, stderr, fmt.Errorf("yt-dlp interrupted: %w", ctx.Err())
		}
		return stdout, stderr, fmt.Errorf("yt-dlp failed: %w\n%s\n%s", waitErr, stderr, stdout)
	}
	return stdout, stderr, nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(outBuf, errBuf *strings.Builder, stream OutputStream, line string) {
	b := outBuf
	if stream == StreamStderr {
		b = errBuf
	}
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	remain := maxKeep - b.Len()
	b.WriteString(common.TruncateUTF8(toWrite, remain))
}

// parsePrintedPath recognizes the line emitted by --print after_move:filepath
func parsePrintedPath(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "[") {
		return "", false
	}
	if strings.HasPrefix(trimmed, "ERROR") || strings.HasPrefix(trimmed, "WARNING") {
		return "", false
	}
	return trimmed, true
}

// errorLines picks the tool's ERROR/WARNING lines, falling back to the stderr tail
func errorLines(stderr, stdout string) []string {
	var picked []string
	for _, text := range []string{stderr, stdout} {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "ERROR") || strings.HasPrefix(line, "WARNING") {
				picked = append(picked, line)
			}
		}
	}
	if len(picked) > 0 {
		return picked
	}

	var tail []string
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tail = append(tail, line)
		}
	}
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	return tail
}
