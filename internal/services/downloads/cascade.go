package downloads

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/metrics"
	"github.com/ternarybob/tubeq/internal/models"
)

// ErrStrategiesExhausted is wrapped by the error returned when every strategy failed
var ErrStrategiesExhausted = errors.New("all download strategies failed")

// Dispatcher runs a job through the enabled option strategies in priority
// order and stops at the first success.
type Dispatcher struct {
	strategies interfaces.StrategyProvider
	downloader interfaces.Downloader
	metrics    *metrics.Metrics
	logger     arbor.ILogger
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(strategies interfaces.StrategyProvider, downloader interfaces.Downloader, m *metrics.Metrics, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		strategies: strategies,
		downloader: downloader,
		metrics:    m,
		logger:     logger,
	}
}

// Download returns the successful result and the strategy that produced it
func (d *Dispatcher) Download(ctx context.Context, job *models.Job, onProgress interfaces.ProgressFunc) (*interfaces.DownloadResult, *models.OptionStrategy, error) {
	strategies, err := d.strategies.ListEnabled(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load strategies: %w", err)
	}
	if len(strategies) == 0 {
		d.logger.Warn().Int64("job_id", int64(job.ID)).Msg("No enabled strategies, using built-in default")
		strategies = []*models.OptionStrategy{models.FallbackStrategy()}
	}

	var (
		lastErr      error
		lastStrategy *models.OptionStrategy
	)

	for i, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		d.logger.Debug().
			Int64("job_id", int64(job.ID)).
			Str("strategy", strategy.Name).
			Int("attempt", i+1).
			Int("of", len(strategies)).
			Msg("Trying download strategy")

		result, err := d.downloader.Download(ctx, job.URL, strategy, onProgress)
		if err == nil && result != nil && result.Success {
			d.metrics.RecordAttempt(strategy.Name, true)
			if i > 0 {
				d.logger.Info().Int64("job_id", int64(job.ID)).Str("strategy", strategy.Name).Int("attempt", i+1).Msg("Download succeeded with fallback strategy")
			}
			return result, strategy, nil
		}

		d.metrics.RecordAttempt(strategy.Name, false)
		lastErr = attemptError(err, result)
		lastStrategy = strategy

		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("download cancelled: %w", lastErr)
		}

		entry := d.logger.Warn().
			Err(lastErr).
			Int64("job_id", int64(job.ID)).
			Str("strategy", strategy.Name)
		if result != nil && len(result.ErrorLines) > 0 {
			entry = entry.Strs("output", result.ErrorLines)
		}
		entry.Msg("Download strategy failed")
	}

	return nil, nil, fmt.Errorf("%w (%d tried, last %q): %v", ErrStrategiesExhausted, len(strategies), lastStrategy.Name, lastErr)
}

// attemptError normalizes the failure of one attempt, including when the
// downloader reported failure without an error value
func attemptError(err error, result *interfaces.DownloadResult) error {
	if err != nil {
		return err
	}
	if result != nil && len(result.ErrorLines) > 0 {
		return errors.New(strings.Join(result.ErrorLines, "\n"))
	}
	return errors.New("download reported no result")
}
