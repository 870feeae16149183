package investment

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CopyExecutor is the queued execution path for follower copy-trades. The
// trading service satisfies it.
type CopyExecutor interface {
	ExecutePendingCopies() (int, error)
}

// Processor drives the settlement sweep on a timer: once shortly after
// startup, then at the configured interval. It also flushes the copy-trade
// execution queue each cycle.
type Processor struct {
	service      *Service
	copies       CopyExecutor
	interval     time.Duration
	initialDelay time.Duration
}

// NewProcessor creates a settlement processor over the given services.
func NewProcessor(service *Service, copies CopyExecutor, interval, initialDelay time.Duration) *Processor {
	if interval <= 0 {
		interval = time.Hour
	}
	if initialDelay <= 0 {
		initialDelay = 10 * time.Second
	}
	return &Processor{
		service:      service,
		copies:       copies,
		interval:     interval,
		initialDelay: initialDelay,
	}
}

// Start begins the settlement processing loop
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "settlement_processor").Logger()
	logger.Info().
		Dur("interval", p.interval).
		Dur("initial_delay", p.initialDelay).
		Msg("starting settlement processor")

	// First pass shortly after startup so a restart never delays matured
	// investments by a full interval
	initial := time.NewTimer(p.initialDelay)
	defer initial.Stop()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down settlement processor")
		return
	case <-initial.C:
		p.runCycle(logger)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down settlement processor")
			return
		case <-ticker.C:
			p.runCycle(logger)
		}
	}
}

func (p *Processor) runCycle(logger zerolog.Logger) {
	result := p.service.RunSweep()
	if len(result.Errors) > 0 {
		logger.Warn().
			Int("processed", result.ProcessedCount).
			Strs("errors", result.Errors).
			Msg("settlement sweep completed with errors")
	} else {
		logger.Info().
			Int("processed", result.ProcessedCount).
			Msg("settlement sweep completed")
	}

	if p.copies != nil {
		executed, err := p.copies.ExecutePendingCopies()
		if err != nil {
			logger.Error().Err(err).Msg("failed to process copy-trade queue")
		} else if executed > 0 {
			logger.Info().Int("executed", executed).Msg("copy-trade queue processed")
		}
	}
}
