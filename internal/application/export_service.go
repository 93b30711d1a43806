package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/geoexport/internal/domain"
	"github.com/jobrunner/geoexport/internal/ports/input"
)

// ErrRateLimited is returned when the sync API rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// ExportJob describes one negotiation.
type ExportJob struct {
	Mode   domain.ExportMode // ModeSingle or ModeAdaptive
	Image  domain.ImageRef
	Region domain.Region
	Budget domain.SizeBudget
}

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	Uploaded        int       `json:"uploaded"`
	Removed         int       `json:"removed"`
	SyncedAt        time.Time `json:"synced_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// ExportService runs negotiations one at a time and keeps published
// artifacts in sync.
type ExportService struct {
	negotiator input.Negotiator
	publisher  *ArtifactPublisher
	interval   time.Duration
	logger     *slog.Logger

	// Held for the duration of a negotiation
	exportMu sync.Mutex

	// Lifecycle management
	stopCh chan struct{}
	wg     sync.WaitGroup

	// Rate limiting for API triggers
	lastAPISync time.Time
	apiMutex    sync.Mutex

	// Prevents concurrent sync operations
	syncOpMutex sync.Mutex

	// Track next scheduled sync for reporting
	nextSync time.Time
	syncMu   sync.RWMutex
}

// NewExportService creates a new export service. A zero interval disables
// the periodic sync.
func NewExportService(negotiator input.Negotiator, publisher *ArtifactPublisher, interval time.Duration, logger *slog.Logger) *ExportService {
	return &ExportService{
		negotiator: negotiator,
		publisher:  publisher,
		interval:   interval,
		logger:     logger,
		stopCh:     make(chan struct{}),
		// Initialize to past time to allow immediate first API call
		lastAPISync: time.Now().Add(-31 * time.Second),
	}
}

// Export runs a negotiation. It returns domain.ErrNegotiationBusy if another
// negotiation is in progress.
func (s *ExportService) Export(ctx context.Context, job ExportJob) (*domain.Outcome, error) {
	if !s.exportMu.TryLock() {
		return nil, domain.ErrNegotiationBusy
	}
	defer s.exportMu.Unlock()

	s.logger.Info("export started", "mode", job.Mode, "image", job.Image)

	switch job.Mode {
	case domain.ModeSingle, "":
		return s.negotiator.NegotiateSingle(ctx, job.Image, job.Region, job.Budget)
	case domain.ModeAdaptive:
		return s.negotiator.NegotiateAdaptive(ctx, job.Image, job.Region, job.Budget)
	default:
		return nil, &domain.ValidationError{
			Field:      "mode",
			Value:      job.Mode,
			Constraint: "single|adaptive",
			Message:    "unsupported export mode",
		}
	}
}

// Busy returns true while a negotiation is running.
func (s *ExportService) Busy() bool {
	if s.exportMu.TryLock() {
		s.exportMu.Unlock()
		return false
	}
	return true
}

// Start begins the periodic sync scheduler.
func (s *ExportService) Start(ctx context.Context) {
	if s.interval <= 0 || s.publisher == nil {
		return
	}
	s.logger.Info("starting sync scheduler", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the main sync loop.
func (s *ExportService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.setNextSync(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled sync triggered")
			if _, err := s.doSync(ctx); err != nil {
				s.logger.Error("sync failed", "error", err)
			}
			s.setNextSync(time.Now().Add(s.interval))
		}
	}
}

// Stop gracefully stops the sync scheduler.
func (s *ExportService) Stop() {
	select {
	case <-s.stopCh:
		return
	default:
		close(s.stopCh)
	}
	s.wg.Wait()
}

// TriggerSync manually triggers a sync operation with rate limiting.
// Returns ErrRateLimited if called more than 2 times per minute.
func (s *ExportService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.apiMutex.Lock()
	defer s.apiMutex.Unlock()

	if time.Since(s.lastAPISync) < 30*time.Second {
		return SyncResult{}, ErrRateLimited
	}
	s.lastAPISync = time.Now()

	return s.doSync(ctx)
}

func (s *ExportService) doSync(ctx context.Context) (SyncResult, error) {
	s.syncOpMutex.Lock()
	defer s.syncOpMutex.Unlock()

	if s.publisher == nil {
		return SyncResult{SyncedAt: time.Now()}, nil
	}

	stats, err := s.publisher.Sync(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	return SyncResult{
		Uploaded:        stats.Uploaded,
		Removed:         stats.Removed,
		SyncedAt:        time.Now(),
		NextScheduledAt: s.getNextSync(),
	}, nil
}

func (s *ExportService) setNextSync(t time.Time) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.nextSync = t
}

func (s *ExportService) getNextSync() time.Time {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *ExportService) Interval() time.Duration {
	return s.interval
}
