// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/geoexport/internal/domain"
	"github.com/jobrunner/geoexport/internal/ports/output"
)

// NegotiatorConfig holds the search space and naming of a negotiation.
type NegotiatorConfig struct {
	Prefix      string // Artifact name prefix, e.g. landsat_stack
	Extension   string // Raster extension, e.g. .tif
	SingleBands domain.BandSet
	Ladder      domain.ResolutionLadder
	BandSets    []domain.BandSet // Ordered cheap to rich
	Resolutions []float64

	// FailOnUnknown aborts a negotiation on an unclassifiable service
	// failure instead of moving on to the next candidate.
	FailOnUnknown bool
}

// ArtifactSink receives every materialized artifact.
type ArtifactSink interface {
	Publish(ctx context.Context, rec domain.ArtifactRecord) error
}

// Negotiator finds the richest export that the remote service will honor
// and persists it through the artifact store.
type Negotiator struct {
	client  output.ExportClient
	store   output.ArtifactStore
	sink    ArtifactSink
	metrics output.MetricsCollector
	logger  *slog.Logger
	cfg     NegotiatorConfig
}

// NewNegotiator creates a new negotiator. sink may be nil.
func NewNegotiator(
	client output.ExportClient,
	store output.ArtifactStore,
	sink ArtifactSink,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg NegotiatorConfig,
) *Negotiator {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &Negotiator{
		client:  client,
		store:   store,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// searchState is the state of a candidate search.
type searchState int

const (
	searchSearching searchState = iota
	searchFound
	searchExhausted
)

// searchResult is the terminal state of a candidate search.
type searchResult struct {
	state    searchState
	artifact *domain.Artifact
	last     domain.Candidate // Last candidate attempted
	attempts []domain.Attempt
}

// NegotiateSingle runs the resolution ladder with the single-file band set.
// When no rung succeeds it continues with NegotiateAdaptive.
func (n *Negotiator) NegotiateSingle(ctx context.Context, img domain.ImageRef, region domain.Region, budget domain.SizeBudget) (*domain.Outcome, error) {
	start := time.Now()
	if err := n.prepare(region); err != nil {
		return nil, err
	}

	candidates := LadderCandidates(region, n.cfg.SingleBands, n.cfg.Ladder)
	n.logger.Info("single-file negotiation",
		"image", img,
		"bands", n.cfg.SingleBands.String(),
		"scales", n.cfg.Ladder.Sequence(),
	)

	res, err := n.search(ctx, domain.StrategySingle, img, region, candidates, domain.ModeSingle)
	if err != nil {
		return nil, n.abort(domain.StrategySingle, start, err)
	}

	if res.state == searchFound {
		return n.finish(&domain.Outcome{
			Strategy:  domain.StrategySingle,
			Artifacts: []domain.Artifact{*res.artifact},
			Attempts:  res.attempts,
		}, start), nil
	}

	n.logger.Warn("single-file ladder exhausted, falling back to adaptive search",
		"attempts", len(res.attempts),
	)
	return n.negotiateAdaptive(ctx, img, region, budget, []string{domain.StrategySingle}, res.attempts, start)
}

// NegotiateAdaptive runs the size-sorted exhaustive search and, if every
// candidate fails, one level of quadrant tiling.
func (n *Negotiator) NegotiateAdaptive(ctx context.Context, img domain.ImageRef, region domain.Region, budget domain.SizeBudget) (*domain.Outcome, error) {
	start := time.Now()
	if err := n.prepare(region); err != nil {
		return nil, err
	}
	return n.negotiateAdaptive(ctx, img, region, budget, nil, nil, start)
}

func (n *Negotiator) negotiateAdaptive(
	ctx context.Context,
	img domain.ImageRef,
	region domain.Region,
	budget domain.SizeBudget,
	exhausted []string,
	attempts []domain.Attempt,
	start time.Time,
) (*domain.Outcome, error) {
	candidates := ExhaustiveCandidates(region, n.cfg.BandSets, n.cfg.Resolutions, budget)
	n.logger.Info("adaptive negotiation",
		"image", img,
		"budget", domain.FormatEstimate(float64(budget.MaxBytes)),
		"tolerance", budget.Tolerance,
		"candidates", len(candidates),
		"fallback_only", len(candidates) == 1 && candidates[0].Fallback,
	)

	res, err := n.search(ctx, domain.StrategyAdaptive, img, region, candidates, domain.ModeAdaptive)
	attempts = append(attempts, res.attempts...)
	if err != nil {
		return nil, n.abort(domain.StrategyAdaptive, start, err)
	}

	if res.state == searchFound {
		return n.finish(&domain.Outcome{
			Strategy:  domain.StrategyAdaptive,
			Artifacts: []domain.Artifact{*res.artifact},
			Attempts:  attempts,
		}, start), nil
	}
	exhausted = append(exhausted, domain.StrategyAdaptive)

	n.logger.Warn("all single download candidates failed, falling back to tiled downloads",
		"tiles", 4,
		"candidate", res.last.String(),
	)

	outcome, err := n.tile(ctx, img, region, res.last)
	if outcome != nil {
		attempts = append(attempts, outcome.Attempts...)
	}
	if err != nil {
		return nil, n.abort(domain.StrategyTiled, start, err)
	}
	exhausted = append(exhausted, domain.StrategyTiled)

	if len(outcome.Artifacts) == 0 {
		n.metrics.IncNegotiations(domain.StrategyTiled, false)
		n.metrics.ObserveNegotiationDuration(time.Since(start))
		exhaustion := &domain.ExhaustionError{Strategies: exhausted, Attempts: attempts}
		n.logger.Error("export negotiation exhausted",
			"strategies", exhausted,
			"attempts", len(attempts),
		)
		return nil, exhaustion
	}

	outcome.Attempts = attempts
	return n.finish(outcome, start), nil
}

// search tries each candidate once, in order, until one yields an artifact.
// Per-candidate failures move the search on; only cancellation and, when
// configured, unclassifiable service failures end it early.
func (n *Negotiator) search(
	ctx context.Context,
	strategy string,
	img domain.ImageRef,
	region domain.Region,
	candidates []domain.Candidate,
	mode domain.ExportMode,
) (searchResult, error) {
	res := searchResult{state: searchSearching}

	for _, cand := range candidates {
		res.last = cand
		name := n.name(mode, 0, cand)

		artifact, err := n.attempt(ctx, strategy, img, region, cand, name)
		res.attempts = append(res.attempts, domain.Attempt{
			Strategy:  strategy,
			Candidate: cand,
			Artifact:  artifactName(artifact),
			Err:       err,
		})

		if err == nil {
			res.state = searchFound
			res.artifact = artifact
			return res, nil
		}
		if fatal := n.fatal(ctx, err); fatal != nil {
			return res, fatal
		}
	}

	res.state = searchExhausted
	return res, nil
}

// tile requests the four quadrants of the region with one candidate. Each
// tile is independent; a failed tile is reported and skipped.
func (n *Negotiator) tile(
	ctx context.Context,
	img domain.ImageRef,
	region domain.Region,
	cand domain.Candidate,
) (*domain.Outcome, error) {
	outcome := &domain.Outcome{Strategy: domain.StrategyTiled}
	if cand.Bands.Len() == 0 {
		n.logger.Error("no candidate available for tiling")
		outcome.FailedTiles = []int{1, 2, 3, 4}
		return outcome, nil
	}

	for _, t := range region.Quadrants() {
		cand := cand
		cand.EstimatedBytes = domain.EstimateRegion(t.Region, cand.Bands.Len(), cand.Resolution)
		name := n.name(domain.ModeTiled, t.Index, cand)

		n.logger.Info("tile attempting download", "tile", t.Index, "position", t.Position)
		artifact, err := n.attempt(ctx, domain.StrategyTiled, img, t.Region, cand, name)
		outcome.Attempts = append(outcome.Attempts, domain.Attempt{
			Strategy:  domain.StrategyTiled,
			Candidate: cand,
			Tile:      t.Index,
			Artifact:  artifactName(artifact),
			Err:       err,
		})

		if err != nil {
			n.logger.Warn("tile download failed", "tile", t.Index, "position", t.Position, "error", err)
			outcome.FailedTiles = append(outcome.FailedTiles, t.Index)
			if fatal := n.fatal(ctx, err); fatal != nil {
				return outcome, fatal
			}
			continue
		}
		outcome.Artifacts = append(outcome.Artifacts, *artifact)
	}

	return outcome, nil
}

// attempt issues one export request and materializes its locator.
func (n *Negotiator) attempt(
	ctx context.Context,
	strategy string,
	img domain.ImageRef,
	region domain.Region,
	cand domain.Candidate,
	name domain.ArtifactName,
) (*domain.Artifact, error) {
	n.logger.Info("trying export candidate",
		"strategy", strategy,
		"bands", cand.Bands.String(),
		"scale", cand.Resolution,
		"estimate", domain.FormatEstimate(cand.EstimatedBytes),
		"fallback", cand.Fallback,
		"tile", name.Tile,
	)

	loc, err := n.client.RequestDownload(ctx, domain.ExportRequest{
		Image:      img,
		Region:     region,
		Bands:      cand.Bands,
		Resolution: cand.Resolution,
	})
	if err == nil && loc.IsZero() {
		err = &domain.ExportError{Kind: domain.FailureOther, Message: "service returned no download locator"}
	}
	if err != nil {
		var exportErr *domain.ExportError
		if !errors.As(err, &exportErr) {
			err = &domain.ExportError{Kind: domain.FailureUnknown, Err: err}
		}
		kind := domain.KindOf(err)
		n.metrics.IncAttempts(strategy, kind.String())
		n.logger.Warn("candidate failed", "strategy", strategy, "kind", kind.String(), "scale", cand.Resolution, "error", err)
		return nil, err
	}

	artifact, err := n.store.Materialize(ctx, loc, name.String())
	if err != nil {
		n.metrics.IncAttempts(strategy, storeFailureLabel(err))
		n.logger.Warn("candidate download failed", "strategy", strategy, "name", name.String(), "error", err)
		return nil, fmt.Errorf("materializing %s: %w", name.String(), err)
	}

	n.metrics.IncAttempts(strategy, "success")
	n.logger.Info("artifact ready",
		"strategy", strategy,
		"name", artifact.Name,
		"path", artifact.Path,
		"size", artifact.Size,
		"source", artifact.Source,
		"skipped", artifact.Skipped,
	)

	n.publish(ctx, domain.ArtifactRecord{
		Artifact:   *artifact,
		Image:      img,
		Mode:       name.Mode,
		Tile:       name.Tile,
		Resolution: cand.Resolution,
		Bands:      cand.Bands,
	})
	return artifact, nil
}

// publish hands an artifact to the sink. Failures do not undo the artifact.
func (n *Negotiator) publish(ctx context.Context, rec domain.ArtifactRecord) {
	if n.sink == nil {
		return
	}
	if err := n.sink.Publish(ctx, rec); err != nil {
		n.logger.Error("failed to publish artifact", "name", rec.Name, "error", err)
	}
}

// fatal returns a non-nil error if the negotiation must stop.
func (n *Negotiator) fatal(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if n.cfg.FailOnUnknown {
		var exportErr *domain.ExportError
		if errors.As(err, &exportErr) && exportErr.Kind == domain.FailureUnknown {
			return fmt.Errorf("unclassified export failure: %w", err)
		}
	}
	return nil
}

// prepare validates the region and logs its area.
func (n *Negotiator) prepare(region domain.Region) error {
	if err := region.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRegion, err)
	}
	if area, ok := region.Area(); ok {
		n.logger.Info("region area", "km2", fmt.Sprintf("%.2f", area/1e6))
	} else {
		n.logger.Warn("region area unknown, size estimates disabled")
	}
	return nil
}

func (n *Negotiator) finish(outcome *domain.Outcome, start time.Time) *domain.Outcome {
	outcome.Duration = time.Since(start)
	n.metrics.IncNegotiations(outcome.Strategy, true)
	n.metrics.ObserveNegotiationDuration(outcome.Duration)

	n.logger.Info("export negotiation finished",
		"strategy", outcome.Strategy,
		"artifacts", len(outcome.Artifacts),
		"attempts", len(outcome.Attempts),
		"failed_tiles", outcome.FailedTiles,
		"duration", outcome.Duration,
	)
	return outcome
}

func (n *Negotiator) abort(strategy string, start time.Time, err error) error {
	n.metrics.IncNegotiations(strategy, false)
	n.metrics.ObserveNegotiationDuration(time.Since(start))
	n.logger.Error("export negotiation aborted", "strategy", strategy, "error", err)
	return err
}

func (n *Negotiator) name(mode domain.ExportMode, tile int, cand domain.Candidate) domain.ArtifactName {
	return domain.ArtifactName{
		Prefix:     n.cfg.Prefix,
		Mode:       mode,
		Tile:       tile,
		Resolution: cand.Resolution,
		Bands:      cand.Bands,
		Extension:  n.cfg.Extension,
	}
}

func artifactName(a *domain.Artifact) string {
	if a == nil {
		return ""
	}
	return a.Name
}

// storeFailureLabel maps a store error to a metrics outcome label.
func storeFailureLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrFormat):
		return "format"
	case errors.Is(err, domain.ErrTransfer):
		return "transfer"
	default:
		return "store"
	}
}
