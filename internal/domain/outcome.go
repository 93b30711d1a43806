package domain

import "time"

// Negotiation strategies, in the order they are tried.
const (
	StrategySingle   = "single"
	StrategyAdaptive = "adaptive"
	StrategyTiled    = "tiled"
)

// Attempt records the outcome of one request/store cycle.
type Attempt struct {
	Strategy  string
	Candidate Candidate
	Tile      int    // 1-based tile index, 0 if not tiled
	Artifact  string // Final file name on success
	Err       error
}

// Succeeded returns true if the attempt produced an artifact.
func (a Attempt) Succeeded() bool {
	return a.Err == nil
}

// Outcome is the result of a successful negotiation.
type Outcome struct {
	Strategy    string     // Strategy that produced the artifacts
	Artifacts   []Artifact // One artifact, or one per successful tile
	Attempts    []Attempt  // Every attempt across all strategies
	FailedTiles []int      // Tiles that could not be materialized
	Duration    time.Duration
}

// Complete returns true if nothing was left out of the result.
func (o *Outcome) Complete() bool {
	return len(o.FailedTiles) == 0
}
