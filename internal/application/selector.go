package application

import (
	"sort"

	"github.com/jobrunner/geoexport/internal/domain"
)

// LadderCandidates pairs every resolution of the ladder with one band set,
// in ladder order. Candidates are not filtered by size: the ladder itself
// trades detail against size.
func LadderCandidates(region domain.Region, bands domain.BandSet, ladder domain.ResolutionLadder) []domain.Candidate {
	seq := ladder.Sequence()
	candidates := make([]domain.Candidate, 0, len(seq))
	for _, res := range seq {
		candidates = append(candidates, domain.Candidate{
			Bands:          bands,
			Resolution:     res,
			EstimatedBytes: domain.EstimateRegion(region, bands.Len(), res),
		})
	}
	return candidates
}

// ExhaustiveCandidates builds the band-set × resolution cross product, drops
// every candidate whose estimate exceeds the budget and sorts the rest by
// ascending estimate. Ties keep generation order (band sets cheap to rich,
// then resolutions as given).
//
// When nothing fits, a single fallback candidate is returned: the cheapest
// band set at the coarsest resolution, whatever its estimate.
func ExhaustiveCandidates(region domain.Region, bandSets []domain.BandSet, resolutions []float64, budget domain.SizeBudget) []domain.Candidate {
	var candidates []domain.Candidate
	for _, bands := range bandSets {
		for _, res := range resolutions {
			est := domain.EstimateRegion(region, bands.Len(), res)
			if !budget.Admits(est) {
				continue
			}
			candidates = append(candidates, domain.Candidate{
				Bands:          bands,
				Resolution:     res,
				EstimatedBytes: est,
			})
		}
	}

	if len(candidates) == 0 {
		return []domain.Candidate{fallbackCandidate(region, bandSets, resolutions)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EstimatedBytes < candidates[j].EstimatedBytes
	})
	return candidates
}

// fallbackCandidate returns the cheapest band set at the coarsest resolution.
func fallbackCandidate(region domain.Region, bandSets []domain.BandSet, resolutions []float64) domain.Candidate {
	var bands domain.BandSet
	if len(bandSets) > 0 {
		bands = bandSets[0]
	}

	var coarsest float64
	for _, res := range resolutions {
		if res > coarsest {
			coarsest = res
		}
	}

	return domain.Candidate{
		Bands:          bands,
		Resolution:     coarsest,
		EstimatedBytes: domain.EstimateRegion(region, bands.Len(), coarsest),
		Fallback:       true,
	}
}
