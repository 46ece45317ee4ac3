package phenology

import (
	"sort"
	"time"

	"cropwatch/models"

	"github.com/montanaflynn/stats"
)

const (
	smoothingWindow    = 5
	emergenceThreshold = 0.20
	harvestThreshold   = 0.25
	bareSoilThreshold  = 0.10
	lowVigorThreshold  = 0.30
)

// sortedCopy returns the observations ordered by date.
func sortedCopy(obs []models.Observation) []models.Observation {
	out := append([]models.Observation(nil), obs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// smooth applies a centered moving average. Near the ends the window
// shrinks symmetrically so every point stays centered.
func smooth(values []float64, window int) []float64 {
	half := window / 2
	out := make([]float64, len(values))
	for i := range values {
		h := min(half, i, len(values)-1-i)
		m, err := stats.Mean(stats.Float64Data(values[i-h : i+h+1]))
		if err != nil {
			m = values[i]
		}
		out[i] = m
	}
	return out
}

// detectSOS returns the index of the start of season, or -1. The search
// starts at from. A sustained upward crossing of the emergence threshold
// wins; otherwise the first point above the threshold is used.
func detectSOS(s []float64, from int) int {
	for i := from; i+2 < len(s); i++ {
		crossed := s[i] >= emergenceThreshold && (i == from || s[i-1] < emergenceThreshold)
		if crossed && s[i+1] > s[i] && s[i+2] > s[i+1] {
			return i
		}
	}
	for i := from; i < len(s); i++ {
		if s[i] > emergenceThreshold {
			return i
		}
	}
	return -1
}

// detectPeak returns the index of the first maximum.
func detectPeak(s []float64) int {
	best := 0
	for i, v := range s {
		if v > s[best] {
			best = i
		}
	}
	return best
}

// detectEOS returns the first index after peak that falls below the
// harvest-ready threshold, or -1.
func detectEOS(s []float64, peak int) int {
	for i := peak + 1; i < len(s); i++ {
		if s[i] < harvestThreshold {
			return i
		}
	}
	return -1
}

// firstAtOrAfter returns the first index whose date is not before t.
func firstAtOrAfter(obs []models.Observation, t time.Time) int {
	return sort.Search(len(obs), func(i int) bool { return !obs[i].Date.Before(t) })
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
