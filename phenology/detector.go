// Package phenology turns a dated vegetation-index series into a growth
// stage estimate for a crop. Every function is pure and safe to call from
// many goroutines.
package phenology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"cropwatch/models"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidInput marks input-contract violations: empty series, unknown
// crop, malformed profile.
var ErrInvalidInput = errors.New("invalid input")

// Request is one detection input.
type Request struct {
	FieldID      string
	Crop         models.CropKind
	Observations []models.Observation
	PlantingDate *time.Time
	// AsOf is the reference date; zero means the last observation.
	AsOf time.Time
}

// Detector classifies growth stages against a read-only profile table.
type Detector struct {
	profiles Profiles
	logger   *slog.Logger
}

// NewDetector returns a detector over profiles, or the built-in table when
// profiles is nil.
func NewDetector(profiles Profiles, logger *slog.Logger) *Detector {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{profiles: profiles, logger: logger}
}

// Profiles exposes the table the detector was built with.
func (d *Detector) Profiles() Profiles { return d.profiles }

func (d *Detector) profile(crop models.CropKind) (CropProfile, error) {
	p, ok := d.profiles.Lookup(crop)
	if !ok {
		return CropProfile{}, fmt.Errorf("%w: unknown crop %q", ErrInvalidInput, crop)
	}
	return p, nil
}

// stageFix is the classification of the latest observation.
type stageFix struct {
	stage    models.GrowthStage
	start    *time.Time
	daysIn   int
	next     models.GrowthStage
	daysNext int
	progress float64
	harvest  *time.Time
	indexMin float64
	indexMax float64
}

// DetectCurrentStage classifies the latest state of a field.
func (d *Detector) DetectCurrentStage(req Request) (*models.PhenologyResult, error) {
	if len(req.Observations) == 0 {
		return nil, fmt.Errorf("%w: empty observation series", ErrInvalidInput)
	}
	p, err := d.profile(req.Crop)
	if err != nil {
		return nil, err
	}
	for _, o := range req.Observations {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return nil, fmt.Errorf("%w: non-finite index value on %s", ErrInvalidInput, o.Date.Format("2006-01-02"))
		}
	}

	obs := sortedCopy(req.Observations)
	values := make([]float64, len(obs))
	for i, o := range obs {
		values[i] = o.Value
	}
	sm := smooth(values, smoothingWindow)

	from := 0
	if req.PlantingDate != nil {
		from = firstAtOrAfter(obs, *req.PlantingDate)
	}
	cur := len(obs) - 1
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = obs[cur].Date
	}

	var markers models.SeasonMarkers
	sos := detectSOS(sm, from)
	peak := -1
	eos := -1
	if from < len(sm) {
		peak = from + detectPeak(sm[from:])
		pv := sm[peak]
		markers.PeakDate = datePtr(obs[peak].Date)
		markers.PeakValue = &pv
	}
	if sos >= 0 {
		markers.SOS = datePtr(obs[sos].Date)
		eos = detectEOS(sm, max(peak, sos))
		if eos >= 0 {
			markers.EOS = datePtr(obs[eos].Date)
		}
	}

	value := sm[cur]
	var fix stageFix
	switch {
	case sos < 0:
		fix = preSeason(p, obs, sm, from, value, req.PlantingDate, asOf)
	case eos >= 0 && cur >= eos:
		fix = postSeason(p, obs, sm, sos, eos, asOf)
	default:
		fix = inSeason(p, obs[sos].Date, asOf)
	}

	res := &models.PhenologyResult{
		FieldID:         req.FieldID,
		Crop:            p.Crop,
		CurrentStage:    fix.stage,
		StageStart:      fix.start,
		DaysInStage:     fix.daysIn,
		NextStage:       fix.next,
		DaysToNextStage: fix.daysNext,
		SeasonProgress:  round1(fix.progress),
		IndexValue:      value,
		Confidence:      confidence(value, fix.indexMin, fix.indexMax, len(obs)),
		HarvestEstimate: fix.harvest,
		Recommendations: recommendations(p, fix.stage, value),
		ObservedAt:      obs[cur].Date,
		SeasonMarkers:   markers,
	}
	d.logger.Debug("phenology_detected",
		"field_id", req.FieldID, "crop", p.Crop, "stage", res.CurrentStage,
		"observations", len(obs), "confidence", res.Confidence)
	return res, nil
}

// preSeason classifies a series without a detectable start of season:
// bare soil below the emergence threshold, germination at or above it.
func preSeason(p CropProfile, obs []models.Observation, sm []float64, from int, value float64, planting *time.Time, asOf time.Time) stageFix {
	season := p.SeasonDays()
	if value < emergenceThreshold {
		r := boundaryRanges[models.StageBareSoil]
		fix := stageFix{stage: models.StageBareSoil, next: p.Stages[0].Stage, indexMin: r[0], indexMax: r[1]}
		if planting != nil {
			fix.harvest = datePtr(planting.AddDate(0, 0, season))
		}
		return fix
	}

	i := p.indexOf(models.StageGermination)
	if i < 0 {
		i = 0
	}
	spec := p.Stages[i]
	fix := stageFix{stage: spec.Stage, next: nextStage(p, i), indexMin: spec.IndexMin, indexMax: spec.IndexMax}

	var start time.Time
	if planting != nil {
		start = *planting
		fix.harvest = datePtr(planting.AddDate(0, 0, season))
		fix.progress = pct(daysBetween(start, asOf), season)
	} else {
		for k := from; k < len(sm); k++ {
			if sm[k] >= emergenceThreshold {
				start = obs[k].Date
				break
			}
		}
	}
	if !start.IsZero() {
		fix.start = datePtr(start)
		fix.daysIn = max(0, daysBetween(start, asOf))
	}
	fix.daysNext = max(0, spec.DurationDays-fix.daysIn)
	return fix
}

// inSeason maps elapsed days since SOS onto the cumulative stage table.
func inSeason(p CropProfile, sosDate, asOf time.Time) stageFix {
	season := p.SeasonDays()
	elapsed := max(0, daysBetween(sosDate, asOf))

	i := len(p.Stages) - 1
	for k := range p.Stages {
		if elapsed < p.startDay(k+1) {
			i = k
			break
		}
	}
	spec := p.Stages[i]
	start := p.startDay(i)
	daysIn := elapsed - start
	return stageFix{
		stage:    spec.Stage,
		start:    datePtr(sosDate.AddDate(0, 0, start)),
		daysIn:   daysIn,
		next:     nextStage(p, i),
		daysNext: max(0, spec.DurationDays-daysIn),
		progress: pct(elapsed, season),
		harvest:  datePtr(sosDate.AddDate(0, 0, season)),
		indexMin: spec.IndexMin,
		indexMax: spec.IndexMax,
	}
}

// postSeason classifies a series past its end of season: senescence until
// the index drops back to bare soil, harvested afterwards.
func postSeason(p CropProfile, obs []models.Observation, sm []float64, sos, eos int, asOf time.Time) stageFix {
	cur := len(sm) - 1
	for k := eos; k <= cur; k++ {
		if sm[k] < bareSoilThreshold {
			r := boundaryRanges[models.StageHarvested]
			at := obs[k].Date
			return stageFix{
				stage:    models.StageHarvested,
				start:    datePtr(at),
				daysIn:   max(0, daysBetween(at, asOf)),
				progress: 100,
				harvest:  datePtr(at),
				indexMin: r[0],
				indexMax: r[1],
			}
		}
	}

	i := p.indexOf(models.StageSenescence)
	if i < 0 {
		// Loaded profiles may omit senescence; the last declared stage stands in.
		i = len(p.Stages) - 1
	}
	spec := p.Stages[i]
	eosDate := obs[eos].Date
	daysIn := max(0, daysBetween(eosDate, asOf))
	return stageFix{
		stage:    spec.Stage,
		start:    datePtr(eosDate),
		daysIn:   daysIn,
		next:     nextStage(p, i),
		daysNext: max(0, spec.DurationDays-daysIn),
		progress: pct(daysBetween(obs[sos].Date, asOf), p.SeasonDays()),
		harvest:  datePtr(eosDate.AddDate(0, 0, spec.DurationDays)),
		indexMin: spec.IndexMin,
		indexMax: spec.IndexMax,
	}
}

// boundaryRanges are the expected index ranges of the two states outside
// any crop profile.
var boundaryRanges = map[models.GrowthStage][2]float64{
	models.StageBareSoil:  {-0.20, 0.12},
	models.StageHarvested: {-0.20, 0.15},
}

func nextStage(p CropProfile, i int) models.GrowthStage {
	if i+1 < len(p.Stages) {
		return p.Stages[i+1].Stage
	}
	return models.StageHarvested
}

// rangeMatch is 1 inside [lo, hi] and decays linearly with the distance
// outside it, never below 0.3.
func rangeMatch(v, lo, hi float64) float64 {
	var dist float64
	switch {
	case v < lo:
		dist = lo - v
	case v > hi:
		dist = v - hi
	default:
		return 1
	}
	return math.Max(0.3, 1-2*dist)
}

func confidence(value, lo, hi float64, n int) float64 {
	density := math.Min(1, float64(n)/10)
	c := 0.6*rangeMatch(value, lo, hi) + 0.4*density
	return math.Round(math.Max(0.4, math.Min(0.95, c))*1000) / 1000
}

func pct(days, season int) float64 {
	if season <= 0 {
		return 0
	}
	return math.Max(0, math.Min(100, float64(days)/float64(season)*100))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func datePtr(t time.Time) *time.Time { return &t }

// GetPhenologyTimeline projects a crop profile onto the calendar from a
// planting date.
func (d *Detector) GetPhenologyTimeline(crop models.CropKind, planting time.Time) (*models.PhenologyTimeline, error) {
	if planting.IsZero() {
		return nil, fmt.Errorf("%w: planting date is required", ErrInvalidInput)
	}
	p, err := d.profile(crop)
	if err != nil {
		return nil, err
	}

	season := p.SeasonDays()
	tl := &models.PhenologyTimeline{
		Crop:            p.Crop,
		PlantingDate:    planting,
		ExpectedHarvest: planting.AddDate(0, 0, season),
		SeasonDays:      season,
		Stages:          make([]models.TimelineStage, 0, len(p.Stages)),
		CriticalPeriods: []models.CriticalWindow{},
	}
	windows := make(map[models.GrowthStage]models.TimelineStage, len(p.Stages))
	for i, s := range p.Stages {
		start := planting.AddDate(0, 0, p.startDay(i))
		ts := models.TimelineStage{
			Stage:        s.Stage,
			Name:         StageName(s.Stage),
			Start:        start,
			End:          start.AddDate(0, 0, s.DurationDays),
			DurationDays: s.DurationDays,
			IndexMin:     s.IndexMin,
			IndexMax:     s.IndexMax,
		}
		tl.Stages = append(tl.Stages, ts)
		windows[s.Stage] = ts
	}
	for _, c := range p.CriticalPeriods {
		w := windows[c.Stage]
		tl.CriticalPeriods = append(tl.CriticalPeriods, models.CriticalWindow{
			Stage: c.Stage, Start: w.Start, End: w.End, Note: c.Note,
		})
	}
	return tl, nil
}

// DetectMany runs DetectCurrentStage for many fields in parallel. Results
// keep the order of reqs; the first error cancels the rest.
func (d *Detector) DetectMany(ctx context.Context, reqs []Request) ([]*models.PhenologyResult, error) {
	out := make([]*models.PhenologyResult, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := d.DetectCurrentStage(req)
			if err != nil {
				return fmt.Errorf("field %q: %w", req.FieldID, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
