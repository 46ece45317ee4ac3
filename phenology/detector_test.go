package phenology

import (
	"context"
	"math"
	"testing"
	"time"

	"cropwatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time { return day0.AddDate(0, 0, n) }

func series(pairs ...float64) []models.Observation {
	out := make([]models.Observation, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.Observation{Date: dayN(int(pairs[i])), Value: pairs[i+1]})
	}
	return out
}

func TestDetectCurrentStage_WheatEarlySeason(t *testing.T) {
	d := NewDetector(nil, nil)
	planted := dayN(0)

	res, err := d.DetectCurrentStage(Request{
		FieldID:      "f-1",
		Crop:         "wheat",
		Observations: series(0, 0.18, 1, 0.25, 2, 0.30),
		PlantingDate: &planted,
	})
	require.NoError(t, err)

	require.NotNil(t, res.SOS)
	assert.Equal(t, dayN(1), *res.SOS)
	assert.Equal(t, models.StageGermination, res.CurrentStage)
	assert.Equal(t, models.StageEmergence, res.NextStage)
	assert.Equal(t, 1, res.DaysInStage)
	assert.Equal(t, 6, res.DaysToNextStage)
	require.NotNil(t, res.HarvestEstimate)
	assert.Equal(t, dayN(1+140), *res.HarvestEstimate)
	assert.GreaterOrEqual(t, res.Confidence, 0.4)
	assert.LessOrEqual(t, res.Confidence, 0.95)
}

func TestDetectCurrentStage_InvalidInput(t *testing.T) {
	d := NewDetector(nil, nil)

	_, err := d.DetectCurrentStage(Request{Crop: "wheat"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = d.DetectCurrentStage(Request{Crop: "quinoa", Observations: series(0, 0.3)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = d.DetectCurrentStage(Request{Crop: "wheat", Observations: []models.Observation{{Date: day0, Value: math.NaN()}}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDetectCurrentStage_CropNameIsNormalized(t *testing.T) {
	d := NewDetector(nil, nil)
	res, err := d.DetectCurrentStage(Request{Crop: " Wheat ", Observations: series(0, 0.05)})
	require.NoError(t, err)
	assert.Equal(t, models.CropKind("wheat"), res.Crop)
}

func TestDetectCurrentStage_NoSeasonDegrades(t *testing.T) {
	d := NewDetector(nil, nil)

	bare, err := d.DetectCurrentStage(Request{Crop: "corn", Observations: series(0, 0.05, 5, 0.06, 10, 0.07)})
	require.NoError(t, err)
	assert.Equal(t, models.StageBareSoil, bare.CurrentStage)
	assert.Nil(t, bare.SOS)
	assert.Equal(t, models.StageGermination, bare.NextStage)

	belowEmergence, err := d.DetectCurrentStage(Request{Crop: "corn", Observations: series(0, 0.15, 5, 0.15, 10, 0.15)})
	require.NoError(t, err)
	assert.Equal(t, models.StageBareSoil, belowEmergence.CurrentStage, "0.15 is under the emergence threshold")
	assert.Nil(t, belowEmergence.SOS)

	rising, err := d.DetectCurrentStage(Request{Crop: "corn", Observations: series(0, 0.08, 5, 0.12, 10, 0.15)})
	require.NoError(t, err)
	assert.Equal(t, models.StageBareSoil, rising.CurrentStage)

	atEmergence, err := d.DetectCurrentStage(Request{Crop: "corn", Observations: series(0, 0.20)})
	require.NoError(t, err)
	assert.Nil(t, atEmergence.SOS)
	assert.Equal(t, models.StageGermination, atEmergence.CurrentStage)
	assert.Equal(t, models.StageEmergence, atEmergence.NextStage)
}

// seasonSeries rises through the emergence threshold exactly on sosDay and
// then plateaus, so the only season marker is the start.
func seasonSeries(sosDay, days int) []models.Observation {
	out := make([]models.Observation, 0, days)
	for i := 0; i < days; i++ {
		v := 0.10
		if i >= sosDay {
			v = math.Min(0.85, 0.25+0.02*float64(i-sosDay))
		}
		out = append(out, models.Observation{Date: dayN(i), Value: v})
	}
	return out
}

func TestDetectCurrentStage_TransitionsFollowProfile(t *testing.T) {
	d := NewDetector(nil, nil)
	prof, ok := d.Profiles().Lookup("wheat")
	require.True(t, ok)

	const sosDay = 10
	full := seasonSeries(sosDay, sosDay+prof.SeasonDays())

	for i := 1; i < len(prof.Stages); i++ {
		boundary := sosDay + prof.startDay(i)
		want := prof.Stages[i].Stage

		// Find the first sample classified as the new stage.
		detectedAt := -1
		for end := boundary - 2; end <= boundary+2 && end < len(full); end++ {
			res, err := d.DetectCurrentStage(Request{Crop: "wheat", Observations: full[:end+1]})
			require.NoError(t, err)
			if res.CurrentStage == want {
				detectedAt = end
				break
			}
		}
		require.NotEqual(t, -1, detectedAt, "stage %s never detected", want)
		assert.LessOrEqual(t, math.Abs(float64(detectedAt-boundary)), 1.0,
			"stage %s detected at day %d, profile transition at day %d", want, detectedAt, boundary)
	}
}

func TestDetectCurrentStage_PostSeason(t *testing.T) {
	d := NewDetector(nil, nil)
	obs := series(
		0, 0.10, 10, 0.22, 20, 0.35, 30, 0.50, 40, 0.70, 50, 0.80,
		60, 0.75, 70, 0.55, 80, 0.30, 90, 0.15, 100, 0.12,
	)

	res, err := d.DetectCurrentStage(Request{Crop: "corn", Observations: obs})
	require.NoError(t, err)
	require.NotNil(t, res.EOS)
	require.NotNil(t, res.PeakDate)
	assert.Equal(t, dayN(50), *res.PeakDate)
	assert.True(t, res.EOS.After(*res.PeakDate))
	assert.Equal(t, models.StageSenescence, res.CurrentStage, "corn declares senescence")
	assert.Equal(t, models.StageHarvested, res.NextStage)

	wheat, err := d.DetectCurrentStage(Request{Crop: "wheat", Observations: obs})
	require.NoError(t, err)
	assert.Equal(t, models.StageSenescence, wheat.CurrentStage)
	assert.Equal(t, models.StageHarvested, wheat.NextStage)
	require.NotNil(t, wheat.StageStart)
	assert.Equal(t, *wheat.EOS, *wheat.StageStart)

	harvested, err := d.DetectCurrentStage(Request{Crop: "corn", Observations: append(obs, series(110, 0.05, 120, 0.04, 130, 0.04)...)})
	require.NoError(t, err)
	assert.Equal(t, models.StageHarvested, harvested.CurrentStage)
	assert.Equal(t, 100.0, harvested.SeasonProgress)
}

func TestDetectCurrentStage_StageAlwaysInProfile(t *testing.T) {
	d := NewDetector(nil, nil)
	for _, crop := range d.Profiles().Crops() {
		prof, _ := d.Profiles().Lookup(crop)
		full := seasonSeries(5, 5+prof.SeasonDays()+20)
		for end := 0; end < len(full); end += 7 {
			res, err := d.DetectCurrentStage(Request{Crop: crop, Observations: full[:end+1]})
			require.NoError(t, err)
			inProfile := prof.has(res.CurrentStage)
			boundaryState := res.CurrentStage == models.StageBareSoil || res.CurrentStage == models.StageHarvested
			assert.True(t, inProfile || boundaryState, "%s: stage %s", crop, res.CurrentStage)
			assert.GreaterOrEqual(t, res.Confidence, 0.4)
			assert.LessOrEqual(t, res.Confidence, 0.95)
		}
	}
}

func TestDetectCurrentStage_UnsortedInputIsNotMutated(t *testing.T) {
	d := NewDetector(nil, nil)
	obs := series(2, 0.30, 0, 0.18, 1, 0.25)
	orig := append([]models.Observation(nil), obs...)

	res, err := d.DetectCurrentStage(Request{Crop: "wheat", Observations: obs})
	require.NoError(t, err)
	assert.Equal(t, dayN(2), res.ObservedAt)
	assert.Equal(t, orig, obs)
}

func TestRecommendations(t *testing.T) {
	prof, _ := DefaultProfiles().Lookup("wheat")

	vigorous := recommendations(prof, models.StageTillering, 0.5)
	require.Len(t, vigorous, 2, "stage advice and the tillering critical period")
	assert.Equal(t, stageAdvice[models.StageTillering], vigorous[0])

	weak := recommendations(prof, models.StageTillering, 0.2)
	require.Len(t, weak, 3)
	assert.Equal(t, lowVigorWarning, weak[1])

	ripening := recommendations(prof, models.StageRipening, 0.2)
	assert.Len(t, ripening, 1, "no low-vigor warning outside vegetative and flowering stages")
}

func TestRangeMatch(t *testing.T) {
	assert.Equal(t, 1.0, rangeMatch(0.25, 0.25, 0.55))
	assert.Equal(t, 1.0, rangeMatch(0.55, 0.25, 0.55))
	assert.Equal(t, 1.0, rangeMatch(0.40, 0.25, 0.55))

	prev := 1.0
	for dist := 0.01; dist < 0.6; dist += 0.01 {
		below := rangeMatch(0.25-dist, 0.25, 0.55)
		above := rangeMatch(0.55+dist, 0.25, 0.55)
		assert.LessOrEqual(t, below, prev)
		assert.InDelta(t, below, above, 1e-9)
		assert.GreaterOrEqual(t, below, 0.3)
		prev = below
	}
	assert.Less(t, rangeMatch(0.0, 0.25, 0.55), 1.0)
}

func TestConfidenceBounds(t *testing.T) {
	assert.Equal(t, 0.95, confidence(0.4, 0.3, 0.5, 50))
	assert.Equal(t, 0.4, confidence(-1, 0.3, 0.5, 0))
	assert.InDelta(t, 0.6+0.4*0.3, confidence(0.4, 0.3, 0.5, 3), 1e-9)
}

func TestSmooth(t *testing.T) {
	got := smooth([]float64{0, 1, 2, 3, 4, 5, 6}, 5)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6}, got, "linear series is unchanged by a centered mean")

	got = smooth([]float64{0.18, 0.25, 0.30}, 5)
	assert.Equal(t, 0.18, got[0])
	assert.InDelta(t, (0.18+0.25+0.30)/3, got[1], 1e-12)
	assert.Equal(t, 0.30, got[2])
}

func TestDetectSOS(t *testing.T) {
	assert.Equal(t, 2, detectSOS([]float64{0.1, 0.15, 0.21, 0.3, 0.4}, 0))
	assert.Equal(t, 1, detectSOS([]float64{0.1, 0.25, 0.22, 0.21}, 0), "fallback to first point above threshold")
	assert.Equal(t, -1, detectSOS([]float64{0.1, 0.12}, 0))
	assert.Equal(t, 4, detectSOS([]float64{0.3, 0.4, 0.1, 0.1, 0.25, 0.3, 0.35}, 2), "search starts at the planting index")
}

func TestGetPhenologyTimeline(t *testing.T) {
	d := NewDetector(nil, nil)
	planted := time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)

	tl, err := d.GetPhenologyTimeline("wheat", planted)
	require.NoError(t, err)

	assert.Equal(t, 140, tl.SeasonDays)
	assert.Equal(t, planted.AddDate(0, 0, 140), tl.ExpectedHarvest)
	require.Len(t, tl.Stages, 9)
	assert.Equal(t, models.StageSenescence, tl.Stages[8].Stage)
	assert.Equal(t, planted, tl.Stages[0].Start)
	for i := 1; i < len(tl.Stages); i++ {
		assert.Equal(t, tl.Stages[i-1].End, tl.Stages[i].Start)
	}
	assert.Equal(t, tl.ExpectedHarvest, tl.Stages[len(tl.Stages)-1].End)
	require.Len(t, tl.CriticalPeriods, 3)
	assert.Equal(t, models.StageTillering, tl.CriticalPeriods[0].Stage)
	assert.Equal(t, tl.Stages[2].Start, tl.CriticalPeriods[0].Start)

	_, err = d.GetPhenologyTimeline("quinoa", planted)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = d.GetPhenologyTimeline("wheat", time.Time{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDetectMany(t *testing.T) {
	d := NewDetector(nil, nil)
	reqs := []Request{
		{FieldID: "a", Crop: "wheat", Observations: series(0, 0.18, 1, 0.25, 2, 0.30)},
		{FieldID: "b", Crop: "corn", Observations: series(0, 0.05)},
		{FieldID: "c", Crop: "rice", Observations: seasonSeries(3, 60)},
	}

	res, err := d.DetectMany(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for i, r := range res {
		assert.Equal(t, reqs[i].FieldID, r.FieldID)
	}
	assert.Equal(t, models.StageBareSoil, res[1].CurrentStage)

	reqs = append(reqs, Request{FieldID: "bad", Crop: "wheat"})
	_, err = d.DetectMany(context.Background(), reqs)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorContains(t, err, `"bad"`)
}
