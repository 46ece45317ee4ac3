package models

import "time"

// GrowthStage is a crop developmental phase.
type GrowthStage string

const (
	StageBareSoil         GrowthStage = "bare_soil"
	StageGermination      GrowthStage = "germination"
	StageEmergence        GrowthStage = "emergence"
	StageLeafDevelopment  GrowthStage = "leaf_development"
	StageTillering        GrowthStage = "tillering"
	StageStemElongation   GrowthStage = "stem_elongation"
	StageBooting          GrowthStage = "booting"
	StageFlowering        GrowthStage = "flowering"
	StageFruitDevelopment GrowthStage = "fruit_development"
	StageRipening         GrowthStage = "ripening"
	StageSenescence       GrowthStage = "senescence"
	StageHarvested        GrowthStage = "harvested"
)

// AllStages lists every stage in developmental order.
var AllStages = []GrowthStage{
	StageBareSoil, StageGermination, StageEmergence, StageLeafDevelopment,
	StageTillering, StageStemElongation, StageBooting, StageFlowering,
	StageFruitDevelopment, StageRipening, StageSenescence, StageHarvested,
}

// Valid reports whether s is a known stage.
func (s GrowthStage) Valid() bool {
	for _, st := range AllStages {
		if st == s {
			return true
		}
	}
	return false
}

// CropKind identifies an entry of the crop profile table, e.g. "wheat".
type CropKind string

// Observation is one dated index sample (NDVI unless stated otherwise).
type Observation struct {
	Date  time.Time `bson:"date"  json:"date"`
	Value float64   `bson:"value" json:"value"`
}

// SeasonMarkers: Start / Peak / End of Season derived from a series.
type SeasonMarkers struct {
	SOS       *time.Time `bson:"sos,omitempty"      json:"sos,omitempty"`      // Start of Season
	PeakDate  *time.Time `bson:"peakDate,omitempty" json:"peakDate,omitempty"` // index peak date
	EOS       *time.Time `bson:"eos,omitempty"      json:"eos,omitempty"`      // End of Season
	PeakValue *float64   `bson:"peakValue,omitempty" json:"peakValue,omitempty"`
}

// PhenologyResult: recomputed fresh on every call; never mutated in place.
type PhenologyResult struct {
	FieldID         string          `bson:"fieldId"                   json:"fieldId"`
	Crop            CropKind        `bson:"crop"                      json:"crop"`
	CurrentStage    GrowthStage     `bson:"currentStage"              json:"currentStage"`
	StageStart      *time.Time      `bson:"stageStart,omitempty"      json:"stageStart,omitempty"`
	DaysInStage     int             `bson:"daysInStage"               json:"daysInStage"`
	NextStage       GrowthStage     `bson:"nextStage,omitempty"       json:"nextStage,omitempty"`
	DaysToNextStage int             `bson:"daysToNextStage"           json:"daysToNextStage"`
	SeasonProgress  float64         `bson:"seasonProgress"            json:"seasonProgress"` // percent 0..100
	IndexValue      float64         `bson:"indexValue"                json:"indexValue"`
	Confidence      float64         `bson:"confidence"                json:"confidence"` // 0..1
	HarvestEstimate *time.Time      `bson:"harvestEstimate,omitempty" json:"harvestEstimate,omitempty"`
	Recommendations []BilingualText `bson:"recommendations"           json:"recommendations"`
	ObservedAt      time.Time       `bson:"observedAt"                json:"observedAt"`

	SeasonMarkers `bson:",inline"`
}

// TimelineStage is one expected stage window on a planting calendar.
type TimelineStage struct {
	Stage        GrowthStage   `json:"stage"`
	Name         BilingualText `json:"name"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	DurationDays int           `json:"durationDays"`
	IndexMin     float64       `json:"indexMin"`
	IndexMax     float64       `json:"indexMax"`
}

// CriticalWindow is a critical period projected onto the calendar.
type CriticalWindow struct {
	Stage GrowthStage   `json:"stage"`
	Start time.Time     `json:"start"`
	End   time.Time     `json:"end"`
	Note  BilingualText `json:"note"`
}

// PhenologyTimeline is the expected season calendar from a planting date.
type PhenologyTimeline struct {
	Crop            CropKind         `json:"crop"`
	PlantingDate    time.Time        `json:"plantingDate"`
	ExpectedHarvest time.Time        `json:"expectedHarvest"`
	SeasonDays      int              `json:"seasonDays"`
	Stages          []TimelineStage  `json:"stages"`
	CriticalPeriods []CriticalWindow `json:"criticalPeriods"`
}
