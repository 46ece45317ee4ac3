package phenology

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"cropwatch/models"

	"gopkg.in/yaml.v3"
)

// StageSpec is one growth stage of a crop profile with its expected
// duration and NDVI range.
type StageSpec struct {
	Stage        models.GrowthStage `yaml:"stage"        json:"stage"`
	DurationDays int                `yaml:"durationDays" json:"durationDays"`
	IndexMin     float64            `yaml:"indexMin"     json:"indexMin"`
	IndexMax     float64            `yaml:"indexMax"     json:"indexMax"`
}

// CriticalPeriod attaches a management note to a stage.
type CriticalPeriod struct {
	Stage models.GrowthStage   `yaml:"stage" json:"stage"`
	Note  models.BilingualText `yaml:"note"  json:"note"`
}

// CropProfile is the static reference table of one crop.
type CropProfile struct {
	Crop            models.CropKind      `yaml:"crop"            json:"crop"`
	Name            models.BilingualText `yaml:"name"            json:"name"`
	Stages          []StageSpec          `yaml:"stages"          json:"stages"`
	CriticalPeriods []CriticalPeriod     `yaml:"criticalPeriods" json:"criticalPeriods"`
}

// SeasonDays is the sum of all stage durations.
func (p CropProfile) SeasonDays() int {
	n := 0
	for _, s := range p.Stages {
		n += s.DurationDays
	}
	return n
}

func (p CropProfile) indexOf(stage models.GrowthStage) int {
	for i, s := range p.Stages {
		if s.Stage == stage {
			return i
		}
	}
	return -1
}

func (p CropProfile) has(stage models.GrowthStage) bool { return p.indexOf(stage) >= 0 }

// startDay returns the day offset at which stage i begins.
func (p CropProfile) startDay(i int) int {
	n := 0
	for _, s := range p.Stages[:i] {
		n += s.DurationDays
	}
	return n
}

func (p CropProfile) validate() error {
	if p.Crop == "" {
		return fmt.Errorf("%w: crop profile without crop name", ErrInvalidInput)
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("%w: crop %q has no stages", ErrInvalidInput, p.Crop)
	}
	last := -1
	for _, s := range p.Stages {
		pos := stageOrder(s.Stage)
		if pos < 0 || s.Stage == models.StageBareSoil || s.Stage == models.StageHarvested {
			return fmt.Errorf("%w: crop %q has invalid stage %q", ErrInvalidInput, p.Crop, s.Stage)
		}
		if pos <= last {
			return fmt.Errorf("%w: crop %q stages out of order at %q", ErrInvalidInput, p.Crop, s.Stage)
		}
		last = pos
		if s.DurationDays <= 0 {
			return fmt.Errorf("%w: crop %q stage %q needs a positive duration", ErrInvalidInput, p.Crop, s.Stage)
		}
		if s.IndexMin > s.IndexMax {
			return fmt.Errorf("%w: crop %q stage %q has min > max", ErrInvalidInput, p.Crop, s.Stage)
		}
	}
	for _, c := range p.CriticalPeriods {
		if !p.has(c.Stage) {
			return fmt.Errorf("%w: crop %q critical period on unknown stage %q", ErrInvalidInput, p.Crop, c.Stage)
		}
	}
	return nil
}

func stageOrder(s models.GrowthStage) int {
	for i, st := range models.AllStages {
		if st == s {
			return i
		}
	}
	return -1
}

// Profiles maps crop kinds to their profiles. It is read-only once built.
type Profiles map[models.CropKind]CropProfile

// Crops returns the known crop kinds in sorted order.
func (p Profiles) Crops() []models.CropKind {
	out := make([]models.CropKind, 0, len(p))
	for c := range p {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup normalizes crop and returns its profile.
func (p Profiles) Lookup(crop models.CropKind) (CropProfile, bool) {
	prof, ok := p[models.CropKind(strings.ToLower(strings.TrimSpace(string(crop))))]
	return prof, ok
}

type profileFile struct {
	Crops []CropProfile `yaml:"crops"`
}

// LoadProfiles reads extra or replacement crop profiles from a YAML file
// and merges them over base. base is not modified.
func LoadProfiles(path string, base Profiles) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	out := make(Profiles, len(base)+len(f.Crops))
	for k, v := range base {
		out[k] = v
	}
	for _, c := range f.Crops {
		c.Crop = models.CropKind(strings.ToLower(strings.TrimSpace(string(c.Crop))))
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out[c.Crop] = c
	}
	return out, nil
}

// DefaultProfiles returns the built-in crop table.
func DefaultProfiles() Profiles {
	out := make(Profiles, len(builtinProfiles))
	for _, p := range builtinProfiles {
		out[p.Crop] = p
	}
	return out
}

func bt(en, ar string) models.BilingualText { return models.BilingualText{En: en, Ar: ar} }

var builtinProfiles = []CropProfile{
	{
		Crop: "wheat",
		Name: bt("Wheat", "القمح"),
		Stages: []StageSpec{
			{models.StageGermination, 7, 0.10, 0.20},
			{models.StageEmergence, 8, 0.15, 0.30},
			{models.StageTillering, 30, 0.25, 0.55},
			{models.StageStemElongation, 25, 0.45, 0.75},
			{models.StageBooting, 10, 0.60, 0.85},
			{models.StageFlowering, 10, 0.60, 0.85},
			{models.StageFruitDevelopment, 30, 0.45, 0.80},
			{models.StageRipening, 12, 0.20, 0.50},
			{models.StageSenescence, 8, 0.15, 0.35},
		},
		CriticalPeriods: []CriticalPeriod{
			{models.StageTillering, bt("Tillering sets the number of heads: apply the split nitrogen dose now.", "مرحلة التفريع تحدد عدد السنابل: أضف دفعة النيتروجين المجزأة الآن.")},
			{models.StageFlowering, bt("Flowering is highly sensitive to water and heat stress: avoid any irrigation gap.", "مرحلة التزهير حساسة جدًا للإجهاد المائي والحراري: تجنب أي انقطاع في الري.")},
			{models.StageFruitDevelopment, bt("Grain filling: keep soil moisture steady until the dough stage.", "امتلاء الحبوب: حافظ على رطوبة التربة ثابتة حتى مرحلة العجين.")},
		},
	},
	{
		Crop: "barley",
		Name: bt("Barley", "الشعير"),
		Stages: []StageSpec{
			{models.StageGermination, 6, 0.10, 0.20},
			{models.StageEmergence, 7, 0.15, 0.30},
			{models.StageTillering, 25, 0.25, 0.55},
			{models.StageStemElongation, 20, 0.45, 0.75},
			{models.StageBooting, 8, 0.55, 0.80},
			{models.StageFlowering, 8, 0.55, 0.80},
			{models.StageFruitDevelopment, 25, 0.40, 0.75},
			{models.StageRipening, 10, 0.20, 0.45},
			{models.StageSenescence, 6, 0.15, 0.35},
		},
		CriticalPeriods: []CriticalPeriod{
			{models.StageBooting, bt("Booting: water deficit now reduces grains per spike.", "مرحلة الحبلان: نقص المياه الآن يقلل عدد الحبوب في السنبلة.")},
			{models.StageFlowering, bt("Flowering: protect the crop from drought and late frost.", "التزهير: احمِ المحصول من الجفاف والصقيع المتأخر.")},
		},
	},
	{
		Crop: "corn",
		Name: bt("Corn", "الذرة الشامية"),
		Stages: []StageSpec{
			{models.StageGermination, 6, 0.10, 0.20},
			{models.StageEmergence, 6, 0.15, 0.30},
			{models.StageLeafDevelopment, 30, 0.30, 0.65},
			{models.StageStemElongation, 20, 0.55, 0.85},
			{models.StageFlowering, 12, 0.70, 0.90},
			{models.StageFruitDevelopment, 35, 0.55, 0.85},
			{models.StageRipening, 20, 0.35, 0.60},
			{models.StageSenescence, 11, 0.20, 0.45},
		},
		CriticalPeriods: []CriticalPeriod{
			{models.StageLeafDevelopment, bt("Rapid growth: side-dress nitrogen before the eighth leaf.", "نمو سريع: أضف النيتروجين جانبيًا قبل الورقة الثامنة.")},
			{models.StageFlowering, bt("Tasseling and silking: a few days of water stress can cut yield sharply.", "خروج النورات والحريرة: أيام قليلة من الإجهاد المائي قد تخفض المحصول بشدة.")},
		},
	},
	{
		Crop: "sorghum",
		Name: bt("Sorghum", "الذرة الرفيعة"),
		Stages: []StageSpec{
			{models.StageGermination, 5, 0.10, 0.20},
			{models.StageEmergence, 7, 0.15, 0.30},
			{models.StageLeafDevelopment, 25, 0.30, 0.60},
			{models.StageStemElongation, 20, 0.50, 0.80},
			{models.StageBooting, 10, 0.55, 0.85},
			{models.StageFlowering, 10, 0.60, 0.85},
			{models.StageFruitDevelopment, 30, 0.45, 0.80},
			{models.StageRipening, 15, 0.30, 0.55},
			{models.StageSenescence, 8, 0.20, 0.40},
		},
		CriticalPeriods: []CriticalPeriod{
			{models.StageBooting, bt("Booting: the panicle is forming, keep the field weed free and irrigated.", "مرحلة الحبلان: تتكون الدالية، حافظ على الحقل خاليًا من الحشائش ومرويًا.")},
			{models.StageFruitDevelopment, bt("Grain fill: watch for birds and head pests.", "امتلاء الحبوب: راقب الطيور وآفات النورات.")},
		},
	},
	{
		Crop: "rice",
		Name: bt("Rice", "الأرز"),
		Stages: []StageSpec{
			{models.StageGermination, 7, 0.05, 0.20},
			{models.StageEmergence, 10, 0.15, 0.30},
			{models.StageTillering, 35, 0.30, 0.65},
			{models.StageStemElongation, 20, 0.50, 0.80},
			{models.StageBooting, 10, 0.60, 0.85},
			{models.StageFlowering, 10, 0.60, 0.85},
			{models.StageFruitDevelopment, 30, 0.45, 0.80},
			{models.StageRipening, 12, 0.25, 0.50},
			{models.StageSenescence, 6, 0.15, 0.40},
		},
		CriticalPeriods: []CriticalPeriod{
			{models.StageTillering, bt("Tillering: keep a shallow flood of 3-5 cm.", "التفريع: حافظ على غمر ضحل بعمق 3-5 سم.")},
			{models.StageFlowering, bt("Anthesis: never let the paddy dry out.", "التزهير: لا تترك الحقل يجف إطلاقًا.")},
		},
	},
	{
		Crop: "tomato",
		Name: bt("Tomato", "الطماطم"),
		Stages: []StageSpec{
			{models.StageGermination, 7, 0.10, 0.20},
			{models.StageEmergence, 8, 0.15, 0.30},
			{models.StageLeafDevelopment, 25, 0.30, 0.60},
			{models.StageFlowering, 20, 0.50, 0.80},
			{models.StageFruitDevelopment, 45, 0.55, 0.85},
			{models.StageRipening, 25, 0.40, 0.70},
			{models.StageSenescence, 10, 0.25, 0.50},
		},
		CriticalPeriods: []CriticalPeriod{
			{models.StageFlowering, bt("Flowering: irregular watering causes blossom drop and blossom-end rot.", "التزهير: الري غير المنتظم يسبب تساقط الأزهار وتعفن الطرف الزهري.")},
			{models.StageFruitDevelopment, bt("Fruit set: supply calcium and potassium.", "عقد الثمار: وفر الكالسيوم والبوتاسيوم.")},
		},
	},
}
