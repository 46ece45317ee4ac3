package phenology

import "cropwatch/models"

var stageNames = map[models.GrowthStage]models.BilingualText{
	models.StageBareSoil:         bt("Bare soil", "تربة عارية"),
	models.StageGermination:      bt("Germination", "الإنبات"),
	models.StageEmergence:        bt("Emergence", "البزوغ"),
	models.StageLeafDevelopment:  bt("Leaf development", "تكوين الأوراق"),
	models.StageTillering:        bt("Tillering", "التفريع"),
	models.StageStemElongation:   bt("Stem elongation", "استطالة الساق"),
	models.StageBooting:          bt("Booting", "الحبلان"),
	models.StageFlowering:        bt("Flowering", "التزهير"),
	models.StageFruitDevelopment: bt("Fruit / grain development", "تكوين الثمار والحبوب"),
	models.StageRipening:         bt("Ripening", "النضج"),
	models.StageSenescence:       bt("Senescence", "الشيخوخة"),
	models.StageHarvested:        bt("Harvested", "تم الحصاد"),
}

// StageName returns the display name of a stage.
func StageName(s models.GrowthStage) models.BilingualText {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return bt(string(s), string(s))
}

var stageAdvice = map[models.GrowthStage]models.BilingualText{
	models.StageBareSoil: bt(
		"No crop cover detected. Prepare the seedbed and check soil moisture before sowing.",
		"لا يوجد غطاء نباتي. جهز مهد البذور وتحقق من رطوبة التربة قبل الزراعة."),
	models.StageGermination: bt(
		"Germination: keep the topsoil moist and avoid crusting.",
		"الإنبات: حافظ على رطوبة الطبقة السطحية وتجنب تكون القشرة."),
	models.StageEmergence: bt(
		"Emergence: check stand density and replant thin patches early.",
		"البزوغ: تحقق من كثافة النباتات وأعد زراعة البقع الخفيفة مبكرًا."),
	models.StageLeafDevelopment: bt(
		"Leaf development: control weeds and apply the first nitrogen dose.",
		"تكوين الأوراق: كافح الحشائش وأضف الدفعة الأولى من النيتروجين."),
	models.StageTillering: bt(
		"Tillering: apply nitrogen and keep irrigation regular.",
		"التفريع: أضف النيتروجين وحافظ على انتظام الري."),
	models.StageStemElongation: bt(
		"Stem elongation: water demand is rising, monitor for lodging and rust.",
		"استطالة الساق: يزداد الطلب على المياه، راقب الرقاد والأصداء."),
	models.StageBooting: bt(
		"Booting: avoid water stress and scout for leaf diseases.",
		"الحبلان: تجنب الإجهاد المائي وافحص أمراض الأوراق."),
	models.StageFlowering: bt(
		"Flowering: peak water demand, do not skip irrigation and avoid spraying during pollination.",
		"التزهير: ذروة الطلب على المياه، لا تؤخر الري وتجنب الرش أثناء التلقيح."),
	models.StageFruitDevelopment: bt(
		"Fruit and grain development: keep moisture steady and watch for pests.",
		"تكوين الثمار والحبوب: حافظ على رطوبة ثابتة وراقب الآفات."),
	models.StageRipening: bt(
		"Ripening: reduce irrigation and plan harvest logistics.",
		"النضج: قلل الري وخطط لعمليات الحصاد."),
	models.StageSenescence: bt(
		"Senescence: stop irrigation and harvest at the right moisture content.",
		"الشيخوخة: أوقف الري واحصد عند نسبة الرطوبة المناسبة."),
	models.StageHarvested: bt(
		"Field harvested: manage residues and plan the next crop rotation.",
		"تم حصاد الحقل: تعامل مع المخلفات وخطط للدورة الزراعية التالية."),
}

var lowVigorWarning = bt(
	"Low vegetation vigor for this stage. Check for nutrient deficiency, water stress or pest damage.",
	"ضعف في قوة النمو لهذه المرحلة. افحص نقص المغذيات أو الإجهاد المائي أو أضرار الآفات.")

// vigorSensitive are the vegetative, tillering and flowering stages where a
// low index value warrants a warning.
var vigorSensitive = map[models.GrowthStage]bool{
	models.StageLeafDevelopment: true,
	models.StageTillering:       true,
	models.StageStemElongation:  true,
	models.StageFlowering:       true,
}

func recommendations(p CropProfile, stage models.GrowthStage, value float64) []models.BilingualText {
	var out []models.BilingualText
	if a, ok := stageAdvice[stage]; ok {
		out = append(out, a)
	}
	if vigorSensitive[stage] && value < lowVigorThreshold {
		out = append(out, lowVigorWarning)
	}
	for _, c := range p.CriticalPeriods {
		if c.Stage == stage {
			out = append(out, c.Note)
		}
	}
	return out
}
