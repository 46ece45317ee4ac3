package satellite

import (
	"math"

	"cropwatch/models"
)

// HealthAssessment is the scored view of one set of indices.
type HealthAssessment struct {
	Score           float64
	Status          models.HealthStatus
	Anomalies       []models.Anomaly
	Recommendations []models.BilingualText
}

var anomalyAdvice = map[models.Anomaly]models.BilingualText{
	models.AnomalyLowVegetation: {
		En: "Low vegetation cover detected. Inspect the field for poor germination, pests or nutrient deficiency.",
		Ar: "تم رصد غطاء نباتي منخفض. افحص الحقل بحثًا عن ضعف الإنبات أو الآفات أو نقص المغذيات.",
	},
	models.AnomalyWaterStress: {
		En: "Water stress detected. Increase irrigation frequency and check the irrigation system.",
		Ar: "تم رصد إجهاد مائي. زد عدد مرات الري وافحص نظام الري.",
	},
	models.AnomalyMoistureDeficit: {
		En: "Moisture deficit in soil and canopy. Schedule irrigation within the next 48 hours.",
		Ar: "نقص في رطوبة التربة والنبات. جدول الري خلال الـ48 ساعة القادمة.",
	},
	models.AnomalyPoorCanopy: {
		En: "Weak canopy development. Consider a nitrogen top-dressing after a soil test.",
		Ar: "ضعف في نمو المجموع الخضري. فكر في إضافة سماد نيتروجيني بعد تحليل التربة.",
	},
	models.AnomalySparseLeaves: {
		En: "Sparse leaf area. Check plant density and replant gaps where possible.",
		Ar: "مساحة ورقية متفرقة. تحقق من كثافة النباتات وأعد زراعة الفراغات إن أمكن.",
	},
}

var healthyAdvice = models.BilingualText{
	En: "Crop is healthy. Continue the current management program.",
	Ar: "المحصول بصحة جيدة. استمر في برنامج الإدارة الحالي.",
}

// AssessHealth scores clamped indices starting from 50 and adding or
// subtracting fixed bands per index.
func AssessHealth(in models.VegetationIndices) HealthAssessment {
	v := in.Clamp()
	score := 50.0
	var flags []models.Anomaly

	switch {
	case v.NDVI >= 0.6:
		score += 20
	case v.NDVI >= 0.4:
		score += 10
	case v.NDVI >= 0.2:
	default:
		score -= 20
		flags = append(flags, models.AnomalyLowVegetation)
	}

	switch {
	case v.NDWI < -0.2:
		score -= 15
		flags = append(flags, models.AnomalyWaterStress)
	case v.NDWI > 0.3:
		score += 10
	}

	if v.NDMI < 0 {
		score -= 10
		flags = append(flags, models.AnomalyMoistureDeficit)
	}

	switch {
	case v.EVI >= 0.4:
		score += 10
	case v.EVI < 0.2:
		score -= 10
		flags = append(flags, models.AnomalyPoorCanopy)
	}

	switch {
	case v.LAI >= 3:
		score += 10
	case v.LAI < 1:
		score -= 5
		flags = append(flags, models.AnomalySparseLeaves)
	}

	score = math.Max(0, math.Min(100, score))

	recs := make([]models.BilingualText, 0, len(flags))
	for _, f := range flags {
		recs = append(recs, anomalyAdvice[f])
	}
	if len(recs) == 0 {
		recs = append(recs, healthyAdvice)
	}
	if flags == nil {
		flags = []models.Anomaly{}
	}
	return HealthAssessment{
		Score:           score,
		Status:          StatusForScore(score),
		Anomalies:       flags,
		Recommendations: recs,
	}
}

// StatusForScore maps a 0..100 score onto the five ordered levels.
func StatusForScore(score float64) models.HealthStatus {
	switch {
	case score >= 80:
		return models.HealthExcellent
	case score >= 60:
		return models.HealthGood
	case score >= 40:
		return models.HealthFair
	case score >= 20:
		return models.HealthPoor
	default:
		return models.HealthCritical
	}
}
