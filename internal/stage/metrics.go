package stage

import (
	"github.com/vytor/simclinic/internal/models"
)

// stageCriteria maps each stage's metric names to the rubric criterion ids
// (or names) that may carry it, in lookup order.
var stageCriteria = [models.StageCount]map[string][]string{
	{
		"rapport":         {"rapport", "therapeutic_alliance", "alliance"},
		"safe_place":      {"safe_place", "resourcing", "stabilization"},
		"psychoeducation": {"psychoeducation"},
	},
	{
		"trauma_target":         {"trauma_target", "target_assessment", "target"},
		"bilateral_stimulation": {"bilateral_stimulation", "desensitization"},
		"distress_scale":        {"distress_scale", "sud", "sud_monitoring"},
	},
	{
		"cognition_validation": {"cognition_validation", "voc", "installation"},
		"closure":              {"closure", "body_scan"},
		"future_template":      {"future_template"},
	},
}

// Metrics extracts the named metrics for a stage from the assessment's
// criterion scores and from continuity memory readings. Missing sources are
// simply left out.
func Metrics(stage int, a models.Assessment, memory *models.Memory) map[string]float64 {
	out := map[string]float64{
		"session_score": a.EffectiveScore(),
	}
	if stage < 1 || stage > models.StageCount {
		return out
	}

	for metric, keys := range stageCriteria[stage-1] {
		for _, key := range keys {
			if v, ok := a.CriterionPercent(key); ok {
				out[metric] = round1(v)
				break
			}
		}
	}

	if memory == nil {
		return out
	}
	switch stage {
	case 2:
		addReadings(out, "sud", memory.DistressReadings)
		if first, ok := out["sud_first"]; ok {
			out["sud_reduction"] = round1(first - out["sud_last"])
		}
	case 3:
		addReadings(out, "voc", memory.ValidityReadings)
		if first, ok := out["voc_first"]; ok {
			out["voc_gain"] = round1(out["voc_last"] - first)
		}
	}
	return out
}

func addReadings(out map[string]float64, name string, readings []float64) {
	if len(readings) == 0 {
		return
	}
	out[name+"_first"] = readings[0]
	out[name+"_last"] = readings[len(readings)-1]
}
