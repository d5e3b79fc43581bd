package alerts

import "farm-health-service/internal/models"

// Action keys. These are stable identifiers shared with the mobile client.
const (
	ActionVisitNow         = "visit_now"
	ActionVisit48h         = "visit_48h"
	ActionWaterCheck       = "water_check"
	ActionIrrigationPoints = "irrigation_points"
	ActionVisualCheck      = "visual_check"
	ActionNutrientCheck    = "nutrient_check"
	ActionPestDiseaseCheck = "pest_disease_check"
	ActionHeatMitigation   = "heat_mitigation"
	ActionPrepareWeek      = "prepare_week"
	ActionFieldNotes       = "field_notes"
	ActionAutoFollow       = "auto_follow"
)

// Semantic groups used to deduplicate recommendations. Two concrete
// actions in the same group merge into a single recommendation.
const (
	GroupFieldVisit       = "field_visit"
	GroupIrrigation       = "irrigation"
	GroupCanopyInspection = "canopy_inspection"
	GroupNutrition        = "nutrition"
	GroupPestDisease      = "pest_disease"
	GroupHeatMitigation   = "heat_mitigation"
	GroupMonitoring       = "monitoring"
	GroupDocumentation    = "documentation"
	GroupAutoFollow       = "auto_follow"
)

var groupByAction = map[string]string{
	ActionVisitNow:         GroupFieldVisit,
	ActionVisit48h:         GroupFieldVisit,
	ActionWaterCheck:       GroupIrrigation,
	ActionIrrigationPoints: GroupIrrigation,
	ActionVisualCheck:      GroupCanopyInspection,
	ActionNutrientCheck:    GroupNutrition,
	ActionPestDiseaseCheck: GroupPestDisease,
	ActionHeatMitigation:   GroupHeatMitigation,
	ActionPrepareWeek:      GroupMonitoring,
	ActionFieldNotes:       GroupDocumentation,
	ActionAutoFollow:       GroupAutoFollow,
}

var priorityByAction = map[string]models.Priority{
	ActionVisitNow:         models.PriorityUrgent,
	ActionVisit48h:         models.PriorityHigh,
	ActionWaterCheck:       models.PriorityHigh,
	ActionIrrigationPoints: models.PriorityMedium,
	ActionVisualCheck:      models.PriorityMedium,
	ActionNutrientCheck:    models.PriorityMedium,
	ActionPestDiseaseCheck: models.PriorityMedium,
	ActionHeatMitigation:   models.PriorityMedium,
	ActionPrepareWeek:      models.PriorityMedium,
	ActionFieldNotes:       models.PriorityLow,
	ActionAutoFollow:       models.PriorityLow,
}

// Housekeeping groups are only appended when at least one substantive
// recommendation exists, so a clean farm never gets boilerplate-only
// output.
var housekeepingGroups = map[string]bool{
	GroupDocumentation: true,
	GroupAutoFollow:    true,
}

// actionsLibrary returns the user-facing action texts. Wording is
// deliberately non-technical: no indicator names, no hard causal claims.
func actionsLibrary(severity models.Severity) map[string]models.Action {
	urgent := severity == models.SeverityCritical

	waterText := "Review how evenly water reaches the affected areas and check for clear coverage differences."
	if urgent {
		waterText = "Check that water reliably reaches the affected areas: coverage distribution, differences between lines, and any signs of weak or unbalanced pumping."
	}

	return map[string]models.Action{
		ActionVisitNow: {
			Key:   ActionVisitNow,
			Title: "Immediate action",
			Text:  "Go now to the most affected areas shown on the map and verify conditions in the field before making any large-scale changes.",
		},
		ActionVisit48h: {
			Key:   ActionVisit48h,
			Title: "Visit within 48 hours",
			Text:  "Visit the affected areas shown on the map to verify conditions in the field and decide the most suitable action.",
		},
		ActionWaterCheck: {
			Key:   ActionWaterCheck,
			Title: "Irrigation review",
			Text:  waterText,
		},
		ActionIrrigationPoints: {
			Key:   ActionIrrigationPoints,
			Title: "Inspect nearby irrigation points",
			Text:  "Inspect the irrigation points closest to the affected areas to confirm pumping efficiency and coverage balance compared to healthy areas.",
		},
		ActionVisualCheck: {
			Key:   ActionVisualCheck,
			Title: "Targeted visual inspection",
			Text:  "Perform a visual inspection inside the affected areas for visible changes such as discoloration, weak growth or unusual symptoms.",
		},
		ActionNutrientCheck: {
			Key:   ActionNutrientCheck,
			Title: "Assess fertilization if needed",
			Text:  "If the signal persists after the field check and irrigation adjustments, review the fertilization program or run a soil/leaf test to pinpoint the need.",
		},
		ActionPestDiseaseCheck: {
			Key:   ActionPestDiseaseCheck,
			Title: "Check for localized causes",
			Text:  "Focus the inspection on possible localized causes in the affected areas (pest, disease or a local issue), since they differ from the farm's overall pattern.",
		},
		ActionHeatMitigation: {
			Key:   ActionHeatMitigation,
			Title: "Reduce heat impact",
			Text:  "During heat waves, shift irrigation to cooler hours (dawn/evening) and watch the affected areas more closely to reduce heat stress.",
		},
		ActionPrepareWeek: {
			Key:   ActionPrepareWeek,
			Title: "Step up monitoring next week",
			Text:  "Increase monitoring frequency over the coming week and check the affected areas early to reduce the chance of deterioration.",
		},
		ActionFieldNotes: {
			Key:   ActionFieldNotes,
			Title: "Document observations",
			Text:  "Record the visit results (photos, notes, locations) to compare progress in upcoming updates and make a better-informed decision.",
		},
		ActionAutoFollow: {
			Key:   ActionAutoFollow,
			Title: "Automatic follow-up",
			Text:  "The system will re-check automatically in the next update to confirm the overall trend and reduce unnecessary alerts.",
		},
	}
}

// Driver keys.
const (
	DriverWater         = "water"
	DriverGrowth        = "growth"
	DriverUnusual       = "unusual"
	DriverTrend         = "trend"
	DriverStressPockets = "stress_pockets"
	DriverForecast      = "forecast"
)

var driverTitles = map[string]string{
	DriverWater:         "Signals related to irrigation and moisture",
	DriverGrowth:        "Signals of reduced plant activity",
	DriverUnusual:       "Unusual areas within the farm",
	DriverTrend:         "Downward trend over recent weeks",
	DriverStressPockets: "Scattered stress pockets",
	DriverForecast:      "Expected risks for next week",
}

// Evidence-based explanations attached to recommendations; no hard
// causal claims.
var whyTemplates = map[string]string{
	"visit":    "Spatial variation was detected inside the farm; a field check is the fastest way to confirm the condition and pinpoint the cause.",
	"water":    "Signals appeared that may match a change in moisture levels or uneven water coverage in some areas compared to their surroundings.",
	"points":   "A clear difference between adjacent areas justifies inspecting the nearest irrigation points to locate the source quickly.",
	"growth":   "The data points to reduced plant activity or a downward trend over recent weeks in specific areas.",
	"nutrient": "As a secondary option: if the field check does not explain the condition or the signal persists, an analytical assessment helps rule out nutritional factors.",
	"unusual":  "Areas were detected that differ from the farm's overall pattern; these are often tied to a localized factor that needs direct inspection.",
	"forecast": "The forecast model expects a higher need for follow-up next week; stepping up monitoring lowers the chance of deterioration.",
	"follow":   "Re-checking in the next update helps confirm the trend and reduce unnecessary alerts.",
	"notes":    "Documentation makes it easier to compare visits and updates and sharpens the next decision.",
}
