// Package alerts turns a run's aggregated signals into a bounded set of
// user-facing alerts and deduplicated recommendations. Output ids are
// content hashes, so re-running on unchanged data upserts the same
// documents instead of spamming the farmer.
package alerts

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"farm-health-service/internal/config"
	"farm-health-service/internal/models"
	"farm-health-service/internal/numeric"
)

// Driver score divisors: the latest-week rate at which a driver is
// considered fully saturated (score 1.0).
const (
	waterSaturationRate   = 0.08
	growthSaturationRate  = 0.10
	unusualSaturationRate = 0.04
	trendSaturationSlope  = 0.03
	pocketSaturationRate  = 0.06
)

// Secondary trigger cutoffs for recommendations that need stronger
// evidence than the base RecommendDriverCutoff.
const (
	pocketsRecoCutoff  = 0.55
	unusualRecoCutoff  = 0.55
	escalateRecoCutoff = 0.65
	strongWaterCutoff  = 0.70
)

const (
	forecastCritNextCutoff = 1.0
	forecastMonNextCutoff  = 80.0
	forecastDeltaCutoff    = -0.03
)

const trendSlopeEpsilon = 1e-9

type Engine struct {
	cfg config.AlertConfig
	now func() time.Time
}

func NewEngine(cfg config.AlertConfig) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

// Build synthesizes the alert bundle for one farm from its persisted run
// result. It is a pure function of its inputs apart from the createdAt
// timestamps.
func (e *Engine) Build(farmID string, result *models.HealthResult) *models.AlertBundle {
	createdAt := e.now().UTC().Format(time.RFC3339)

	scores, evidence := computeDrivers(result)
	severity := overallSeverity(e.cfg, result.CurrentHealth)
	library := actionsLibrary(severity)

	recos := newRecoSet(farmID, createdAt, library)
	var alerts []models.Alert

	if overall, ok := e.overallAlert(farmID, result, severity, scores, createdAt, library); ok {
		alerts = append(alerts, overall)
		visit := ActionVisit48h
		if severity == models.SeverityCritical {
			visit = ActionVisitNow
		}
		recos.add(visit, "overall", whyTemplates["visit"], 0.9, nil)
	}

	forecastAlert, hasForecast := e.forecastAlert(farmID, result, severity, scores, createdAt, library)
	if hasForecast {
		alerts = append(alerts, forecastAlert)
		recos.add(ActionPrepareWeek, "forecast", whyTemplates["forecast"], scores[DriverForecast], nil)
	}

	e.driverRecommendations(recos, severity, scores)

	if recos.hasSubstantive() {
		recos.add(ActionFieldNotes, "system", whyTemplates["notes"], 0, nil)
		recos.add(ActionAutoFollow, "system", whyTemplates["follow"], 0, nil)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Severity.Rank() != alerts[j].Severity.Rank() {
			return alerts[i].Severity.Rank() < alerts[j].Severity.Rank()
		}
		return alerts[i].Type < alerts[j].Type
	})
	if len(alerts) > e.cfg.MaxAlerts {
		alerts = alerts[:e.cfg.MaxAlerts]
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	return &models.AlertBundle{
		Alerts:          alerts,
		Recommendations: recos.sorted(e.cfg.MaxRecommendations),
		Summary: models.AlertSummary{
			CurrentSeverity:  severity,
			HealthNow:        result.CurrentHealth,
			DriversTop:       topDrivers(scores, e.cfg.WhyDriverCutoff),
			DriverScores:     scores,
			EvidenceCounts:   evidence,
			TotalPixels:      result.AlertSignals.TotalPixelsLatest,
			HasForecastAlert: hasForecast,
		},
	}
}

// computeDrivers condenses the latest-week tallies, the index trend and
// the forecast into six named driver scores in [0,1], plus the raw
// evidence counts behind the rate-based ones.
func computeDrivers(result *models.HealthResult) (map[string]float64, map[string]int) {
	signals := result.AlertSignals
	flags := signals.FlagCountsLatest
	rules := signals.RuleCountsLatest

	waterFlags := flags[models.FlagDropSIWSI10Pct] + flags[models.FlagDropNDWI10Pct] +
		flags[models.FlagNDWILow] + flags[models.FlagNDWIBelow025]
	growthFlags := flags[models.FlagDropNDVI005] + flags[models.FlagNDVIBelow030] +
		flags[models.FlagNDRELow] + flags[models.FlagNDREBelow035]
	unusualCells := rules[string(models.RuleMonitorIFOutlier)] + rules[string(models.RuleCriticalIFOutlier)]
	pocketCells := rules[string(models.RuleMonitorRPWTail)] + rules[string(models.RuleCriticalRPWTail)]

	total := float64(signals.TotalPixelsLatest)
	rate := func(count int) float64 {
		if total == 0 {
			return 0
		}
		return float64(count) / total
	}

	slope := ndviTrendSlope(result.IndicesHistory)

	forecast := result.ForecastNextWeek
	forecastScore := math.Max(
		forecast.MonitorPctNext/100.0,
		forecast.CriticalPctNext/(forecastCritNextCutoff*5.0))

	scores := map[string]float64{
		DriverWater:         numeric.Clamp01(rate(waterFlags) / waterSaturationRate),
		DriverGrowth:        numeric.Clamp01(rate(growthFlags) / growthSaturationRate),
		DriverUnusual:       numeric.Clamp01(rate(unusualCells) / unusualSaturationRate),
		DriverTrend:         numeric.Clamp01(math.Max(0, -slope) / trendSaturationSlope),
		DriverStressPockets: numeric.Clamp01(rate(pocketCells) / pocketSaturationRate),
		DriverForecast:      numeric.Clamp01(forecastScore),
	}
	evidence := map[string]int{
		DriverWater:         waterFlags,
		DriverGrowth:        growthFlags,
		DriverUnusual:       unusualCells,
		DriverStressPockets: pocketCells,
	}
	return scores, evidence
}

// ndviTrendSlope fits a least-squares line through the weekly farm-level
// NDVI averages. Weeks with no valid value keep their position on the
// time axis; fewer than 3 usable points means no measurable trend.
func ndviTrendSlope(history []models.IndexHistoryPoint) float64 {
	var xs, ys []float64
	for i, point := range history {
		if point.NDVI == nil || !numeric.IsFinite(*point.NDVI) {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, *point.NDVI)
	}
	if len(xs) < 3 {
		return 0
	}

	mx := numeric.Mean(xs)
	my := numeric.Mean(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	return num / (den + trendSlopeEpsilon)
}

func overallSeverity(cfg config.AlertConfig, health models.CurrentHealth) models.Severity {
	switch {
	case health.CriticalPct >= cfg.CriticalPctCutoff:
		return models.SeverityCritical
	case health.MonitorPct >= cfg.MonitorPctCutoff:
		return models.SeverityWarning
	}
	return models.SeverityInfo
}

func (e *Engine) overallAlert(farmID string, result *models.HealthResult, severity models.Severity,
	scores map[string]float64, createdAt string, library map[string]models.Action) (models.Alert, bool) {

	triggered := severity != models.SeverityInfo
	for _, score := range scores {
		if score >= e.cfg.OverallDriverCutoff {
			triggered = true
		}
	}
	if !triggered {
		return models.Alert{}, false
	}

	sev := severity
	if sev == models.SeverityInfo {
		sev = models.SeverityWarning
	}

	health := result.CurrentHealth
	title := "Areas of the farm need follow-up"
	message := fmt.Sprintf(
		"Satellite monitoring detected areas needing follow-up (%.1f%% of the farm). An early field check helps confirm the condition before it spreads.",
		health.MonitorPct)
	if health.CriticalPct >= 0.5 {
		title = "Areas of the farm need attention"
		message = fmt.Sprintf(
			"Satellite monitoring detected areas needing rapid intervention (%.1f%% of the farm) and areas needing follow-up (%.1f%%). Review the map and start with the highlighted hotspots.",
			health.CriticalPct, health.MonitorPct)
	}
	if sev == models.SeverityCritical {
		title = "Critical condition on parts of the farm"
	}

	drivers := topDrivers(scores, e.cfg.WhyDriverCutoff)
	driverKeys := "none"
	if len(drivers) > 0 {
		keys := make([]string, len(drivers))
		for i, d := range drivers {
			keys[i] = d.Key
		}
		driverKeys = strings.Join(keys, "+")
	}

	visit := library[ActionVisit48h]
	if sev == models.SeverityCritical {
		visit = library[ActionVisitNow]
	}

	hotspots := result.AlertSignals.Hotspots.Monitor
	if sev == models.SeverityCritical {
		hotspots = result.AlertSignals.Hotspots.Critical
	}
	if len(hotspots) == 0 {
		hotspots = result.AlertSignals.Hotspots.Stress
	}
	if hotspots == nil {
		hotspots = []models.Hotspot{}
	}

	return models.Alert{
		ID: stableID(farmID, "overall", string(sev),
			fmtScore(health.CriticalPct), fmtScore(health.MonitorPct), driverKeys),
		Type:      "overall",
		Severity:  sev,
		Title:     title,
		Message:   message,
		Drivers:   drivers,
		Actions:   []models.Action{visit, library[ActionAutoFollow]},
		Hotspots:  hotspots,
		CreatedAt: createdAt,
	}, true
}

// forecastAlert raises at most one forward-looking alert, under rules
// deliberately conservative enough that a calm farm stays quiet: a
// projected critical share, a very large projected monitor share, or a
// clear projected index decline on an otherwise clean run.
func (e *Engine) forecastAlert(farmID string, result *models.HealthResult, severity models.Severity,
	scores map[string]float64, createdAt string, library map[string]models.Action) (models.Alert, bool) {

	forecast := result.ForecastNextWeek
	declining := forecast.NDVIDeltaNextMean <= forecastDeltaCutoff ||
		forecast.NDMIDeltaNextMean <= forecastDeltaCutoff

	var sev models.Severity
	switch {
	case forecast.CriticalPctNext >= forecastCritNextCutoff:
		sev = models.SeverityCritical
	case forecast.MonitorPctNext >= forecastMonNextCutoff && severity != models.SeverityCritical:
		sev = models.SeverityWarning
	case declining && severity == models.SeverityInfo:
		sev = models.SeverityWarning
	default:
		return models.Alert{}, false
	}

	title := "Next week needs closer monitoring"
	message := fmt.Sprintf(
		"The outlook for next week projects %.1f%% of the farm needing follow-up. Stepping up monitoring now lowers the chance of deterioration.",
		forecast.MonitorPctNext)
	if sev == models.SeverityCritical {
		title = "Deterioration expected next week"
		message = fmt.Sprintf(
			"The outlook for next week projects areas needing rapid intervention (%.1f%% of the farm). An early visit to the highlighted areas is recommended.",
			forecast.CriticalPctNext)
	} else if declining && forecast.MonitorPctNext < forecastMonNextCutoff {
		message = "The outlook for next week projects a gradual decline in plant activity or moisture. Stepping up monitoring now lowers the chance of deterioration."
	}

	visit := library[ActionVisit48h]
	if sev == models.SeverityCritical {
		visit = library[ActionVisitNow]
	}

	return models.Alert{
		ID: stableID(farmID, "forecast", string(sev),
			fmtScore(forecast.MonitorPctNext), fmtScore(forecast.CriticalPctNext)),
		Type:     "forecast",
		Severity: sev,
		Title:    title,
		Message:  message,
		Drivers: []models.Driver{{
			Key:   DriverForecast,
			Title: driverTitles[DriverForecast],
			Score: scores[DriverForecast],
		}},
		Actions:   []models.Action{library[ActionPrepareWeek], visit},
		Hotspots:  []models.Hotspot{},
		CreatedAt: createdAt,
	}, true
}

// driverRecommendations maps sufficiently strong drivers onto concrete
// actions. Escalation actions share the semantic group of their base
// action, so at most one recommendation per concern survives.
func (e *Engine) driverRecommendations(recos *recoSet, severity models.Severity, scores map[string]float64) {
	cutoff := e.cfg.RecommendDriverCutoff

	if scores[DriverWater] >= cutoff || scores[DriverStressPockets] >= pocketsRecoCutoff {
		priority := models.PriorityMedium
		if severity == models.SeverityCritical {
			priority = models.PriorityHigh
		}
		if scores[DriverWater] >= cutoff {
			recos.add(ActionWaterCheck, DriverWater, whyTemplates["water"], scores[DriverWater], &priority)
		}
		if scores[DriverStressPockets] >= pocketsRecoCutoff {
			recos.add(ActionWaterCheck, DriverStressPockets, whyTemplates["water"], scores[DriverStressPockets], &priority)
		}
		if severity == models.SeverityCritical || scores[DriverWater] >= strongWaterCutoff {
			recos.add(ActionIrrigationPoints, DriverWater, whyTemplates["points"], scores[DriverWater], nil)
		}
	}

	if scores[DriverGrowth] >= cutoff || scores[DriverTrend] >= cutoff {
		if scores[DriverGrowth] >= cutoff {
			recos.add(ActionVisualCheck, DriverGrowth, whyTemplates["growth"], scores[DriverGrowth], nil)
		}
		if scores[DriverTrend] >= cutoff {
			recos.add(ActionVisualCheck, DriverTrend, whyTemplates["growth"], scores[DriverTrend], nil)
		}
		escalate := scores[DriverGrowth] >= escalateRecoCutoff ||
			(scores[DriverTrend] >= escalateRecoCutoff && severity != models.SeverityInfo)
		if escalate {
			recos.add(ActionNutrientCheck, DriverGrowth, whyTemplates["nutrient"],
				math.Max(scores[DriverGrowth], scores[DriverTrend]), nil)
		}
	}

	if scores[DriverUnusual] >= unusualRecoCutoff {
		recos.add(ActionPestDiseaseCheck, DriverUnusual, whyTemplates["unusual"], scores[DriverUnusual], nil)
	}
}

func topDrivers(scores map[string]float64, cutoff float64) []models.Driver {
	var drivers []models.Driver
	for key, score := range scores {
		if score >= cutoff {
			drivers = append(drivers, models.Driver{Key: key, Title: driverTitles[key], Score: score})
		}
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		if drivers[i].Score != drivers[j].Score {
			return drivers[i].Score > drivers[j].Score
		}
		return drivers[i].Key < drivers[j].Key
	})
	if len(drivers) > 3 {
		drivers = drivers[:3]
	}
	if drivers == nil {
		drivers = []models.Driver{}
	}
	return drivers
}

// recoSet accumulates recommendations keyed by semantic group, merging
// duplicates as they arrive.
type recoSet struct {
	farmID    string
	createdAt string
	library   map[string]models.Action
	byGroup   map[string]*models.Recommendation
	order     []string
}

func newRecoSet(farmID, createdAt string, library map[string]models.Action) *recoSet {
	return &recoSet{
		farmID:    farmID,
		createdAt: createdAt,
		library:   library,
		byGroup:   map[string]*models.Recommendation{},
	}
}

// add inserts the action's recommendation, or merges into the existing
// one of the same semantic group: the more urgent priority wins, sources
// accumulate, the first non-empty why is kept, the higher score is kept.
func (r *recoSet) add(actionKey, source, why string, score float64, priority *models.Priority) {
	action := r.library[actionKey]
	group := groupByAction[actionKey]

	pri := priorityByAction[actionKey]
	if priority != nil {
		pri = *priority
	}

	existing, ok := r.byGroup[group]
	if !ok {
		r.byGroup[group] = &models.Recommendation{
			ID:        stableID(r.farmID, "reco", group),
			Group:     group,
			Priority:  pri,
			Sources:   []string{source},
			Title:     action.Title,
			Text:      action.Text,
			Why:       why,
			Score:     score,
			CreatedAt: r.createdAt,
		}
		r.order = append(r.order, group)
		return
	}

	existing.Priority = existing.Priority.MoreUrgent(pri)
	if !containsString(existing.Sources, source) {
		existing.Sources = append(existing.Sources, source)
		sort.Strings(existing.Sources)
	}
	if existing.Why == "" {
		existing.Why = why
	}
	if score > existing.Score {
		existing.Score = score
	}
}

func (r *recoSet) hasSubstantive() bool {
	for group := range r.byGroup {
		if !housekeepingGroups[group] {
			return true
		}
	}
	return false
}

// sorted returns the recommendations ordered by priority, then internal
// score descending, then title, truncated to the cap.
func (r *recoSet) sorted(limit int) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(r.order))
	for _, group := range r.order {
		out = append(out, *r.byGroup[group])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Title < out[j].Title
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// stableID derives a deterministic short id from the content parts, so an
// unchanged condition reproduces the same id across runs.
func stableID(parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "al_" + hex.EncodeToString(sum[:])[:14]
}

func fmtScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
