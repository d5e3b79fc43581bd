package models

// Hotspot is one top-ranked cell surfaced for map display.
type Hotspot struct {
	Lat  float64   `json:"lat" bson:"lat"`
	Lng  float64   `json:"lng" bson:"lng"`
	Risk RiskClass `json:"risk" bson:"risk"`
	Rule RuleLabel `json:"rule" bson:"rule"`
}

// HotspotSet groups hotspots by focus. "Stress" collects cells whose
// provenance rule is one of the composite-tail rules.
type HotspotSet struct {
	Critical []Hotspot `json:"critical" bson:"critical"`
	Monitor  []Hotspot `json:"monitor" bson:"monitor"`
	Stress   []Hotspot `json:"stress" bson:"stress"`
}

// AlertSignals is the farm-level reduction of the latest week's
// classifications, consumed by the alert engine and persisted verbatim.
type AlertSignals struct {
	LatestDate        string         `json:"latest_date" bson:"latest_date"`
	TotalPixelsLatest int            `json:"total_pixels_latest" bson:"total_pixels_latest"`
	RiskCountsLatest  map[string]int `json:"risk_counts_latest" bson:"risk_counts_latest"`
	RuleCountsLatest  map[string]int `json:"rule_counts_latest" bson:"rule_counts_latest"`
	FlagCountsLatest  map[string]int `json:"flag_counts_latest" bson:"flag_counts_latest"`
	Hotspots          HotspotSet     `json:"hotspots" bson:"hotspots"`
}

// CurrentHealth is the latest-week class distribution in percent.
type CurrentHealth struct {
	HealthyPct  float64 `json:"Healthy_Pct" bson:"Healthy_Pct"`
	MonitorPct  float64 `json:"Monitor_Pct" bson:"Monitor_Pct"`
	CriticalPct float64 `json:"Critical_Pct" bson:"Critical_Pct"`
}

// IndexHistoryPoint is one weekly farm-level average of the three headline
// indices. Nil means the index had no valid cells that week.
type IndexHistoryPoint struct {
	Date string   `json:"date" bson:"date"`
	NDVI *float64 `json:"NDVI" bson:"NDVI"`
	NDMI *float64 `json:"NDMI" bson:"NDMI"`
	NDRE *float64 `json:"NDRE" bson:"NDRE"`
}

// ContextStats summarizes the trailing four weeks for report context.
type ContextStats struct {
	RPWScoreMed float64 `json:"RPW_score_med" bson:"RPW_score_med"`
	RainMM      float64 `json:"rain_mm" bson:"rain_mm"`
	TMean       float64 `json:"t_mean" bson:"t_mean"`
}

// HealthMapPoint is one cell on the mobile map: current status code S and
// predicted-next-week status code PS (0 healthy, 1 monitor, 2 critical).
// Coordinates are rounded to 6 decimal places.
type HealthMapPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
	S   int     `json:"s" bson:"s"`
	PS  int     `json:"ps" bson:"ps"`
}

// ForecastSummary is the projected next-week class distribution plus the
// mean predicted deltas for the vigour and moisture indices.
type ForecastSummary struct {
	HealthyPctNext    float64 `json:"Healthy_Pct_next" bson:"Healthy_Pct_next"`
	MonitorPctNext    float64 `json:"Monitor_Pct_next" bson:"Monitor_Pct_next"`
	CriticalPctNext   float64 `json:"Critical_Pct_next" bson:"Critical_Pct_next"`
	NDVIDeltaNextMean float64 `json:"ndvi_delta_next_mean" bson:"ndvi_delta_next_mean"`
	NDMIDeltaNextMean float64 `json:"ndmi_delta_next_mean" bson:"ndmi_delta_next_mean"`
}

// HealthResult is the complete per-run payload persisted to the farm
// document and served back to clients.
type HealthResult struct {
	CurrentHealth    CurrentHealth       `json:"current_health" bson:"current_health"`
	ForecastNextWeek ForecastSummary     `json:"forecast_next_week" bson:"forecast_next_week"`
	HealthMap        []HealthMapPoint    `json:"health_map" bson:"health_map"`
	IndicesHistory   []IndexHistoryPoint `json:"indices_history_last_month" bson:"indices_history_last_month"`
	AlertSignals     AlertSignals        `json:"alert_signals" bson:"alert_signals"`
	ContextStats     ContextStats        `json:"context_stats" bson:"context_stats"`
}
