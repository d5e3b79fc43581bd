package models

// Severity of an alert, ordered critical > warning > info.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank returns the sort rank of the severity: lower sorts first.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	}
	return 2
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() <= other.Rank()
}

// Priority of a recommendation, ordered urgent > high > medium > low.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of the priority: lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 99
}

// MoreUrgent returns the more urgent of the two priorities.
func (p Priority) MoreUrgent(other Priority) Priority {
	if other.Rank() < p.Rank() {
		return other
	}
	return p
}

// Action is one concrete field action referenced by alerts and
// recommendations.
type Action struct {
	Key   string `json:"key" bson:"key"`
	Title string `json:"title" bson:"title"`
	Text  string `json:"text" bson:"text"`
}

// Driver is one aggregated signal category shown as an alert badge.
type Driver struct {
	Key   string  `json:"key" bson:"key"`
	Title string  `json:"title" bson:"title"`
	Score float64 `json:"score" bson:"score"`
}

// Alert is a bounded, user-facing notification. IDs are content hashes so
// an unchanged run reproduces the same alert for idempotent upsert.
type Alert struct {
	ID        string    `json:"id" bson:"id"`
	Type      string    `json:"type" bson:"type"`
	Severity  Severity  `json:"severity" bson:"severity"`
	Title     string    `json:"title" bson:"title"`
	Message   string    `json:"message" bson:"message"`
	Drivers   []Driver  `json:"drivers,omitempty" bson:"drivers,omitempty"`
	Actions   []Action  `json:"actions" bson:"actions"`
	Hotspots  []Hotspot `json:"hotspots" bson:"hotspots"`
	CreatedAt string    `json:"createdAtISO" bson:"createdAtISO"`
}

// Recommendation is one deduplicated, prioritized follow-up. Group is the
// semantic deduplication key; two different concrete actions in the same
// group merge into one entry. Score is the internal ranking value and is
// not exposed to clients.
type Recommendation struct {
	ID        string   `json:"id" bson:"id"`
	Group     string   `json:"group" bson:"group"`
	Priority  Priority `json:"priority" bson:"priority"`
	Sources   []string `json:"sources" bson:"sources"`
	Title     string   `json:"title" bson:"title"`
	Text      string   `json:"text" bson:"text"`
	Why       string   `json:"why" bson:"why"`
	Score     float64  `json:"-" bson:"-"`
	CreatedAt string   `json:"createdAtISO" bson:"createdAtISO"`
}

// AlertSummary is the insight block stored next to the alerts for UI use.
type AlertSummary struct {
	CurrentSeverity  Severity           `json:"current_severity" bson:"current_severity"`
	HealthNow        CurrentHealth      `json:"health_now" bson:"health_now"`
	DriversTop       []Driver           `json:"drivers_top" bson:"drivers_top"`
	DriverScores     map[string]float64 `json:"driver_scores" bson:"driver_scores"`
	EvidenceCounts   map[string]int     `json:"evidence_counts" bson:"evidence_counts"`
	TotalPixels      int                `json:"total_pixels_latest" bson:"total_pixels_latest"`
	HasForecastAlert bool               `json:"has_forecast_alert" bson:"has_forecast_alert"`
}

// AlertBundle is the full output of the alert engine for one run.
type AlertBundle struct {
	Alerts          []Alert          `json:"alerts" bson:"alerts"`
	Recommendations []Recommendation `json:"recommendations" bson:"recommendations"`
	Summary         AlertSummary     `json:"summary" bson:"summary"`
}
