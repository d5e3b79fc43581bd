package models

import "time"

// RiskClass is the three-level health label assigned to each cell,
// totally ordered Healthy < Monitor < Critical.
type RiskClass string

const (
	RiskHealthy  RiskClass = "Healthy"
	RiskMonitor  RiskClass = "Monitor"
	RiskCritical RiskClass = "Critical"
)

// Level returns the ordering rank of the class.
func (c RiskClass) Level() int {
	switch c {
	case RiskMonitor:
		return 1
	case RiskCritical:
		return 2
	}
	return 0
}

// RuleLabel records which classification rule produced a RiskClass so the
// decision stays auditable. The label strings are part of the persisted
// payload contract and must not change.
type RuleLabel string

const (
	RuleHealthy              RuleLabel = "Healthy"
	RuleCriticalBaselineDrop RuleLabel = "Critical_baseline_drop"
	RuleCriticalRPWTail      RuleLabel = "Critical_RPW_tail"
	RuleCriticalIFOutlier    RuleLabel = "Critical_IF_outlier"
	RuleMonitorBaselineDrop  RuleLabel = "Monitor_baseline_drop"
	RuleMonitorRPWTail       RuleLabel = "Monitor_RPW_tail"
	RuleMonitorIFOutlier     RuleLabel = "Monitor_IF_outlier"
)

// Flag names for the boolean stress indicators counted per run. Same
// contract note as RuleLabel: these keys are persisted as-is.
const (
	FlagDropSIWSI10Pct = "flag_drop_SIWSI10pct"
	FlagDropNDWI10Pct  = "flag_drop_NDWI10pct"
	FlagDropNDVI005    = "flag_drop_NDVI005"
	FlagNDVIBelow030   = "flag_NDVI_below_030"
	FlagNDREBelow035   = "flag_NDRE_below_035"
	FlagNDWIBelow025   = "flag_NDWI_below_025"
	FlagNDRELow        = "flag_NDRE_low"
	FlagNDWILow        = "flag_NDWI_low"
)

// FlagNames lists every flag in persisted order.
var FlagNames = []string{
	FlagDropSIWSI10Pct,
	FlagDropNDWI10Pct,
	FlagDropNDVI005,
	FlagNDVIBelow030,
	FlagNDREBelow035,
	FlagNDWIBelow025,
	FlagNDRELow,
	FlagNDWILow,
}

// CellAssessment is the classification outcome for one cell-week: the
// boolean flags, the composite and anomaly scores, and the label with its
// provenance rule.
type CellAssessment struct {
	X    float64
	Y    float64
	Date time.Time

	Flags    map[string]bool
	RPWScore float64
	IFScore  float64

	Risk RiskClass
	Rule RuleLabel
}
