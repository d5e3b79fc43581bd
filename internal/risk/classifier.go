// Package risk fuses the composite water/vigour/thermal heuristic score
// with the anomaly score under run-adaptive quantile thresholds and
// assigns each cell a risk label with an auditable provenance rule.
package risk

import (
	"math"

	"farm-health-service/internal/config"
	"farm-health-service/internal/models"
	"farm-health-service/internal/numeric"
)

const dropEpsilon = 1e-9

// Composite score weights.
const (
	waterWeight   = 0.5
	vigourWeight  = 0.4
	thermalWeight = 0.1
)

// Baseline-drop rule cutoffs.
const (
	critDrop3W    = 0.40
	critDropNDVI  = 0.50
	critDropNDMI  = 0.30
	monDrop3W     = 0.20
	monDropNDVI   = 0.20
	dropFlagPct   = 0.10
	dropFlagNDVI  = 0.05
	lowNDVICutoff = 0.30
	lowNDRECutoff = 0.35
	lowNDWICutoff = 0.25
)

type Classifier struct {
	cfg config.PipelineConfig
}

func NewClassifier(cfg config.PipelineConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify assigns a risk class and provenance rule to every row. Scores
// and thresholds are computed across the whole run population (all cells,
// all weeks), so the quantile cut always reflects this farm's current
// distribution. ifScores must be aligned with rows; missing scores are 0.
func (c *Classifier) Classify(rows []models.FeatureRow, ifScores []float64) []models.CellAssessment {
	n := len(rows)
	out := make([]models.CellAssessment, n)
	if n == 0 {
		return out
	}

	flags := c.computeFlags(rows)
	rpw := c.compositeScores(rows, flags)

	anomaly := make([]float64, n)
	for i := range anomaly {
		if i < len(ifScores) && numeric.IsFinite(ifScores[i]) {
			anomaly[i] = ifScores[i]
		}
	}

	rpwMonThr, rpwCritThr := c.adaptiveThresholds(rpw, c.cfg.MonitorQuantile, c.cfg.CriticalQuantile)
	ifThr, _ := c.adaptiveThresholds(anomaly, c.cfg.AnomalyQuantile, c.cfg.AnomalyQuantile)

	for i := range rows {
		row := &rows[i]
		ndviDrop := fillZero(row.Drop("NDVI"))
		ndmiDrop := fillZero(row.Drop("NDMI"))
		ndviDrop3 := fillZero(row.Drop3("NDVI"))

		risk, rule := classifyCell(cellInputs{
			rpw:       rpw[i],
			anomaly:   anomaly[i],
			rpwMonThr: rpwMonThr,
			rpwCrit:   rpwCritThr,
			ifThr:     ifThr,
			ndviDrop:  ndviDrop,
			ndmiDrop:  ndmiDrop,
			ndviDrop3: ndviDrop3,
		})

		out[i] = models.CellAssessment{
			X:        row.X,
			Y:        row.Y,
			Date:     row.Date,
			Flags:    flags.forRow(i),
			RPWScore: rpw[i],
			IFScore:  anomaly[i],
			Risk:     risk,
			Rule:     rule,
		}
	}
	return out
}

type cellInputs struct {
	rpw, anomaly                  float64
	rpwMonThr, rpwCrit, ifThr     float64
	ndviDrop, ndmiDrop, ndviDrop3 float64
}

// classifyCell applies the classification rules in fixed precedence
// order; the first matching rule wins and stamps the provenance label.
func classifyCell(in cellInputs) (models.RiskClass, models.RuleLabel) {
	critBaseline := in.ndviDrop3 >= critDrop3W ||
		(in.ndviDrop >= critDropNDVI && in.ndmiDrop >= critDropNDMI)

	switch {
	case critBaseline:
		return models.RiskCritical, models.RuleCriticalBaselineDrop
	case in.rpw >= in.rpwCrit:
		return models.RiskCritical, models.RuleCriticalRPWTail
	case !math.IsInf(in.ifThr, 1) && in.anomaly >= in.ifThr && in.rpw >= in.rpwMonThr:
		return models.RiskCritical, models.RuleCriticalIFOutlier
	case in.ndviDrop3 >= monDrop3W && in.ndviDrop >= monDropNDVI:
		return models.RiskMonitor, models.RuleMonitorBaselineDrop
	case in.rpw >= in.rpwMonThr:
		return models.RiskMonitor, models.RuleMonitorRPWTail
	case !math.IsInf(in.ifThr, 1) && in.anomaly >= in.ifThr:
		return models.RiskMonitor, models.RuleMonitorIFOutlier
	}
	return models.RiskHealthy, models.RuleHealthy
}

// adaptiveThresholds returns the quantile cutoffs for a score series.
// When the run-wide spread collapses below epsilon the distribution is
// effectively constant, so both thresholds are disabled (+Inf) and the
// score cannot manufacture Monitor/Critical labels out of noise.
func (c *Classifier) adaptiveThresholds(scores []float64, lowQ, highQ float64) (float64, float64) {
	mn, mx := numeric.MinMax(scores)
	if !numeric.IsFinite(mn) || !numeric.IsFinite(mx) || mx-mn < c.cfg.SpreadEpsilon {
		return math.Inf(1), math.Inf(1)
	}
	return numeric.Quantile(scores, lowQ), numeric.Quantile(scores, highQ)
}

// flagSet holds the per-row boolean stress flags as parallel slices.
type flagSet struct {
	names  []string
	values map[string][]bool
}

func (f *flagSet) forRow(i int) map[string]bool {
	out := make(map[string]bool, len(f.names))
	for _, name := range f.names {
		out[name] = f.values[name][i]
	}
	return out
}

func (f *flagSet) asFloat(name string) []float64 {
	column := f.values[name]
	out := make([]float64, len(column))
	for i, v := range column {
		if v {
			out[i] = 1
		}
	}
	return out
}

// computeFlags derives the eight boolean stress flags. Quantile cutoffs
// (the *_low flags) are taken over the run population; rows with a missing
// value never raise a flag.
func (c *Classifier) computeFlags(rows []models.FeatureRow) *flagSet {
	n := len(rows)
	f := &flagSet{names: models.FlagNames, values: make(map[string][]bool, len(models.FlagNames))}
	for _, name := range models.FlagNames {
		f.values[name] = make([]bool, n)
	}

	ndre := column(rows, func(r *models.FeatureRow) float64 { return r.Value("NDRE") })
	ndwi := column(rows, func(r *models.FeatureRow) float64 { return r.Value("NDWI_Gao") })
	ndreThr := numeric.Quantile(ndre, c.cfg.IndexLowQuantile)
	ndwiThr := numeric.Quantile(ndwi, c.cfg.IndexLowQuantile)

	for i := range rows {
		row := &rows[i]
		ndviVal := row.Value("NDVI")
		ndreVal := ndre[i]
		ndwiVal := ndwi[i]
		siwsiVal := row.Value("SIWSI1")

		f.values[models.FlagNDRELow][i] = lessThan(ndreVal, ndreThr)
		f.values[models.FlagNDWILow][i] = lessThan(ndwiVal, ndwiThr)
		f.values[models.FlagNDVIBelow030][i] = lessThan(ndviVal, lowNDVICutoff)
		f.values[models.FlagNDREBelow035][i] = lessThan(ndreVal, lowNDRECutoff)
		f.values[models.FlagNDWIBelow025][i] = lessThan(ndwiVal, lowNDWICutoff)

		f.values[models.FlagDropSIWSI10Pct][i] = relativeDropAtLeast(row.RollingMedian("SIWSI1"), siwsiVal, dropFlagPct)
		f.values[models.FlagDropNDWI10Pct][i] = relativeDropAtLeast(row.RollingMedian("NDWI_Gao"), ndwiVal, dropFlagPct)

		ndviBase := row.RollingMedian("NDVI")
		f.values[models.FlagDropNDVI005][i] = numeric.IsFinite(ndviBase) && numeric.IsFinite(ndviVal) &&
			ndviBase-ndviVal >= dropFlagNDVI
	}
	return f
}

// compositeScores blends the water, vigour and thermal sub-scores into the
// clipped composite. Each sub-score is the mean of its finite components;
// a row with no finite component in a group contributes 0 for that group.
func (c *Classifier) compositeScores(rows []models.FeatureRow, flags *flagSet) []float64 {
	n := len(rows)

	ndmiDropNorm := numeric.MinMaxNorm(numeric.FillNaN(
		column(rows, func(r *models.FeatureRow) float64 { return r.Drop("NDMI") }), 0))
	ndviDropNorm := numeric.MinMaxNorm(numeric.FillNaN(
		column(rows, func(r *models.FeatureRow) float64 { return r.Drop("NDVI") }), 0))

	ndre := column(rows, func(r *models.FeatureRow) float64 { return r.Value("NDRE") })
	ndreLowNorm := numeric.MinMaxNorm(negate(numeric.FillNaN(ndre, numeric.Median(ndre))))

	mtci := column(rows, func(r *models.FeatureRow) float64 { return r.Value("MTCI") })
	mtciNorm := numeric.MinMaxNorm(negate(numeric.FillNaN(mtci, numeric.Median(mtci))))

	thermalNorm := numeric.MinMaxNorm(
		column(rows, func(r *models.FeatureRow) float64 { return r.CanopyTemp }))

	dropSIWSI := flags.asFloat(models.FlagDropSIWSI10Pct)
	dropNDWI := flags.asFloat(models.FlagDropNDWI10Pct)
	ndwiLow := flags.asFloat(models.FlagNDWILow)
	ndwiBelow := flags.asFloat(models.FlagNDWIBelow025)
	dropNDVI := flags.asFloat(models.FlagDropNDVI005)
	ndviBelow := flags.asFloat(models.FlagNDVIBelow030)
	ndreBelow := flags.asFloat(models.FlagNDREBelow035)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		water := componentMean(
			dropSIWSI[i], dropNDWI[i], ndwiLow[i], ndwiBelow[i], ndmiDropNorm[i])
		vigour := componentMean(
			dropNDVI[i], ndviBelow[i], ndviDropNorm[i], ndreLowNorm[i], ndreBelow[i], mtciNorm[i])
		thermal := thermalNorm[i]
		if !numeric.IsFinite(thermal) {
			thermal = 0
		}

		out[i] = numeric.Clamp01(waterWeight*water + vigourWeight*vigour + thermalWeight*thermal)
	}
	return out
}

func componentMean(components ...float64) float64 {
	mean := numeric.Mean(components)
	if !numeric.IsFinite(mean) {
		return 0
	}
	return mean
}

func column(rows []models.FeatureRow, get func(*models.FeatureRow) float64) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = get(&rows[i])
	}
	return out
}

func negate(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = -v
	}
	return out
}

func lessThan(v, threshold float64) bool {
	return numeric.IsFinite(v) && numeric.IsFinite(threshold) && v < threshold
}

func relativeDropAtLeast(base, v, cutoff float64) bool {
	if !numeric.IsFinite(base) || !numeric.IsFinite(v) {
		return false
	}
	return (base-v)/(base+dropEpsilon) >= cutoff
}

func fillZero(v float64) float64 {
	if !numeric.IsFinite(v) {
		return 0
	}
	return v
}
