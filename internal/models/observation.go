package models

import (
	"math"
	"time"
)

// IndexNames lists every spectral ratio carried on a weekly observation row,
// in the column order produced by the imagery ingestion service.
var IndexNames = []string{
	"NDVI", "GNDVI", "NDRE", "NDRE740", "MTCI",
	"NDMI", "NDWI_Gao", "SIWSI1", "SIWSI2", "SRWI", "NMDI",
}

// CoreIndexNames is the subset used for temporal feature engineering:
// vigour (NDVI), chlorophyll (NDRE), moisture (NDMI) and leaf water (SIWSI1).
var CoreIndexNames = []string{"NDVI", "NDRE", "NDMI", "SIWSI1"}

// WeatherNames lists the weekly weather aggregates joined onto each row.
var WeatherNames = []string{
	"precip_mm", "t2m_mean", "t2m_max", "t2m_min",
	"ssrd_MJ", "wind10_ms", "vpd_kPa", "rh2m_mean",
}

// Observation is one (site, cell, week) record from the weekly per-cell
// table. Rows are immutable once written by the ingestion service and are
// consumed read-only here. Nil columns mean the measurement is missing for
// that week (clouds, no acquisition, sensor gaps).
type Observation struct {
	Site       string    `db:"site" json:"site"`
	CellX      float64   `db:"cell_x" json:"cell_x"`
	CellY      float64   `db:"cell_y" json:"cell_y"`
	ObservedAt time.Time `db:"observed_at" json:"observed_at"`

	NDVI    *float64 `db:"ndvi" json:"ndvi,omitempty"`
	GNDVI   *float64 `db:"gndvi" json:"gndvi,omitempty"`
	NDRE    *float64 `db:"ndre" json:"ndre,omitempty"`
	NDRE740 *float64 `db:"ndre740" json:"ndre740,omitempty"`
	MTCI    *float64 `db:"mtci" json:"mtci,omitempty"`
	NDMI    *float64 `db:"ndmi" json:"ndmi,omitempty"`
	NDWIGao *float64 `db:"ndwi_gao" json:"ndwi_gao,omitempty"`
	SIWSI1  *float64 `db:"siwsi1" json:"siwsi1,omitempty"`
	SIWSI2  *float64 `db:"siwsi2" json:"siwsi2,omitempty"`
	SRWI    *float64 `db:"srwi" json:"srwi,omitempty"`
	NMDI    *float64 `db:"nmdi" json:"nmdi,omitempty"`

	PrecipMM *float64 `db:"precip_mm" json:"precip_mm,omitempty"`
	T2MMean  *float64 `db:"t2m_mean" json:"t2m_mean,omitempty"`
	T2MMax   *float64 `db:"t2m_max" json:"t2m_max,omitempty"`
	T2MMin   *float64 `db:"t2m_min" json:"t2m_min,omitempty"`
	SSRDMJ   *float64 `db:"ssrd_mj" json:"ssrd_mj,omitempty"`
	Wind10MS *float64 `db:"wind10_ms" json:"wind10_ms,omitempty"`
	VPDKPa   *float64 `db:"vpd_kpa" json:"vpd_kpa,omitempty"`
	RH2MMean *float64 `db:"rh2m_mean" json:"rh2m_mean,omitempty"`

	CanopyTemp *float64 `db:"canopy_temp" json:"canopy_temp,omitempty"`
}

// Index returns the named spectral index, NaN when missing or unknown.
func (o *Observation) Index(name string) float64 {
	switch name {
	case "NDVI":
		return deref(o.NDVI)
	case "GNDVI":
		return deref(o.GNDVI)
	case "NDRE":
		return deref(o.NDRE)
	case "NDRE740":
		return deref(o.NDRE740)
	case "MTCI":
		return deref(o.MTCI)
	case "NDMI":
		return deref(o.NDMI)
	case "NDWI_Gao":
		return deref(o.NDWIGao)
	case "SIWSI1":
		return deref(o.SIWSI1)
	case "SIWSI2":
		return deref(o.SIWSI2)
	case "SRWI":
		return deref(o.SRWI)
	case "NMDI":
		return deref(o.NMDI)
	}
	return math.NaN()
}

// Weather returns the weekly weather aggregates keyed by WeatherNames,
// with NaN for missing columns.
func (o *Observation) Weather() map[string]float64 {
	return map[string]float64{
		"precip_mm": deref(o.PrecipMM),
		"t2m_mean":  deref(o.T2MMean),
		"t2m_max":   deref(o.T2MMax),
		"t2m_min":   deref(o.T2MMin),
		"ssrd_MJ":   deref(o.SSRDMJ),
		"wind10_ms": deref(o.Wind10MS),
		"vpd_kPa":   deref(o.VPDKPa),
		"rh2m_mean": deref(o.RH2MMean),
	}
}

// HasAnyIndex reports whether at least one spectral index is present.
func (o *Observation) HasAnyIndex() bool {
	for _, name := range IndexNames {
		if v := o.Index(name); !math.IsNaN(v) {
			return true
		}
	}
	return false
}

func deref(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Float64Ptr is a convenience constructor for nullable columns.
func Float64Ptr(v float64) *float64 {
	return &v
}
