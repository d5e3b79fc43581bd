package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"farm-health-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// ObservationRepository reads the weekly per-cell observation table. The
// table is owned by the imagery ingestion service; this repository is
// read-only by contract.
type ObservationRepository struct {
	db *sqlx.DB
}

func NewObservationRepository(db *sqlx.DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

const observationColumns = `
	site, cell_x, cell_y, observed_at,
	ndvi, gndvi, ndre, ndre740, mtci,
	ndmi, ndwi_gao, siwsi1, siwsi2, srwi, nmdi,
	precip_mm, t2m_mean, t2m_max, t2m_min,
	ssrd_mj, wind10_ms, vpd_kpa, rh2m_mean,
	canopy_temp`

// GetByFarmAndTimeRange returns every observation of the farm within
// [from, to), ordered by cell and date for the feature builder.
func (r *ObservationRepository) GetByFarmAndTimeRange(ctx context.Context, farmID string, from, to time.Time) ([]models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM farm_observations
		WHERE site = $1 AND observed_at >= $2 AND observed_at < $3
		ORDER BY cell_x, cell_y, observed_at`

	var observations []models.Observation
	if err := r.db.SelectContext(ctx, &observations, query, farmID, from, to); err != nil {
		return nil, fmt.Errorf("failed to fetch observations for farm %s: %w", farmID, err)
	}

	slog.Debug("Fetched observations", "farm_id", farmID, "from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"), "rows", len(observations))
	return observations, nil
}

// GetLatestObservationDate returns the most recent observation week of the
// farm, or a zero time when the farm has no rows yet.
func (r *ObservationRepository) GetLatestObservationDate(ctx context.Context, farmID string) (time.Time, error) {
	query := `SELECT COALESCE(MAX(observed_at), '0001-01-01'::date)
		FROM farm_observations WHERE site = $1`

	var latest time.Time
	if err := r.db.GetContext(ctx, &latest, query, farmID); err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch latest observation date for farm %s: %w", farmID, err)
	}
	if latest.Year() <= 1 {
		return time.Time{}, nil
	}
	return latest, nil
}
