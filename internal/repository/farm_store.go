package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"farm-health-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FarmStore is the farm document repository. A farm document carries the
// boundary and owner metadata written by the farm management app, plus the
// analysis status, health payload and alert set written here. Writes are
// field-scoped updates so app-owned fields (including per-alert read
// state) are never clobbered.
type FarmStore struct {
	col *mongo.Collection
}

func NewFarmStore(db *mongo.Database) *FarmStore {
	return &FarmStore{col: db.Collection("farms")}
}

// GetFarm loads one farm document by id.
func (s *FarmStore) GetFarm(ctx context.Context, farmID string) (*models.Farm, error) {
	var farm models.Farm
	err := s.col.FindOne(ctx, bson.M{"_id": farmID}).Decode(&farm)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("farm %s not found", farmID)
		}
		return nil, fmt.Errorf("failed to load farm %s: %w", farmID, err)
	}
	return &farm, nil
}

// ListFarmIDs returns the ids of every farm document, used by the weekly
// scheduler to enqueue runs.
func (s *FarmStore) ListFarmIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list farms: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode farm id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate farms: %w", err)
	}
	return ids, nil
}

// SetRunStatus records a lifecycle transition on the farm document. An
// empty errMsg clears any previous error.
func (s *FarmStore) SetRunStatus(ctx context.Context, farmID, status, errMsg string) error {
	update := bson.M{
		"$set": bson.M{
			"status":    status,
			"updatedAt": time.Now().UTC(),
		},
	}
	if errMsg != "" {
		update["$set"].(bson.M)["errorMessage"] = errMsg
	} else {
		update["$unset"] = bson.M{"errorMessage": ""}
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.col.UpdateByID(ctx, farmID, update, opts); err != nil {
		return fmt.Errorf("failed to set status %s for farm %s: %w", status, farmID, err)
	}

	slog.Info("Farm status updated", "farm_id", farmID, "status", status)
	return nil
}

// SaveHealthResult persists the per-run payload onto the farm document.
func (s *FarmStore) SaveHealthResult(ctx context.Context, farmID string, result *models.HealthResult) error {
	update := bson.M{
		"$set": bson.M{
			"current_health":             result.CurrentHealth,
			"forecast_next_week":         result.ForecastNextWeek,
			"health_map":                 result.HealthMap,
			"indices_history_last_month": result.IndicesHistory,
			"alert_signals":              result.AlertSignals,
			"context_stats":              result.ContextStats,
			"healthUpdatedAt":            time.Now().UTC(),
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.col.UpdateByID(ctx, farmID, update, opts); err != nil {
		return fmt.Errorf("failed to save health result for farm %s: %w", farmID, err)
	}
	return nil
}

// SaveAlerts replaces the alert and recommendation sets on the farm
// document. Alert ids are content hashes, so unchanged runs rewrite the
// same entities and the client's read markers (stored under their own
// field, keyed by alert id) stay valid.
func (s *FarmStore) SaveAlerts(ctx context.Context, farmID string, bundle *models.AlertBundle) error {
	update := bson.M{
		"$set": bson.M{
			"alerts":          bundle.Alerts,
			"recommendations": bundle.Recommendations,
			"alertsSummary":   bundle.Summary,
			"alertsUpdatedAt": time.Now().UTC(),
			"hasUnreadAlerts": len(bundle.Alerts) > 0,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.col.UpdateByID(ctx, farmID, update, opts); err != nil {
		return fmt.Errorf("failed to save alerts for farm %s: %w", farmID, err)
	}

	slog.Info("Alerts saved", "farm_id", farmID,
		"alerts", len(bundle.Alerts), "recommendations", len(bundle.Recommendations))
	return nil
}

// GetHealthDocument returns the persisted health payload fields of a farm
// for the read API, without the app-owned fields.
func (s *FarmStore) GetHealthDocument(ctx context.Context, farmID string) (bson.M, error) {
	projection := bson.M{
		"status":                     1,
		"errorMessage":               1,
		"current_health":             1,
		"forecast_next_week":         1,
		"health_map":                 1,
		"indices_history_last_month": 1,
		"alert_signals":              1,
		"context_stats":              1,
		"alerts":                     1,
		"recommendations":            1,
		"alertsSummary":              1,
		"healthUpdatedAt":            1,
		"alertsUpdatedAt":            1,
	}

	var doc bson.M
	err := s.col.FindOne(ctx, bson.M{"_id": farmID}, options.FindOne().SetProjection(projection)).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("farm %s not found", farmID)
		}
		return nil, fmt.Errorf("failed to load health document for farm %s: %w", farmID, err)
	}
	return doc, nil
}
