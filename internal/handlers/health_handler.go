package handlers

import (
	"encoding/json"
	"log/slog"
	"strings"

	"farm-health-service/internal/services"
	"farm-health-service/internal/worker"

	"github.com/gofiber/fiber/v3"
)

type FarmHealthHandler struct {
	healthService *services.FarmHealthService
	scheduler     *worker.Scheduler
}

func NewFarmHealthHandler(healthService *services.FarmHealthService, scheduler *worker.Scheduler) *FarmHealthHandler {
	return &FarmHealthHandler{healthService: healthService, scheduler: scheduler}
}

func (fhh *FarmHealthHandler) Register(app *fiber.App) {
	app.Get("/checkhealth", fhh.CheckHealth)

	group := app.Group("farm-health/api/v1")
	group.Post("/analyze", fhh.TriggerAnalysis)           // POST /analyze - enqueue a run for one farm
	group.Get("/farms/:farmID/health", fhh.GetFarmHealth) // GET  /farms/{id}/health - persisted payload
}

func (fhh *FarmHealthHandler) CheckHealth(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(CreateSuccessResponse(fiber.Map{"status": "ok"}))
}

// analyzeRequest accepts both the plain trigger body and the event
// envelope emitted by the ingestion pipeline on new-imagery events.
type analyzeRequest struct {
	FarmID string `json:"farmId"`
	Event  *struct {
		Data struct {
			FarmID string `json:"farmId"`
		} `json:"data"`
	} `json:"event"`
}

func (r *analyzeRequest) farmID() string {
	if r.FarmID != "" {
		return r.FarmID
	}
	if r.Event != nil {
		return r.Event.Data.FarmID
	}
	return ""
}

// TriggerAnalysis enqueues an analysis run for one farm. The run itself
// is asynchronous; the endpoint returns as soon as the job is accepted.
func (fhh *FarmHealthHandler) TriggerAnalysis(c fiber.Ctx) error {
	var req analyzeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(CreateErrorResponse("INVALID_BODY", "request body is not valid JSON"))
	}

	farmID := strings.TrimSpace(req.farmID())
	if farmID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(CreateErrorResponse("MISSING_FARM_ID", "farmId is required"))
	}

	if err := fhh.scheduler.Enqueue(c.Context(), farmID); err != nil {
		if err == worker.ErrQueueFull {
			return c.Status(fiber.StatusTooManyRequests).JSON(CreateErrorResponse("QUEUE_FULL", "analysis queue is full, retry later"))
		}
		slog.Error("Failed to enqueue analysis", "farm_id", farmID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(CreateErrorResponse("INTERNAL_SERVER_ERROR", "failed to enqueue analysis"))
	}

	slog.Info("Analysis enqueued", "farm_id", farmID)
	return c.Status(fiber.StatusAccepted).JSON(CreateSuccessResponse(fiber.Map{"farmId": farmID, "status": "queued"}))
}

// GetFarmHealth returns the farm's persisted health payload and alerts.
func (fhh *FarmHealthHandler) GetFarmHealth(c fiber.Ctx) error {
	farmID := c.Params("farmID")
	if farmID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(CreateErrorResponse("MISSING_FARM_ID", "farm id is required"))
	}

	doc, err := fhh.healthService.GetHealth(c.Context(), farmID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return c.Status(fiber.StatusNotFound).JSON(CreateErrorResponse("FARM_NOT_FOUND", err.Error()))
		}
		slog.Error("Failed to load health document", "farm_id", farmID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(CreateErrorResponse("INTERNAL_SERVER_ERROR", "failed to load farm health"))
	}
	return c.Status(fiber.StatusOK).JSON(CreateSuccessResponse(doc))
}
