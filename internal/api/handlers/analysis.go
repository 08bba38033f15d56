package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trendlens/trendlens-go/internal/models"
	"github.com/trendlens/trendlens-go/internal/timeseries"
)

// AnalysisRunner is the slice of the analysis service the handlers need.
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context, force bool) (*models.AnalysisArtifact, bool, error)
	LatestArtifact(ctx context.Context) (*models.AnalysisArtifact, error)
	ArtifactHistory(ctx context.Context, limit int) ([]*models.AnalysisArtifact, error)
}

// AnalysisHandler exposes published artifacts to the presentation layer.
// Correlation, causality and forecast sections are addressable on their
// own so a dashboard can render each panel without re-running anything.
type AnalysisHandler struct {
	service AnalysisRunner
	logger  *logrus.Logger
}

// NewAnalysisHandler creates the analysis handler.
func NewAnalysisHandler(service AnalysisRunner, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{service: service, logger: logger}
}

// RunResponse reports the outcome of a run trigger.
type RunResponse struct {
	Ran      bool   `json:"ran"`
	Sequence int64  `json:"sequence,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Message  string `json:"message"`
}

// HistoryResponse wraps the bounded artifact history.
type HistoryResponse struct {
	Artifacts []*models.AnalysisArtifact `json:"artifacts"`
	Count     int                        `json:"count"`
	Timestamp time.Time                  `json:"timestamp"`
}

// TriggerRun handles the external scheduler signal. The optional force
// flag bypasses the skip-if-unchanged check.
func (h *AnalysisHandler) TriggerRun(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	artifact, ran, err := h.service.RunAnalysis(c.Request.Context(), force)
	if err != nil {
		if timeseries.IsInsufficientWindow(err) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Analysis run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis run failed"})
		return
	}

	resp := RunResponse{Ran: ran}
	if artifact != nil {
		resp.Sequence = artifact.Sequence
		resp.RunID = artifact.RunID
	}
	if ran {
		resp.Message = "analysis run published"
	} else {
		resp.Message = "input unchanged, previous artifact still authoritative"
	}
	c.JSON(http.StatusOK, resp)
}

// GetLatest returns the full latest artifact.
func (h *AnalysisHandler) GetLatest(c *gin.Context) {
	artifact, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, artifact)
}

// GetLatestCorrelation returns only the correlation matrix.
func (h *AnalysisHandler) GetLatestCorrelation(c *gin.Context) {
	artifact, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sequence":     artifact.Sequence,
		"created_at":   artifact.CreatedAt,
		"correlations": artifact.Correlations,
	})
}

// GetLatestCausality returns only the causality verdicts.
func (h *AnalysisHandler) GetLatestCausality(c *gin.Context) {
	artifact, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sequence":   artifact.Sequence,
		"created_at": artifact.CreatedAt,
		"causality":  artifact.Causality,
	})
}

// GetLatestForecast returns only the per-entity forecasts.
func (h *AnalysisHandler) GetLatestForecast(c *gin.Context) {
	artifact, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sequence":   artifact.Sequence,
		"created_at": artifact.CreatedAt,
		"forecasts":  artifact.Forecasts,
	})
}

// GetHistory returns the bounded artifact history, newest first.
func (h *AnalysisHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	history, err := h.service.ArtifactHistory(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read artifact history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read artifact history"})
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{
		Artifacts: history,
		Count:     len(history),
		Timestamp: time.Now().UTC(),
	})
}

func (h *AnalysisHandler) latest(c *gin.Context) (*models.AnalysisArtifact, bool) {
	artifact, err := h.service.LatestArtifact(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read latest artifact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read latest artifact"})
		return nil, false
	}
	if artifact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis has been published yet"})
		return nil, false
	}
	return artifact, true
}
