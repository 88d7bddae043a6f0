package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"market-predictor/internal/pipeline"
	"market-predictor/internal/service"
)

// RunRequest is the optional JSON body of POST /api/predictions/run.
type RunRequest struct {
	Symbols       []string `json:"symbols" binding:"omitempty,max=50,dive,min=1,max=12"`
	TechnicalOnly bool     `json:"technical_only"`
}

// GetPredictions godoc
// @Summary      Latest predictions
// @Description  Returns predictions from the most recent run, sorted by symbol
// @Tags         predictions
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/predictions [get]
func (h *Handler) GetPredictions(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-predictions")
	defer span.End()

	body := gin.H{
		"predictions": h.predictions.Predictions(),
		"running":     h.predictions.Running(),
	}
	if latest, ok := h.predictions.Latest(); ok {
		body["run_id"] = latest.RunID
		body["generated_at"] = latest.FinishedAt
		body["failures"] = latest.Failures
		if latest.Sentiment != nil {
			body["sentiment"] = latest.Sentiment
		}
	}
	c.JSON(http.StatusOK, body)
}

// GetPrediction godoc
// @Summary      Prediction for one symbol
// @Tags         predictions
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol (e.g., SPY)"
// @Success      200  {object}  domain.Prediction
// @Failure      404  {object}  map[string]string
// @Router       /api/predictions/{symbol} [get]
func (h *Handler) GetPrediction(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-prediction")
	defer span.End()

	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	span.SetAttributes(attribute.String("symbol", symbol))

	p, ok := h.predictions.Prediction(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "no prediction for symbol: " + symbol,
			"symbols": h.predictions.Symbols(),
		})
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetSummary godoc
// @Summary      Market summary
// @Description  Aggregates the latest predictions into bullish, bearish or mixed
// @Tags         predictions
// @Produce      json
// @Success      200  {object}  domain.MarketSummary
// @Router       /api/summary [get]
func (h *Handler) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.predictions.Summary())
}

// TriggerRun godoc
// @Summary      Start a prediction run
// @Description  Starts a run in the background, or waits for it with wait=true
// @Tags         predictions
// @Accept       json
// @Produce      json
// @Param        technical_only  query  bool        false  "Skip sentiment"
// @Param        wait            query  bool        false  "Block until the run finishes"
// @Param        request         body   RunRequest  false  "Symbols override"
// @Success      200  {object}  pipeline.RunResult
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]interface{}
// @Security     ApiKeyAuth
// @Router       /api/predictions/run [post]
func (h *Handler) TriggerRun(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-run")
	defer span.End()

	var body RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if v, err := strconv.ParseBool(c.DefaultQuery("technical_only", "false")); err == nil && v {
		body.TechnicalOnly = true
	}
	req := service.RunRequest{Symbols: body.Symbols, TechnicalOnly: body.TechnicalOnly}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		result, err := h.predictions.Run(ctx, req)
		switch {
		case errors.Is(err, service.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			resp := gin.H{"error": err.Error()}
			if result != nil {
				resp["failures"] = result.Failures
			}
			c.JSON(http.StatusInternalServerError, resp)
		default:
			c.JSON(http.StatusOK, result)
		}
		return
	}

	err := h.predictions.Start(h.runCtx, req, func(_ *pipeline.RunResult, err error) {
		if err != nil {
			h.logger.Error().Err(err).Msg("background prediction run failed")
		}
	})
	if errors.Is(err, service.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = h.predictions.Symbols()
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":         "started",
		"symbols":        symbols,
		"technical_only": req.TechnicalOnly,
	})
}

// GetUsage godoc
// @Summary      Provider quota usage
// @Description  Returns calls made and limits for each rate-limited provider
// @Tags         usage
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/usage [get]
func (h *Handler) GetUsage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.predictions.Usage()})
}
