package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"creditpolicy/internal/serving"
)

type PredictHandler struct {
	Serving *serving.Context
	Logger  *zap.Logger
}

type predictRequest struct {
	Features map[string]float64 `json:"features" binding:"required"`
}

func (h *PredictHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1")
	group.POST("/predict", h.predict)
}

// @Summary Score one applicant and return the policy decision
// @Tags decision
// @Accept json
// @Produce json
// @Param body body predictRequest true "feature name -> value"
// @Success 200 {object} serving.Prediction
// @Failure 400 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/v1/predict [post]
func (h *PredictHandler) predict(c *gin.Context) {
	if h.Serving == nil {
		Error(c, http.StatusServiceUnavailable, CodePolicyUnavailable, "policy not loaded", nil)
		return
	}
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, CodeInvalidRequest, "body must be {\"features\": {name: number}}", nil)
		return
	}
	pred, err := h.Serving.Predict(c.Request.Context(), req.Features)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("prediction failed", zap.Error(err))
		}
		if errors.Is(err, serving.ErrScoring) {
			Error(c, http.StatusBadRequest, CodeScoringFailed, "prediction failed", nil)
			return
		}
		Error(c, http.StatusInternalServerError, CodeInternal, "internal error", nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Debug("prediction",
			zap.Float64("pd", pred.PD),
			zap.String("decision", string(pred.Decision)),
			zap.Int("missing", len(pred.MissingFeatures)),
			zap.Int("extra", len(pred.ExtraFeatures)),
		)
	}
	c.JSON(http.StatusOK, pred)
}
