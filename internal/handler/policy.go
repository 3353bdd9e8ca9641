package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"creditpolicy/internal/repository"
	"creditpolicy/internal/serving"
)

type PolicyHandler struct {
	Serving *serving.Context
	// Repo is optional; without it the run history endpoints answer 503.
	Repo   repository.PolicyRunRepository
	Logger *zap.Logger
}

func (h *PolicyHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/policy")
	group.GET("", h.current)
	group.GET("/runs", h.listRuns)
	group.GET("/runs/:run_id", h.getRun)
}

// @Summary Active threshold artifact
// @Tags policy
// @Produce json
// @Success 200 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/v1/policy [get]
func (h *PolicyHandler) current(c *gin.Context) {
	if h.Serving == nil {
		Error(c, http.StatusServiceUnavailable, CodePolicyUnavailable, "policy not loaded", nil)
		return
	}
	Ok(c, h.Serving.Artifact(), map[string]any{
		"model":         h.Serving.ModelID(),
		"fill_strategy": h.Serving.FillName(),
		"features":      len(h.Serving.Features()),
		"loaded_at":     h.Serving.LoadedAt(),
	})
}

// @Summary List recorded policy runs
// @Tags policy
// @Produce json
// @Param limit query int false "page size (max 500)"
// @Param offset query int false "offset"
// @Param model query string false "model identifier"
// @Param since query string false "RFC3339 lower bound on created_at"
// @Param order_by query string false "created_at|test_cost|validation_cost|review_rate|test_roc_auc"
// @Param asc query bool false "ascending order"
// @Success 200 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/v1/policy/runs [get]
func (h *PolicyHandler) listRuns(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusServiceUnavailable, CodePolicyUnavailable, "run history disabled", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListPolicyRunsParams{
		Limit:   limit,
		Offset:  offset,
		Model:   strQueryPtr(c, "model"),
		OrderBy: strings.TrimSpace(c.Query("order_by")),
		Asc:     boolQueryPtr(c, "asc"),
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			Error(c, http.StatusBadRequest, CodeInvalidRequest, "since must be RFC3339", nil)
			return
		}
		params.Since = &since
	}
	items, err := h.Repo.ListPolicyRuns(c.Request.Context(), params)
	if err != nil {
		h.logError("list policy runs failed", err)
		Error(c, http.StatusInternalServerError, CodeInternal, "internal error", nil)
		return
	}
	total, err := h.Repo.CountPolicyRuns(c.Request.Context(), params)
	if err != nil {
		h.logError("count policy runs failed", err)
		Error(c, http.StatusInternalServerError, CodeInternal, "internal error", nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one recorded policy run
// @Tags policy
// @Produce json
// @Param run_id path string true "run id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/policy/runs/{run_id} [get]
func (h *PolicyHandler) getRun(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusServiceUnavailable, CodePolicyUnavailable, "run history disabled", nil)
		return
	}
	item, err := h.Repo.GetPolicyRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		h.logError("get policy run failed", err)
		Error(c, http.StatusInternalServerError, CodeInternal, "internal error", nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, CodeNotFound, "run not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *PolicyHandler) logError(msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, zap.Error(err))
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func boolQueryPtr(c *gin.Context, key string) *bool {
	if val := c.Query(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return &b
		}
	}
	return nil
}

func strQueryPtr(c *gin.Context, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

func paginationMeta(limit, offset int, total int64) map[string]any {
	if limit <= 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	hasNext := int64(offset+limit) < total
	return map[string]any{
		"limit":    limit,
		"offset":   offset,
		"total":    total,
		"has_next": hasNext,
	}
}
