package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCode is the stable, client-facing error class.
type ErrorCode string

const (
	CodeInvalidRequest    ErrorCode = "invalid_request"
	CodeScoringFailed     ErrorCode = "scoring_failed"
	CodePolicyUnavailable ErrorCode = "policy_unavailable"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeNotFound          ErrorCode = "not_found"
	CodeInternal          ErrorCode = "internal"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Error   ErrorCode      `json:"error,omitempty"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, code ErrorCode, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Error:   code,
		Message: message,
		Meta:    meta,
	})
}
