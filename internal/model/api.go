package model

import (
	"fmt"
	"time"
)

// Field length limits for decision input. These keep a single oversized
// field from bloating the JSON log or the Postgres TEXT columns.
const (
	MaxDecisionLen = 32 * 1024 // 32 KB
	MaxReasonLen   = 64 * 1024 // 64 KB
	MaxTags        = 50
)

// ValidateDecisionInput checks per-field limits on a new decision.
func ValidateDecisionInput(in DecisionInput) error {
	if in.Decision == "" {
		return fmt.Errorf("decision text is required")
	}
	if len(in.Decision) > MaxDecisionLen {
		return fmt.Errorf("decision exceeds maximum length of %d bytes", MaxDecisionLen)
	}
	if len(in.Reason) > MaxReasonLen {
		return fmt.Errorf("reason exceeds maximum length of %d bytes", MaxReasonLen)
	}
	if len(in.Tags) > MaxTags {
		return fmt.Errorf("too many tags (maximum %d)", MaxTags)
	}
	return nil
}

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)
