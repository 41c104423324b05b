package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BackendError is a non-2xx answer from the backend.
type BackendError struct {
	Status  int
	Message string // backend-provided, may be empty
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// IsClientError reports a 4xx status.
func (e *BackendError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// AsBackendError unwraps err into a *BackendError.
func AsBackendError(err error) (*BackendError, bool) {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr, true
	}
	return nil, false
}

// extractMessage pulls a human message out of an error body: a JSON object's
// "message" (or "error") field, or a bare JSON string.
func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var object map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &object); err == nil {
		for _, key := range []string{"message", "error"} {
			if s, ok := object[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}

	var plain string
	if err := json.Unmarshal([]byte(trimmed), &plain); err == nil {
		return strings.TrimSpace(plain)
	}
	return ""
}
