package roomapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrInvalidResponse = errors.New("invalid response from room API")

// APIError is a non-2xx answer from the room API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("room API: %s (status %d)", e.Message, e.Status)
}

// IsNotFound reports whether err means the room does not exist or is no
// longer active. The server signals this by status or by message text.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusNotFound {
		return true
	}

	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "not active")
}

func decodeError(resp *http.Response, fallback string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error string `json:"error"`
	}
	msg := fallback
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	return &APIError{Status: resp.StatusCode, Message: msg}
}
