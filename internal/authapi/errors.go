package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrInvalidResponse = errors.New("invalid response from auth service")
	ErrNoAccessToken   = errors.New("auth service returned no access token")
)

// APIError is a non-2xx answer from the auth service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service: %s (status %d)", e.Message, e.Status)
}

// decodeError reads an {error} body. Bodies that are not JSON produce
// fallback as the message.
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
