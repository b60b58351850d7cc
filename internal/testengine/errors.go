package testengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrMalformedResponse is returned when a 2xx response body cannot be understood.
var ErrMalformedResponse = errors.New("malformed response")

// ErrResponseTooLarge is returned when a response body exceeds the size
// limit of its endpoint. The body is discarded rather than truncated.
var ErrResponseTooLarge = errors.New("response body too large")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// Transient reports whether the request is worth repeating as-is.
func (e *StatusError) Transient() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// newStatusError extracts a human message from an error body, preferring
// the JSON "message" field, then "error", then the status text.
func newStatusError(code int, body []byte) *StatusError {
	msg := http.StatusText(code)

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != "":
			msg = payload.Error
		}
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 256 {
		msg = text
	}

	return &StatusError{Code: code, Message: msg, Body: body}
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a [*StatusError].
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsLicenseError reports whether err is a 403 whose message mentions the license.
func IsLicenseError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		return false
	}
	return strings.Contains(strings.ToLower(se.Message), "license")
}
