package ai

import (
	"errors"
	"strconv"
)

var (
	ErrInvalidAttribute = errors.New("invalid attribute")
	ErrEmptyImage       = errors.New("image api returned no image")
)

// APIError carries a non-2xx reply from an upstream service.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Service + " api error: " + e.Message
	}
	return e.Service + " api error: status " + strconv.Itoa(e.StatusCode)
}
