package halo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/starford/halosync/internal/apperr"
)

// APIError is a non-2xx answer from the Halo API, decoded from its
// problem-detail body when one is present.
type APIError struct {
	Method     string `json:"-"`
	Path       string `json:"-"`
	StatusCode int    `json:"-"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		if msg != "" {
			msg += ": "
		}
		msg += e.Detail
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("halo: %s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets callers match with errors.Is(err, apperr.ErrNotFound) and
// errors.Is(err, apperr.ErrConflict).
func (e *APIError) Is(target error) bool {
	switch target {
	case apperr.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case apperr.ErrConflict:
		return e.StatusCode == http.StatusConflict || strings.Contains(e.Title, "Duplicate")
	}
	return false
}

const maxDetail = 256

func newAPIError(method, path string, status int, body []byte) *APIError {
	e := &APIError{Method: method, Path: path, StatusCode: status}
	if len(body) > 0 && json.Unmarshal(body, e) != nil {
		e.Detail = strings.TrimSpace(string(body))
		if len(e.Detail) > maxDetail {
			e.Detail = e.Detail[:maxDetail] + "..."
		}
	}
	return e
}
