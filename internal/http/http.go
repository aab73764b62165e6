// Package http holds the JSON helpers shared by the API handlers: response
// writing, error mapping and query parsing.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tally/internal/logger"
	"tally/internal/models"
	"tally/internal/services/recurring"
	"tally/internal/services/schedule"
	"tally/internal/services/storage"
)

var (
	// ErrBadRequest marks malformed request bodies and query parameters
	ErrBadRequest = errors.New("bad request")

	// ErrTooManyRequests marks requests refused by a rate limiter
	ErrTooManyRequests = errors.New("too many requests")
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteJSON writes v as JSON with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON request body into v. Unknown fields are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", ErrBadRequest, err)
	}
	return nil
}

// StatusFor maps an error to an HTTP status and a stable error code
func StatusFor(err error) (int, string) {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, schedule.ErrInvalidRule):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, ErrBadRequest), errors.Is(err, storage.ErrPasswordTooShort):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, storage.ErrIncorrectPassword):
		return http.StatusUnauthorized, "incorrect_password"
	case errors.Is(err, storage.ErrLocked):
		return http.StatusLocked, "locked"
	case errors.Is(err, recurring.ErrBatchInProgress):
		return http.StatusConflict, "batch_in_progress"
	case errors.Is(err, storage.ErrAlreadyEncrypted), errors.Is(err, storage.ErrNotEncrypted):
		return http.StatusConflict, "conflict"
	case errors.Is(err, schedule.ErrAnchorLimit):
		return http.StatusUnprocessableEntity, "anchor_limit"
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, "too_many_requests"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// ErrorResponse writes err as a JSON error body. Server errors are logged and
// their details withheld from the client.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	log := logger.FromContext(r.Context())

	detail := ErrorDetail{Code: code, Message: err.Error()}
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		detail.Field = verr.Field
		detail.Message = verr.Error()
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		detail.Message = "internal server error"
	} else {
		log.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	WriteJSON(w, status, ErrorBody{Error: detail})
}

// QueryInt parses an integer query parameter, returning def when absent
func QueryInt(q url.Values, key string, def int) (int, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrBadRequest, key, s)
	}
	return n, nil
}

// QueryBool parses a boolean query parameter; absent means false
func QueryBool(q url.Values, key string) (bool, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrBadRequest, key, s)
	}
	return b, nil
}

// QueryDay parses a YYYY-MM-DD query parameter; absent means nil
func QueryDay(q url.Values, key string) (*time.Time, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return nil, nil
	}
	d, err := models.ParseDay(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadRequest, key, err)
	}
	return &d, nil
}

// QueryDecimal parses a decimal query parameter; absent means nil
func QueryDecimal(q url.Values, key string) (*decimal.Decimal, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number, got %q", ErrBadRequest, key, s)
	}
	return &d, nil
}

// QueryIndices parses a comma-separated list of occurrence indices
func QueryIndices(q url.Values, key string) ([]int, error) {
	s := strings.TrimSpace(q.Get(key))
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s must be a list of indices, got %q", ErrBadRequest, key, p)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseDateRange parses the from/to query parameters. A missing bound
// defaults to minDate or maxDate.
func ParseDateRange(q url.Values, minDate, maxDate time.Time) (start, end time.Time, err error) {
	from, err := QueryDay(q, "from")
	if err != nil {
		return start, end, err
	}
	to, err := QueryDay(q, "to")
	if err != nil {
		return start, end, err
	}

	start, end = minDate, maxDate
	if from != nil {
		start = *from
	}
	if to != nil {
		end = *to
	}
	if !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("%w: to %s is before from %s", ErrBadRequest,
			end.Format(models.DateLayout), start.Format(models.DateLayout))
	}
	return start, end, nil
}
