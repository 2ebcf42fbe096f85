package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
)

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[API] Failed to encode response: %v", err)
		}
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Detail string         `json:"detail"`
	Code   string         `json:"code,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// respondError maps a component error to its HTTP status and body.
func respondError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Printf("[API] Internal error: %v", err)
		ae = apperr.New(apperr.Internal, "internal server error")
	}
	respondJSON(w, apperr.HTTPStatus(ae.Kind), errorBody{
		Detail: ae.Detail,
		Code:   string(ae.Kind),
		Fields: ae.Fields,
	})
}

// parseJSON decodes a request body, rejecting unknown shapes loudly enough to
// catch client drift.
func parseJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.New(apperr.Validation, "invalid JSON body: %v", err)
	}
	return nil
}

// Pagination limits.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// parseLimit reads the limit query parameter.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.New(apperr.Validation, "invalid limit %q", raw)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

// cursor encodes the (sort key, id) position of the last row of a page.
type cursor struct {
	SortKey time.Time
	ID      string
}

// encodeCursor renders an opaque cursor token.
func encodeCursor(sortKey time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", sortKey.UnixMicro(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor parses a cursor token from the query string. Absent cursors
// return nil.
func decodeCursor(r *http.Request) (*cursor, error) {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		return nil, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "invalid cursor")
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, apperr.New(apperr.Validation, "invalid cursor")
	}
	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "invalid cursor")
	}
	return &cursor{SortKey: time.UnixMicro(micros).UTC(), ID: parts[1]}, nil
}

// page wraps a list response with its continuation token.
type page[T any] struct {
	Items      []T    `json:"items"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// paginate trims an over-fetched slice (limit+1 rows requested) and builds
// the next cursor from the last kept row.
func paginate[T any](items []T, limit int, cursorOf func(T) (time.Time, string)) page[T] {
	p := page[T]{Items: items}
	if len(items) > limit {
		p.Items = items[:limit]
		p.HasMore = true
		last := p.Items[len(p.Items)-1]
		sortKey, id := cursorOf(last)
		p.NextCursor = encodeCursor(sortKey, id)
	}
	if p.Items == nil {
		p.Items = []T{}
	}
	return p
}
