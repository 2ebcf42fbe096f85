package syncer

import (
	"bufio"
	"encoding/json"
	"strings"
	"time"

	"github.com/beadhub/beadhub/internal/apperr"
	"github.com/beadhub/beadhub/internal/beads"
	"github.com/beadhub/beadhub/internal/models"
)

// Parse limits on client-pushed JSONL payloads.
const (
	MaxJSONLBytes   = 10 * 1024 * 1024
	MaxJSONLRecords = 10000
	MaxJSONDepth    = 10
)

// issueRecord is the client wire shape of one JSONL line.
type issueRecord struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Status    string          `json:"status"`
	Priority  int             `json:"priority"`
	Assignee  *string         `json:"assignee"`
	Creator   *string         `json:"creator"`
	Labels    []string        `json:"labels"`
	Parent    json.RawMessage `json:"parent"`
	BlockedBy json.RawMessage `json:"blocked_by"`
	CreatedAt *time.Time      `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at"`
	ClosedAt  *time.Time      `json:"closed_at"`
}

// ParseJSONL decodes client issue lines into validated, normalised issues.
// Timestamps round to microseconds; string fields are NFC-normalised and
// trimmed.
func ParseJSONL(payload string) ([]*models.Issue, error) {
	if len(payload) > MaxJSONLBytes {
		return nil, apperr.New(apperr.Validation, "issues payload exceeds %d bytes", MaxJSONLBytes)
	}

	scanner := bufio.NewScanner(strings.NewReader(payload))
	scanner.Buffer(make([]byte, 64*1024), MaxJSONLBytes)

	var out []*models.Issue
	line := 0
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		line++
		if text == "" {
			continue
		}
		if len(out) >= MaxJSONLRecords {
			return nil, apperr.New(apperr.Validation, "issues payload exceeds %d records", MaxJSONLRecords)
		}
		if depth := jsonDepth(text); depth > MaxJSONDepth {
			return nil, apperr.New(apperr.Validation, "issue on line %d nests deeper than %d levels", line, MaxJSONDepth)
		}

		var rec issueRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, apperr.New(apperr.Validation, "malformed issue on line %d", line)
		}
		issue, err := recordToIssue(&rec)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "failed to read issues payload")
	}
	return out, nil
}

func recordToIssue(rec *issueRecord) (*models.Issue, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	issue := &models.Issue{
		BeadID:    beads.NormalizeString(rec.ID),
		Title:     beads.NormalizeString(rec.Title),
		Body:      beads.NormalizeString(rec.Body),
		Status:    beads.NormalizeString(rec.Status),
		Priority:  rec.Priority,
		Labels:    rec.Labels,
		CreatedAt: now,
		UpdatedAt: now,
		ClosedAt:  rec.ClosedAt,
	}
	if rec.Assignee != nil {
		a := beads.NormalizeString(*rec.Assignee)
		issue.Assignee = &a
	}
	if rec.Creator != nil {
		c := beads.NormalizeString(*rec.Creator)
		issue.Creator = &c
	}
	if rec.CreatedAt != nil {
		issue.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Microsecond)
	}
	if rec.UpdatedAt != nil {
		issue.UpdatedAt = rec.UpdatedAt.UTC().Truncate(time.Microsecond)
	}
	if issue.ClosedAt != nil {
		t := issue.ClosedAt.UTC().Truncate(time.Microsecond)
		issue.ClosedAt = &t
	}

	var err error
	if issue.Parent, err = parseRef(rec.Parent); err != nil {
		return nil, apperr.New(apperr.Validation, "bead %s has a malformed parent tuple", issue.BeadID)
	}
	if issue.BlockedBy, err = parseRefList(rec.BlockedBy); err != nil {
		return nil, apperr.New(apperr.Validation, "bead %s has a malformed blocked_by tuple", issue.BeadID)
	}

	if err := beads.Validate(issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// parseRef accepts both the tuple form ["repo", "branch", "id"] and the
// object form {"repo":..., "branch":..., "bead_id":...}. A bare string is the
// bead id alone.
func parseRef(raw json.RawMessage) (*models.BeadRef, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, nil
		}
		return &models.BeadRef{BeadID: beads.NormalizeString(s)}, nil
	}
	var tuple []string
	if err := json.Unmarshal(raw, &tuple); err == nil {
		switch len(tuple) {
		case 1:
			return &models.BeadRef{BeadID: beads.NormalizeString(tuple[0])}, nil
		case 3:
			return &models.BeadRef{
				Repo:   beads.NormalizeString(tuple[0]),
				Branch: beads.NormalizeString(tuple[1]),
				BeadID: beads.NormalizeString(tuple[2]),
			}, nil
		default:
			return nil, apperr.New(apperr.Validation, "bead reference tuple must have 1 or 3 elements")
		}
	}
	var ref models.BeadRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, err
	}
	ref.Repo = beads.NormalizeString(ref.Repo)
	ref.Branch = beads.NormalizeString(ref.Branch)
	ref.BeadID = beads.NormalizeString(ref.BeadID)
	return &ref, nil
}

func parseRefList(raw json.RawMessage) ([]models.BeadRef, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	var out []models.BeadRef
	for _, item := range items {
		ref, err := parseRef(item)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			out = append(out, *ref)
		}
	}
	return out, nil
}

// jsonDepth measures bracket nesting, ignoring brackets inside strings.
func jsonDepth(s string) int {
	depth, max := 0, 0
	inString, escaped := false, false
	for _, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > max {
				max = depth
			}
		case '}', ']':
			depth--
		}
	}
	return max
}
