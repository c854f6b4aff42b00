package planner

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/algovids/algovids-agent/internal/montage"
)

var errMalformedResponse = errors.New("malformed segment response")

// ParseSegments converts a model response into a validated plan. Anything
// other than a non-empty array of {start, end} numeric objects is rejected as
// a whole; a partially valid plan is never returned.
func ParseSegments(body string) (montage.Plan, error) {
	body = stripCodeFence(strings.TrimSpace(body))
	if body == "" {
		return nil, fmt.Errorf("%w: empty body", errMalformedResponse)
	}
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("%w: not valid JSON", errMalformedResponse)
	}

	root := gjson.Parse(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected a JSON array, got %s", errMalformedResponse, root.Type)
	}

	items := root.Array()
	if len(items) > montage.MaxSegments {
		return nil, fmt.Errorf("%w: %d segments", montage.ErrTooManySegments, len(items))
	}
	plan := make(montage.Plan, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: item %d is not an object", errMalformedResponse, i)
		}
		start, end := item.Get("start"), item.Get("end")
		if start.Type != gjson.Number || end.Type != gjson.Number {
			return nil, fmt.Errorf("%w: item %d needs numeric start and end", errMalformedResponse, i)
		}
		plan = append(plan, montage.Segment{Start: start.Float(), End: end.Float()})
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
