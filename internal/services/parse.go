package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

// ErrMalformedOutput is returned when structured output does not match the delta schema.
var ErrMalformedOutput = errors.New("malformed structured output")

// ParseDelta decodes a structured delta. Unknown fields and trailing data are
// rejected; entries with unknown values are left for the applier to skip.
// When allowSkillCheck is false any skill_check is discarded.
func ParseDelta(content string, allowSkillCheck bool) (*state.Delta, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedOutput)
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var delta state.Delta
	if err := dec.Decode(&delta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedOutput)
	}

	if !allowSkillCheck {
		delta.SkillCheck = nil
	}
	return &delta, nil
}

// extractJSON strips markdown fences and any prose around the outermost
// JSON object.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
