package services

import (
	"errors"
	"testing"
)

func TestParseDelta(t *testing.T) {
	tests := []struct {
		name            string
		content         string
		allowSkillCheck bool
		wantErr         bool
		check           func(t *testing.T, items, skills int, location string, hasCheck bool)
	}{
		{
			name:    "plain object",
			content: `{"item_changes":[{"item":"rope","quantity":1}],"attribute_changes":[],"skill_changes":[],"location":null,"flag_updates":[]}`,
			check: func(t *testing.T, items, skills int, location string, hasCheck bool) {
				if items != 1 {
					t.Errorf("Expected 1 item change, got %d", items)
				}
				if location != "" {
					t.Errorf("Expected no location, got %q", location)
				}
			},
		},
		{
			name:    "fenced with prose",
			content: "Here you go:\n```json\n{\"location\":\"The Lighthouse\"}\n```",
			check: func(t *testing.T, items, skills int, location string, hasCheck bool) {
				if location != "The Lighthouse" {
					t.Errorf("Expected location The Lighthouse, got %q", location)
				}
			},
		},
		{
			name:            "skill check kept for intent",
			content:         `{"skill_check":{"attribute":"Agility","difficulty":12,"requires_roll":true}}`,
			allowSkillCheck: true,
			check: func(t *testing.T, items, skills int, location string, hasCheck bool) {
				if !hasCheck {
					t.Error("Expected skill check to be kept")
				}
			},
		},
		{
			name:    "skill check dropped for extraction",
			content: `{"skill_check":{"attribute":"Agility","difficulty":12,"requires_roll":true}}`,
			check: func(t *testing.T, items, skills int, location string, hasCheck bool) {
				if hasCheck {
					t.Error("Expected skill check to be discarded")
				}
			},
		},
		{
			name:    "unknown skill operation is left for the applier",
			content: `{"skill_changes":[{"skill":"Sailing","operation":"master"}]}`,
			check: func(t *testing.T, items, skills int, location string, hasCheck bool) {
				if skills != 1 {
					t.Errorf("Expected 1 skill change, got %d", skills)
				}
			},
		},
		{name: "no json", content: "The tide rises.", wantErr: true},
		{name: "unknown field", content: `{"gold":5}`, wantErr: true},
		{name: "wrong type", content: `{"item_changes":"rope"}`, wantErr: true},
		{name: "trailing data", content: `{"location":"A"} {"location":"B"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, err := ParseDelta(tt.content, tt.allowSkillCheck)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("Expected ErrMalformedOutput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			location := ""
			if delta.Location != nil {
				location = *delta.Location
			}
			tt.check(t, len(delta.ItemChanges), len(delta.SkillChanges), location, delta.SkillCheck != nil)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"sure! {\"a\":{\"b\":2}} done", `{"a":{"b":2}}`},
		{"nothing here", ""},
		{"} backwards {", ""},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
