package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return p
}

const validScenario = `{
  "name": "Harbor Town",
  "rating": "PG-13",
  "attributes": {"Strength": "power"},
  "starting_location": "The Docks",
  "opening_prompt": "Gulls cry.",
  "customizations": {"background": {"options": {"sailor": {"bonuses": {"Strength": 1}}}}}
}`

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"valid", "harbor_town.json", validScenario, ""},
		{"experimental prefix", "x.harbor_town.json", validScenario, ""},
		{"bad filename", "Harbor-Town.json", validScenario, "lowercase snake_case"},
		{"unknown field", "extra.json", strings.Replace(validScenario, `"name"`, `"scenes": {}, "name"`, 1), "strict JSON"},
		{"invalid json", "broken.json", `{"name":`, "invalid JSON"},
		{"bad rating", "rated.json", strings.Replace(validScenario, "PG-13", "NC17", 1), "rating 'NC17'"},
		{"unknown bonus attribute", "bonus.json", strings.Replace(validScenario, `{"Strength": 1}`, `{"Luck": 1}`, 1), "Luck"},
		{"missing opening prompt", "quiet.json", strings.Replace(validScenario, "Gulls cry.", "", 1), "opening_prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeScenario(t, dir, tt.file, tt.body)
			v := &ScenarioValidator{}
			err := v.validateFile(p)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.json", validScenario)
	writeScenario(t, dir, "a.json", validScenario)
	writeScenario(t, dir, "notes.txt", "ignored")

	files, err := collectFiles([]string{dir})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.json" {
		t.Errorf("Expected sorted json files, got %v", files)
	}

	if _, err := collectFiles([]string{t.TempDir()}); err == nil {
		t.Error("Expected error for a directory without scenarios")
	}
}
