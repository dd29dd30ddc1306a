package prompts

import (
	"maps"
	"slices"
)

// Schema names sent with structured output requests.
const (
	IntentSchemaName     = "parse_intent"
	ExtractionSchemaName = "extract_delta"
)

// DeltaSchema returns the JSON schema of a proposed delta. Only intent parsing
// includes the skill_check field. The schema is strict: every property is
// required and nullable fields use a null type.
func DeltaSchema(withSkillCheck bool) map[string]any {
	properties := map[string]any{
		"item_changes": arrayOf(map[string]any{
			"item":     map[string]any{"type": "string"},
			"quantity": map[string]any{"type": "integer"},
		}),
		"attribute_changes": arrayOf(map[string]any{
			"attribute": map[string]any{"type": "string"},
			"delta":     map[string]any{"type": "integer"},
		}),
		"skill_changes": arrayOf(map[string]any{
			"skill": map[string]any{"type": "string"},
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"learn", "forget", "improve", "deteriorate"},
			},
			"value": map[string]any{"type": []string{"integer", "null"}},
		}),
		"location": map[string]any{"type": []string{"string", "null"}},
		"flag_updates": arrayOf(map[string]any{
			"flag":  map[string]any{"type": "string"},
			"value": map[string]any{"type": []string{"string", "number", "boolean"}},
		}),
	}
	required := []string{"item_changes", "attribute_changes", "skill_changes", "location", "flag_updates"}

	if withSkillCheck {
		properties["skill_check"] = map[string]any{
			"type":                 []string{"object", "null"},
			"additionalProperties": false,
			"properties": map[string]any{
				"attribute":     map[string]any{"type": "string"},
				"difficulty":    map[string]any{"type": "integer"},
				"requires_roll": map[string]any{"type": "boolean"},
			},
			"required": []string{"attribute", "difficulty", "requires_roll"},
		}
		required = append(required, "skill_check")
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
		"required":             required,
	}
}

// arrayOf builds a strict array-of-objects schema where every property is required.
func arrayOf(properties map[string]any) map[string]any {
	required := slices.Sorted(maps.Keys(properties))
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties":           properties,
			"required":             required,
		},
	}
}
