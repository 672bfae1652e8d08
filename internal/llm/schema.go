package llm

import (
	"github.com/openorcamento/budgetlens/constants"
)

// BuildItemsJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the provider as a structured output
// constraint and also use it locally to validate whatever comes back.
// The schema only enforces shape and enums; cross-field rules (category
// belongs to side, page in range, evidence present in text) are the
// validator's job downstream.
func BuildItemsJSONSchema() map[string]any {
	categories := append(
		constants.CategoryNamesFor(constants.SideRevenue),
		constants.CategoryNamesFor(constants.SideExpense)...,
	)

	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"side": map[string]any{
				"type": "string",
				"enum": []string{string(constants.SideRevenue), string(constants.SideExpense)},
			},
			"category": map[string]any{
				"type": "string",
				"enum": categories,
			},
			"descriptionOriginal": map[string]any{"type": "string", "minLength": 1},
			"value":               map[string]any{"type": []string{"number", "null"}},
			"unit": map[string]any{
				"type": "string",
				"enum": constants.UnitNames(),
			},
			"pageNumber":   map[string]any{"type": "integer", "minimum": 1},
			"evidenceText": map[string]any{"type": "string", "minLength": 1},
			"explanation":  map[string]any{"type": "string"},
		},
		"required": []string{
			"side", "category", "descriptionOriginal", "value",
			"unit", "pageNumber", "evidenceText", "explanation",
		},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"items": map[string]any{
				"type":  "array",
				"items": item,
			},
		},
		"required": []string{"items"},
	}
}
