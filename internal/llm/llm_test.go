package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openorcamento/budgetlens/internal/llm"
)

const goodEnvelope = `{
  "items": [
    {
      "side": "EXPENSE",
      "category": "Health",
      "descriptionOriginal": "Serviço Nacional de Saúde",
      "value": 13500.5,
      "unit": "MILLION_EUR",
      "pageNumber": 12,
      "evidenceText": "Serviço Nacional de Saúde ............ 13 500,5 milhões de euros",
      "explanation": "Money for public hospitals and health centers. It pays for staff, medicines and equipment."
    }
  ]
}`

func TestSanitizeModelJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", `{"items": []}`, `{"items": []}`, true},
		{"fenced", "```json\n{\"items\": []}\n```", `{"items": []}`, true},
		{"fenced no lang", "```\n{\"items\": []}\n```", `{"items": []}`, true},
		{"prose around", "Here you go:\n{\"items\": []}\nHope that helps!", `{"items": []}`, true},
		{"no json", "I could not find any budget lines.", "", false},
		{"empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := llm.SanitizeModelJSON(tc.in)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestDecodeItemsValid(t *testing.T) {
	items, raw, err := llm.DecodeItems(goodEnvelope)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotEmpty(t, raw)

	it := items[0]
	assert.Equal(t, "EXPENSE", it.Side)
	assert.Equal(t, "Health", it.Category)
	require.NotNil(t, it.Value)
	assert.InDelta(t, 13500.5, *it.Value, 1e-9)
	assert.Equal(t, "MILLION_EUR", it.Unit)
	assert.Equal(t, 12, it.PageNumber)
}

func TestDecodeItemsNullValue(t *testing.T) {
	doc := `{"items":[{"side":"REVENUE","category":"Other revenue","descriptionOriginal":"Outras receitas","value":null,"unit":"UNKNOWN","pageNumber":3,"evidenceText":"Outras receitas correntes do Estado, montante a definir","explanation":"Leftover income not covered by the other buckets. The document gives no figure."}]}`
	items, _, err := llm.DecodeItems(doc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Value)
}

func TestDecodeItemsRejectsBadEnum(t *testing.T) {
	cases := map[string]string{
		"unknown side":     `{"items":[{"side":"BOTH","category":"Health","descriptionOriginal":"x","value":1,"unit":"EUR","pageNumber":1,"evidenceText":"x","explanation":"x"}]}`,
		"unknown category": `{"items":[{"side":"EXPENSE","category":"Healthcare","descriptionOriginal":"x","value":1,"unit":"EUR","pageNumber":1,"evidenceText":"x","explanation":"x"}]}`,
		"unknown unit":     `{"items":[{"side":"EXPENSE","category":"Health","descriptionOriginal":"x","value":1,"unit":"DOLLARS","pageNumber":1,"evidenceText":"x","explanation":"x"}]}`,
		"string value":     `{"items":[{"side":"EXPENSE","category":"Health","descriptionOriginal":"x","value":"1,5","unit":"EUR","pageNumber":1,"evidenceText":"x","explanation":"x"}]}`,
		"missing field":    `{"items":[{"side":"EXPENSE","category":"Health","value":1,"unit":"EUR","pageNumber":1,"evidenceText":"x","explanation":"x"}]}`,
		"page zero":        `{"items":[{"side":"EXPENSE","category":"Health","descriptionOriginal":"x","value":1,"unit":"EUR","pageNumber":0,"evidenceText":"x","explanation":"x"}]}`,
		"no envelope":      `[{"side":"EXPENSE"}]`,
		"truncated":        `{"items":[{"side":"EXPENSE"`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := llm.DecodeItems(doc)
			assert.ErrorIs(t, err, llm.ErrMalformedResponse, "doc=%s", doc)
		})
	}
}

func TestDecodeItemsEmpty(t *testing.T) {
	items, _, err := llm.DecodeItems(`{"items": []}`)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDisabledReturnsNoItems(t *testing.T) {
	d := llm.NewDisabled(nil)
	items, raw, err := d.ExtractItems(context.Background(), llm.ExtractRequest{TitlePath: "Despesas"})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Nil(t, raw)
	assert.False(t, errors.Is(err, llm.ErrCapabilityUnavailable))
}
