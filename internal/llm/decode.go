package llm

import (
	"encoding/json"
	"fmt"
)

// DecodeItems is the shared back half of every provider: sanitize the
// model's text, validate against the schema, unmarshal the envelope.
// Any failure here is ErrMalformedResponse; transport failures are the
// provider's to report as ErrCapabilityUnavailable.
func DecodeItems(content string) ([]CandidateItem, []byte, error) {
	raw, err := SanitizeModelJSON(content)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := ValidateJSONAgainstSchema(BuildItemsJSONSchema(), raw); err != nil {
		return nil, raw, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var envelope struct {
		Items []CandidateItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, raw, fmt.Errorf("%w: unmarshal items: %v", ErrMalformedResponse, err)
	}
	return envelope.Items, raw, nil
}
