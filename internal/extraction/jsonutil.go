package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
)

// ExtractJSONObject pulls a single well-formed JSON object out of a raw model
// response. Markdown code fences around the payload are stripped, and any
// prose before the first '{' or after the last '}' is discarded.
func ExtractJSONObject(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, apperrors.New(apperrors.ErrCodeMalformedResponse, "no JSON object in response")
	}
	s = s[start : end+1]

	if !json.Valid([]byte(s)) {
		return nil, apperrors.New(apperrors.ErrCodeMalformedResponse, "response is not valid JSON")
	}
	return []byte(s), nil
}

// ValidateAgainstSchema validates data against a JSON-Schema expressed as a
// generic map.
func ValidateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
