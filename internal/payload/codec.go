package payload

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decode parses a stored payload into the typed document for a stage. An
// empty payload decodes to the zero value.
func Decode[T any](raw string) (T, error) {
	var out T
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// Encode serializes a typed document.
func Encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// Merge overlays the JSON form of update onto the stored payload. Top-level
// keys present in existing but absent from update are kept, so fields a stage
// does not model survive a round trip.
func Merge(existing string, update any) (string, error) {
	base := map[string]json.RawMessage{}
	if trimmed := strings.TrimSpace(existing); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &base); err != nil {
			return "", fmt.Errorf("merge payload: existing document is not an object: %w", err)
		}
	}
	data, err := json.Marshal(update)
	if err != nil {
		return "", fmt.Errorf("merge payload: %w", err)
	}
	overlay := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &overlay); err != nil {
		return "", fmt.Errorf("merge payload: update is not an object: %w", err)
	}
	for key, value := range overlay {
		base[key] = value
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return "", fmt.Errorf("merge payload: %w", err)
	}
	return string(merged), nil
}
