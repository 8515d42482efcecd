package api

import "strings"

// MetadataField returns a metadata value or fallback when it is missing.
func MetadataField(metadata map[string]string, field, fallback string) string {
	if value := strings.TrimSpace(metadata[field]); value != "" {
		return value
	}
	return fallback
}

// ItemLabel picks the most descriptive human label for an item: its URL,
// then its source name, then its sequence key.
func ItemLabel(item QueueItem) string {
	if url := MetadataField(item.Metadata, "url", ""); url != "" {
		return url
	}
	if source := MetadataField(item.Metadata, "source_name", ""); source != "" {
		return source
	}
	return item.SequenceKey
}
