package stage

import (
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/services"
)

// Decode parses the item's payload into the stage document. A malformed
// payload can never succeed on retry, so it is reported as a validation error.
func Decode[T any](item *queue.Item) (T, error) {
	doc, err := payload.Decode[T](item.PayloadJSON)
	if err != nil {
		var zero T
		return zero, services.Wrap(
			services.ErrValidation, string(item.Stage), "decode payload",
			"Stored payload is not a valid document for this stage", err)
	}
	return doc, nil
}

// Store merges doc into the item's payload, keeping keys the stage does not model.
func Store(item *queue.Item, doc any) error {
	merged, err := payload.Merge(item.PayloadJSON, doc)
	if err != nil {
		return services.Wrap(services.ErrValidation, string(item.Stage), "encode payload", "", err)
	}
	item.PayloadJSON = merged
	return nil
}

// Encode renders one successor document.
func Encode(doc any, metadata map[string]string) (Successor, error) {
	raw, err := payload.Encode(doc)
	if err != nil {
		return Successor{}, err
	}
	return Successor{PayloadJSON: raw, Metadata: metadata}, nil
}
