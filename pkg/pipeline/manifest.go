package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"arttiler/internal/models"
)

// writeJSON writes v as indented JSON through a temporary file so readers
// never observe a partial document
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", path, err)
	}
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads the metadata written for one artwork
func ReadManifest(path string) (*models.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}
	var meta models.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("error parsing manifest %s: %w", path, err)
	}
	return &meta, nil
}

// UpdateIndex records meta at the front of the catalog at path, replacing
// any earlier entry with the same name. A missing catalog is created.
// Other entries are written back unchanged, including fields Metadata does
// not model.
func UpdateIndex(path string, meta models.Metadata) error {
	if meta.Name == "" {
		return fmt.Errorf("catalog entries need a name")
	}

	var index []json.RawMessage
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("error reading index: %w", err)
	default:
		if err := json.Unmarshal(data, &index); err != nil {
			return fmt.Errorf("error parsing index %s: %w", path, err)
		}
	}

	entry, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("error marshaling index entry: %w", err)
	}

	updated := make([]json.RawMessage, 0, len(index)+1)
	updated = append(updated, entry)
	for _, raw := range index {
		var key struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &key); err != nil {
			return fmt.Errorf("error parsing index %s: %w", path, err)
		}
		if key.Name != meta.Name {
			updated = append(updated, raw)
		}
	}
	return writeJSON(path, updated)
}
