package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/zombor/recipescan/internal/structuring"
)

const (
	ExportVersion  = 1
	ExportFilename = "recipes-export.json"

	// exportTimeLayout is ISO-8601 in UTC with milliseconds
	exportTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// ExportFile is the JSON document written by Export and read by Import.
type ExportFile struct {
	Version    int       `json:"version"`
	ExportedAt string    `json:"exportedAt"`
	Recipes    []*Recipe `json:"recipes"`
}

// WriteExport encodes recipes as an indented export document.
func WriteExport(w io.Writer, recipes []*Recipe, exportedAt time.Time) error {
	if recipes == nil {
		recipes = []*Recipe{}
	}
	file := ExportFile{
		Version:    ExportVersion,
		ExportedAt: exportedAt.UTC().Format(exportTimeLayout),
		Recipes:    recipes,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}

// ParseImportFile reads either an export document or a bare array of
// recipes. Entries that are not recipe objects, or whose title is not a
// string, come back with an empty title so the import counts them as
// skipped.
func ParseImportFile(data []byte) ([]*Recipe, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrInvalidImportFormat
	}

	var entries []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImportFormat, err)
		}
	case '{':
		var file struct {
			Recipes json.RawMessage `json:"recipes"`
		}
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImportFormat, err)
		}
		if err := json.Unmarshal(file.Recipes, &entries); err != nil || entries == nil {
			return nil, ErrInvalidImportFormat
		}
	default:
		return nil, ErrInvalidImportFormat
	}

	recipes := make([]*Recipe, 0, len(entries))
	for _, entry := range entries {
		recipes = append(recipes, importRecord(entry))
	}
	return recipes, nil
}

// importRecord decodes one entry field by field so a single mistyped field
// does not cost the whole record. Incoming IDs are dropped.
func importRecord(entry json.RawMessage) *Recipe {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return &Recipe{}
	}

	r := &Recipe{}
	if v, ok := fields["title"]; ok {
		r.Title = jsonString(v)
	}
	if v, ok := fields["ingredients"]; ok {
		r.Ingredients = structuring.DecodeIngredients(v)
	}
	if v, ok := fields["instructions"]; ok {
		r.Instructions = jsonString(v)
	}
	return r
}

func jsonString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
