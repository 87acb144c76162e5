// Package recipe stores recipe cards and serves the scan-to-recipe workflow.
package recipe

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrEmptyTitle          = errors.New("recipe title is required")
	ErrDuplicateTitle      = errors.New("a recipe with this title already exists")
	ErrNotFound            = errors.New("recipe not found")
	ErrInvalidImportFormat = errors.New("invalid import file: expected an export file or an array of recipes")
	ErrInvalidImportMode   = errors.New("invalid import mode")
)

// DuplicateTitleError names the stored recipe that already holds a title.
type DuplicateTitleError struct {
	Title      string
	ExistingID uint64
}

func (e *DuplicateTitleError) Error() string {
	return fmt.Sprintf("%v: %q", ErrDuplicateTitle, e.Title)
}

func (e *DuplicateTitleError) Unwrap() error {
	return ErrDuplicateTitle
}

// Recipe is a stored recipe card. Titles are unique across the store.
type Recipe struct {
	ID           uint64   `json:"id"`
	Title        string   `json:"title"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
}

// Validate checks that the recipe has a title.
func (r *Recipe) Validate() error {
	if err := validation.Validate(strings.TrimSpace(r.Title), validation.Required); err != nil {
		return ErrEmptyTitle
	}
	return nil
}

// clone returns a copy with a non-nil ingredient list.
func (r *Recipe) clone() *Recipe {
	c := *r
	if r.Ingredients == nil {
		c.Ingredients = []string{}
	} else {
		c.Ingredients = append([]string{}, r.Ingredients...)
	}
	return &c
}

// ImportMode selects how a bulk import treats existing recipes.
type ImportMode string

const (
	// ImportAdd keeps existing recipes and skips incoming duplicates.
	ImportAdd ImportMode = "add"
	// ImportOverwrite removes every existing recipe first.
	ImportOverwrite ImportMode = "overwrite"
)

// ParseImportMode maps a request value to an ImportMode. Empty means add.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ImportAdd:
		return ImportAdd, nil
	case ImportOverwrite:
		return ImportOverwrite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidImportMode, s)
}

// ImportResult counts the records a bulk import stored and skipped.
type ImportResult struct {
	Added   int `json:"added_count"`
	Skipped int `json:"skipped_count"`
}
