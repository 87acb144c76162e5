package recipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/zombor/recipescan/internal/capture"
	"github.com/zombor/recipescan/internal/ocr"
	"github.com/zombor/recipescan/internal/structuring"
)

// ImageNormalizer prepares captured images for OCR
type ImageNormalizer interface {
	NormalizeAll(images []capture.PendingImage) (capture.BatchResult, error)
}

// TextScanner recognizes the text of an ordered batch of images
type TextScanner interface {
	Scan(ctx context.Context, images []capture.PendingImage) (string, error)
}

// Structurer sends raw text to an AI provider
type Structurer interface {
	Structure(ctx context.Context, text string, cfg structuring.Config) (string, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ScanResult is the outcome of scanning recipe card images. Recipe is an
// unsaved candidate for the user to review.
type ScanResult struct {
	RawText   string  `json:"raw_text"`
	Recipe    *Recipe `json:"recipe,omitempty"`
	Processed int     `json:"processed_count"`
	Failed    int     `json:"failed_count"`
}

// Service handles recipe operations
type Service struct {
	db         DB
	normalizer ImageNormalizer
	scanner    TextScanner
	structurer Structurer
	provider   structuring.Config
	timeSource TimeSource

	// one OCR engine at a time
	scans *semaphore.Weighted
}

// NewService creates a new Service with the default time source
func NewService(db DB, normalizer ImageNormalizer, scanner TextScanner, structurer Structurer, provider structuring.Config) *Service {
	return NewServiceWithDeps(db, normalizer, scanner, structurer, provider, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, normalizer ImageNormalizer, scanner TextScanner, structurer Structurer, provider structuring.Config, timeSrc TimeSource) *Service {
	return &Service{
		db:         db,
		normalizer: normalizer,
		scanner:    scanner,
		structurer: structurer,
		provider:   provider,
		timeSource: timeSrc,
		scans:      semaphore.NewWeighted(1),
	}
}

// Scan normalizes the images, recognizes their text in capture order and
// asks the AI provider to structure it. Images that fail to normalize are
// counted and left out as long as at least one succeeds. When structuring
// fails the recognized text is still returned alongside the error.
func (s *Service) Scan(ctx context.Context, images []capture.PendingImage) (*ScanResult, error) {
	if len(images) == 0 {
		return nil, ocr.ErrNoImages
	}

	if err := s.scans.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for scanner: %w", err)
	}
	defer s.scans.Release(1)

	batch, err := s.normalizer.NormalizeAll(images)
	if batch.Processed() == 0 {
		return nil, fmt.Errorf("normalizing images: %w", err)
	}
	if err != nil {
		slog.Warn("Continuing scan without failed images",
			"processed", batch.Processed(),
			"failed", batch.FailedCount(),
			"error", err,
		)
	}

	text, err := s.scanner.Scan(ctx, batch.Images)
	if err != nil {
		return nil, fmt.Errorf("recognizing text: %w", err)
	}

	result := &ScanResult{
		RawText:   text,
		Processed: batch.Processed(),
		Failed:    batch.FailedCount(),
	}

	candidate, err := s.Structure(ctx, text)
	if err != nil {
		return result, err
	}
	result.Recipe = candidate
	return result, nil
}

// Structure turns raw recipe text into an unsaved candidate recipe. Fields
// the provider left out are empty.
func (s *Service) Structure(ctx context.Context, text string) (*Recipe, error) {
	raw, err := s.structurer.Structure(ctx, text, s.provider)
	if err != nil {
		return nil, fmt.Errorf("structuring recipe: %w", err)
	}

	parsed, err := structuring.Normalize(raw)
	if err != nil {
		slog.Error("Failed to parse AI response",
			"provider", s.provider.Provider,
			"response_length", len(raw),
			"error", err,
		)
		return nil, err
	}

	title, ingredients, instructions := parsed.Fields()
	return &Recipe{
		Title:        title,
		Ingredients:  ingredients,
		Instructions: instructions,
	}, nil
}

// CreateRecipe stores a new recipe and returns it with its ID. A taken
// title fails with a *DuplicateTitleError naming the recipe that holds it.
func (s *Service) CreateRecipe(r *Recipe) (*Recipe, error) {
	existing, found, err := s.db.FindByTitle(r.Title)
	if err != nil {
		return nil, fmt.Errorf("checking title: %w", err)
	}
	if found {
		return nil, &DuplicateTitleError{Title: r.Title, ExistingID: existing.ID}
	}

	id, err := s.db.AddRecipe(r)
	if err != nil {
		return nil, fmt.Errorf("creating recipe: %w", err)
	}
	created := r.clone()
	created.ID = id
	return created, nil
}

// GetRecipe retrieves a recipe by ID
func (s *Service) GetRecipe(id uint64) (*Recipe, bool, error) {
	r, found, err := s.db.GetRecipe(id)
	if err != nil {
		return nil, false, fmt.Errorf("getting recipe: %w", err)
	}
	return r, found, nil
}

// ListRecipes returns all recipes
func (s *Service) ListRecipes() ([]*Recipe, error) {
	recipes, err := s.db.ListRecipes()
	if err != nil {
		return nil, fmt.Errorf("listing recipes: %w", err)
	}
	return recipes, nil
}

// SearchRecipes returns the recipes whose title, ingredients or
// instructions contain query, ignoring case. An empty query matches all.
func (s *Service) SearchRecipes(query string) ([]*Recipe, error) {
	recipes, err := s.ListRecipes()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return recipes, nil
	}

	matches := make([]*Recipe, 0)
	for _, r := range recipes {
		if matchesQuery(r, query) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

func matchesQuery(r *Recipe, query string) bool {
	if strings.Contains(strings.ToLower(r.Title), query) || strings.Contains(strings.ToLower(r.Instructions), query) {
		return true
	}
	return slices.ContainsFunc(r.Ingredients, func(i string) bool {
		return strings.Contains(strings.ToLower(i), query)
	})
}

// UpdateRecipe replaces a stored recipe
func (s *Service) UpdateRecipe(r *Recipe) (*Recipe, error) {
	if err := s.db.UpdateRecipe(r); err != nil {
		return nil, fmt.Errorf("updating recipe %d: %w", r.ID, err)
	}
	return r.clone(), nil
}

// DeleteRecipe removes a recipe
func (s *Service) DeleteRecipe(id uint64) error {
	if err := s.db.DeleteRecipe(id); err != nil {
		return fmt.Errorf("deleting recipe %d: %w", id, err)
	}
	return nil
}

// ShoppingList merges the ingredients of the selected recipes into a
// sorted list without duplicates. Unknown IDs are ignored.
func (s *Service) ShoppingList(ids []uint64) ([]string, error) {
	seen := make(map[string]struct{})
	for _, id := range ids {
		r, found, err := s.GetRecipe(id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		for _, ingredient := range r.Ingredients {
			if ingredient = strings.TrimSpace(ingredient); ingredient != "" {
				seen[ingredient] = struct{}{}
			}
		}
	}

	list := make([]string, 0, len(seen))
	for ingredient := range seen {
		list = append(list, ingredient)
	}
	slices.Sort(list)
	return list, nil
}

// Export writes every recipe as an export document
func (s *Service) Export(w io.Writer) error {
	recipes, err := s.ListRecipes()
	if err != nil {
		return err
	}
	return WriteExport(w, recipes, s.timeSource.Now())
}

// Import parses an import file and stores its recipes
func (s *Service) Import(data []byte, mode ImportMode) (ImportResult, error) {
	recipes, err := ParseImportFile(data)
	if err != nil {
		return ImportResult{}, err
	}

	result, err := s.db.BulkImport(recipes, mode)
	if err != nil {
		slog.Error("Failed to import recipes",
			"mode", mode,
			"records", len(recipes),
			"error", err,
		)
		return ImportResult{}, fmt.Errorf("importing recipes: %w", err)
	}

	slog.Info("Imported recipes",
		"mode", mode,
		"added", result.Added,
		"skipped", result.Skipped,
	)
	return result, nil
}
