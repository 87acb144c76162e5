package structuring

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ErrUnparseableResponse = errors.New("AI returned a non-JSON response; the recipe card may be unclear")

var fencedJSON = regexp.MustCompile("```json\\n([\\s\\S]*?)\\n```")

// ParsedRecipe is the recipe found in a provider answer. Fields the answer
// did not carry are nil.
type ParsedRecipe struct {
	Title        *string
	Ingredients  []string
	Instructions *string
}

// Fields returns the parsed values with absent fields defaulted to empty.
func (p *ParsedRecipe) Fields() (title string, ingredients []string, instructions string) {
	if p.Title != nil {
		title = *p.Title
	}
	ingredients = p.Ingredients
	if ingredients == nil {
		ingredients = []string{}
	}
	if p.Instructions != nil {
		instructions = *p.Instructions
	}
	return title, ingredients, instructions
}

// Normalize extracts the recipe JSON object from a provider answer. A
// ```json fenced block wins over the surrounding text; otherwise the whole
// trimmed answer must be the object.
func Normalize(raw string) (*ParsedRecipe, error) {
	text := strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		text = m[1]
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return nil, ErrUnparseableResponse
	}

	parsed := &ParsedRecipe{}
	if v, ok := fields["title"]; ok {
		parsed.Title = stringField(v)
	}
	if v, ok := fields["ingredients"]; ok {
		parsed.Ingredients = DecodeIngredients(v)
	}
	if v, ok := fields["instructions"]; ok {
		parsed.Instructions = stringField(v)
	}
	return parsed, nil
}

// stringField returns nil for anything but a JSON string.
func stringField(raw json.RawMessage) *string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

// DecodeIngredients reads an ingredient list that is either an array or a
// single newline separated string. Array elements that are not strings
// are skipped. Anything else yields nil.
func DecodeIngredients(raw json.RawMessage) []string {
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			return nil
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}

	s := stringField(raw)
	if s == nil {
		return nil
	}
	return splitLines(*s)
}

func splitLines(s string) []string {
	out := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
