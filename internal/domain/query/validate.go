package query

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/habita-labs/habita/internal/domain"
)

//go:embed schema.json
var schemaJSON string

var parsedQuerySchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("parsed-query.json", strings.NewReader(schemaJSON)); err != nil {
		panic("query: add schema resource: " + err.Error())
	}
	return c.MustCompile("parsed-query.json")
}

// ValidationError reports every constraint a parsed query violated.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", domain.ErrInvalidQuery, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidQuery }

// Validate checks a parsed query against the schema (text length, enum
// values, non-negative numbers) plus the cross-field price consistency
// rule. All violations are collected into a single error.
func Validate(p *ParsedQuery) error {
	var violations []string

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal parsed query: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("unmarshal parsed query: %w", err)
	}

	if err := parsedQuerySchema.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			violations = append(violations, flattenCauses(ve)...)
		} else {
			violations = append(violations, err.Error())
		}
	}

	// JSON Schema cannot compare sibling fields, so the range consistency
	// check lives here.
	if p.PriceMin != nil && p.PriceMax != nil && *p.PriceMin > *p.PriceMax {
		violations = append(violations, "priceMin must not exceed priceMax")
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

// flattenCauses walks the validation tree and keeps only leaf messages,
// prefixed with the offending field location.
func flattenCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := strings.TrimPrefix(ve.InstanceLocation, "/")
		if loc == "" {
			return []string{ve.Message}
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, flattenCauses(c)...)
	}
	return out
}
