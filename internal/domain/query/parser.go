// Package query turns free-form real-estate queries into a structured
// intent: operation, price bounds, bedroom count, location, and residual
// free text. Parsing is pure and never fails; schema validation is a
// separate step (see Validate).
package query

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/habita-labs/habita/internal/domain/location"
	"github.com/habita-labs/habita/internal/domain/nlp"
)

// ParsedQuery is the structured intent extracted from one raw query.
// Optional fields are nil/empty when the query carried no such cue.
type ParsedQuery struct {
	Text           string   `json:"text"`
	Operation      string   `json:"operation,omitempty"`
	PriceMin       *float64 `json:"priceMin,omitempty"`
	PriceMax       *float64 `json:"priceMax,omitempty"`
	Bedrooms       *int     `json:"bedrooms,omitempty"`
	City           string   `json:"city,omitempty"`
	Barrio         string   `json:"barrio,omitempty"`
	LocationTokens []string `json:"locationTokens"`
}

// HasLocation reports whether a city or barrio was extracted.
func (p *ParsedQuery) HasLocation() bool { return p.City != "" || p.Barrio != "" }

// stopWords are articles and prepositions dropped from the token stream.
var stopWords = newSet(
	"en", "de", "la", "el", "los", "las", "y", "o",
	"un", "una", "por", "para", "con", "a", "del",
)

// Operation cue sets, tested against tokens in rent -> sale -> temp order.
// A later category overwrites an earlier one when a query mentions both.
var (
	rentWords = newSet("alquiler", "alquilo", "alquilar", "rent", "renta")
	saleWords = newSet("venta", "vendo", "comprar", "sale")
	tempWords = newSet("temporal", "temporario", "temporary")
)

var (
	// An integer followed by a room/bedroom word stem ("2 ambientes",
	// "3 dorm", "1 habitacion").
	bedroomsRe = regexp.MustCompile(`(\d+)\s*(habitac|hab|dorm|dormit|amb)`)

	// Two numbers joined by a range word: "100000 a 200000".
	priceRangeRe = regexp.MustCompile(`(\d[\d. ]*)\s*(?:a|y|hasta|-)\s*(\d[\d. ]*)`)

	// One-sided bounds. The symbolic cues never survive normalization but
	// are kept so the patterns read as the full cue sets.
	priceMaxRe = regexp.MustCompile(`(?:hasta|<=|menos de)\s*(\d[\d. ]*)`)
	priceMinRe = regexp.MustCompile(`(?:desde|>=|mas de)\s*(\d[\d. ]*)`)
)

// consumedWords blacklists tokens already claimed by the operation,
// bedroom, and price steps so they don't leak into location tokens.
var consumedWords = newSet(
	"alquiler", "alquilo", "alquilar", "rent", "renta",
	"venta", "vendo", "comprar", "sale",
	"temporal", "temporario", "temporary",
	"habitac", "hab", "dorm", "dormit", "amb", "ambiente", "ambientes",
	"hasta", "desde", "menos", "mas", "de", "a", "en",
)

// Parse extracts a structured query from raw text. Pure: same input, same
// output, no external calls. Unrecognized content stays in Text.
func Parse(raw string) ParsedQuery {
	q := nlp.Normalize(raw)

	tokens := make([]string, 0, 8)
	for _, t := range strings.Split(q, " ") {
		if t != "" && !stopWords[t] {
			tokens = append(tokens, t)
		}
	}

	out := ParsedQuery{Text: strings.Join(tokens, " ")}

	// Operation: later categories override earlier ones on ties.
	for _, t := range tokens {
		if rentWords[t] {
			out.Operation = "rent"
		}
	}
	for _, t := range tokens {
		if saleWords[t] {
			out.Operation = "sale"
		}
	}
	for _, t := range tokens {
		if tempWords[t] {
			out.Operation = "temp"
		}
	}

	if m := bedroomsRe.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			out.Bedrooms = &n
		}
	}

	if m := priceRangeRe.FindStringSubmatch(q); m != nil {
		// No swap if min > max: that inconsistency surfaces in Validate.
		out.PriceMin = toNum(m[1])
		out.PriceMax = toNum(m[2])
	} else {
		if m := priceMaxRe.FindStringSubmatch(q); m != nil {
			out.PriceMax = toNum(m[1])
		}
		if m := priceMinRe.FindStringSubmatch(q); m != nil {
			out.PriceMin = toNum(m[1])
		}
	}

	if city, ok := location.MatchCity(q); ok {
		out.City = city
	}
	if barrio, ok := location.MatchBarrio(q); ok {
		out.Barrio = barrio
		if out.City == "" {
			out.City = location.CityCABA
		}
	}

	out.LocationTokens = locationTokens(tokens)

	return out
}

// locationTokens keeps leftover tokens in original order, dropping pure
// digits and words consumed by earlier steps.
func locationTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if isDigits(t) || consumedWords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// toNum strips every non-digit and parses the rest. Empty or unparsable
// values are absent, not zero.
func toNum(s string) *float64 {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		return nil
	}
	return &v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func newSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
