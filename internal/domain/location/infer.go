package location

import (
	"strings"

	"github.com/habita-labs/habita/internal/domain/nlp"
)

// Place is an inferred city/barrio pair. Either field may be empty;
// an all-empty Place means no known location was mentioned.
type Place struct {
	City   string
	Barrio string
}

// IsZero reports whether nothing was inferred.
func (p Place) IsZero() bool { return p.City == "" && p.Barrio == "" }

// Infer resolves a city and barrio from an address or listing title.
// Cities are scanned in gazetteer order, first containing-substring match
// wins. A barrio match without an explicit city implies caba. Absence of
// any match yields a zero Place, never an error.
func Infer(addressOrTitle string) Place {
	n := nlp.Normalize(addressOrTitle)
	if n == "" {
		return Place{}
	}

	if city, ok := MatchCity(n); ok {
		return Place{City: city, Barrio: matchBarrioFor(n, city)}
	}

	if barrio, ok := MatchBarrio(n); ok {
		return Place{City: CityCABA, Barrio: barrio}
	}

	return Place{}
}

// MatchCity scans city variants against normalized text and returns the
// canonical code of the first match.
func MatchCity(normalized string) (string, bool) {
	for _, e := range cityGazetteer {
		for _, v := range e.variants {
			if strings.Contains(normalized, v) {
				return e.code, true
			}
		}
	}
	return "", false
}

// MatchBarrio scans the CABA barrio list against normalized text.
func MatchBarrio(normalized string) (string, bool) {
	for _, b := range barriosCABA {
		if strings.Contains(normalized, b) {
			return b, true
		}
	}
	return "", false
}

// matchBarrioFor attaches a barrio only for the city that has barrio-level
// coverage in the gazetteer.
func matchBarrioFor(normalized, city string) string {
	if city != CityCABA {
		return ""
	}
	if b, ok := MatchBarrio(normalized); ok {
		return b
	}
	return ""
}
