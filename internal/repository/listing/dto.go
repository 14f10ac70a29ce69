package listing

import (
	"strconv"

	"github.com/habita-labs/habita/internal/db"
	"github.com/habita-labs/habita/internal/domain"
)

// buildHashFields converts a listing plus its vector into a flat
// map[string]string for HSET. Empty optional fields are omitted so
// TAG filters never match on "".
func buildHashFields(l *domain.Listing, vector []float32) map[string]string {
	m := map[string]string{
		"title":     l.Title,
		"operation": l.Operation,
		"price":     strconv.FormatFloat(l.Price, 'f', -1, 64),
		"vector":    db.VectorToBytes(vector),
	}
	if l.Address != "" {
		m["address"] = l.Address
	}
	if l.Bedrooms > 0 {
		m["bedrooms"] = strconv.Itoa(l.Bedrooms)
	}
	if l.Bathrooms > 0 {
		m["bathrooms"] = strconv.Itoa(l.Bathrooms)
	}
	if l.Description != "" {
		m["description"] = l.Description
	}
	if l.City != "" {
		m["city"] = l.City
	}
	if l.Barrio != "" {
		m["barrio"] = l.Barrio
	}
	return m
}

// parseHashFields converts a flat hash map back into a listing and its vector.
func parseHashFields(id string, m map[string]string) (domain.Listing, []float32) {
	l := domain.Listing{
		ID:          id,
		Title:       m["title"],
		Operation:   m["operation"],
		Address:     m["address"],
		Description: m["description"],
		City:        m["city"],
		Barrio:      m["barrio"],
	}
	if v, err := strconv.ParseFloat(m["price"], 64); err == nil {
		l.Price = v
	}
	if v, err := strconv.Atoi(m["bedrooms"]); err == nil {
		l.Bedrooms = v
	}
	if v, err := strconv.Atoi(m["bathrooms"]); err == nil {
		l.Bathrooms = v
	}

	var vector []float32
	if raw, ok := m["vector"]; ok {
		vector = db.BytesToVector(raw)
	}
	return l, vector
}
