package domain

import (
	"fmt"
	"strings"
)

// Operation values stored in listing metadata and matched by query filters.
const (
	OperationRent = "rent"
	OperationSale = "sale"
	OperationTemp = "temp"
)

// Listing is a real-estate property as provided by an ingestion source.
// City and Barrio are filled during ingestion from the address (or title).
type Listing struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Operation   string  `json:"operation"`
	Price       float64 `json:"price"`
	Address     string  `json:"address,omitempty"`
	Bedrooms    int     `json:"bedrooms,omitempty"`
	Bathrooms   int     `json:"bathrooms,omitempty"`
	Description string  `json:"description,omitempty"`
	City        string  `json:"city,omitempty"`
	Barrio      string  `json:"barrio,omitempty"`
}

// Chunk renders the listing as the text that gets embedded. Field lines are
// omitted when empty so the vector reflects only real content.
func (l *Listing) Chunk() string {
	lines := []string{
		"title: " + l.Title,
		"operation: " + l.Operation,
		fmt.Sprintf("price: %g", l.Price),
	}
	if l.Address != "" {
		lines = append(lines, "address: "+l.Address)
	}
	if l.Bedrooms > 0 {
		lines = append(lines, fmt.Sprintf("bedrooms: %d", l.Bedrooms))
	}
	if l.Bathrooms > 0 {
		lines = append(lines, fmt.Sprintf("bathrooms: %d", l.Bathrooms))
	}
	if l.Description != "" {
		lines = append(lines, "description: "+l.Description)
	}
	return strings.Join(lines, "\n")
}

// EmbeddedListing pairs a listing with its embedding vector for persistence.
type EmbeddedListing struct {
	Listing Listing
	Vector  []float32
}

// Match is a single retrieval hit. Score is cosine similarity in [0,1],
// higher is more relevant. Metadata carries the listing's stored fields.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}
