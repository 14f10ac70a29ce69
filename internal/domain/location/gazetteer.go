// Package location maps free text or listing addresses to a canonical
// city/barrio pair using a static gazetteer. The same tables back both
// ingestion enrichment and query-time location extraction.
package location

// CityCABA is the canonical code for Ciudad Autónoma de Buenos Aires,
// the only city with barrio-level resolution.
const CityCABA = "caba"

// cityEntry maps a canonical city code to its normalized surface forms.
// Slice order is scan order: the first city with a matching variant wins.
type cityEntry struct {
	code     string
	variants []string
}

// cityGazetteer lists known cities and their surface forms, already in
// nlp.Normalize form. "buenos aires" intentionally resolves to caba.
var cityGazetteer = []cityEntry{
	{code: CityCABA, variants: []string{
		"caba", "capital", "capital federal",
		"ciudad autonoma de buenos aires", "buenos aires", "bs as", "baires",
	}},
	{code: "cordoba", variants: []string{"cordoba"}},
	{code: "rosario", variants: []string{"rosario"}},
	{code: "mendoza", variants: []string{"mendoza"}},
	{code: "la plata", variants: []string{"la plata"}},
	{code: "mar del plata", variants: []string{"mar del plata"}},
}

// barriosCABA lists known CABA neighborhoods in nlp.Normalize form.
var barriosCABA = []string{
	"palermo", "belgrano", "recoleta", "caballito", "almagro", "flores",
	"colegiales", "nunez", "villa urquiza", "villa crespo", "san telmo",
	"monserrat", "barracas", "boedo", "chacarita", "parque patricios",
	"parque chacabuco", "retiro", "puerto madero",
}

// Cities returns the gazetteer scan order (canonical codes).
func Cities() []string {
	out := make([]string, len(cityGazetteer))
	for i, e := range cityGazetteer {
		out[i] = e.code
	}
	return out
}
