package model

// Subject is a politician record under review. Subjects are immutable once
// fetched; the queue replaces them wholesale, never mutates them in place.
type Subject struct {
	ID         string `json:"id"`                    // Backend identifier
	Name       string `json:"name"`                  // Display name
	WikidataID string `json:"wikidata_id,omitempty"` // Authoritative knowledge-base ID, if linked
	Facts      []Fact `json:"facts"`                 // Extracted and authoritative statements
}

// PreferenceType distinguishes the two filter dimensions
type PreferenceType string

const (
	PreferenceLanguage PreferenceType = "language"
	PreferenceCountry  PreferenceType = "country"
)

// Filter is one reviewer-selected language or country restriction on the
// subjects fetched for review
type Filter struct {
	WikidataID     string         `json:"wikidata_id"`
	Name           string         `json:"name"`
	PreferenceType PreferenceType `json:"preference_type"`
}

// LanguageIDs returns the wikidata IDs of all language filters in the set
func LanguageIDs(filters []Filter) []string {
	return idsOfType(filters, PreferenceLanguage)
}

// CountryIDs returns the wikidata IDs of all country filters in the set
func CountryIDs(filters []Filter) []string {
	return idsOfType(filters, PreferenceCountry)
}

func idsOfType(filters []Filter, t PreferenceType) []string {
	var ids []string
	for _, f := range filters {
		if f.PreferenceType == t {
			ids = append(ids, f.WikidataID)
		}
	}
	return ids
}

// Evaluation is one line of a submission payload: a reviewed fact and the
// reviewer's verdict on it
type Evaluation struct {
	ID         string `json:"id"`
	IsAccepted bool   `json:"is_accepted"`
}
