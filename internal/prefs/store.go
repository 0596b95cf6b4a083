// Package prefs persists the reviewer's language/country filters between
// sessions and seeds a default language filter from the system locale on
// first use.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poliscope/poliscope/internal/model"
)

// fileName is the fixed key the filter set is stored under
const fileName = "filters.json"

// localeLanguages maps ISO 639-1 codes from the locale to the wikidata
// language entities the backend filters on
var localeLanguages = map[string]model.Filter{
	"en": {WikidataID: "Q1860", Name: "English", PreferenceType: model.PreferenceLanguage},
	"fr": {WikidataID: "Q150", Name: "French", PreferenceType: model.PreferenceLanguage},
	"de": {WikidataID: "Q188", Name: "German", PreferenceType: model.PreferenceLanguage},
	"es": {WikidataID: "Q1321", Name: "Spanish", PreferenceType: model.PreferenceLanguage},
	"it": {WikidataID: "Q652", Name: "Italian", PreferenceType: model.PreferenceLanguage},
	"nl": {WikidataID: "Q7411", Name: "Dutch", PreferenceType: model.PreferenceLanguage},
	"pl": {WikidataID: "Q809", Name: "Polish", PreferenceType: model.PreferenceLanguage},
	"pt": {WikidataID: "Q5146", Name: "Portuguese", PreferenceType: model.PreferenceLanguage},
	"ru": {WikidataID: "Q7737", Name: "Russian", PreferenceType: model.PreferenceLanguage},
	"sv": {WikidataID: "Q9027", Name: "Swedish", PreferenceType: model.PreferenceLanguage},
}

// Store reads and writes the filter set as a JSON document in the config dir
type Store struct {
	dir        string
	localeFunc func() string // Injectable for tests
}

// NewStore creates a store rooted at the given directory
func NewStore(dir string) *Store {
	return &Store{
		dir:        dir,
		localeFunc: systemLocale,
	}
}

// Path returns the full path of the filter file
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Load returns the persisted filter set. On first use (no file yet) it
// detects a default language filter from the locale, persists it, and
// returns it.
func (s *Store) Load() ([]model.Filter, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		defaults := s.defaultFilters()
		if err := s.Save(defaults); err != nil {
			return nil, fmt.Errorf("persist default filters: %w", err)
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read filters: %w", err)
	}

	var filters []model.Filter
	if err := json.Unmarshal(data, &filters); err != nil {
		return nil, fmt.Errorf("decode filters: %w", err)
	}
	return filters, nil
}

// Save writes the filter set, replacing the previous one
func (s *Store) Save(filters []model.Filter) error {
	if filters == nil {
		filters = []model.Filter{}
	}

	data, err := json.MarshalIndent(filters, "", "  ")
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(s.Path(), data, 0644); err != nil {
		return fmt.Errorf("write filters: %w", err)
	}
	return nil
}

// defaultFilters maps the system locale to a language filter, or returns an
// empty set when the locale language is unknown
func (s *Store) defaultFilters() []model.Filter {
	code := localeLanguageCode(s.localeFunc())
	if f, ok := localeLanguages[code]; ok {
		return []model.Filter{f}
	}
	return []model.Filter{}
}

// systemLocale reads the active locale the way a terminal program sees it
func systemLocale() string {
	for _, env := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// localeLanguageCode extracts "en" from values like "en_US.UTF-8" or "en-GB"
func localeLanguageCode(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	if idx := strings.IndexAny(locale, "_-."); idx >= 0 {
		locale = locale[:idx]
	}
	return strings.ToLower(locale)
}
