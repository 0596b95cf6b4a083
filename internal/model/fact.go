package model

import (
	"strings"

	"github.com/google/uuid"
)

// LocalKeyPrefix marks fact keys generated on the reviewer's side rather
// than assigned by the backend
const LocalKeyPrefix = "rev-"

// FactKind categorizes the statement a fact makes about its subject
type FactKind string

const (
	KindBirthDate   FactKind = "birth_date"  // Date-valued
	KindDeathDate   FactKind = "death_date"  // Date-valued
	KindPosition    FactKind = "position"    // Entity-valued, with optional tenure qualifiers
	KindBirthplace  FactKind = "birthplace"  // Entity-valued
	KindCitizenship FactKind = "citizenship" // Entity-valued
	KindOther       FactKind = "other"
)

// IsDateValued reports whether facts of this kind carry a date value
func (k FactKind) IsDateValued() bool {
	return k == KindBirthDate || k == KindDeathDate
}

// IsEntityValued reports whether facts of this kind reference another entity
func (k FactKind) IsEntityValued() bool {
	return k == KindPosition || k == KindBirthplace || k == KindCitizenship
}

// SourceRef points at an archived page backing an extracted fact
type SourceRef struct {
	PageID      string   `json:"page_id,omitempty"`
	ArchivedURL string   `json:"archived_url,omitempty"`
	Quotes      []string `json:"quotes,omitempty"` // Supporting passages from the page
}

// Fact is one property/statement about a Subject. A fact is exactly one of:
// backend-extracted (OriginID set), authoritative-only (StatementID set,
// OriginID empty), or reviewer-authored (both empty, key carries
// LocalKeyPrefix). A fact with both IDs set is the same logical statement in
// two representations and is surfaced as a conflict at display time, not
// stored as a separate state.
type Fact struct {
	Key         string   `json:"key"`                    // Unique within a session
	OriginID    string   `json:"origin_id,omitempty"`    // Extraction-pipeline ID
	StatementID string   `json:"statement_id,omitempty"` // Authoritative knowledge-base statement ID
	Kind        FactKind `json:"kind"`

	Value      *Date  `json:"value,omitempty"`       // Date kinds only
	EntityID   string `json:"entity_id,omitempty"`   // Entity kinds only
	EntityName string `json:"entity_name,omitempty"` // Label for EntityID
	Text       string `json:"text,omitempty"`        // KindOther free-form value
	Start      *Date  `json:"start,omitempty"`       // Tenure start qualifier
	End        *Date  `json:"end,omitempty"`         // Tenure end qualifier

	Sources []SourceRef `json:"sources,omitempty"`

	// Qualifiers and References are copied verbatim from the authoritative
	// record when StatementID is set. Display and loss-warning only.
	Qualifiers map[string]any   `json:"qualifiers,omitempty"`
	References []map[string]any `json:"references,omitempty"`
}

// IsExtracted reports whether the fact came from the extraction pipeline
func (f *Fact) IsExtracted() bool {
	return f.OriginID != ""
}

// IsAuthoritative reports whether the fact exists only in the authoritative
// knowledge base, with no extraction behind it. Such facts can only be
// deprecated, never accepted.
func (f *Fact) IsAuthoritative() bool {
	return f.StatementID != "" && f.OriginID == ""
}

// IsReviewerAuthored reports whether the fact was hand-authored in this
// session
func (f *Fact) IsReviewerAuthored() bool {
	return f.OriginID == "" && f.StatementID == "" && strings.HasPrefix(f.Key, LocalKeyPrefix)
}

// IsConflict reports whether the fact is an extracted statement that also
// already exists in the authoritative knowledge base
func (f *Fact) IsConflict() bool {
	return f.OriginID != "" && f.StatementID != ""
}

// NewFactKey generates a fresh key for a reviewer-authored fact
func NewFactKey() string {
	return LocalKeyPrefix + uuid.New().String()
}
