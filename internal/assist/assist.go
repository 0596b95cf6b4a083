// Package assist generates an optional reviewer-facing summary of a subject
// before evaluation. Assist output is advisory text only: it never reads the
// ledger, never writes a decision, and the engine behaves identically with
// it disabled.
package assist

import (
	"context"
	"fmt"
	"strings"

	"github.com/poliscope/poliscope/internal/model"
)

// Provider generates subject summaries
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize describes the subject's extracted and authoritative facts
	// in a few sentences for the reviewer
	Summarize(ctx context.Context, subject model.Subject) (string, error)
}

// New creates a provider from configuration. An empty provider name means
// assist is disabled and New returns (nil, nil).
func New(cfg model.AssistConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown assist provider: %s (supported: openai)", cfg.Provider)
	}
}

// BuildPrompt constructs the summary prompt. The model is told to describe
// only what the listed facts say, never to judge them.
func BuildPrompt(subject model.Subject) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are briefing a human reviewer about a politician before they evaluate machine-extracted facts.

RULES:
1. Describe ONLY the facts listed below. Do not add outside knowledge.
2. Do not say whether any fact is correct or should be accepted - the reviewer decides.
3. Point out apparent inconsistencies between the listed facts, if any.
4. Keep it under 120 words.

Politician: %s`, subject.Name)
	if subject.WikidataID != "" {
		fmt.Fprintf(&b, " (%s)", subject.WikidataID)
	}
	b.WriteString("\n\nFacts:\n")

	for _, f := range subject.Facts {
		origin := "extracted"
		if f.IsAuthoritative() {
			origin = "authoritative"
		} else if f.IsConflict() {
			origin = "extracted+authoritative"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", origin, f.Kind, factValue(&f))
	}
	return b.String()
}

func factValue(f *model.Fact) string {
	switch {
	case f.Value != nil:
		return f.Value.String()
	case f.EntityName != "":
		v := f.EntityName
		if f.Start != nil || f.End != nil {
			v += " (" + rangeLabel(f.Start, f.End) + ")"
		}
		return v
	case f.EntityID != "":
		return f.EntityID
	default:
		return f.Text
	}
}

func rangeLabel(start, end *model.Date) string {
	s, e := "?", "?"
	if start != nil {
		s = start.String()
	}
	if end != nil {
		e = end.String()
	}
	return s + " to " + e
}
