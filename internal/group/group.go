// Package group turns a flat fact list into the ordered, sectioned view
// model the review surface renders. Everything here is pure: same facts in,
// same sections out, regardless of input order (ties keep first-seen order).
package group

import (
	"sort"

	"github.com/poliscope/poliscope/internal/model"
)

// SectionKind identifies one display section
type SectionKind string

const (
	SectionDates        SectionKind = "dates"
	SectionPositions    SectionKind = "positions"
	SectionBirthplaces  SectionKind = "birthplaces"
	SectionCitizenships SectionKind = "citizenships"
	SectionOther        SectionKind = "other"
)

// sectionOrder is the fixed display order: date-valued facts first, then
// each entity kind in declared order
var sectionOrder = []SectionKind{
	SectionDates,
	SectionPositions,
	SectionBirthplaces,
	SectionCitizenships,
	SectionOther,
}

// sectionTitles maps section kinds to display headings
var sectionTitles = map[SectionKind]string{
	SectionDates:        "Dates",
	SectionPositions:    "Positions",
	SectionBirthplaces:  "Birthplaces",
	SectionCitizenships: "Citizenships",
	SectionOther:        "Other",
}

// dateKindOrder fixes the order of date items within the dates section
var dateKindOrder = []model.FactKind{model.KindBirthDate, model.KindDeathDate}

// Item is one renderable row: either all facts of one date type, or all
// statements about one referenced entity. GroupKey is stable across renders
// (the date kind or the entity ID) so the UI can reconcile.
type Item struct {
	GroupKey string
	Title    string
	EntityID string // Set for entity items only
	Facts    []*model.Fact
}

// Section is one titled block of items
type Section struct {
	Kind  SectionKind
	Title string
	Items []Item
}

// Group partitions facts into sections and orders them deterministically.
// Empty sections are omitted unless advanced mode is on, in which case they
// still render so the reviewer can author into them.
func Group(facts []*model.Fact, advanced bool) []Section {
	byKind := make(map[SectionKind][]*model.Fact)
	for _, f := range facts {
		byKind[sectionFor(f.Kind)] = append(byKind[sectionFor(f.Kind)], f)
	}

	var sections []Section
	for _, kind := range sectionOrder {
		members := byKind[kind]
		if len(members) == 0 && !advanced {
			continue
		}

		var items []Item
		switch kind {
		case SectionDates:
			items = dateItems(members)
		case SectionOther:
			items = otherItems(members)
		default:
			items = entityItems(members)
		}

		sections = append(sections, Section{
			Kind:  kind,
			Title: sectionTitles[kind],
			Items: items,
		})
	}
	return sections
}

func sectionFor(k model.FactKind) SectionKind {
	switch k {
	case model.KindBirthDate, model.KindDeathDate:
		return SectionDates
	case model.KindPosition:
		return SectionPositions
	case model.KindBirthplace:
		return SectionBirthplaces
	case model.KindCitizenship:
		return SectionCitizenships
	default:
		return SectionOther
	}
}

// dateItems groups date facts by their specific kind, one item per kind in
// declared order, each item's facts sorted precision-descending then
// chronologically
func dateItems(facts []*model.Fact) []Item {
	byDateKind := make(map[model.FactKind][]*model.Fact)
	for _, f := range facts {
		byDateKind[f.Kind] = append(byDateKind[f.Kind], f)
	}

	items := make([]Item, 0, len(byDateKind))
	for _, k := range dateKindOrder {
		members := byDateKind[k]
		if len(members) == 0 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			return model.CompareDates(members[i].Value, members[j].Value) < 0
		})
		items = append(items, Item{
			GroupKey: string(k),
			Title:    dateTitle(k),
			Facts:    members,
		})
	}
	return items
}

func dateTitle(k model.FactKind) string {
	switch k {
	case model.KindBirthDate:
		return "Birth date"
	case model.KindDeathDate:
		return "Death date"
	default:
		return string(k)
	}
}

// entityItems groups facts by referenced entity, one item per entity, so two
// tenures in the same office render as one item. Items are ordered by the
// start qualifier of their earliest-dated member; entities with no start
// qualifier at all sort last. Ties keep first-seen order.
func entityItems(facts []*model.Fact) []Item {
	byEntity := make(map[string][]*model.Fact)
	var entityOrder []string
	for _, f := range facts {
		if _, seen := byEntity[f.EntityID]; !seen {
			entityOrder = append(entityOrder, f.EntityID)
		}
		byEntity[f.EntityID] = append(byEntity[f.EntityID], f)
	}

	items := make([]Item, 0, len(entityOrder))
	for _, id := range entityOrder {
		members := byEntity[id]
		sort.SliceStable(members, func(i, j int) bool {
			return model.CompareDates(members[i].Start, members[j].Start) < 0
		})
		items = append(items, Item{
			GroupKey: id,
			Title:    entityTitle(members),
			EntityID: id,
			Facts:    members,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return model.CompareDates(earliestStart(items[i].Facts), earliestStart(items[j].Facts)) < 0
	})
	return items
}

func entityTitle(members []*model.Fact) string {
	for _, f := range members {
		if f.EntityName != "" {
			return f.EntityName
		}
	}
	return members[0].EntityID
}

// earliestStart returns the winning start qualifier among the members under
// the precision/chronology comparator, or nil if none carries one
func earliestStart(members []*model.Fact) *model.Date {
	var best *model.Date
	for _, f := range members {
		if f.Start == nil {
			continue
		}
		if best == nil || model.CompareDates(f.Start, best) < 0 {
			best = f.Start
		}
	}
	return best
}

// otherItems renders uncategorized facts one per item, input order preserved
func otherItems(facts []*model.Fact) []Item {
	items := make([]Item, 0, len(facts))
	for _, f := range facts {
		title := f.Text
		if title == "" {
			title = string(f.Kind)
		}
		items = append(items, Item{
			GroupKey: f.Key,
			Title:    title,
			Facts:    []*model.Fact{f},
		})
	}
	return items
}
