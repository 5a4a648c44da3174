// Package catalog provides the reference-data layer: the resource-type
// enumeration, catalog entries produced by the offline builder, the indexed
// store port with SQLite/Postgres/memory backends, flat-file scanning, name
// indexes and the three-tier resolver.
package catalog

import "fmt"

// ResourceType identifies one of the fixed reference categories served by
// the catalog. The values are the wire strings used in tool calls, dataset
// file names and cache paths.
type ResourceType string

const (
	TypeMonsters    ResourceType = "monsters"
	TypeSpells      ResourceType = "spells"
	TypeEquipment   ResourceType = "equipment"
	TypeBackgrounds ResourceType = "backgrounds"
	TypeClasses     ResourceType = "classes"
	TypeConditions  ResourceType = "conditions"
	TypeDocuments   ResourceType = "documents"
	TypeFeats       ResourceType = "feats"
	TypePlanes      ResourceType = "planes"
	TypeRaces       ResourceType = "races"
	TypeSections    ResourceType = "sections"
	TypeSpellList   ResourceType = "spelllist"
)

// AllTypes returns every supported resource type in stable order.
func AllTypes() []ResourceType {
	return []ResourceType{
		TypeMonsters, TypeSpells, TypeEquipment, TypeBackgrounds,
		TypeClasses, TypeConditions, TypeDocuments, TypeFeats,
		TypePlanes, TypeRaces, TypeSections, TypeSpellList,
	}
}

// SearchableTypes returns the resource types the offline builder generates
// name indexes for.
func SearchableTypes() []ResourceType {
	return []ResourceType{TypeMonsters, TypeSpells, TypeEquipment}
}

// IsValid reports whether rt is one of the supported resource types.
func (rt ResourceType) IsValid() bool {
	switch rt {
	case TypeMonsters, TypeSpells, TypeEquipment, TypeBackgrounds,
		TypeClasses, TypeConditions, TypeDocuments, TypeFeats,
		TypePlanes, TypeRaces, TypeSections, TypeSpellList:
		return true
	}
	return false
}

// String returns the wire name of the resource type.
func (rt ResourceType) String() string {
	return string(rt)
}

// Entry is one catalog record produced by the offline builder. Identity is
// (Type, Slug); entries are immutable once built. The JSON field names match
// the flat-file dataset format.
type Entry struct {
	Type          ResourceType   `json:"type"`
	Name          string         `json:"name"`
	Slug          string         `json:"slug_or_index"`
	Locator       string         `json:"api_url"`
	DocumentSlug  string         `json:"document_slug,omitempty"`
	DocumentTitle string         `json:"document_title,omitempty"`
	Subtype       string         `json:"subtype,omitempty"`
	Raw           map[string]any `json:"raw,omitempty"`
}

// Validate checks the fields required for an entry to be stored.
func (e *Entry) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("catalog: unsupported resource type %q", e.Type)
	}
	if e.Slug == "" {
		return fmt.Errorf("catalog: entry for %s has no slug", e.Type)
	}
	return nil
}

// ResolvedReference is the resolver's output: a unique identifier together
// with the locator its detail record can be fetched from. The JSON field
// names are the wire format fed back to the model in observations.
type ResolvedReference struct {
	ChosenName string `json:"chosen_name"`
	ChosenSlug string `json:"chosen_slug"`
	Locator    string `json:"api_url"`
}

// NotFoundError reports that no catalog entry matched a (type, input) pair
// in any resolution tier.
type NotFoundError struct {
	Type  ResourceType
	Input string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: not found: %s / %s", e.Type, e.Input)
}
