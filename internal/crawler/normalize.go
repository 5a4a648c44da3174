package crawler

import (
	"regexp"
	"strings"

	"github.com/MrWong99/tomescry/internal/catalog"
)

// maxFallbackName caps names synthesized from secondary fields.
const maxFallbackName = 60

// trailingSegment extracts the last path segment of a detail URL.
var trailingSegment = regexp.MustCompile(`/([^/]+)/?$`)

// Keyword buckets for magic items. Checked against the lowercased name,
// armor before weapon.
var (
	armorKeywords = []string{
		"armor", "plate", "chain", "shield", "leather", "mail",
		"breastplate", "splint", "ring mail", "studded",
	}
	weaponKeywords = []string{
		"sword", "dagger", "axe", "bow", "mace", "spear", "glaive",
		"halberd", "scimitar", "rapier", "club", "warhammer", "maul",
		"morningstar", "trident", "whip", "javelin", "pike", "crossbow",
	}
)

// typeForCategory maps an upstream listing category to the resource type its
// entries are filed under. The armor, weapons and magicitems categories are
// merged into equipment; anything else must name a supported type directly.
func typeForCategory(category string) (catalog.ResourceType, bool) {
	switch category {
	case "armor", "weapons", "magicitems":
		return catalog.TypeEquipment, true
	}
	if rt := catalog.ResourceType(category); rt.IsValid() {
		return rt, true
	}
	return "", false
}

// normalizeItem flattens one listing item into a catalog entry. The upstream
// serves two field shapes (v1 flat keys, v2 nested documents), so every
// identifying field goes through a fallback chain that accepts both.
func normalizeItem(typ catalog.ResourceType, category string, item map[string]any) *catalog.Entry {
	name := firstString(item, "name", "title", "full_name", "desc")
	if name == "" {
		name = truncate(firstString(item, "index", "slug", "desc", "type", "document__title", "key"), maxFallbackName)
	}

	slug := firstString(item, "slug", "index", "key")
	locator := stringField(item, "url")
	if slug == "" && locator != "" {
		if m := trailingSegment.FindStringSubmatch(locator); m != nil {
			slug = m[1]
		}
	}

	docSlug, docTitle := documentFields(item)

	e := &catalog.Entry{
		Type:          typ,
		Name:          strings.TrimSpace(name),
		Slug:          slug,
		Locator:       locator,
		DocumentSlug:  docSlug,
		DocumentTitle: docTitle,
		Raw:           item,
	}

	// Merged equipment keeps its origin category; magic items get a
	// coarse armor/weapon/misc bucket guessed from the name.
	switch category {
	case "armor", "weapons":
		e.Subtype = category
	case "magicitems":
		e.Subtype = guessMagicItemSubtype(e.Name)
	}
	return e
}

// guessMagicItemSubtype buckets a magic item by name keywords.
func guessMagicItemSubtype(name string) string {
	n := strings.ToLower(name)
	for _, k := range armorKeywords {
		if strings.Contains(n, k) {
			return "armor"
		}
	}
	for _, k := range weaponKeywords {
		if strings.Contains(n, k) {
			return "weapon"
		}
	}
	if strings.Contains(n, "weapon") {
		return "weapon"
	}
	return "misc"
}

// documentFields resolves the source-document id and title across the v1
// ("document__slug"/"document__title") and v2 (nested "document" object)
// field shapes.
func documentFields(item map[string]any) (slug, title string) {
	slug = stringField(item, "document__slug")
	title = stringField(item, "document__title")

	doc, _ := item["document"].(map[string]any)
	if doc == nil {
		return slug, title
	}
	if slug == "" {
		slug = stringField(doc, "key")
	}
	if title == "" {
		title = stringField(doc, "display_name")
	}
	if title == "" {
		title = stringField(doc, "name")
	}
	return slug, title
}

// stringField returns item[key] when it holds a string, else "".
func stringField(item map[string]any, key string) string {
	s, _ := item[key].(string)
	return s
}

// firstString returns the first non-empty string among the named fields.
func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringField(item, key); s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
