package domain

import "time"

// IndexRecord is the flat, sectioned projection of a document's front
// matter. Scalar fields are optional; list fields are indexed element-wise.
type IndexRecord struct {
	// ID is the served path of the document.
	ID string `json:"id"`

	// Kind is the content type ("post", "page", ...).
	Kind string `json:"type,omitempty"`

	// Slug is the URL slug override.
	Slug string `json:"slug,omitempty"`

	// Parent is the id of a parent document for hierarchies.
	Parent string `json:"parent,omitempty"`

	Content ContentFields `json:"content"`
	Publish PublishFields `json:"publish"`
	Nav     NavFields     `json:"nav"`
	Tax     TaxFields     `json:"tax"`
	I18n    I18nFields    `json:"i18n"`
	Author  AuthorFields  `json:"author"`

	// IngestedAt is the wall-clock fallback for the logical timestamp.
	IngestedAt time.Time `json:"-"`
}

// ContentFields groups the content.* section.
type ContentFields struct {
	Title   string `json:"title,omitempty"`
	Section string `json:"section,omitempty"`
}

// PublishFields groups the publish.* section. Dates are ISO-8601 strings.
type PublishFields struct {
	Status   string `json:"status,omitempty"`
	Date     string `json:"date,omitempty"`
	Modified string `json:"modified,omitempty"`
}

// NavFields groups the nav.* section.
type NavFields struct {
	MenuOrder   *int64 `json:"menu_order,omitempty"`
	MenuVisible *bool  `json:"menu_visible,omitempty"`
}

// TaxFields groups the tax.* taxonomy lists.
type TaxFields struct {
	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Series     []string `json:"series,omitempty"`
}

// I18nFields groups the i18n.* section.
type I18nFields struct {
	Lang        string `json:"lang,omitempty"`
	CanonicalID string `json:"canonical_id,omitempty"`
}

// AuthorFields groups the author.* section.
type AuthorFields struct {
	Author    string   `json:"author,omitempty"`
	CoAuthors []string `json:"co_authors,omitempty"`
}

// rootAliases maps sectioned field paths to the flat names authors commonly
// use in front matter. Projection and query resolution fall back through
// this table so `title: Hello` lands in content.title.
var rootAliases = map[string]string{
	"content.title":     "title",
	"content.section":   "section",
	"publish.status":    "status",
	"publish.date":      "date",
	"publish.modified":  "modified",
	"nav.menu_order":    "menu_order",
	"nav.menu_visible":  "menu_visible",
	"tax.categories":    "categories",
	"tax.tags":          "tags",
	"tax.series":        "series",
	"i18n.lang":         "lang",
	"i18n.canonical_id": "canonical_id",
	"author.author":     "author",
	"author.co_authors": "co_authors",
}

// NewIndexRecord projects raw front matter into a sectioned record.
// Missing fields stay zero; list aliases accept a bare string as a
// one-element list.
func NewIndexRecord(id string, fm map[string]any) IndexRecord {
	rec := IndexRecord{ID: id, IngestedAt: time.Now().UTC()}

	rec.Kind = fieldString(fm, "type")
	if rec.Kind == "" {
		rec.Kind = fieldString(fm, "kind")
	}
	rec.Slug = fieldString(fm, "slug")
	rec.Parent = fieldString(fm, "parent")

	rec.Content = ContentFields{
		Title:   fieldString(fm, "content.title"),
		Section: fieldString(fm, "content.section"),
	}
	rec.Publish = PublishFields{
		Status:   fieldString(fm, "publish.status"),
		Date:     fieldString(fm, "publish.date"),
		Modified: fieldString(fm, "publish.modified"),
	}
	rec.Nav = NavFields{
		MenuOrder:   fieldInt(fm, "nav.menu_order"),
		MenuVisible: fieldBool(fm, "nav.menu_visible"),
	}
	rec.Tax = TaxFields{
		Categories: fieldStrings(fm, "tax.categories"),
		Tags:       fieldStrings(fm, "tax.tags"),
		Series:     fieldStrings(fm, "tax.series"),
	}
	rec.I18n = I18nFields{
		Lang:        fieldString(fm, "i18n.lang"),
		CanonicalID: fieldString(fm, "i18n.canonical_id"),
	}
	rec.Author = AuthorFields{
		Author:    fieldString(fm, "author.author"),
		CoAuthors: fieldStrings(fm, "author.co_authors"),
	}

	return rec
}

// Timestamp is the logical time of the record: publish.date when it parses
// as RFC 3339, otherwise the ingest wall clock.
func (r IndexRecord) Timestamp() time.Time {
	if r.Publish.Date != "" {
		if ts, err := time.Parse(time.RFC3339, r.Publish.Date); err == nil {
			return ts.UTC()
		}
	}
	if r.IngestedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.IngestedAt
}

// FieldValue is one index entry emitted by a record: a field path and a
// scalar value (string, int64 or bool). List fields emit one FieldValue
// per element.
type FieldValue struct {
	Field string
	Value any
}

// Fields emits the index entries for this record: one per present scalar,
// one per element of each list field.
func (r IndexRecord) Fields() []FieldValue {
	var out []FieldValue

	add := func(field string, v string) {
		if v != "" {
			out = append(out, FieldValue{Field: field, Value: v})
		}
	}

	out = append(out, FieldValue{Field: "id", Value: r.ID})
	add("type", r.Kind)
	add("slug", r.Slug)
	add("parent", r.Parent)

	add("content.title", r.Content.Title)
	add("content.section", r.Content.Section)

	add("publish.status", r.Publish.Status)
	add("publish.date", r.Publish.Date)
	add("publish.modified", r.Publish.Modified)

	if r.Nav.MenuOrder != nil {
		out = append(out, FieldValue{Field: "nav.menu_order", Value: *r.Nav.MenuOrder})
	}
	if r.Nav.MenuVisible != nil {
		out = append(out, FieldValue{Field: "nav.menu_visible", Value: *r.Nav.MenuVisible})
	}

	for _, c := range r.Tax.Categories {
		out = append(out, FieldValue{Field: "tax.categories", Value: c})
	}
	for _, t := range r.Tax.Tags {
		out = append(out, FieldValue{Field: "tax.tags", Value: t})
	}
	for _, s := range r.Tax.Series {
		out = append(out, FieldValue{Field: "tax.series", Value: s})
	}

	add("i18n.lang", r.I18n.Lang)
	add("i18n.canonical_id", r.I18n.CanonicalID)

	add("author.author", r.Author.Author)
	for _, co := range r.Author.CoAuthors {
		out = append(out, FieldValue{Field: "author.co_authors", Value: co})
	}

	return out
}

// fieldString resolves a path with alias fallback and returns a string.
func fieldString(fm map[string]any, path string) string {
	v, ok := ResolveField(fm, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func fieldInt(fm map[string]any, path string) *int64 {
	v, ok := ResolveField(fm, path)
	if !ok {
		return nil
	}
	if f, ok := asFloat(v); ok {
		n := int64(f)
		return &n
	}
	return nil
}

func fieldBool(fm map[string]any, path string) *bool {
	v, ok := ResolveField(fm, path)
	if !ok {
		return nil
	}
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}

func fieldStrings(fm map[string]any, path string) []string {
	v, ok := ResolveField(fm, path)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
