package models

import (
	"fmt"
	"math"
	"strings"
)

// Kind selects which family of media entries a record belongs to.
type Kind string

const (
	KindGallery Kind = "gallery"
	KindProject Kind = "project"
)

// KindSpec carries the per-kind enumerations, bounds and defaults.
type KindSpec struct {
	Kind             Kind
	Categories       []string
	CategoryRequired bool
	DefaultCategory  string
	Sections         []string
	DefaultSection   string
	TitleMax         int
	DescriptionMax   int
	HasCompleted     bool
	AssetPrefix      string
	Collection       string
	DisplayName      string
}

var kindSpecs = map[Kind]KindSpec{
	KindGallery: {
		Kind:             KindGallery,
		Categories:       []string{"events", "movies", "celebrations", "awards", "behind-the-scenes", "other"},
		CategoryRequired: true,
		Sections:         []string{"home", "gallery", "about", "events"},
		DefaultSection:   "gallery",
		TitleMax:         100,
		DescriptionMax:   500,
		AssetPrefix:      "gallery",
		Collection:       "gallery_items",
		DisplayName:      "Gallery item",
	},
	KindProject: {
		Kind:            KindProject,
		Categories:      []string{"Regular", "Featured", "Special", "Event"},
		DefaultCategory: "Regular",
		Sections:        []string{"Banner", "Featured", "Regular"},
		DefaultSection:  "Banner",
		TitleMax:        100,
		DescriptionMax:  1000,
		HasCompleted:    true,
		AssetPrefix:     "project",
		Collection:      "project_items",
		DisplayName:     "Project",
	},
}

// Spec returns the KindSpec for k. It panics on an unknown kind since kinds
// only come from the route table.
func (k Kind) Spec() KindSpec {
	s, ok := kindSpecs[k]
	if !ok {
		panic(fmt.Sprintf("models: unknown kind %q", string(k)))
	}
	return s
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// Kinds lists every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindGallery, KindProject}
}

func (s KindSpec) allowsCategory(v string) bool { return contains(s.Categories, v) }
func (s KindSpec) allowsSection(v string) bool { return contains(s.Sections, v) }

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// MediaRecord is the metadata document for one gallery or project entry.
type MediaRecord struct {
	Base
	Kind        Kind     `gorm:"size:16;not null;index" json:"kind"`
	Title       string   `gorm:"size:100;not null" json:"title"`
	Description string   `gorm:"type:text" json:"description"`
	Category    string   `gorm:"size:50;index" json:"category"`
	Section     string   `gorm:"size:50;index" json:"section"`
	Year        string   `gorm:"size:4;index" json:"year"`
	Completed   bool     `gorm:"default:false" json:"completed"`
	Asset       AssetRef `gorm:"embedded;embeddedPrefix:asset_" json:"asset"`
}

func (MediaRecord) TableName() string {
	return "media_records"
}

// Filter narrows list and bulk-delete operations. Empty fields match everything.
type Filter struct {
	Category string
	Section  string
	Year     string
	Search   string
}

// Normalize trims every field.
func (f Filter) Normalize() Filter {
	return Filter{
		Category: strings.TrimSpace(f.Category),
		Section:  strings.TrimSpace(f.Section),
		Year:     strings.TrimSpace(f.Year),
		Search:   strings.TrimSpace(f.Search),
	}
}

// Page requests one page of a newest-first listing.
type Page struct {
	Number int
	Limit  int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	// keep (Number-1)*Limit inside int
	if last := math.MaxInt / p.Limit; p.Number > last {
		p.Number = last
	}
	return p
}

// Offset is the number of records skipped before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// PageResult is one page of records plus totals.
type PageResult struct {
	Items []*MediaRecord
	Total int64
	Pages int
	Page  int
	Limit int
}

// NewPageResult fills in the derived page count.
func NewPageResult(items []*MediaRecord, total int64, p Page) *PageResult {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return &PageResult{Items: items, Total: total, Pages: pages, Page: p.Number, Limit: p.Limit}
}
