// Package report renders a parse result as the "AS:" summary text, categories
// in a preferred order and entries in document order.
package report

import (
	"sort"
	"strings"

	"github.com/labtranscriber/labtranscriber/internal/labparse"
)

// DefaultOrder is the preferred category order. Categories not listed follow
// alphabetically.
var DefaultOrder = []string{
	"Bioquímica",
	"Hemograma",
	"Perfil férrico",
	"Hemostasia",
	"Inmunología",
	"Serologías",
	"Otros",
}

const (
	Header        = "AS:"
	NothingFound  = "No se encontraron parámetros reconocibles."
	NothingUsable = "AS:\n    No se encontraron resultados procesables."
)

// Item is one rendered parameter.
type Item struct {
	Parameter string `json:"parameter"`
	Display   string `json:"display"`
	Line      int    `json:"line"`
}

// Section is one category with its entries in line order.
type Section struct {
	Category string `json:"category"`
	Items    []Item `json:"items"`
}

// Sections orders the table for presentation. A nil order means DefaultOrder.
func Sections(table labparse.Table, order []string) []Section {
	if order == nil {
		order = DefaultOrder
	}

	var sections []Section
	used := make(map[string]bool, len(table))
	for _, cat := range order {
		if used[cat] {
			continue
		}
		used[cat] = true
		if s, ok := section(table, cat); ok {
			sections = append(sections, s)
		}
	}

	var extra []string
	for cat := range table {
		if !used[cat] {
			extra = append(extra, cat)
		}
	}
	sort.Strings(extra)
	for _, cat := range extra {
		if s, ok := section(table, cat); ok {
			sections = append(sections, s)
		}
	}
	return sections
}

func section(table labparse.Table, category string) (Section, bool) {
	entries := table[category]
	if len(entries) == 0 {
		return Section{}, false
	}
	items := make([]Item, 0, len(entries))
	for param, e := range entries {
		items = append(items, Item{Parameter: param, Display: e.Display, Line: e.Line})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Line != items[j].Line {
			return items[i].Line < items[j].Line
		}
		return items[i].Parameter < items[j].Parameter
	})
	return Section{Category: category, Items: items}, true
}

// Format renders the summary text.
func Format(table labparse.Table, order []string) string {
	if len(table) == 0 {
		return NothingFound
	}
	sections := Sections(table, order)
	if len(sections) == 0 {
		return NothingUsable
	}

	var b strings.Builder
	b.WriteString(Header)
	for _, s := range sections {
		displays := make([]string, len(s.Items))
		for i, it := range s.Items {
			displays[i] = it.Display
		}
		b.WriteString("\n    • ")
		b.WriteString(s.Category)
		b.WriteString(": ")
		b.WriteString(strings.Join(displays, "; "))
		b.WriteString(".")
	}
	return b.String()
}
