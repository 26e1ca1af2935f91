package labparse

import (
	"fmt"
	"strings"
)

// Shape classifies a detected unit or qualitative outcome.
type Shape int

const (
	ShapeNone Shape = iota
	ShapePercent
	ShapeAbsoluteCount
	ShapeOther
	ShapeStatus
	ShapeQualitativeUrine
)

var shapeNames = [...]string{
	ShapeNone:             "none",
	ShapePercent:          "percent",
	ShapeAbsoluteCount:    "absolute-count",
	ShapeOther:            "other",
	ShapeStatus:           "status",
	ShapeQualitativeUrine: "qualitative-urine",
}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return fmt.Sprintf("Shape(%d)", int(s))
	}
	return shapeNames[s]
}

// MarshalText renders the shape as its tag name.
func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Shape) UnmarshalText(text []byte) error {
	parsed, ok := ParseShape(string(text))
	if !ok {
		return fmt.Errorf("unknown shape %q", text)
	}
	*s = parsed
	return nil
}

// ParseShape accepts the canonical tag names and the short aliases used in
// parameter configuration files ("%", "abs", "qual_urine").
func ParseShape(tag string) (Shape, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "%", "percent":
		return ShapePercent, true
	case "abs", "absolute-count", "absolute_count":
		return ShapeAbsoluteCount, true
	case "other":
		return ShapeOther, true
	case "status":
		return ShapeStatus, true
	case "qual_urine", "qualitative-urine", "qualitative_urine":
		return ShapeQualitativeUrine, true
	case "none":
		return ShapeNone, true
	}
	return ShapeNone, false
}

// ExpectKind selects which field of an Expectation applies.
type ExpectKind int

const (
	ExpectNone ExpectKind = iota
	ExpectUnits
	ExpectShape
)

// Expectation describes what a canonical parameter's value must look like.
type Expectation struct {
	Kind  ExpectKind
	Units []string
	Shape Shape
}

// NoUnit expects a bare value with no unit token.
func NoUnit() Expectation { return Expectation{Kind: ExpectNone} }

// Units expects one of the listed canonical unit spellings.
func Units(units ...string) Expectation {
	return Expectation{Kind: ExpectUnits, Units: units}
}

// ShapeOf expects a unit shape tag.
func ShapeOf(s Shape) Expectation { return Expectation{Kind: ExpectShape, Shape: s} }

// ExpectationFromString interprets a single configured string: a known shape
// tag becomes a shape expectation, anything else a one-element list holding
// the canonical spelling of the unit.
func ExpectationFromString(v string) Expectation {
	if s, ok := ParseShape(v); ok && s != ShapeNone {
		return ShapeOf(s)
	}
	return Units(CanonicalUnit(v))
}

// Qualitative reports whether values for this expectation are outcome words
// rather than numbers.
func (e Expectation) Qualitative() bool {
	return e.Kind == ExpectShape && (e.Shape == ShapeStatus || e.Shape == ShapeQualitativeUrine)
}

// ExpectsPercent reports whether the expectation only admits percentages.
func (e Expectation) ExpectsPercent() bool {
	switch e.Kind {
	case ExpectShape:
		return e.Shape == ShapePercent
	case ExpectUnits:
		return len(e.Units) == 1 && e.Units[0] == "%"
	}
	return false
}

func (e Expectation) String() string {
	switch e.Kind {
	case ExpectUnits:
		return "[" + strings.Join(e.Units, ", ") + "]"
	case ExpectShape:
		return e.Shape.String()
	}
	return "none"
}

// AliasEntry declares the synonyms of one canonical parameter.
type AliasEntry struct {
	Parameter string
	Synonyms  []string
}

// CategoryEntry declares the canonical parameters grouped under a category.
type CategoryEntry struct {
	Category   string
	Parameters []string
}

// Configuration is the parsed parameter configuration. Aliases and Categories
// keep declaration order because later declarations win on conflicts.
type Configuration struct {
	Aliases       []AliasEntry
	Categories    []CategoryEntry
	ExpectedUnits map[string]Expectation
}

// Empty reports whether the configuration declares nothing at all.
func (c *Configuration) Empty() bool {
	return c == nil || (len(c.Aliases) == 0 && len(c.Categories) == 0 && len(c.ExpectedUnits) == 0)
}
