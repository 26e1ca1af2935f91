package labparse

import (
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/rs/zerolog"
)

// IssueKind names a non-fatal configuration problem.
type IssueKind string

const (
	IssueDuplicateSynonym        IssueKind = "duplicate_synonym"
	IssueUncategorizedParameter  IssueKind = "uncategorized_parameter"
	IssueMultipleCategories      IssueKind = "multiple_categories"
	IssueEmptySynonym            IssueKind = "empty_synonym"
	IssueExpectationForUnknown   IssueKind = "expectation_for_unknown_parameter"
	IssueConfigurationIncomplete IssueKind = "configuration_incomplete"
)

// Issue is one configuration problem found while building an Index.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Subject string    `json:"subject"`
	Detail  string    `json:"detail"`
}

// Index is the read-only lookup structure derived from a Configuration. It is
// safe for concurrent use by any number of parses.
type Index struct {
	owner      map[string]string
	declarers  map[string][]string
	category   map[string]string
	expected   map[string]Expectation
	members    map[string][]string
	synonyms   []string
	params     []string
	categories []string
	scanner    *ahocorasick.Automaton
	issues     []Issue
}

// EmptyIndex returns an index that matches nothing.
func EmptyIndex() *Index {
	return NewIndex(nil, zerolog.Nop())
}

// NewIndex builds the lookup structures for cfg. It never fails: malformed
// entries are skipped or resolved last-write-wins and reported as Issues.
func NewIndex(cfg *Configuration, logger zerolog.Logger) *Index {
	ix := &Index{
		owner:     make(map[string]string),
		declarers: make(map[string][]string),
		category:  make(map[string]string),
		expected:  make(map[string]Expectation),
		members:   make(map[string][]string),
	}
	if cfg == nil {
		return ix
	}

	for _, c := range cfg.Categories {
		if _, seen := ix.members[c.Category]; !seen {
			ix.categories = append(ix.categories, c.Category)
			ix.members[c.Category] = nil
		}
		for _, p := range c.Parameters {
			if prev, ok := ix.category[p]; ok && prev != c.Category {
				ix.addIssue(logger, IssueMultipleCategories, p, "listed under "+prev+" and "+c.Category+"; using "+c.Category)
				ix.members[prev] = remove(ix.members[prev], p)
			}
			ix.category[p] = c.Category
			if !slices.Contains(ix.members[c.Category], p) {
				ix.members[c.Category] = append(ix.members[c.Category], p)
			}
		}
	}

	declared := make(map[string]bool)
	for _, a := range cfg.Aliases {
		if !declared[a.Parameter] {
			declared[a.Parameter] = true
			ix.params = append(ix.params, a.Parameter)
		}
		if _, ok := ix.category[a.Parameter]; !ok {
			ix.addIssue(logger, IssueUncategorizedParameter, a.Parameter, "not listed in any category; it will never be reported")
		}
		for _, raw := range a.Synonyms {
			syn := Normalize(raw)
			if syn == "" {
				ix.addIssue(logger, IssueEmptySynonym, a.Parameter, "synonym normalizes to an empty string")
				continue
			}
			prev, exists := ix.owner[syn]
			if exists && prev == a.Parameter {
				continue
			}
			if exists {
				ix.addIssue(logger, IssueDuplicateSynonym, syn, "declared by "+prev+" and "+a.Parameter+"; using "+a.Parameter)
			}
			ix.owner[syn] = a.Parameter
			ix.declarers[syn] = append([]string{a.Parameter}, remove(ix.declarers[syn], a.Parameter)...)
		}
	}

	for p, e := range cfg.ExpectedUnits {
		ix.expected[p] = e
		if !declared[p] {
			ix.addIssue(logger, IssueExpectationForUnknown, p, "expected unit declared for a parameter with no synonyms")
		}
	}

	ix.synonyms = make([]string, 0, len(ix.owner))
	for syn := range ix.owner {
		ix.synonyms = append(ix.synonyms, syn)
	}
	sort.Slice(ix.synonyms, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(ix.synonyms[i]), utf8.RuneCountInString(ix.synonyms[j])
		if li != lj {
			return li > lj
		}
		return ix.synonyms[i] < ix.synonyms[j]
	})
	sort.Slice(ix.issues, func(i, j int) bool {
		if ix.issues[i].Kind != ix.issues[j].Kind {
			return ix.issues[i].Kind < ix.issues[j].Kind
		}
		return ix.issues[i].Subject < ix.issues[j].Subject
	})

	if len(ix.synonyms) > 0 {
		ac, err := ahocorasick.NewBuilder().
			AddStrings(ix.synonyms).
			SetMatchKind(ahocorasick.LeftmostLongest).
			SetPrefilter(true).
			Build()
		if err != nil {
			logger.Warn().Err(err).Msg("synonym automaton unavailable, scanning lines directly")
		} else {
			ix.scanner = ac
		}
	}

	logger.Debug().
		Int("parameters", len(ix.params)).
		Int("synonyms", len(ix.synonyms)).
		Int("categories", len(ix.categories)).
		Int("issues", len(ix.issues)).
		Msg("configuration index built")
	return ix
}

func (ix *Index) addIssue(logger zerolog.Logger, kind IssueKind, subject, detail string) {
	ix.issues = append(ix.issues, Issue{Kind: kind, Subject: subject, Detail: detail})
	logger.Warn().Str("issue", string(kind)).Str("subject", subject).Msg(detail)
}

// synonymHit is one occurrence of a synonym in a normalized line. rank is the
// synonym's position in the longest-first order.
type synonymHit struct {
	rank  int
	start int
	end   int
}

// occurrences lists every synonym occurrence in norm, overlapping ones
// included, ordered longest synonym first and then by position.
func (ix *Index) occurrences(norm string) []synonymHit {
	if len(ix.synonyms) == 0 || norm == "" {
		return nil
	}
	var hits []synonymHit
	if ix.scanner != nil {
		for _, m := range ix.scanner.FindAllOverlapping([]byte(norm)) {
			hits = append(hits, synonymHit{rank: m.PatternID, start: m.Start, end: m.End})
		}
	} else {
		for rank, syn := range ix.synonyms {
			for from := 0; from < len(norm); {
				k := strings.Index(norm[from:], syn)
				if k < 0 {
					break
				}
				hits = append(hits, synonymHit{rank: rank, start: from + k, end: from + k + len(syn)})
				from += k + 1
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].start < hits[j].start
	})
	return hits
}

// Issues returns the configuration problems found while building the index.
func (ix *Index) Issues() []Issue { return ix.issues }

// Synonyms returns the normalized synonyms, longest first.
func (ix *Index) Synonyms() []string { return ix.synonyms }

// Parameters returns the canonical parameters in declaration order.
func (ix *Index) Parameters() []string { return ix.params }

// Categories returns the category names in declaration order.
func (ix *Index) Categories() []string { return ix.categories }

// Members returns the canonical parameters of a category.
func (ix *Index) Members(category string) []string { return ix.members[category] }

// Lookup returns the canonical parameter a synonym resolves to.
func (ix *Index) Lookup(synonym string) (string, bool) {
	p, ok := ix.owner[Normalize(synonym)]
	return p, ok
}

// Declarers returns every parameter declaring the synonym, latest first.
func (ix *Index) Declarers(synonym string) []string {
	return ix.declarers[Normalize(synonym)]
}

// Category returns the category of a canonical parameter.
func (ix *Index) Category(param string) (string, bool) {
	c, ok := ix.category[param]
	return c, ok
}

// Expectation returns the expected unit or shape of a canonical parameter.
// Parameters without an entry expect no unit.
func (ix *Index) Expectation(param string) Expectation {
	return ix.expected[param]
}

// Validate checks a finding against the parameter's expectation.
func (ix *Index) Validate(param string, f Finding) bool {
	return Validate(ix.Expectation(param), f)
}

// isWordBoundary reports whether s[start:end] is delimited by non-word
// characters on both sides.
func isWordBoundary(s string, start, end int) bool {
	before, _ := utf8.DecodeLastRuneInString(s[:start])
	after, _ := utf8.DecodeRuneInString(s[end:])
	return (start == 0 || !isWordRune(before)) && (end == len(s) || !isWordRune(after))
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
