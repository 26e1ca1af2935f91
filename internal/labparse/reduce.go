package labparse

import (
	"sort"
	"strings"
)

// Entry is the reported reading of one canonical parameter.
type Entry struct {
	Display string `json:"display"`
	Line    int    `json:"line"`
	Method  Method `json:"method"`
	Shape   Shape  `json:"shape"`
}

// Table maps category to canonical parameter to its single reported entry.
type Table map[string]map[string]Entry

// Len counts entries across all categories.
func (t Table) Len() int {
	n := 0
	for _, params := range t {
		n += len(params)
	}
	return n
}

// Stats summarizes one parse.
type Stats struct {
	Lines      int `json:"lines"`
	Exact      int `json:"exact"`
	Fuzzy      int `json:"fuzzy"`
	Unresolved int `json:"unresolved"`
}

// Result is the outcome of parsing one document. Matches are ordered by
// value line, then parameter.
type Result struct {
	Table   Table   `json:"table"`
	Matches []Match `json:"matches"`
	Stats   Stats   `json:"stats"`
}

// Empty reports whether nothing was recognized.
func (r *Result) Empty() bool {
	return r == nil || len(r.Matches) == 0
}

func (p *docParse) reduce() *Result {
	res := &Result{
		Table:   make(Table),
		Matches: make([]Match, 0, len(p.matches)),
		Stats:   Stats{Lines: len(p.lines)},
	}

	for _, m := range p.matches {
		m.Display = p.display(m)
		res.Matches = append(res.Matches, *m)
	}
	sort.Slice(res.Matches, func(i, j int) bool {
		if res.Matches[i].Line != res.Matches[j].Line {
			return res.Matches[i].Line < res.Matches[j].Line
		}
		return res.Matches[i].Parameter < res.Matches[j].Parameter
	})

	for _, m := range res.Matches {
		params, ok := res.Table[m.Category]
		if !ok {
			params = make(map[string]Entry)
			res.Table[m.Category] = params
		}
		params[m.Parameter] = Entry{Display: m.Display, Line: m.Line, Method: m.Method, Shape: m.Shape}
		if m.Method == MethodFuzzy {
			res.Stats.Fuzzy++
		} else {
			res.Stats.Exact++
		}
	}

	for _, i := range p.unresolved {
		if !p.owned[i] {
			res.Stats.Unresolved++
		}
	}
	return res
}

// display renders the final string for a match: percent readings always end
// in "%", and fuzzy matches carry the marker. Candidates built by the passes
// already end in "%" for percent shapes; the fix-up covers matches assembled
// elsewhere.
func (p *docParse) display(m *Match) string {
	s := m.Display
	if m.Shape == ShapePercent && p.ix.Expectation(m.Parameter).ExpectsPercent() && !strings.HasSuffix(s, "%") {
		value := strings.Fields(m.Value)
		if len(value) > 0 {
			s = m.Parameter + ": " + value[0] + " %"
		}
	}
	if m.Method == MethodFuzzy {
		s += FuzzyMarker
	}
	return s
}
