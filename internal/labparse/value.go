package labparse

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	valuePattern = regexp.MustCompile(`([<>]?)[ \t]*(\d+(?:[.,]\d+)?)[ \t]*(?:(%)|((?:10(?:[\^e]\d+|³))?[A-Za-zμµ/][A-Za-zμµ/²³^0-9.,]*))?`)

	serologyPattern = regexp.MustCompile(`(?i)\b(positivo|negativo|dudoso|positive|negative|equivocal)\b`)

	urinePattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}+])(negativo|negative|\+{1,4}|escas[oa]s?|moderad[oa]s?|abundantes?|normal|positivo|positive)(?:$|[^\p{L}\p{N}+])`)
)

// Value is a numeric reading located in a text fragment. Start and End are
// byte offsets of the whole token (sign through unit) within the fragment.
type Value struct {
	Sign   string
	Number string
	Unit   string
	Shape  Shape
	Start  int
	End    int
}

// Text renders the value the way it is displayed: sign, number and unit.
func (v Value) Text() string {
	if v.Unit == "" {
		return v.Sign + v.Number
	}
	return v.Sign + v.Number + " " + v.Unit
}

// ExtractValue finds the first numeric reading in fragment. Numbers glued to
// a preceding letter ("HbA1c", "B12") are part of a name and are skipped.
func ExtractValue(fragment string) (Value, bool) {
	for _, m := range valuePattern.FindAllStringSubmatchIndex(fragment, -1) {
		numStart := m[4]
		if r, _ := utf8.DecodeLastRuneInString(fragment[:numStart]); numStart > 0 && unicode.IsLetter(r) && m[3] == m[2] {
			continue
		}

		start := m[0]
		if m[3] > m[2] {
			start = m[2]
		} else {
			start = numStart
		}

		v := Value{
			Sign:   fragment[m[2]:m[3]],
			Number: strings.ReplaceAll(fragment[m[4]:m[5]], ",", "."),
			Start:  start,
			End:    m[5],
		}
		switch {
		case m[6] >= 0:
			v.Unit = "%"
			v.End = m[7]
		case m[8] >= 0:
			raw := strings.TrimRight(fragment[m[8]:m[9]], ".,")
			v.Unit = CanonicalUnit(raw)
			v.End = m[8] + len(raw)
		}
		v.Shape = classifyUnit(v.Unit)
		return v, true
	}
	return Value{}, false
}

// HasNumber reports whether the fragment contains a numeric reading.
func HasNumber(fragment string) bool {
	_, ok := ExtractValue(fragment)
	return ok
}

// Qualitative is an outcome word located in a text fragment.
type Qualitative struct {
	Text  string
	Shape Shape
	Start int
	End   int
}

// ExtractQualitative finds the first outcome word of the vocabulary that
// belongs to shape: serology outcomes for ShapeStatus, urine grades for
// ShapeQualitativeUrine. The returned text is lower case.
func ExtractQualitative(fragment string, shape Shape) (Qualitative, bool) {
	var m []int
	switch shape {
	case ShapeStatus:
		m = serologyPattern.FindStringSubmatchIndex(fragment)
	case ShapeQualitativeUrine:
		m = urinePattern.FindStringSubmatchIndex(fragment)
	default:
		return Qualitative{}, false
	}
	if m == nil {
		return Qualitative{}, false
	}
	return Qualitative{
		Text:  strings.ToLower(fragment[m[2]:m[3]]),
		Shape: shape,
		Start: m[2],
		End:   m[3],
	}, true
}

// IsUrineGrade reports whether s is a whole word of the urine vocabulary.
func IsUrineGrade(s string) bool {
	m := urinePattern.FindStringSubmatchIndex(s)
	return m != nil && m[2] == 0 && m[3] == len(s)
}
