package labparse

import "slices"

// Finding is what the engine located next to a parameter name, reduced to
// the fields validation looks at.
type Finding struct {
	Unit        string
	Shape       Shape
	Qualitative string
}

// Validate decides whether a finding satisfies an expectation.
func Validate(exp Expectation, f Finding) bool {
	switch exp.Kind {
	case ExpectUnits:
		return slices.Contains(exp.Units, f.Unit)
	case ExpectShape:
		switch exp.Shape {
		case ShapeQualitativeUrine:
			return f.Shape == ShapeQualitativeUrine && IsUrineGrade(f.Qualitative)
		case ShapeAbsoluteCount, ShapePercent, ShapeStatus, ShapeOther:
			return f.Shape == exp.Shape
		case ShapeNone:
			return f.Unit == "" && f.Shape == ShapeNone
		}
		return false
	case ExpectNone:
		return f.Unit == "" && f.Shape == ShapeNone
	}
	return false
}
