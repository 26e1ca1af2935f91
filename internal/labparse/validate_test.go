package labparse

import "testing"

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		exp  Expectation
		f    Finding
		want bool
	}{
		{"unit listed", Units("mg/dl", "mmol/L"), Finding{Unit: "mmol/L", Shape: ShapeOther}, true},
		{"unit not listed", Units("mg/dl"), Finding{Unit: "g/dl", Shape: ShapeOther}, false},
		{"unit list without unit", Units("mg/dl"), Finding{}, false},
		{"percent", ShapeOf(ShapePercent), Finding{Unit: "%", Shape: ShapePercent}, true},
		{"percent got other", ShapeOf(ShapePercent), Finding{Unit: "mg/dl", Shape: ShapeOther}, false},
		{"absolute count", ShapeOf(ShapeAbsoluteCount), Finding{Unit: absoluteCountUnit, Shape: ShapeAbsoluteCount}, true},
		{"absolute count got percent", ShapeOf(ShapeAbsoluteCount), Finding{Unit: "%", Shape: ShapePercent}, false},
		{"other", ShapeOf(ShapeOther), Finding{Unit: "kg", Shape: ShapeOther}, true},
		{"other got none", ShapeOf(ShapeOther), Finding{}, false},
		{"status", ShapeOf(ShapeStatus), Finding{Shape: ShapeStatus, Qualitative: "negativo"}, true},
		{"status got number", ShapeOf(ShapeStatus), Finding{Shape: ShapeNone}, false},
		{"urine grade", ShapeOf(ShapeQualitativeUrine), Finding{Shape: ShapeQualitativeUrine, Qualitative: "+++"}, true},
		{"urine outside vocabulary", ShapeOf(ShapeQualitativeUrine), Finding{Shape: ShapeQualitativeUrine, Qualitative: "dudoso"}, false},
		{"urine wrong shape", ShapeOf(ShapeQualitativeUrine), Finding{Shape: ShapeStatus, Qualitative: "negativo"}, false},
		{"no unit expected, none found", NoUnit(), Finding{}, true},
		{"no unit expected, unit found", NoUnit(), Finding{Unit: "mg/dl", Shape: ShapeOther}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.exp, tt.f); got != tt.want {
				t.Errorf("Validate(%v, %+v) = %v, want %v", tt.exp, tt.f, got, tt.want)
			}
		})
	}
}

func TestExpectationFromString(t *testing.T) {
	tests := []struct {
		in   string
		want Expectation
	}{
		{"%", ShapeOf(ShapePercent)},
		{"abs", ShapeOf(ShapeAbsoluteCount)},
		{"status", ShapeOf(ShapeStatus)},
		{"qual_urine", ShapeOf(ShapeQualitativeUrine)},
		{"other", ShapeOf(ShapeOther)},
		{"mg/dl", Units("mg/dl")},
	}
	for _, tt := range tests {
		got := ExpectationFromString(tt.in)
		if got.Kind != tt.want.Kind || got.Shape != tt.want.Shape || len(got.Units) != len(tt.want.Units) {
			t.Errorf("ExpectationFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestShapeString(t *testing.T) {
	for s := ShapeNone; s <= ShapeQualitativeUrine; s++ {
		parsed, ok := ParseShape(s.String())
		if !ok || parsed != s {
			t.Errorf("ParseShape(%q) = %v, %v; want %v", s.String(), parsed, ok, s)
		}
	}
}
