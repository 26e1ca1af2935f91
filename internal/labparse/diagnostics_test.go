package labparse

import (
	"math"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 0},
		{"glucosa", "glucosa", 1},
		{"glucosa", "", 0},
		{"glucosa", "glucosa basal", 0.7},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIndex_Guess(t *testing.T) {
	ix := testIndex()

	g, ok := ix.Guess("Glucemia: 97", DefaultFuzzyThreshold)
	if !ok || g.Parameter != "Glucosa" {
		t.Fatalf("expected Glucosa, got %+v (ok=%v)", g, ok)
	}
	if g.Score != 1 {
		t.Errorf("expected a perfect score, got %v", g.Score)
	}

	// unit letters take part in the score: "glucemia mg/dl" against "glucemia"
	g, ok = ix.Guess("Glucemia: 97 mg/dl", DefaultFuzzyThreshold)
	if !ok || g.Parameter != "Glucosa" {
		t.Fatalf("expected Glucosa, got %+v (ok=%v)", g, ok)
	}
	if want := 16.0 / 22.0; math.Abs(g.Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", g.Score, want)
	}

	if _, ok := ix.Guess("Pagina 1 de 2", DefaultFuzzyThreshold); ok {
		t.Error("expected no guess for unrelated text")
	}
	if _, ok := ix.Guess("12.5", DefaultFuzzyThreshold); ok {
		t.Error("expected no guess for a bare number")
	}
}

func TestUnrecognizedLines(t *testing.T) {
	text := "Glucosa 95 mg/dl\nFerritina 120 ng/ml\n12/3\nHEMOGRAMA\nla urea fue 40 mg/dl\nureasa 4 U/L"
	got := UnrecognizedLines(testIndex(), text)
	want := []string{"Ferritina 120 ng/ml", "ureasa 4 U/L"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UnrecognizedLines = %q, want %q", got, want)
	}
}

func TestAnalyzeDetection(t *testing.T) {
	ix := testIndex()
	text := "Glucosa 95 mg/dl\nGlucosa: 100 mg/dl\nCreatinina 0,9 mg/dl\n12 - 34\nInforme final"
	res := NewEngine(Options{Logger: zerolog.Nop()}).Parse(ix, text)

	d := AnalyzeDetection(ix, text, res, 0)

	if d.LinesWithValues != 4 {
		t.Errorf("expected 4 lines with values, got %d", d.LinesWithValues)
	}
	if d.DetectedCount != 1 {
		t.Errorf("expected 1 detected parameter, got %d", d.DetectedCount)
	}
	if math.Abs(d.DetectionRate-0.25) > 1e-9 {
		t.Errorf("expected detection rate 0.25, got %v", d.DetectionRate)
	}
	if d.Detected["Bioquímica_Glucosa"] != "Glucosa: 95 mg/dl" {
		t.Errorf("unexpected detected map %v", d.Detected)
	}
	if len(d.Missed) != 2 {
		t.Fatalf("expected 2 missed lines, got %+v", d.Missed)
	}
	if d.Missed[0].Line != 1 || d.Missed[0].Guess != "Glucosa" {
		t.Errorf("expected line 1 guessed as Glucosa, got %+v", d.Missed[0])
	}
	if d.Missed[1].Text != "Creatinina 0,9 mg/dl" {
		t.Errorf("unexpected second missed line %+v", d.Missed[1])
	}
}

func TestAnalyzeDetection_NoValues(t *testing.T) {
	d := AnalyzeDetection(nil, "sin resultados", nil, 0)
	if d.LinesWithValues != 0 || d.DetectionRate != 0 || len(d.Missed) != 0 {
		t.Errorf("unexpected detection %+v", d)
	}
}

// The passes always render percent values with a trailing "%", so the fix-up
// in display is only reached by hand-built matches like these.
func TestReduce_PercentFixUp(t *testing.T) {
	p := &docParse{ix: testIndex()}
	m := &Match{Parameter: "Hematocrito", Display: "Hematocrito: 45", Value: "45", Shape: ShapePercent, Method: MethodFuzzy}
	if got := p.display(m); got != "Hematocrito: 45 %"+FuzzyMarker {
		t.Errorf("display = %q", got)
	}

	m = &Match{Parameter: "Glucosa", Display: "Glucosa: 95 mg/dl", Value: "95 mg/dl", Shape: ShapeOther, Method: MethodExact}
	if got := p.display(m); got != "Glucosa: 95 mg/dl" {
		t.Errorf("display = %q", got)
	}
}
