package labreport

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/labtranscriber/labtranscriber/internal/labparse"
	"github.com/labtranscriber/labtranscriber/internal/platform/fhir"
)

const (
	labCategorySystem = "http://terminology.hl7.org/CodeSystem/observation-category"
	reportCodeText    = "Informe de laboratorio"
	matchScoreURL     = "urn:labtranscriber:match-score"
)

// LabReport is one parsed document as stored in the lab_report table.
type LabReport struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	SourceName    string      `db:"source_name" json:"source_name"`
	Summary       string      `db:"summary" json:"summary"`
	Results       []ResultRow `db:"results" json:"results"`
	LineCount     int         `db:"line_count" json:"line_count"`
	ExactCount    int         `db:"exact_count" json:"exact_count"`
	FuzzyCount    int         `db:"fuzzy_count" json:"fuzzy_count"`
	ConfigVersion int64       `db:"config_version" json:"config_version"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// ResultRow is one reported parameter of a stored report.
type ResultRow struct {
	Category  string  `json:"category"`
	Parameter string  `json:"parameter"`
	Display   string  `json:"display"`
	Value     string  `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Shape     string  `json:"shape"`
	Method    string  `json:"method"`
	Line      int     `json:"line"`
	Score     float64 `json:"score,omitempty"`
}

// FromResult builds an unsaved report from a parse result.
func FromResult(sourceName, summary string, configVersion int64, res *labparse.Result) *LabReport {
	lr := &LabReport{
		SourceName:    sourceName,
		Summary:       summary,
		ConfigVersion: configVersion,
		Results:       make([]ResultRow, 0, len(res.Matches)),
		LineCount:     res.Stats.Lines,
		ExactCount:    res.Stats.Exact,
		FuzzyCount:    res.Stats.Fuzzy,
	}
	for _, m := range res.Matches {
		lr.Results = append(lr.Results, ResultRow{
			Category:  m.Category,
			Parameter: m.Parameter,
			Display:   m.Display,
			Value:     m.Value,
			Unit:      m.Unit,
			Shape:     m.Shape.String(),
			Method:    string(m.Method),
			Line:      m.Line,
			Score:     m.Score,
		})
	}
	return lr
}

// Table rebuilds the category/parameter table from the stored rows.
func (lr *LabReport) Table() labparse.Table {
	t := make(labparse.Table)
	for _, r := range lr.Results {
		if t[r.Category] == nil {
			t[r.Category] = make(map[string]labparse.Entry)
		}
		shape, _ := labparse.ParseShape(r.Shape)
		t[r.Category][r.Parameter] = labparse.Entry{
			Display: r.Display,
			Line:    r.Line,
			Method:  labparse.Method(r.Method),
			Shape:   shape,
		}
	}
	return t
}

// ToFHIR renders the report as a DiagnosticReport with one contained
// Observation per result.
func (lr *LabReport) ToFHIR() map[string]interface{} {
	status := "final"
	if lr.FuzzyCount > 0 {
		status = "preliminary"
	}

	contained := make([]map[string]interface{}, 0, len(lr.Results))
	refs := make([]fhir.Reference, 0, len(lr.Results))
	for i, r := range lr.Results {
		obsID := fmt.Sprintf("obs-%d", i+1)
		contained = append(contained, r.toObservation(obsID))
		refs = append(refs, fhir.Reference{Reference: "#" + obsID, Display: r.Parameter})
	}

	result := map[string]interface{}{
		"resourceType": "DiagnosticReport",
		"id":           lr.ID.String(),
		"status":       status,
		"category": []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: "http://terminology.hl7.org/CodeSystem/v2-0074", Code: "LAB", Display: "Laboratory"}},
		}},
		"code":       fhir.CodeableConcept{Text: reportCodeText},
		"issued":     lr.CreatedAt.Format(time.RFC3339),
		"conclusion": lr.Summary,
		"meta":       fhir.Meta{VersionID: fmt.Sprintf("%d", lr.ConfigVersion), LastUpdated: lr.CreatedAt, Source: lr.SourceName},
	}
	if len(contained) > 0 {
		result["contained"] = contained
		result["result"] = refs
	}
	return result
}

func (r ResultRow) toObservation(id string) map[string]interface{} {
	status := "final"
	if r.Method == string(labparse.MethodFuzzy) {
		status = "preliminary"
	}
	obs := map[string]interface{}{
		"resourceType": "Observation",
		"id":           id,
		"status":       status,
		"category": []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: labCategorySystem, Code: "laboratory", Display: "Laboratory"}},
			Text:   r.Category,
		}},
		"code": fhir.CodeableConcept{Text: r.Parameter},
	}

	if q, ok := quantity(r.Value, r.Unit); ok {
		obs["valueQuantity"] = q
	} else {
		obs["valueString"] = r.Value
	}
	if r.Score > 0 {
		score := r.Score
		obs["extension"] = []fhir.Extension{{URL: matchScoreURL, ValueDecimal: &score}}
	}
	return obs
}

// quantity splits "<sign><number>[ <unit>]" into a FHIR Quantity. Qualitative
// readings do not parse and are reported as strings.
func quantity(value, unit string) (fhir.Quantity, bool) {
	number := strings.TrimSpace(strings.TrimSuffix(value, unit))
	if fields := strings.Fields(number); len(fields) > 0 {
		number = fields[0]
	}
	q := fhir.Quantity{Unit: unit}
	switch {
	case strings.HasPrefix(number, "<"):
		q.Comparator = "<"
		number = number[1:]
	case strings.HasPrefix(number, ">"):
		q.Comparator = ">"
		number = number[1:]
	}
	number = strings.Replace(number, ",", ".", 1)
	if _, err := strconv.ParseFloat(number, 64); err != nil {
		return fhir.Quantity{}, false
	}
	q.Value = json.Number(number)
	return q, true
}
