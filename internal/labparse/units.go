package labparse

import "strings"

const absoluteCountUnit = "x10³/mm³"

// unitSpellings maps raw unit tokens to their canonical spelling. Lookup is
// exact first, then case-insensitive in declaration order.
var unitSpellings = [][2]string{
	{"mg/dL", "mg/dl"}, {"mg/dl", "mg/dl"},
	{"g/dL", "g/dl"}, {"g/dl", "g/dl"},
	{"g/L", "g/L"},
	{"U/L", "U/L"}, {"u/l", "U/L"}, {"UI/L", "U/L"},
	{"KU/L", "KU/L"},
	{"UI/ML", "UI/mL"}, {"UI/ml", "UI/mL"}, {"UI/mL", "UI/mL"},
	{"mmol/L", "mmol/L"}, {"mmol/l", "mmol/L"},
	{"mmol/mol", "mmol/mol"},
	{"mEq/L", "mEq/L"}, {"mEq/l", "mEq/L"},
	{"mL/min/1.73m2", "ml/min/1.73m²"}, {"mL/min/1.73m^2", "ml/min/1.73m²"},
	{"mL/min/1,73m2", "ml/min/1.73m²"}, {"ml/min/1.73m2", "ml/min/1.73m²"},
	{"mL/min/1.73m²", "ml/min/1.73m²"}, {"ml/min/1.73m²", "ml/min/1.73m²"},
	{"mL/min/", "ml/min/1.73m²"},
	{"ng/mL", "ng/ml"}, {"ng/ml", "ng/ml"},
	{"ng/dl", "ng/dl"}, {"ng/L", "ng/L"},
	{"pg/mL", "pg/ml"}, {"pg/ml", "pg/ml"},
	{"mU/L", "mU/L"}, {"mU/l", "mU/L"},
	{"μg/L", "mcg/L"}, {"µg/L", "mcg/L"}, {"mcg/L", "mcg/L"},
	{"μg/dl", "mcg/dl"}, {"µg/dl", "mcg/dl"}, {"mcg/dl", "mcg/dl"},
	{"microg/dl", "mcg/dl"}, {"microgr/dl", "mcg/dl"},
	{"fl", "fL"}, {"fL", "fL"},
	{"pg", "pg"},
	{"mm", "mm"},
	{"segundos", "seg"}, {"seg", "seg"},
	{"mil/mm3", absoluteCountUnit}, {"mill/mm3", absoluteCountUnit},
	{"mil/mm", absoluteCountUnit}, {"mill/mm", absoluteCountUnit},
	{"mil/", absoluteCountUnit}, {"mill/", absoluteCountUnit},
	{"x10^3/mm3", absoluteCountUnit}, {"x10³/mm³", absoluteCountUnit},
	{"10^3/mm3", absoluteCountUnit}, {"x10e3/mm3", absoluteCountUnit},
	{"mil/mm³", absoluteCountUnit}, {"x10^3/µL", absoluteCountUnit},
	{"x10^3/uL", absoluteCountUnit}, {"10^3/uL", absoluteCountUnit},
	{"10^3/µL", absoluteCountUnit}, {"10^3/μL", absoluteCountUnit},
	{"10³/mm³", absoluteCountUnit}, {"10³/µL", absoluteCountUnit},
	{"10e3/mm3", absoluteCountUnit}, {"10e3/uL", absoluteCountUnit},
	{"%", "%"},
}

var (
	unitExact = make(map[string]string, len(unitSpellings))
	unitFold  = make(map[string]string, len(unitSpellings))
)

func init() {
	for _, p := range unitSpellings {
		unitExact[p[0]] = p[1]
		key := strings.ToLower(p[0])
		if _, ok := unitFold[key]; !ok {
			unitFold[key] = p[1]
		}
	}
}

// CanonicalUnit returns the canonical spelling of a raw unit token. Unknown
// tokens are returned trimmed but otherwise unchanged.
func CanonicalUnit(raw string) string {
	u := strings.TrimSpace(raw)
	if c, ok := unitExact[u]; ok {
		return c
	}
	if c, ok := unitFold[strings.ToLower(u)]; ok {
		return c
	}
	return u
}

// classifyUnit assigns a shape to a canonical unit.
func classifyUnit(canonical string) Shape {
	switch canonical {
	case "":
		return ShapeNone
	case "%":
		return ShapePercent
	case absoluteCountUnit:
		return ShapeAbsoluteCount
	}
	return ShapeOther
}
