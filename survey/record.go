package survey

import "math"

// Row is one raw survey record keyed by column name, as produced by an
// extract reader. Missing or unparseable cells are NaN.
type Row map[string]float64

// Get returns the value of col, or NaN when the column is absent.
func (r Row) Get(col string) float64 {
	if v, ok := r[col]; ok {
		return v
	}
	return math.NaN()
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Flag is a derived binary indicator. The zero value is Missing, so a
// derived field that no recoding branch touched stays missing.
type Flag uint8

const (
	Missing Flag = iota
	No
	Yes
)

// FlagOf converts a bool to No/Yes.
func FlagOf(b bool) Flag {
	if b {
		return Yes
	}
	return No
}

// Valid reports whether the flag carries a value.
func (f Flag) Valid() bool { return f == No || f == Yes }

// Float returns 0 or 1, or NaN when missing.
func (f Flag) Float() float64 {
	switch f {
	case No:
		return 0
	case Yes:
		return 1
	}
	return math.NaN()
}

func (f Flag) String() string {
	switch f {
	case No:
		return "0"
	case Yes:
		return "1"
	}
	return "NA"
}

// Columns maps the logical raw fields onto extract column names.
type Columns struct {
	State     string `yaml:"state"`
	Year      string `yaml:"year"`
	Medicaid  string `yaml:"medicaid"`
	Coverage  string `yaml:"coverage"`
	Employer  string `yaml:"employer"`
	EmpStat   string `yaml:"empstat"`
	School    string `yaml:"school"`
	Health    string `yaml:"health"`
	Spending  string `yaml:"spending"`
	Age       string `yaml:"age"`
	Sex       string `yaml:"sex"`
	Race      string `yaml:"race"`
	Poverty   string `yaml:"poverty"`
	PrePost   string `yaml:"prepost"`
	PCP       string `yaml:"pcp"`
	NotAfford string `yaml:"not_afford"`
}

// IPUMSColumns returns the column names used by IPUMS extracts.
func IPUMSColumns() Columns {
	return Columns{
		State:     "STATEFIP",
		Year:      "YEAR",
		Medicaid:  "HINSCAID",
		Coverage:  "HCOVANY",
		Employer:  "HINSEMP",
		EmpStat:   "EMPSTAT",
		School:    "SCHOOL",
		Health:    "HEALTH",
		Spending:  "MOOP",
		Age:       "AGE",
		Sex:       "SEX",
		Race:      "RACE",
		Poverty:   "OFFPOV",
		PrePost:   "PREPOST",
		PCP:       "PCP",
		NotAfford: "NOT_AFFORD",
	}
}

// Record is one respondent-period: the raw row plus every derived field.
type Record struct {
	Raw Row

	Intervention Flag
	Post         Flag
	PrePost      Flag

	Medicaid   Flag
	Uninsured  Flag
	ESI        Flag
	Employed   Flag
	Student    Flag
	PoorHealth Flag
	Qualifying Flag
	PCP        Flag
	NotAfford  Flag

	Spending float64
	Age      float64
	Poverty  float64

	AgeCat  string
	SexCat  string
	RaceCat string
}

// Variable names accepted by Record.Flag and Record.Category.
const (
	VarIntervention = "intervention"
	VarPost         = "post"
	VarPrePost      = "prepost"
	VarMedicaid     = "medicaid"
	VarUninsured    = "uninsured"
	VarESI          = "esi"
	VarEmployed     = "employed"
	VarStudent      = "student"
	VarPoorHealth   = "poorhealth"
	VarQualifying   = "qualifying"
	VarPCP          = "pcp"
	VarNotAfford    = "not_afford"

	VarAgeCat  = "age_cat"
	VarSexCat  = "sex_cat"
	VarRaceCat = "race_cat"
)

// Flag returns the derived indicator called name. Unknown names are
// reported with ok == false.
func (r *Record) Flag(name string) (Flag, bool) {
	switch name {
	case VarIntervention:
		return r.Intervention, true
	case VarPost:
		return r.Post, true
	case VarPrePost:
		return r.PrePost, true
	case VarMedicaid:
		return r.Medicaid, true
	case VarUninsured:
		return r.Uninsured, true
	case VarESI:
		return r.ESI, true
	case VarEmployed:
		return r.Employed, true
	case VarStudent:
		return r.Student, true
	case VarPoorHealth:
		return r.PoorHealth, true
	case VarQualifying:
		return r.Qualifying, true
	case VarPCP:
		return r.PCP, true
	case VarNotAfford:
		return r.NotAfford, true
	}
	return Missing, false
}

// Category returns the categorical covariate called name; "" is missing.
func (r *Record) Category(name string) (string, bool) {
	switch name {
	case VarAgeCat:
		return r.AgeCat, true
	case VarSexCat:
		return r.SexCat, true
	case VarRaceCat:
		return r.RaceCat, true
	}
	return "", false
}
