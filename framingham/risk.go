// Package framingham implements the Framingham 10-year hard coronary heart
// disease risk score (MI or coronary death) and the published age-banded
// population averages used as a comparison baseline.
package framingham

import (
	"errors"
	"fmt"
	"math"
)

// Age limits of the published model. Both bounds are scorable.
const (
	MinAge = 30
	MaxAge = 79
)

// ErrInvalidInput is returned when a vital is zero, negative or not finite.
var ErrInvalidInput = errors.New("invalid risk input")

type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

// ParseSex maps an administrative gender code onto a scorable sex.
func ParseSex(gender string) (Sex, error) {
	switch Sex(gender) {
	case Male, Female:
		return Sex(gender), nil
	}
	return "", fmt.Errorf("unsupported sex %q", gender)
}

// Input holds the clinical values the model is evaluated on. Cholesterol is
// in mg/dL and blood pressure in mmHg.
type Input struct {
	Age              int
	Smoker           bool
	TotalCholesterol float64
	HDLCholesterol   float64
	SystolicBP       float64
	Treated          bool
}

type Outcome int

const (
	// Unscorable means the age falls outside [MinAge, MaxAge].
	Unscorable Outcome = iota
	Scored
)

func (o Outcome) String() string {
	switch o {
	case Scored:
		return "scored"
	default:
		return "unscorable"
	}
}

// Result is the outcome of one risk evaluation. Probability is a percentage
// and is only meaningful when Outcome is Scored. A nil Reference means no
// population average covers the patient's age.
type Result struct {
	Outcome     Outcome
	Probability float64
	Reference   *Reference
}

// HasReference reports whether a population average was found.
func (r Result) HasReference() bool {
	return r.Outcome == Scored && r.Reference != nil
}

// AboveAverage reports whether the probability exceeds the matched
// population average. It is false when there is no reference.
func (r Result) AboveAverage() bool {
	if !r.HasReference() {
		return false
	}
	return r.Probability > r.Reference.Value
}

// coefficients of the Cox proportional-hazards model for one sex
type model struct {
	lnAge        float64
	lnTotal      float64
	lnHDL        float64
	lnSBP        float64
	treated      float64
	smoker       float64
	lnAgeLnTotal float64
	lnAgeSmoker  float64
	lnAgeSquared float64
	constant     float64
	baseline     float64
	smokerAgeCap int
}

var (
	maleModel = model{
		lnAge:        52.000961,
		lnTotal:      20.014077,
		lnHDL:        -0.905964,
		lnSBP:        1.305784,
		treated:      0.241549,
		smoker:       12.096316,
		lnAgeLnTotal: -4.605038,
		lnAgeSmoker:  -2.84367,
		lnAgeSquared: -2.93323,
		constant:     172.300168,
		baseline:     0.9402,
		smokerAgeCap: 70,
	}
	femaleModel = model{
		lnAge:        31.764001,
		lnTotal:      22.465206,
		lnHDL:        -1.187731,
		lnSBP:        2.552905,
		treated:      0.420251,
		smoker:       13.07543,
		lnAgeLnTotal: -5.060998,
		lnAgeSmoker:  -2.996945,
		constant:     146.5933061,
		baseline:     0.98767,
		smokerAgeCap: 78,
	}
)

// Score evaluates the model for the given sex.
func Score(sex Sex, in Input) (Result, error) {
	switch sex {
	case Male:
		return ScoreMale(in)
	case Female:
		return ScoreFemale(in)
	}
	return Result{}, fmt.Errorf("%w: unsupported sex %q", ErrInvalidInput, sex)
}

// ScoreMale evaluates the male model and looks up the male population average.
func ScoreMale(in Input) (Result, error) {
	return maleModel.score(Male, in)
}

// ScoreFemale evaluates the female model and looks up the female population average.
func ScoreFemale(in Input) (Result, error) {
	return femaleModel.score(Female, in)
}

func (m model) score(sex Sex, in Input) (Result, error) {
	// Age gate comes first: out-of-range patients are unscorable whatever the vitals
	if in.Age < MinAge || in.Age > MaxAge {
		return Result{Outcome: Unscorable}, nil
	}

	if err := in.validate(); err != nil {
		return Result{}, err
	}

	probability := m.probability(in)

	// No average is published above 74 years old
	if in.Age > 75 {
		return Result{Outcome: Scored, Probability: probability}, nil
	}

	// Age 75 has no band either, an unmatched lookup is the same as no reference
	reference, _ := LookupReference(sex, in.Age)
	return Result{Outcome: Scored, Probability: probability, Reference: reference}, nil
}

// probability returns the 10-year risk as a percentage. The term order
// mirrors the published formula so results agree to the displayed precision.
func (m model) probability(in Input) float64 {
	age := float64(in.Age)

	// The smoking x age interaction was only fit up to the cap
	ageSmoke := float64(min(in.Age, m.smokerAgeCap))

	smoker := boolToFloat(in.Smoker)
	treated := boolToFloat(in.Treated)

	l := m.lnAge*math.Log(age) + m.lnTotal*math.Log(in.TotalCholesterol) + m.lnHDL*math.Log(in.HDLCholesterol) +
		m.lnSBP*math.Log(in.SystolicBP) + m.treated*treated + m.smoker*smoker + m.lnAgeLnTotal*math.Log(age)*math.Log(in.TotalCholesterol) +
		m.lnAgeSmoker*math.Log(ageSmoke)*smoker + m.lnAgeSquared*math.Log(age)*math.Log(age) - m.constant

	prob := 1 - math.Pow(m.baseline, math.Exp(l))
	return prob * 100
}

func (in Input) validate() error {
	vitals := []struct {
		name  string
		value float64
	}{
		{"total cholesterol", in.TotalCholesterol},
		{"HDL cholesterol", in.HDLCholesterol},
		{"systolic blood pressure", in.SystolicBP},
	}
	for _, v := range vitals {
		if !(v.value > 0) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%w: %s must be a positive number, got %v", ErrInvalidInput, v.name, v.value)
		}
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
