// Package present turns a risk result and the facts behind it into the text,
// gauges and card decision shown to clinicians.
package present

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/chop-dbhi/smart-framingham/facts"
	"github.com/chop-dbhi/smart-framingham/framingham"
)

// Summary is the one-line result text.
func Summary(r framingham.Result) string {
	if r.Outcome != framingham.Scored {
		return fmt.Sprintf("Risk can only be calculated for ages %d-%d", framingham.MinAge, framingham.MaxAge)
	}
	if r.Reference == nil {
		return fmt.Sprintf("10-year risk of MI or death: %.2f%% (No average reference above 74 years old)", r.Probability)
	}
	return fmt.Sprintf("10-year risk of MI or death: %.2f%%  (Average: %s%%)", r.Probability, r.Reference.Label)
}

// ShowCard reports whether a patient-view card should be returned. Results
// at or below the population average are suppressed.
func ShowCard(r framingham.Result) bool {
	if r.Outcome != framingham.Scored || r.Reference == nil {
		return true
	}
	return r.AboveAverage()
}

// Display holds the facts formatted for the result page and card detail.
type Display struct {
	Name             string `json:"name"`
	Gender           string `json:"gender"`
	Age              int    `json:"age"`
	Demographics     string `json:"demographics"`
	SmokingStatus    string `json:"smokingStatus"`
	Systolic         string `json:"systolic"`
	TotalCholesterol string `json:"totalCholesterol"`
	HDLCholesterol   string `json:"hdlCholesterol"`
	Treated          string `json:"treated"`
	TreatedHistory   string `json:"treatedHistory"`
}

func NewDisplay(f *facts.Facts) Display {
	d := Display{
		Name:             f.Name,
		Gender:           string(f.Sex),
		Age:              f.Age,
		Demographics:     fmt.Sprintf("%d year-old %s", f.Age, f.Sex),
		SmokingStatus:    f.SmokingStatus,
		Systolic:         formatValue(f.SystolicBP),
		TotalCholesterol: formatValue(f.TotalCholesterol),
		HDLCholesterol:   formatValue(f.HDLCholesterol),
		Treated:          "No",
		TreatedHistory:   "History of blood pressure medication: NO",
	}
	if d.SmokingStatus == "" {
		d.SmokingStatus = "Unknown"
	}
	if f.Treated {
		d.Treated = "Yes"
		d.TreatedHistory = "History of blood pressure medication: YES"
	}
	return d
}

// PartialDisplay is the display of the facts gathered before extraction
// stopped with err. Fields of steps that never ran are left blank.
func PartialDisplay(f *facts.Facts, err error) Display {
	d := NewDisplay(f)
	if err == nil {
		return d
	}

	// Treatment is the last step, so it never ran
	d.Treated = ""
	d.TreatedHistory = ""

	if errors.Is(err, facts.ErrMissingBirthDate) {
		d.Age = 0
		d.Demographics = string(f.Sex)
		d.SmokingStatus = ""
	}
	return d
}

// Message is the terminal text shown when extraction stops early.
func Message(err error, patientID string) string {
	var missing *facts.MissingVitalError
	switch {
	case errors.As(err, &missing):
		if missing.Vital == facts.VitalSystolic {
			return "ERROR - No systolic blood pressure values detected"
		}
		return "ERROR - No cholesterol values detected"
	case errors.Is(err, facts.ErrUnsupportedSex):
		return "Risk can only be calculated for male or female patients"
	case errors.Is(err, facts.ErrMissingBirthDate):
		return "ERROR - No birth date recorded for: " + patientID
	default:
		return "Cannot access patient: " + patientID
	}
}

func formatValue(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
