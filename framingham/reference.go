package framingham

import (
	"strconv"
	"strings"
)

// Band is one published population-average risk label and the ages it
// applies to, inclusive on both ends.
type Band struct {
	Label   string
	FromAge int
	ToAge   int
}

func (b Band) Contains(age int) bool {
	return age >= b.FromAge && age <= b.ToAge
}

// Reference is a matched population average. Label is the published label
// without its percent sign (e.g. "13", "<1"); Value is its numeric reading
// used for comparisons, with "<1" read as 1.
type Reference struct {
	Label string
	Value float64
}

// Average 10-year risks by age, from
// https://www.mdcalc.com/framingham-risk-score-hard-coronary-heart-disease#evidence
// Neither table covers 75 or older.
var (
	maleBands = []Band{
		{"1%", 30, 34},
		{"4%", 35, 44},
		{"8%", 45, 49},
		{"10%", 50, 54},
		{"13%", 55, 59},
		{"20%", 60, 64},
		{"22%", 65, 69},
		{"25%", 70, 74},
	}
	femaleBands = []Band{
		{"<1%", 30, 39},
		{"1%", 40, 44},
		{"2%", 45, 49},
		{"3%", 50, 54},
		{"7%", 55, 59},
		{"8%", 60, 69},
		{"11%", 70, 74},
	}
)

func bands(sex Sex) []Band {
	switch sex {
	case Male:
		return maleBands
	case Female:
		return femaleBands
	}
	return nil
}

// LookupReference returns the population average for the sex and age, if any.
func LookupReference(sex Sex, age int) (*Reference, bool) {
	return lookup(bands(sex), age)
}

func lookup(bands []Band, age int) (*Reference, bool) {
	for _, band := range bands {
		if band.Contains(age) {
			label := strings.TrimSuffix(band.Label, "%")
			return &Reference{Label: label, Value: labelValue(label)}, true
		}
	}
	return nil, false
}

func labelValue(label string) float64 {
	v, err := strconv.ParseFloat(strings.TrimPrefix(label, "<"), 64)
	if err != nil {
		return 0
	}
	return v
}
