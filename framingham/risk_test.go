package framingham

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreMale(t *testing.T) {
	r, err := ScoreMale(Input{Age: 55, TotalCholesterol: 213, HDLCholesterol: 50, SystolicBP: 120})
	require.NoError(t, err)

	assert.Equal(t, Scored, r.Outcome)
	assert.InDelta(t, 6.29, r.Probability, 0.005)
	require.NotNil(t, r.Reference)
	assert.Equal(t, "13", r.Reference.Label)
	assert.Equal(t, 13.0, r.Reference.Value)
	assert.False(t, r.AboveAverage())
}

func TestScoreFemale(t *testing.T) {
	r, err := ScoreFemale(Input{Age: 62, Smoker: true, TotalCholesterol: 240, HDLCholesterol: 55, SystolicBP: 130, Treated: true})
	require.NoError(t, err)

	assert.Equal(t, Scored, r.Outcome)
	assert.InDelta(t, 8.29, r.Probability, 0.005)
	require.NotNil(t, r.Reference)
	assert.Equal(t, "8", r.Reference.Label)
	assert.True(t, r.AboveAverage())
}

func TestScoreKnownValues(t *testing.T) {
	tests := []struct {
		name   string
		sex    Sex
		in     Input
		expect float64
	}{
		{"male smoker treated", Male, Input{Age: 45, Smoker: true, TotalCholesterol: 250, HDLCholesterol: 40, SystolicBP: 140, Treated: true}, 23.85},
		{"male low risk", Male, Input{Age: 50, TotalCholesterol: 180, HDLCholesterol: 60, SystolicBP: 115}, 2.49},
		{"male youngest worst case", Male, Input{Age: 30, Smoker: true, TotalCholesterol: 300, HDLCholesterol: 20, SystolicBP: 190, Treated: true}, 44.50},
		{"female oldest smoker", Female, Input{Age: 79, Smoker: true, TotalCholesterol: 200, HDLCholesterol: 40, SystolicBP: 150}, 13.88},
		{"female 75", Female, Input{Age: 75, TotalCholesterol: 200, HDLCholesterol: 60, SystolicBP: 120}, 3.89},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Score(tt.sex, tt.in)
			require.NoError(t, err)
			assert.Equal(t, Scored, r.Outcome)
			assert.InDelta(t, tt.expect, r.Probability, 0.005)
		})
	}
}

func TestScoreUnscorableAges(t *testing.T) {
	for _, sex := range []Sex{Male, Female} {
		for _, age := range []int{0, 25, 29, 80, 120} {
			// Vitals are irrelevant, even invalid ones
			r, err := Score(sex, Input{Age: age})
			require.NoError(t, err)
			assert.Equal(t, Unscorable, r.Outcome, "sex %s age %d", sex, age)
			assert.False(t, r.HasReference())
		}
	}
}

func TestScoreBoundaryAgesAreScorable(t *testing.T) {
	for _, sex := range []Sex{Male, Female} {
		for _, age := range []int{MinAge, MaxAge} {
			r, err := Score(sex, Input{Age: age, TotalCholesterol: 200, HDLCholesterol: 50, SystolicBP: 120})
			require.NoError(t, err)
			assert.Equal(t, Scored, r.Outcome)
		}
	}
}

func TestScoreNoReferenceFrom75(t *testing.T) {
	for _, sex := range []Sex{Male, Female} {
		for age := 75; age <= MaxAge; age++ {
			r, err := Score(sex, Input{Age: age, TotalCholesterol: 200, HDLCholesterol: 50, SystolicBP: 120})
			require.NoError(t, err)
			assert.Equal(t, Scored, r.Outcome)
			assert.Nil(t, r.Reference, "sex %s age %d", sex, age)
			assert.False(t, r.AboveAverage())
		}
	}
}

func TestScoreReferenceAt74(t *testing.T) {
	r, err := ScoreMale(Input{Age: 74, TotalCholesterol: 200, HDLCholesterol: 50, SystolicBP: 120})
	require.NoError(t, err)
	require.NotNil(t, r.Reference)
	assert.Equal(t, "25", r.Reference.Label)

	r, err = ScoreFemale(Input{Age: 74, TotalCholesterol: 200, HDLCholesterol: 50, SystolicBP: 120})
	require.NoError(t, err)
	require.NotNil(t, r.Reference)
	assert.Equal(t, "11", r.Reference.Label)
}

func TestScoreSmokingAgeClamp(t *testing.T) {
	in := Input{Age: 75, Smoker: true, TotalCholesterol: 213, HDLCholesterol: 50, SystolicBP: 120}

	clamped, err := ScoreMale(in)
	require.NoError(t, err)
	assert.InDelta(t, 14.95, clamped.Probability, 0.005)

	// Same inputs with the interaction term evaluated at the real age
	unclamped := maleModel
	unclamped.smokerAgeCap = MaxAge
	assert.InDelta(t, 12.46, unclamped.probability(in), 0.005)

	// At 70 the cap changes nothing
	atCap, err := ScoreMale(Input{Age: 70, Smoker: true, TotalCholesterol: 213, HDLCholesterol: 50, SystolicBP: 120})
	require.NoError(t, err)
	assert.InDelta(t, 13.00, atCap.Probability, 0.005)
	assert.Equal(t, atCap.Probability, func() float64 {
		m := maleModel
		m.smokerAgeCap = MaxAge
		return m.probability(Input{Age: 70, Smoker: true, TotalCholesterol: 213, HDLCholesterol: 50, SystolicBP: 120})
	}())
}

func TestScoreFemaleSmokingAgeClamp(t *testing.T) {
	in := Input{Age: 79, Smoker: true, TotalCholesterol: 200, HDLCholesterol: 40, SystolicBP: 150}
	capped := femaleModel.probability(in)

	uncapped := femaleModel
	uncapped.smokerAgeCap = MaxAge
	assert.NotEqual(t, capped, uncapped.probability(in))

	in.Smoker = false
	assert.Equal(t, femaleModel.probability(in), uncapped.probability(in))
}

func TestScoreIsBounded(t *testing.T) {
	for _, sex := range []Sex{Male, Female} {
		for age := MinAge; age <= MaxAge; age++ {
			for _, smoker := range []bool{false, true} {
				for _, treated := range []bool{false, true} {
					for _, vitals := range [][3]float64{{150, 90, 70}, {400, 20, 220}, {1, 1, 1}, {1000, 5, 300}} {
						r, err := Score(sex, Input{
							Age:              age,
							Smoker:           smoker,
							TotalCholesterol: vitals[0],
							HDLCholesterol:   vitals[1],
							SystolicBP:       vitals[2],
							Treated:          treated,
						})
						require.NoError(t, err)
						assert.False(t, math.IsNaN(r.Probability))
						assert.GreaterOrEqual(t, r.Probability, 0.0)
						assert.LessOrEqual(t, r.Probability, 100.0)
					}
				}
			}
		}
	}
}

func TestScoreRejectsNonPositiveVitals(t *testing.T) {
	tests := []Input{
		{Age: 50, TotalCholesterol: 0, HDLCholesterol: 50, SystolicBP: 120},
		{Age: 50, TotalCholesterol: 200, HDLCholesterol: -1, SystolicBP: 120},
		{Age: 50, TotalCholesterol: 200, HDLCholesterol: 50, SystolicBP: math.NaN()},
		{Age: 50, TotalCholesterol: math.Inf(1), HDLCholesterol: 50, SystolicBP: 120},
	}
	for _, in := range tests {
		_, err := ScoreFemale(in)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestScoreUnsupportedSex(t *testing.T) {
	_, err := Score(Sex("other"), Input{Age: 50, TotalCholesterol: 200, HDLCholesterol: 50, SystolicBP: 120})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseSex(t *testing.T) {
	s, err := ParseSex("female")
	require.NoError(t, err)
	assert.Equal(t, Female, s)

	_, err = ParseSex("unknown")
	assert.Error(t, err)
}
