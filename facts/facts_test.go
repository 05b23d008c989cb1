package facts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chop-dbhi/smart-framingham/fhir"
	"github.com/chop-dbhi/smart-framingham/framingham"
)

// fakeSource serves canned resources keyed by observation code.
type fakeSource struct {
	patient      *fhir.Patient
	patientErr   error
	observations map[string]*fhir.Observation
	obsErr       map[string]error
	codes        []string
	codesErr     error
	requests     []*fhir.MedicationRequest
	requestsErr  error
	calls        []string
}

func (s *fakeSource) Patient(ctx context.Context, id string) (*fhir.Patient, error) {
	s.calls = append(s.calls, "Patient")
	if s.patientErr != nil {
		return nil, s.patientErr
	}
	return s.patient, nil
}

func (s *fakeSource) LatestObservation(ctx context.Context, patientID, code string) (*fhir.Observation, error) {
	s.calls = append(s.calls, "Observation:"+code)
	if err := s.obsErr[code]; err != nil {
		return nil, err
	}
	return s.observations[code], nil
}

func (s *fakeSource) MedicationCodes(ctx context.Context) ([]string, error) {
	s.calls = append(s.calls, "MedicationCodes")
	return s.codes, s.codesErr
}

func (s *fakeSource) MedicationRequests(ctx context.Context, patientID string, codes []string) ([]*fhir.MedicationRequest, error) {
	s.calls = append(s.calls, "MedicationRequests")
	return s.requests, s.requestsErr
}

var codes = fhir.DefaultCodes

func quantityObs(value float64) *fhir.Observation {
	return &fhir.Observation{ValueQuantity: &fhir.Quantity{Value: value}}
}

func systolicObs(value float64) *fhir.Observation {
	return &fhir.Observation{Component: []fhir.ObservationComponent{
		{Code: fhir.CodeableConcept{Text: "Diastolic Blood Pressure"}, ValueQuantity: &fhir.Quantity{Value: 80}},
		{Code: fhir.CodeableConcept{Text: SystolicComponent}, ValueQuantity: &fhir.Quantity{Value: value}},
	}}
}

func smokingObs(text string) *fhir.Observation {
	return &fhir.Observation{ValueCodeableConcept: &fhir.CodeableConcept{Text: text}}
}

// completeSource describes a 55 year old male with every fact on record.
func completeSource() *fakeSource {
	return &fakeSource{
		patient: &fhir.Patient{
			Id:        "p1",
			Gender:    "male",
			BirthDate: "1964-09-30",
			Name:      []fhir.HumanName{{Given: []string{"Daniel"}, Family: "Adams"}},
		},
		observations: map[string]*fhir.Observation{
			codes.Smoking:          smokingObs(NeverSmoker),
			codes.BloodPressure:    systolicObs(120),
			codes.TotalCholesterol: quantityObs(213),
			codes.HDLCholesterol:   quantityObs(50),
		},
		obsErr: map[string]error{},
		codes:  codes.Medications,
	}
}

func newExtractor(src fhir.Source) *Extractor {
	e := New(src, codes, nil)
	e.Now = func() time.Time { return time.Date(2019, 1, 2, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestExtract(t *testing.T) {
	src := completeSource()

	f, err := newExtractor(src).Extract(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, &Facts{
		PatientID:        "p1",
		Name:             "Daniel Adams",
		Sex:              framingham.Male,
		Age:              55,
		Smoker:           false,
		SmokingStatus:    NeverSmoker,
		SystolicBP:       120,
		TotalCholesterol: 213,
		HDLCholesterol:   50,
		Treated:          false,
	}, f)

	r, err := f.Score()
	require.NoError(t, err)
	assert.InDelta(t, 6.29, r.Probability, 0.005)
	assert.Equal(t, "13", r.Reference.Label)
}

func TestExtractOrder(t *testing.T) {
	src := completeSource()
	src.requests = []*fhir.MedicationRequest{{Id: "mr"}}

	_, err := newExtractor(src).Extract(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Patient",
		"Observation:" + codes.Smoking,
		"Observation:" + codes.BloodPressure,
		"Observation:" + codes.TotalCholesterol,
		"Observation:" + codes.HDLCholesterol,
		"MedicationCodes",
		"MedicationRequests",
	}, src.calls)
}

func TestExtractAgeIgnoresMonthAndDay(t *testing.T) {
	src := completeSource()
	src.patient.BirthDate = "1964-12-31"

	f, err := newExtractor(src).Extract(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 55, f.Age)
}

func TestExtractPatientNotFound(t *testing.T) {
	for name, src := range map[string]*fakeSource{
		"fetch error": {patientErr: errors.New("connection refused")},
		"not found":   {patientErr: fhir.ErrNotFound},
		"nil patient": {},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newExtractor(src).Extract(context.Background(), "p1")
			assert.ErrorIs(t, err, ErrPatientNotFound)
			assert.Equal(t, []string{"Patient"}, src.calls)
		})
	}
}

func TestExtractUnsupportedSex(t *testing.T) {
	src := completeSource()
	src.patient.Gender = "unknown"

	_, err := newExtractor(src).Extract(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrUnsupportedSex)
}

func TestExtractMissingBirthDate(t *testing.T) {
	src := completeSource()
	src.patient.BirthDate = ""

	f, err := newExtractor(src).Extract(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrMissingBirthDate)
	assert.Equal(t, "Daniel Adams", f.Name)
}

func TestSmoking(t *testing.T) {
	tests := []struct {
		name   string
		obs    *fhir.Observation
		err    error
		smoker bool
		status string
	}{
		{"never smoker", smokingObs("Never smoker"), nil, false, "Never smoker"},
		{"former smoker", smokingObs("Former smoker"), nil, true, "Former smoker"},
		{"case differs", smokingObs("never smoker"), nil, true, "never smoker"},
		{"coding display without text", &fhir.Observation{ValueCodeableConcept: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{Code: "266919005", Display: "Never smoker"}},
		}}, nil, true, "Never smoker"},
		{"text over coding display", &fhir.Observation{ValueCodeableConcept: &fhir.CodeableConcept{
			Text:   "Never smoker",
			Coding: []fhir.Coding{{Code: "8517006", Display: "Former smoker"}},
		}}, nil, false, "Never smoker"},
		{"no observation", nil, nil, true, ""},
		{"no value", &fhir.Observation{}, nil, true, ""},
		{"lookup error", nil, errors.New("timeout"), true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := completeSource()
			src.observations[codes.Smoking] = tt.obs
			src.obsErr[codes.Smoking] = tt.err

			f := &Facts{PatientID: "p1"}
			newExtractor(src).Smoking(context.Background(), f)

			assert.Equal(t, tt.smoker, f.Smoker)
			assert.Equal(t, tt.status, f.SmokingStatus)
		})
	}
}

func TestSystolicMissing(t *testing.T) {
	tests := map[string]struct {
		obs *fhir.Observation
		err error
	}{
		"no observation": {nil, nil},
		"no systolic component": {&fhir.Observation{Component: []fhir.ObservationComponent{
			{Code: fhir.CodeableConcept{Text: "Diastolic Blood Pressure"}, ValueQuantity: &fhir.Quantity{Value: 80}},
		}}, nil},
		"zero value":   {systolicObs(0), nil},
		"lookup error": {nil, errors.New("503")},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			src := completeSource()
			src.observations[codes.BloodPressure] = tt.obs
			src.obsErr[codes.BloodPressure] = tt.err

			f, err := newExtractor(src).Extract(context.Background(), "p1")
			require.ErrorIs(t, err, ErrMissingVital)

			var missing *MissingVitalError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, VitalSystolic, missing.Vital)

			// Demographics and smoking were already gathered
			assert.Equal(t, 55, f.Age)
			assert.NotContains(t, src.calls, "Observation:"+codes.TotalCholesterol)
		})
	}
}

func TestCholesterolMissing(t *testing.T) {
	t.Run("total", func(t *testing.T) {
		src := completeSource()
		delete(src.observations, codes.TotalCholesterol)

		_, err := newExtractor(src).Extract(context.Background(), "p1")
		var missing *MissingVitalError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, VitalTotalCholesterol, missing.Vital)
		assert.NotContains(t, src.calls, "Observation:"+codes.HDLCholesterol)
	})

	t.Run("hdl", func(t *testing.T) {
		src := completeSource()
		src.observations[codes.HDLCholesterol] = &fhir.Observation{}

		f, err := newExtractor(src).Extract(context.Background(), "p1")
		var missing *MissingVitalError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, VitalHDLCholesterol, missing.Vital)
		assert.Equal(t, 213.0, f.TotalCholesterol)
		assert.NotContains(t, src.calls, "MedicationCodes")
	})
}

func TestTreatment(t *testing.T) {
	tests := []struct {
		name     string
		codes    []string
		codesErr error
		requests []*fhir.MedicationRequest
		reqErr   error
		treated  bool
	}{
		{"active request", codes.Medications, nil, []*fhir.MedicationRequest{{Id: "a"}}, nil, true},
		{"no requests", codes.Medications, nil, nil, nil, false},
		{"code set lookup fails", nil, errors.New("value set missing"), nil, nil, false},
		{"empty code set", []string{}, nil, []*fhir.MedicationRequest{{Id: "a"}}, nil, false},
		{"request lookup fails", codes.Medications, nil, nil, errors.New("500"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := completeSource()
			src.codes = tt.codes
			src.codesErr = tt.codesErr
			src.requests = tt.requests
			src.requestsErr = tt.reqErr

			f, err := newExtractor(src).Extract(context.Background(), "p1")
			require.NoError(t, err)
			assert.Equal(t, tt.treated, f.Treated)
		})
	}
}

func TestMissingVitalError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&MissingVitalError{Vital: VitalHDLCholesterol, Err: cause})

	assert.ErrorIs(t, err, ErrMissingVital)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "no HDL cholesterol value: boom", err.Error())
	assert.Equal(t, "no systolic blood pressure value", (&MissingVitalError{Vital: VitalSystolic}).Error())
}
