// Package facts derives the clinical inputs of the Framingham score from a
// patient's FHIR record.
package facts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.elastic.co/apm"
	"go.uber.org/zap"

	"github.com/chop-dbhi/smart-framingham/fhir"
	"github.com/chop-dbhi/smart-framingham/framingham"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrMissingVital     = errors.New("missing vital")
	ErrUnsupportedSex   = errors.New("unsupported sex")
	ErrMissingBirthDate = errors.New("missing birth date")
)

// Vitals that abort extraction when absent.
const (
	VitalSystolic         = "systolic blood pressure"
	VitalTotalCholesterol = "total cholesterol"
	VitalHDLCholesterol   = "HDL cholesterol"
)

// SystolicComponent is the component label the systolic reading is taken from.
const SystolicComponent = "Systolic Blood Pressure"

// NeverSmoker is the only coded text that scores as a non-smoker.
const NeverSmoker = "Never smoker"

// MissingVitalError reports which required vital could not be found.
type MissingVitalError struct {
	Vital string
	Err   error
}

func (e *MissingVitalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no %s value: %v", e.Vital, e.Err)
	}
	return fmt.Sprintf("no %s value", e.Vital)
}

func (e *MissingVitalError) Unwrap() error { return e.Err }

func (e *MissingVitalError) Is(target error) bool { return target == ErrMissingVital }

// Facts are the values one risk computation is based on. Name and
// SmokingStatus are only used for display.
type Facts struct {
	PatientID        string
	Name             string
	Sex              framingham.Sex
	Age              int
	Smoker           bool
	SmokingStatus    string
	SystolicBP       float64
	TotalCholesterol float64
	HDLCholesterol   float64
	Treated          bool
}

// Input converts the facts into risk model input.
func (f *Facts) Input() framingham.Input {
	return framingham.Input{
		Age:              f.Age,
		Smoker:           f.Smoker,
		TotalCholesterol: f.TotalCholesterol,
		HDLCholesterol:   f.HDLCholesterol,
		SystolicBP:       f.SystolicBP,
		Treated:          f.Treated,
	}
}

// Score runs the risk model on the facts.
func (f *Facts) Score() (framingham.Result, error) {
	return framingham.Score(f.Sex, f.Input())
}

// Extractor reads facts for one patient from a Source. Lookups run in a
// fixed order and each one opens its own span.
type Extractor struct {
	Source fhir.Source
	Codes  fhir.Codes
	Now    func() time.Time
	Logger *zap.Logger
}

func New(source fhir.Source, codes fhir.Codes, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		Source: source,
		Codes:  codes,
		Now:    time.Now,
		Logger: logger,
	}
}

// Extract gathers every fact. Demographics and vitals failures abort the
// extraction; the facts gathered up to that point are returned with the
// error. Smoking and treatment lookups never fail.
func (e *Extractor) Extract(ctx context.Context, patientID string) (*Facts, error) {
	f := &Facts{PatientID: patientID}

	if err := e.Demographics(ctx, f); err != nil {
		return f, err
	}

	e.Smoking(ctx, f)

	if err := e.Systolic(ctx, f); err != nil {
		return f, err
	}

	if err := e.Cholesterol(ctx, f); err != nil {
		return f, err
	}

	e.Treatment(ctx, f)

	return f, nil
}

// Demographics sets name, sex and age. Age is the difference of calendar
// years, ignoring month and day.
func (e *Extractor) Demographics(ctx context.Context, f *Facts) error {
	span, ctx := apm.StartSpan(ctx, "Get and Parse Data", "Patient")
	defer span.End()

	patient, err := e.Source.Patient(ctx, f.PatientID)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPatientNotFound, f.PatientID, err)
	}
	if patient == nil {
		return fmt.Errorf("%w: %s", ErrPatientNotFound, f.PatientID)
	}

	f.Name = patient.DisplayName()

	sex, err := framingham.ParseSex(patient.Gender)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedSex, patient.Gender)
	}
	f.Sex = sex

	birthYear, err := patient.BirthYear()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingBirthDate, err)
	}
	f.Age = e.now().Year() - birthYear

	return nil
}

// Smoking sets the smoker flag from the most recent smoking status. A
// missing or unreadable observation counts as a smoker.
func (e *Extractor) Smoking(ctx context.Context, f *Facts) {
	span, ctx := apm.StartSpan(ctx, "Get and Parse Data", "Smoking")
	defer span.End()

	f.Smoker = true
	f.SmokingStatus = ""

	obs, err := e.Source.LatestObservation(ctx, f.PatientID, e.Codes.Smoking)
	if err != nil {
		e.Logger.Warn("smoking status lookup failed, assuming smoker",
			zap.String("patient", f.PatientID), zap.Error(err))
		return
	}
	if obs == nil || obs.ValueCodeableConcept == nil {
		return
	}

	// Only the coded text decides, not the coding display
	f.SmokingStatus = obs.ValueCodeableConcept.Label()
	if obs.ValueCodeableConcept.Text == NeverSmoker {
		f.Smoker = false
	}
}

// Systolic sets the systolic pressure from the most recent blood pressure
// panel.
func (e *Extractor) Systolic(ctx context.Context, f *Facts) error {
	span, ctx := apm.StartSpan(ctx, "Get and Parse Data", "Systolic")
	defer span.End()

	obs, err := e.Source.LatestObservation(ctx, f.PatientID, e.Codes.BloodPressure)
	if err != nil {
		return &MissingVitalError{Vital: VitalSystolic, Err: err}
	}
	if obs == nil {
		return &MissingVitalError{Vital: VitalSystolic}
	}

	q, ok := obs.ComponentQuantity(SystolicComponent)
	if !ok || !(q.Value > 0) {
		return &MissingVitalError{Vital: VitalSystolic}
	}
	f.SystolicBP = q.Value

	return nil
}

// Cholesterol sets total then HDL cholesterol. Both are required.
func (e *Extractor) Cholesterol(ctx context.Context, f *Facts) error {
	span, ctx := apm.StartSpan(ctx, "Get and Parse Data", "Cholesterol")
	defer span.End()

	total, err := e.quantity(ctx, f.PatientID, e.Codes.TotalCholesterol, VitalTotalCholesterol)
	if err != nil {
		return err
	}
	f.TotalCholesterol = total

	hdl, err := e.quantity(ctx, f.PatientID, e.Codes.HDLCholesterol, VitalHDLCholesterol)
	if err != nil {
		return err
	}
	f.HDLCholesterol = hdl

	return nil
}

func (e *Extractor) quantity(ctx context.Context, patientID, code, vital string) (float64, error) {
	obs, err := e.Source.LatestObservation(ctx, patientID, code)
	if err != nil {
		return 0, &MissingVitalError{Vital: vital, Err: err}
	}
	if obs == nil || obs.ValueQuantity == nil || !(obs.ValueQuantity.Value > 0) {
		return 0, &MissingVitalError{Vital: vital}
	}
	return obs.ValueQuantity.Value, nil
}

// Treatment sets the treated flag when the patient has any request for a
// blood pressure medication. Lookup failures leave the patient untreated.
func (e *Extractor) Treatment(ctx context.Context, f *Facts) {
	span, ctx := apm.StartSpan(ctx, "Get and Parse Data", "MedicationRequest")
	defer span.End()

	f.Treated = false

	codes, err := e.Source.MedicationCodes(ctx)
	if err != nil {
		e.Logger.Warn("blood pressure medication codes unavailable, assuming untreated",
			zap.String("patient", f.PatientID), zap.Error(err))
		return
	}
	if len(codes) == 0 {
		return
	}

	requests, err := e.Source.MedicationRequests(ctx, f.PatientID, codes)
	if err != nil {
		e.Logger.Warn("medication request lookup failed, assuming untreated",
			zap.String("patient", f.PatientID), zap.Error(err))
		return
	}
	f.Treated = len(requests) > 0
}

func (e *Extractor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
