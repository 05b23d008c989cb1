package fhir

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a search or read matched nothing.
	ErrNotFound = errors.New("resource not found")
	// ErrNotPrefetched is returned when a prefetch key is missing and no
	// fallback source is configured.
	ErrNotPrefetched = errors.New("resource not prefetched")
)

// StatusError is a non-2xx response from a FHIR server.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request %s failed (%d): %s", e.URL, e.StatusCode, e.Body)
}

// Source is the capability the fact extractor needs from a record system:
// most-recent lookups by subject and code, resolved by the source's own
// descending-date ordering.
type Source interface {
	// Patient returns the patient resource or ErrNotFound.
	Patient(ctx context.Context, id string) (*Patient, error)
	// LatestObservation returns the most recent observation with the code,
	// or nil when none exists.
	LatestObservation(ctx context.Context, patientID, code string) (*Observation, error)
	// MedicationCodes returns the blood-pressure medication code set.
	MedicationCodes(ctx context.Context) ([]string, error)
	// MedicationRequests returns the patient's active requests for any of codes.
	MedicationRequests(ctx context.Context, patientID string, codes []string) ([]*MedicationRequest, error)
}

// Codes names the terminology the risk inputs are looked up by.
type Codes struct {
	Smoking          string   `mapstructure:"SMOKING_CODE"`
	BloodPressure    string   `mapstructure:"BP_CODE"`
	TotalCholesterol string   `mapstructure:"TOTAL_CHOL_CODE"`
	HDLCholesterol   string   `mapstructure:"HDL_CHOL_CODE"`
	MedicationTitle  string   `mapstructure:"BP_MED_VALUESET"`
	Medications      []string `mapstructure:"BP_MED_CODES"`
}

// DefaultCodes are LOINC observation codes and RxNorm blood-pressure
// medication codes.
var DefaultCodes = Codes{
	Smoking:          "72166-2",
	BloodPressure:    "55284-4",
	TotalCholesterol: "2093-3",
	HDLCholesterol:   "2085-9",
	MedicationTitle:  "blood-pressure-medications",
	Medications:      []string{"259255", "833036", "197361", "309362", "312961"},
}

// Prefetch keys of the patient-view service.
const (
	PrefetchPatient          = "patient_pre"
	PrefetchSmoking          = "smoker_pre"
	PrefetchSystolic         = "sys_pre"
	PrefetchTotalCholesterol = "total_chol_pre"
	PrefetchHDLCholesterol   = "hdl_chol_pre"
	PrefetchMedications      = "bp_med_pre"
)
