package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// PrefetchTemplates returns the patient-view prefetch queries for the codes.
func PrefetchTemplates(codes Codes) map[string]string {
	observation := func(code string) string {
		return "Observation?subject={{context.patientId}}&_sort:desc=date&code=" + code + "&_count=1"
	}
	return map[string]string{
		PrefetchPatient:          "Patient/{{context.patientId}}",
		PrefetchSmoking:          observation(codes.Smoking),
		PrefetchSystolic:         observation(codes.BloodPressure),
		PrefetchTotalCholesterol: observation(codes.TotalCholesterol),
		PrefetchHDLCholesterol:   observation(codes.HDLCholesterol),
		PrefetchMedications:      "MedicationRequest?subject={{context.patientId}}&code=" + strings.Join(codes.Medications, ","),
	}
}

// PrefetchSource answers lookups from the prefetch data a CDS client sent
// with a hook request. Keys the client did not prefetch, or sent as null,
// are delegated to Fallback when one is set.
type PrefetchSource struct {
	prefetch map[string]json.RawMessage
	codes    Codes
	keys     map[string]string // observation code -> prefetch key
	Fallback Source
}

func NewPrefetchSource(prefetch map[string]json.RawMessage, codes Codes, fallback Source) *PrefetchSource {
	return &PrefetchSource{
		prefetch: prefetch,
		codes:    codes,
		keys: map[string]string{
			codes.Smoking:          PrefetchSmoking,
			codes.BloodPressure:    PrefetchSystolic,
			codes.TotalCholesterol: PrefetchTotalCholesterol,
			codes.HDLCholesterol:   PrefetchHDLCholesterol,
		},
		Fallback: fallback,
	}
}

func (p *PrefetchSource) lookup(key string) (json.RawMessage, bool) {
	data, ok := p.prefetch[key]
	if !ok || isNull(data) {
		return nil, false
	}
	return data, true
}

func (p *PrefetchSource) Patient(ctx context.Context, id string) (*Patient, error) {
	data, ok := p.lookup(PrefetchPatient)
	if !ok {
		if p.Fallback != nil {
			return p.Fallback.Patient(ctx, id)
		}
		return nil, fmt.Errorf("%s: %w", PrefetchPatient, ErrNotPrefetched)
	}

	// Prefetch may hold the resource itself or a search bundle
	patients, err := decodeOf[Patient](data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PrefetchPatient, err)
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}
	return patients[0], nil
}

func (p *PrefetchSource) LatestObservation(ctx context.Context, patientID, code string) (*Observation, error) {
	key, known := p.keys[code]
	var data json.RawMessage
	ok := false
	if known {
		data, ok = p.lookup(key)
	}
	if !ok {
		if p.Fallback != nil {
			return p.Fallback.LatestObservation(ctx, patientID, code)
		}
		return nil, fmt.Errorf("observation %s: %w", code, ErrNotPrefetched)
	}

	observations, err := decodeOf[Observation](data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if len(observations) == 0 {
		return nil, nil
	}
	return observations[0], nil
}

// MedicationCodes returns the configured codes the medication prefetch
// template was built from.
func (p *PrefetchSource) MedicationCodes(ctx context.Context) ([]string, error) {
	if _, ok := p.lookup(PrefetchMedications); !ok && p.Fallback != nil {
		return p.Fallback.MedicationCodes(ctx)
	}
	return p.codes.Medications, nil
}

func (p *PrefetchSource) MedicationRequests(ctx context.Context, patientID string, codes []string) ([]*MedicationRequest, error) {
	data, ok := p.lookup(PrefetchMedications)
	if !ok {
		if p.Fallback != nil {
			return p.Fallback.MedicationRequests(ctx, patientID, codes)
		}
		return nil, fmt.Errorf("%s: %w", PrefetchMedications, ErrNotPrefetched)
	}

	requests, err := decodeOf[MedicationRequest](data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PrefetchMedications, err)
	}

	// The prefetch query already filtered by code; drop coded requests outside the set
	var result []*MedicationRequest
	for _, mr := range requests {
		if mr.MedicationCodeableConcept != nil && !mr.HasMedicationCode(codes) {
			continue
		}
		result = append(result, mr)
	}
	return result, nil
}
