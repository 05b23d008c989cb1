package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Simple struct to identify resourceType
type Resource struct {
	ResourceType string `json:"resourceType"`
}

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullUrl  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

// Decode parses a search response or a single resource into typed
// resources. Resource types outside the supported subset are skipped.
func Decode(data []byte) ([]any, error) {
	var resource Resource
	if err := json.Unmarshal(data, &resource); err != nil {
		return nil, fmt.Errorf("failed to decode resourceType: %w", err)
	}

	// Check if it's a Bundle or a single resource
	switch resource.ResourceType {
	case "Bundle":
		var bundle Bundle
		if err := json.Unmarshal(data, &bundle); err != nil {
			return nil, fmt.Errorf("error unmarshalling bundle: %w", err)
		}
		return bundle.Resources()

	default:
		r, err := parseResource(data)
		if err != nil || r == nil {
			return nil, err
		}
		return []any{r}, nil
	}
}

// Resources decodes every entry of the bundle, in order.
func (b *Bundle) Resources() ([]any, error) {
	var resources []any
	for _, entry := range b.Entry {
		if len(entry.Resource) == 0 {
			continue
		}
		r, err := parseResource(entry.Resource)
		if err != nil {
			return nil, err
		}
		if r != nil {
			resources = append(resources, r)
		}
	}
	return resources, nil
}

func parseResource(data []byte) (any, error) {
	var resource Resource
	if err := json.Unmarshal(data, &resource); err != nil {
		return nil, fmt.Errorf("failed to decode resourceType: %w", err)
	}

	// Unmarshal based on resource type
	switch resource.ResourceType {
	case "Patient":
		var patient Patient
		if err := json.Unmarshal(data, &patient); err != nil {
			return nil, fmt.Errorf("error unmarshalling Patient: %w", err)
		}
		return &patient, nil

	case "Observation":
		var observation Observation
		if err := json.Unmarshal(data, &observation); err != nil {
			return nil, fmt.Errorf("error unmarshalling Observation: %w", err)
		}
		return &observation, nil

	case "MedicationRequest":
		var medicationRequest MedicationRequest
		if err := json.Unmarshal(data, &medicationRequest); err != nil {
			return nil, fmt.Errorf("error unmarshalling MedicationRequest: %w", err)
		}
		return &medicationRequest, nil

	case "ValueSet":
		var valueSet ValueSet
		if err := json.Unmarshal(data, &valueSet); err != nil {
			return nil, fmt.Errorf("error unmarshalling ValueSet: %w", err)
		}
		return &valueSet, nil

	case "OperationOutcome":
		var outcome OperationOutcome
		if err := json.Unmarshal(data, &outcome); err != nil {
			return nil, fmt.Errorf("error unmarshalling OperationOutcome: %w", err)
		}
		return &outcome, nil
	}
	return nil, nil
}

// resourcesOf keeps the decoded resources of one Go type.
func resourcesOf[T any](resources []any) []*T {
	var result []*T
	for _, r := range resources {
		if v, ok := r.(*T); ok {
			result = append(result, v)
		}
	}
	return result
}

// decodeOf decodes data and returns the resources of one Go type.
func decodeOf[T any](data []byte) ([]*T, error) {
	resources, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return resourcesOf[T](resources), nil
}

// isNull reports whether a raw prefetch value is absent or JSON null.
func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
