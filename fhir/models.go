// Package fhir holds the subset of FHIR R4 resources the risk calculator
// reads, decoding of search bundles, and the sources that supply them.
package fhir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

/*********************************
 ****** FHIR Nested Structs ******
 *********************************/

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Label returns the concept text, falling back to the first coding display.
func (c CodeableConcept) Label() string {
	if c.Text != "" {
		return c.Text
	}
	for _, coding := range c.Coding {
		if coding.Display != "" {
			return coding.Display
		}
	}
	return ""
}

// HasCode reports whether any coding carries one of the codes.
func (c CodeableConcept) HasCode(codes ...string) bool {
	for _, coding := range c.Coding {
		for _, code := range codes {
			if coding.Code == code {
				return true
			}
		}
	}
	return false
}

type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
}

// ResourceReference splits "ResourceType/id" references so Reference holds
// only the id.
type ResourceReference struct {
	ResourceType string `json:"-"`
	Reference    string `json:"reference"`
	Type         string `json:"type,omitempty"`
	Display      string `json:"display,omitempty"`
}

/**************************
 ******* Resources ********
 **************************/

type Patient struct {
	ResourceType string       `json:"resourceType"`
	Id           string       `json:"id"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"`
	BirthDate    string       `json:"birthDate,omitempty"`
}

// DisplayName is the first given name followed by the family name of the
// first recorded name.
func (p *Patient) DisplayName() string {
	if len(p.Name) == 0 {
		return ""
	}
	name := p.Name[0]
	var parts []string
	if len(name.Given) > 0 {
		parts = append(parts, name.Given[0])
	}
	if name.Family != "" {
		parts = append(parts, name.Family)
	}
	if len(parts) == 0 {
		return name.Text
	}
	return strings.Join(parts, " ")
}

// BirthYear reads the year of a FHIR date ("1970", "1970-04" or "1970-04-12").
func (p *Patient) BirthYear() (int, error) {
	year, _, _ := strings.Cut(p.BirthDate, "-")
	if len(year) != 4 {
		return 0, fmt.Errorf("invalid birth date %q", p.BirthDate)
	}
	return strconv.Atoi(year)
}

type Observation struct {
	ResourceType         string                 `json:"resourceType"`
	Id                   string                 `json:"id"`
	Status               string                 `json:"status,omitempty"`
	Code                 CodeableConcept        `json:"code"`
	Subject              ResourceReference      `json:"subject"`
	Effective            Date                   `json:"effectiveDateTime"`
	Issued               Date                   `json:"issued"`
	ValueQuantity        *Quantity              `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept       `json:"valueCodeableConcept,omitempty"`
	Component            []ObservationComponent `json:"component,omitempty"`
}

type ObservationComponent struct {
	Code                 CodeableConcept  `json:"code"`
	ValueQuantity        *Quantity        `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
}

// ComponentQuantity returns the quantity of the first component whose code
// text equals label.
func (o *Observation) ComponentQuantity(label string) (*Quantity, bool) {
	for _, component := range o.Component {
		if component.Code.Text == label && component.ValueQuantity != nil {
			return component.ValueQuantity, true
		}
	}
	return nil, false
}

type MedicationRequest struct {
	ResourceType              string             `json:"resourceType"`
	Id                        string             `json:"id"`
	Status                    string             `json:"status,omitempty"`
	Intent                    string             `json:"intent,omitempty"`
	MedicationCodeableConcept *CodeableConcept   `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *ResourceReference `json:"medicationReference,omitempty"`
	Subject                   ResourceReference  `json:"subject"`
	AuthoredOn                Date               `json:"authoredOn"`
}

// HasMedicationCode reports whether the request's coded medication is one
// of codes. Requests that only reference a Medication resource cannot be
// checked and report false.
func (mr *MedicationRequest) HasMedicationCode(codes []string) bool {
	if mr.MedicationCodeableConcept == nil {
		return false
	}
	return mr.MedicationCodeableConcept.HasCode(codes...)
}

type ValueSet struct {
	ResourceType string `json:"resourceType"`
	Id           string `json:"id"`
	Title        string `json:"title,omitempty"`
	Expansion    struct {
		Contains []Coding `json:"contains"`
	} `json:"expansion"`
}

// Codes lists the codes of the expansion, in order.
func (vs *ValueSet) Codes() []string {
	codes := make([]string, 0, len(vs.Expansion.Contains))
	for _, c := range vs.Expansion.Contains {
		if c.Code != "" {
			codes = append(codes, c.Code)
		}
	}
	return codes
}

type OperationOutcome struct {
	ResourceType string `json:"resourceType"`
	Issue        []struct {
		Severity    string `json:"severity"`
		Code        string `json:"code"`
		Diagnostics string `json:"diagnostics"`
	} `json:"issue"`
}

/*******************************
 ***** Unmarshal Functions *****
 *******************************/

func (r *ResourceReference) UnmarshalJSON(data []byte) error {

	// Create a temporary struct to hold raw data
	var temp struct {
		Reference string `json:"reference"`
		Type      string `json:"type"`
		Display   string `json:"display"`
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	// Parse resource and ID from "ResourceType/ID"
	if parts := strings.SplitN(temp.Reference, "/", 2); len(parts) == 2 {
		r.ResourceType = parts[0]
		r.Reference = parts[1]
	} else {
		r.Reference = temp.Reference
	}

	r.Type = temp.Type
	r.Display = temp.Display

	return nil
}

func (r ResourceReference) MarshalJSON() ([]byte, error) {
	ref := r.Reference
	if r.ResourceType != "" {
		ref = r.ResourceType + "/" + r.Reference
	}
	return json.Marshal(struct {
		Reference string `json:"reference,omitempty"`
		Type      string `json:"type,omitempty"`
		Display   string `json:"display,omitempty"`
	}{ref, r.Type, r.Display})
}
