package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"text/template"

	"github.com/google/uuid"

	"github.com/chop-dbhi/smart-framingham/fhir"
)

const (
	sourceLabel = "based on the Framingham Risk Calculator from MDCALC"
	sourceURL   = "https://www.mdcalc.com/framingham-risk-score-hard-coronary-heart-disease#evidence"
	launchLabel = "Click to launch the Framingham Risk calculator SMART app"

	medicationWarning = "Warning: this medication may raise the patient's risk of MI or death"
)

type Hook struct {
	Cards []Card `json:"cards"`
}

type Card struct {
	UUID      string `json:"uuid"`
	Summary   string `json:"summary"`
	Detail    string `json:"detail,omitempty"`
	Indicator string `json:"indicator"`
	Source    Source `json:"source"`
	Links     []Link `json:"links,omitempty"`
}

type Source struct {
	Label string       `json:"label"`
	URL   string       `json:"url,omitempty"`
	Topic *fhir.Coding `json:"topic,omitempty"`
}

func parseCDSHooksRequest(body io.Reader) (HookRequest, error) {

	reqBytes, err := io.ReadAll(body)
	if err != nil {
		return HookRequest{}, err
	}

	// Unmarshal response into struct
	var hookRequest HookRequest
	if err := json.Unmarshal(reqBytes, &hookRequest); err != nil {
		return HookRequest{}, fmt.Errorf("unable to unmarshal hooks message: %v", err)
	}

	return hookRequest, nil
}

func generateCardDetail(m map[string]string, fileName string) (string, error) {
	tmpl, err := template.ParseFiles(fileName)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, m); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func structToMap(s any) map[string]string {
	// Initialize map
	result := make(map[string]string)

	// Create value and type fields
	val := reflect.ValueOf(s)
	typ := reflect.TypeOf(s)

	// Iterate over struct fields
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		value := val.Field(i)

		// Convert values to string
		var strValue string
		switch value.Kind() {
		case reflect.Bool:
			strValue = strconv.FormatBool(value.Bool())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			strValue = strconv.FormatInt(value.Int(), 10)
		case reflect.Float32, reflect.Float64:
			strValue = strconv.FormatFloat(value.Float(), 'f', -1, 64)
		case reflect.String:
			strValue = value.String()
		default:
			strValue = fmt.Sprintf("%v", value.Interface()) // Fallback for other types
		}

		// The card detail is HTML rendered by the EHR
		result[field.Name] = template.HTMLEscapeString(strValue)
	}
	return result
}

func launchLink() Link {
	return Link{
		Label: launchLabel,
		URL:   config.SmartLaunchURL,
		Type:  "smart",
	}
}

func (h *Hook) addRiskCard(summary, detail string) {
	h.Cards = append(h.Cards, Card{
		UUID:      uuid.NewString(),
		Summary:   summary,
		Detail:    detail,
		Indicator: "info",
		Source: Source{
			Label: sourceLabel,
			URL:   sourceURL,
		},
		Links: []Link{launchLink()},
	})
}

func (h *Hook) addMedicationWarningCard() {
	h.Cards = append(h.Cards, Card{
		UUID:      uuid.NewString(),
		Summary:   medicationWarning,
		Indicator: "warning",
		Source: Source{
			Label: sourceLabel,
			URL:   sourceURL,
		},
		Links: []Link{launchLink()},
	})
}
