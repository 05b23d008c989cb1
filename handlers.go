package main

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chop-dbhi/smart-framingham/fhir"
)

const (
	patientViewService = "fram-patient-view"
	orderSelectService = "fram-order-select"
)

func cdsServices(c echo.Context) error {
	// Build basic Hook response
	serviceResponse := ServiceResponse{
		Services: []Service{
			{
				Hook:        "patient-view",
				Title:       "Framingham patient-view",
				Description: "Performs a Framingham risk calculation with patient-view hook",
				Id:          patientViewService,
				Prefetch:    fhir.PrefetchTemplates(config.Codes),
			},
			{
				Hook:        "order-select",
				Title:       "Framingham order-select",
				Description: "Warns when a selected medication may raise the patient's Framingham risk",
				Id:          orderSelectService,
				Prefetch: map[string]string{
					fhir.PrefetchPatient: "Patient/{{context.patientId}}",
				},
			},
		},
	}

	// Return response
	return c.JSON(http.StatusOK, serviceResponse)
}

func heartbeat(c echo.Context) error {
	// Heartbeat function to assess service status. Immediately return 200
	return c.NoContent(http.StatusOK)
}
