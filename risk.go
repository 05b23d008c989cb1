package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/chop-dbhi/smart-framingham/facts"
	"github.com/chop-dbhi/smart-framingham/fhir"
	"github.com/chop-dbhi/smart-framingham/present"
)

// RiskRequest carries one hook call through extraction and scoring.
type RiskRequest struct {
	Context      context.Context
	PatientId    string
	Hook         string
	HookInstance string
	Body         string
	Source       fhir.Source
}

func newRiskRequest(ctx context.Context, hookRequest HookRequest) *RiskRequest {
	// Data the client did not prefetch is read from its FHIR server, when given
	var fallback fhir.Source
	if hookRequest.FHIRServer != "" {
		fallback = newFHIRSource(hookRequest.FHIRServer, hookRequest.accessToken())
	}

	// Remove access token to avoid storing this in the logs
	hookRequest.FHIRAuthorization = nil

	// Convert hook request back to string and add as context for logs
	hookRequestBytes, err := json.Marshal(hookRequest)
	if err != nil {
		// Log an error if this fails, but continue to process request
		logger(ctx, fmt.Errorf("failed to marshal hooks message: %v", err))
	}

	return &RiskRequest{
		Context:      ctx,
		PatientId:    hookRequest.Context.PatientId,
		Hook:         hookRequest.Hook,
		HookInstance: hookRequest.HookInstance,
		Body:         string(hookRequestBytes),
		Source:       fhir.NewPrefetchSource(hookRequest.Prefetch, config.Codes, fallback),
	}
}

// readHookRequest parses and validates the body of a hook call.
func readHookRequest(c echo.Context, hook string) (HookRequest, error) {
	r := c.Request()

	hookRequest, err := parseCDSHooksRequest(r.Body)
	if err != nil {
		return HookRequest{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := hookRequest.validate(hook); err != nil {
		return HookRequest{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return hookRequest, nil
}

func patientView(c echo.Context) error {

	// Obtains http request context
	ctx := c.Request().Context()

	hookRequest, err := readHookRequest(c, "patient-view")
	if err != nil {
		logger(ctx, err)
		return err
	}

	rr := newRiskRequest(ctx, hookRequest)

	// Build basic Hook response
	hook := Hook{
		Cards: []Card{},
	}

	// Get patient data. A patient that cannot be scored gets no card
	f, err := facts.New(rr.Source, config.Codes, zapLogger).Extract(ctx, rr.PatientId)
	if err != nil {
		logger(ctx, fmt.Errorf("%v (patient: %s)", err, rr.PatientId))
		rr.sendWebLog(present.Message(err, rr.PatientId))
		return c.JSON(http.StatusOK, hook)
	}

	result, err := f.Score()
	if err != nil {
		logger(ctx, fmt.Errorf("%v (patient: %s)", err, rr.PatientId))
		return c.JSON(http.StatusOK, hook)
	}

	// Log evaluation results
	summary := present.Summary(result)
	rr.sendWebLog(summary)
	zapLogger.Info("Framingham risk evaluated",
		zap.String("patient", rr.PatientId),
		zap.String("outcome", result.Outcome.String()),
		zap.Float64("probability", result.Probability))

	// At or below the population average, nothing to show
	if !present.ShowCard(result) {
		return c.JSON(http.StatusOK, hook)
	}

	// Convert display struct to map to pass to generateCardDetail function
	detailMap := structToMap(present.NewDisplay(f))

	// Build detail string
	detail, err := generateCardDetail(detailMap, config.DetailTemplate)
	if err != nil {
		logger(ctx, fmt.Errorf("%v (patient: %s)", err, rr.PatientId))
		return c.NoContent(http.StatusInternalServerError)
	}

	hook.addRiskCard(summary, detail)

	// Return response
	return c.JSON(http.StatusOK, hook)
}

func orderSelect(c echo.Context) error {

	// Obtains http request context
	ctx := c.Request().Context()

	hookRequest, err := readHookRequest(c, "order-select")
	if err != nil {
		logger(ctx, err)
		return err
	}

	orders, err := selectedMedicationRequests(hookRequest.Context)
	if err != nil {
		logger(ctx, err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rr := newRiskRequest(ctx, hookRequest)

	// Build basic Hook response
	hook := Hook{
		Cards: []Card{},
	}
	if len(orders) == 0 {
		return c.JSON(http.StatusOK, hook)
	}

	// Configured codes are used when the value set cannot be read
	codes, err := rr.Source.MedicationCodes(ctx)
	if err != nil || len(codes) == 0 {
		if err != nil {
			logger(ctx, fmt.Errorf("%v (patient: %s)", err, rr.PatientId))
		}
		codes = config.Codes.Medications
	}

	for _, order := range orders {
		if order.HasMedicationCode(codes) {
			hook.addMedicationWarningCard()
			rr.sendWebLog(fmt.Sprintf("blood pressure medication selected (MedicationRequest/%s)", order.Id))
			break
		}
	}

	// Return response
	return c.JSON(http.StatusOK, hook)
}

// selectedMedicationRequests returns the draft medication orders the user
// selected.
func selectedMedicationRequests(hookContext HookContext) ([]*fhir.MedicationRequest, error) {
	if len(hookContext.DraftOrders) == 0 {
		return nil, nil
	}

	resources, err := fhir.Decode(hookContext.DraftOrders)
	if err != nil {
		return nil, fmt.Errorf("invalid draftOrders: %w", err)
	}

	var selected []*fhir.MedicationRequest
	for _, resource := range resources {
		order, ok := resource.(*fhir.MedicationRequest)
		if !ok {
			continue
		}
		if slices.Contains(hookContext.Selections, "MedicationRequest/"+order.Id) {
			selected = append(selected, order)
		}
	}
	return selected, nil
}
