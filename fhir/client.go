package fhir

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client reads resources from a FHIR server on behalf of one bearer token.
type Client struct {
	http  *resty.Client
	codes Codes
}

type ClientConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	Codes       Codes
}

func NewClient(cfg ClientConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/fhir+json, application/json")

	if cfg.AccessToken != "" {
		client.SetAuthToken(cfg.AccessToken)
	}

	return &Client{http: client, codes: cfg.Codes}
}

// BaseURL is the server the client was created for.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

func (c *Client) Patient(ctx context.Context, id string) (*Patient, error) {
	queryParams := url.Values{}
	queryParams.Add("_id", id)

	data, err := c.search(ctx, "/Patient", queryParams)
	if err != nil {
		return nil, err
	}

	patients, err := decodeOf[Patient](data)
	if err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}
	return patients[0], nil
}

func (c *Client) LatestObservation(ctx context.Context, patientID, code string) (*Observation, error) {
	queryParams := url.Values{}
	queryParams.Add("subject", patientID)
	queryParams.Add("code", code)
	queryParams.Add("_sort", "-date")
	queryParams.Add("_count", "1")

	data, err := c.search(ctx, "/Observation", queryParams)
	if err != nil {
		return nil, err
	}

	observations, err := decodeOf[Observation](data)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, nil
	}
	return observations[0], nil
}

func (c *Client) MedicationCodes(ctx context.Context) ([]string, error) {
	queryParams := url.Values{}
	queryParams.Add("title", c.codes.MedicationTitle)

	data, err := c.search(ctx, "/ValueSet", queryParams)
	if err != nil {
		return nil, err
	}

	valueSets, err := decodeOf[ValueSet](data)
	if err != nil {
		return nil, err
	}
	if len(valueSets) == 0 {
		return nil, fmt.Errorf("value set %q: %w", c.codes.MedicationTitle, ErrNotFound)
	}
	return valueSets[0].Codes(), nil
}

func (c *Client) MedicationRequests(ctx context.Context, patientID string, codes []string) ([]*MedicationRequest, error) {
	// An empty code filter would match every medication the patient has
	if len(codes) == 0 {
		return nil, nil
	}

	queryParams := url.Values{}
	queryParams.Add("subject", patientID)
	queryParams.Add("code", strings.Join(codes, ","))
	queryParams.Add("status", "active")

	data, err := c.search(ctx, "/MedicationRequest", queryParams)
	if err != nil {
		return nil, err
	}

	return decodeOf[MedicationRequest](data)
}

func (c *Client) search(ctx context.Context, path string, queryParams url.Values) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(queryParams).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", path, err)
	}

	// Verify status code
	if resp.IsError() {
		return nil, &StatusError{URL: resp.Request.URL, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	return resp.Body(), nil
}
