package main

import (
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chop-dbhi/smart-framingham/fhir"
	"github.com/chop-dbhi/smart-framingham/kv"
)

// store holds SMART launch sessions and cached value-set expansions
var store kv.Store = kv.NewMemoryStore()

// newHTTPClient builds the client used for non-FHIR outbound calls (auth
// introspection, web logs, SMART conformance and token requests).
func newHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
}

// newFHIRSource returns a live source for the server and token, with the
// blood pressure value set cached in the shared store.
func newFHIRSource(baseURL, accessToken string) fhir.Source {
	client := fhir.NewClient(fhir.ClientConfig{
		BaseURL:     baseURL,
		AccessToken: accessToken,
		Timeout:     config.timeout(),
		Codes:       config.Codes,
	})
	return fhir.NewCachedCodes(client, store, client.BaseURL(), config.ValueSetTTL)
}
