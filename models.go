package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chop-dbhi/smart-framingham/fhir"
)

/**************************
 ****** CDS Services ******
 **************************/
type ServiceResponse struct {
	Services []Service `json:"services"`
}

type Service struct {
	Hook              string            `json:"hook"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Id                string            `json:"id"`
	Prefetch          map[string]string `json:"prefetch,omitempty"`
	UsageRequirements string            `json:"usageRequirements,omitempty"`
}

/**************************
 ****** Hook Message ******
 **************************/
type HookRequest struct {
	Hook              string                     `json:"hook"`
	HookInstance      string                     `json:"hookInstance"`
	FHIRServer        string                     `json:"fhirServer,omitempty"`
	FHIRAuthorization *FHIRAuthorization         `json:"fhirAuthorization,omitempty"`
	Context           HookContext                `json:"context"`
	Prefetch          map[string]json.RawMessage `json:"prefetch,omitempty"`
}

type FHIRAuthorization struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Subject     string `json:"subject,omitempty"`
}

type HookContext struct {
	PatientId   string          `json:"patientId"`
	EncounterId string          `json:"encounterId,omitempty"`
	UserId      string          `json:"userId,omitempty"`
	Selections  []string        `json:"selections,omitempty"`
	DraftOrders json.RawMessage `json:"draftOrders,omitempty"`
}

// validate checks the fields every hook call must carry.
func (h *HookRequest) validate(hook string) error {
	if h.Hook != hook {
		return fmt.Errorf("hook %q does not match service hook %q", h.Hook, hook)
	}
	if h.HookInstance == "" {
		return fmt.Errorf("hookInstance is required")
	}
	if h.Context.PatientId == "" {
		return fmt.Errorf("context.patientId is required")
	}
	return nil
}

// accessToken returns the FHIR bearer token, if the client sent one.
func (h *HookRequest) accessToken() string {
	if h.FHIRAuthorization == nil {
		return ""
	}
	return h.FHIRAuthorization.AccessToken
}

/****************************************
 ****** Hook Response - Foundation ******
 ****************************************/

type Link struct {
	Label      string `json:"label"`
	URL        string `json:"url"`
	Type       string `json:"type"`
	AppContext string `json:"appContext,omitempty"`
}

/********************************
 ********** App Config **********
 ********************************/

type Config struct {
	AppName    string `mapstructure:"APP_NAME"`
	AppEnv     string `mapstructure:"APP_ENV"`
	AppVersion string `mapstructure:"APP_VERSION"`
	HooksPort  int    `mapstructure:"HOOKS_PORT"`
	AppPort    int    `mapstructure:"APP_PORT"`
	Timeout    int    `mapstructure:"TIMEOUT"`

	AuthMode    string   `mapstructure:"AUTH_MODE"`
	AuthSecret  string   `mapstructure:"AUTH_SECRET"`
	AuthIssuers []string `mapstructure:"AUTH_ISSUERS"`
	AuthHost    string   `mapstructure:"AUTH_HOST"`

	SmartClientID     string `mapstructure:"SMART_CLIENT_ID"`
	SmartClientSecret string `mapstructure:"SMART_CLIENT_SECRET"`
	SmartScope        string `mapstructure:"SMART_SCOPE"`
	SmartLaunchURL    string `mapstructure:"SMART_LAUNCH_URL"`

	RedisURL    string        `mapstructure:"REDIS_URL"`
	SessionTTL  time.Duration `mapstructure:"SESSION_TTL"`
	ValueSetTTL time.Duration `mapstructure:"VALUESET_TTL"`

	ElkURL    string `mapstructure:"ELK_URL"`
	APMActive bool   `mapstructure:"ELASTIC_APM_ACTIVE"`

	DetailTemplate string `mapstructure:"DETAIL_TEMPLATE"`
	IndexTemplate  string `mapstructure:"INDEX_TEMPLATE"`

	fhir.Codes `mapstructure:",squash"`
}

// timeout is the outbound request timeout.
func (c *Config) timeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) isDev() bool {
	return c.AppEnv == "development"
}
