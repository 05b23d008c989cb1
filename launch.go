package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"go.elastic.co/apm"
	"go.uber.org/zap"

	"github.com/chop-dbhi/smart-framingham/facts"
	"github.com/chop-dbhi/smart-framingham/kv"
	"github.com/chop-dbhi/smart-framingham/present"
)

const oauthURIsExtension = "http://fhir-registry.smarthealthit.org/StructureDefinition/oauth-uris"

// LaunchSession is kept between the authorize redirect and the callback.
type LaunchSession struct {
	ClientId    string `json:"clientId"`
	ServiceUri  string `json:"serviceUri"`
	RedirectUri string `json:"redirectUri"`
	TokenUri    string `json:"tokenUri"`
	AuthUri     string `json:"authUri"`
}

// Conformance is the part of the server CapabilityStatement that names the
// SMART authorization endpoints.
type Conformance struct {
	Rest []struct {
		Security struct {
			Extension []struct {
				URL       string `json:"url"`
				Extension []struct {
					URL      string `json:"url"`
					ValueUri string `json:"valueUri"`
				} `json:"extension"`
			} `json:"extension"`
		} `json:"security"`
	} `json:"rest"`
}

// oauthURIs returns the authorize and token endpoints.
func (c *Conformance) oauthURIs() (authUri, tokenUri string, err error) {
	for _, rest := range c.Rest {
		for _, ext := range rest.Security.Extension {
			if ext.URL != oauthURIsExtension {
				continue
			}
			for _, arg := range ext.Extension {
				switch arg.URL {
				case "authorize":
					authUri = arg.ValueUri
				case "token":
					tokenUri = arg.ValueUri
				}
			}
		}
	}
	if authUri == "" || tokenUri == "" {
		return "", "", errors.New("server metadata does not declare SMART oauth-uris")
	}
	return authUri, tokenUri, nil
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Patient     string `json:"patient"`
	IdToken     string `json:"id_token"`
}

// RiskPage is the model of the result page.
type RiskPage struct {
	PatientId string           `json:"patientId"`
	Display   *present.Display `json:"display,omitempty"`
	Result    string           `json:"result,omitempty"`
	Gauges    []present.Gauge  `json:"gauges,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Template renders html/template files for echo.
type Template struct {
	templates *template.Template
}

func (t *Template) Render(w io.Writer, name string, data any, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

func smartLaunch(c echo.Context) error {
	ctx := c.Request().Context()

	serviceUri := strings.TrimRight(c.QueryParam("iss"), "/")
	launchContextId := c.QueryParam("launch")
	if serviceUri == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing iss parameter")
	}

	// Find the authorization endpoints of the launching server
	authUri, tokenUri, err := getOAuthURIs(ctx, serviceUri)
	if err != nil {
		logger(ctx, err)
		return echo.NewHTTPError(http.StatusBadGateway, "unable to read server metadata")
	}

	state, err := newState()
	if err != nil {
		logger(ctx, err)
		return c.NoContent(http.StatusInternalServerError)
	}

	// The app is served from the same host, one level above the launch path
	redirectUri := c.Scheme() + "://" + c.Request().Host + strings.TrimSuffix(c.Request().URL.Path, "smart-launch")

	session := LaunchSession{
		ClientId:    config.SmartClientID,
		ServiceUri:  serviceUri,
		RedirectUri: redirectUri,
		TokenUri:    tokenUri,
		AuthUri:     authUri,
	}
	if err := saveSession(ctx, state, session); err != nil {
		logger(ctx, err)
		return c.NoContent(http.StatusInternalServerError)
	}

	// Redirect the browser to the authorization server
	queryParams := url.Values{}
	queryParams.Add("response_type", "code")
	queryParams.Add("client_id", session.ClientId)
	queryParams.Add("scope", config.SmartScope)
	queryParams.Add("redirect_uri", redirectUri)
	queryParams.Add("aud", serviceUri)
	queryParams.Add("launch", launchContextId)
	queryParams.Add("state", state)

	return c.Redirect(http.StatusFound, authUri+"?"+queryParams.Encode())
}

func riskApp(c echo.Context) error {
	ctx := c.Request().Context()

	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing code or state parameter")
	}

	session, err := loadSession(ctx, state)
	if err != nil {
		logger(ctx, err)
		if errors.Is(err, kv.ErrMiss) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown or expired launch state")
		}
		return c.NoContent(http.StatusInternalServerError)
	}

	// A state can only be exchanged once
	if err := store.Delete(ctx, sessionKey(state)); err != nil {
		logger(ctx, err)
	}

	token, err := exchangeCode(ctx, session, code)
	if err != nil {
		logger(ctx, err)
		return echo.NewHTTPError(http.StatusBadGateway, "unable to obtain an access token")
	}
	logIdToken(token)

	page := computeRisk(ctx, session.ServiceUri, token)

	// Serve JSON to API clients
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return c.JSON(http.StatusOK, page)
	}
	return c.Render(http.StatusOK, "index.html", page)
}

// computeRisk reads the launch patient's record and scores it.
func computeRisk(ctx context.Context, serviceUri string, token TokenResponse) RiskPage {
	page := RiskPage{PatientId: token.Patient}

	source := newFHIRSource(serviceUri, token.AccessToken)
	f, err := facts.New(source, config.Codes, zapLogger).Extract(ctx, token.Patient)

	// Demographics are shown as soon as they are known
	if f != nil && f.Sex != "" {
		display := present.PartialDisplay(f, err)
		page.Display = &display
	}

	if err != nil {
		logger(ctx, fmt.Errorf("%v (patient: %s)", err, token.Patient))
		page.Error = present.Message(err, token.Patient)
		return page
	}

	result, err := f.Score()
	if err != nil {
		logger(ctx, fmt.Errorf("%v (patient: %s)", err, token.Patient))
		page.Error = present.Message(err, token.Patient)
		return page
	}

	page.Result = present.Summary(result)
	page.Gauges = present.Gauges(f)
	return page
}

func getOAuthURIs(ctx context.Context, serviceUri string) (string, string, error) {
	// Create span
	span, ctx := apm.StartSpan(ctx, "Get and Parse Data", "Metadata")
	defer span.End()

	resp, err := newHTTPClient(config.timeout()).R().
		SetContext(ctx).
		Get(serviceUri + "/metadata")
	if err != nil {
		return "", "", fmt.Errorf("metadata request failed: %w", err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("metadata request failed (%d): %s", resp.StatusCode(), resp.String())
	}

	var conformance Conformance
	if err := json.Unmarshal(resp.Body(), &conformance); err != nil {
		return "", "", fmt.Errorf("unable to parse metadata: %w", err)
	}
	return conformance.oauthURIs()
}

func exchangeCode(ctx context.Context, session LaunchSession, code string) (TokenResponse, error) {
	// Create span
	span, ctx := apm.StartSpan(ctx, "Authorize Request", "Token")
	defer span.End()

	form := map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": session.RedirectUri,
	}

	req := newHTTPClient(config.timeout()).SetRetryCount(0).R().SetContext(ctx)

	// Confidential clients authenticate, public clients identify themselves
	if config.SmartClientSecret != "" {
		req.SetBasicAuth(session.ClientId, config.SmartClientSecret)
	} else {
		form["client_id"] = session.ClientId
	}

	var token TokenResponse
	resp, err := req.SetFormData(form).SetResult(&token).Post(session.TokenUri)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("token request failed: %w", err)
	}
	if resp.IsError() {
		return TokenResponse{}, fmt.Errorf("token request failed (%d): %s", resp.StatusCode(), resp.String())
	}
	if token.AccessToken == "" || token.Patient == "" {
		return TokenResponse{}, errors.New("token response is missing access_token or patient")
	}
	return token, nil
}

// logIdToken records who launched the app, when an id_token was granted.
func logIdToken(token TokenResponse) {
	if token.IdToken == "" {
		return
	}
	idToken, err := parseToken(token.IdToken)
	if err != nil {
		zapLogger.Warn("unreadable id_token", zap.Error(err))
		return
	}
	zapLogger.Info("SMART app launched",
		zap.String("patient", token.Patient),
		zap.String("fhirUser", getClaim(idToken, "fhirUser")))
}

// newState returns a random numeric session key.
func newState() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000000))
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

func sessionKey(state string) string {
	return "launch:" + state
}

func saveSession(ctx context.Context, state string, session LaunchSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return store.Set(ctx, sessionKey(state), string(data), config.SessionTTL)
}

func loadSession(ctx context.Context, state string) (LaunchSession, error) {
	data, err := store.Get(ctx, sessionKey(state))
	if err != nil {
		return LaunchSession{}, fmt.Errorf("launch session %s: %w", state, err)
	}

	var session LaunchSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return LaunchSession{}, fmt.Errorf("launch session %s: %w", state, err)
	}
	return session, nil
}
