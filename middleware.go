package main

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.elastic.co/apm"
)

const (
	// Utilizes a non-standard nginx code
	statusClosedConnection int = 499
)

func filterError(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := c.Response()
		// Process the request
		err := next(c)
		// The below is executed after the request and subsequent middleware
		if err != nil {
			// Check for a broken pipe, modify response status, and create an error
			if errors.Is(err, syscall.EPIPE) {
				logger(c.Request().Context(), err)
				resp.Status = statusClosedConnection
				return nil
			}
		}
		return err
	}
}

// authorize verifies that hook calls come from a trusted CDS client, using
// the mechanism selected by AUTH_MODE.
func authorize(next echo.HandlerFunc) echo.HandlerFunc {
	verifier := jwtAuth(next)
	introspect := openId(next)
	return func(c echo.Context) error {
		switch config.AuthMode {
		case "none":
			return next(c)
		case "openid":
			return introspect(c)
		default:
			return verifier(c)
		}
	}
}

func jwtAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logger(r.Context(), errors.New("authorization header not found"))
			return unauthorized(c, "No Bearer token provided.")
		}

		// The audience is the URL the client called
		audience := c.Scheme() + "://" + r.Host + r.URL.Path

		token, err := verifyToken(authHeader, config.AuthSecret, config.AuthIssuers, audience)
		if err != nil {
			logger(r.Context(), fmt.Errorf("invalid CDS client token: %w", err))
			return unauthorized(c, "Token could not be verified.")
		}

		// Set token on context struct
		c.Set("user", token)

		return next(c)
	}
}

func openId(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Obtains raw http request
		r := c.Request()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			logger(r.Context(), errors.New("authorization header not found"))
			return unauthorized(c, "No Bearer token provided.")
		}

		err := sendAuth("openid", authHeader, r)
		if err != nil {
			logger(r.Context(), err)
			return unauthorized(c, "Token was rejected.")
		}

		// Convert auth header to token and store on request object
		token, err := parseToken(authHeader)
		if err != nil {
			logger(r.Context(), err)
			return unauthorized(c, "Token could not be parsed.")
		}

		// Set token on context struct
		c.Set("user", token)

		// Otherwise return
		return next(c)
	}
}

func unauthorized(c echo.Context, description string) error {
	c.Response().Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer realm=%q, error="invalid_token", error_description=%q`, c.Request().Host, description))
	return c.NoContent(http.StatusUnauthorized)
}

func sendAuth(api string, authHeader string, r *http.Request) error {
	// Create span
	span, ctx := apm.StartSpan(r.Context(), "Authorize Request", "OpenId")
	defer span.End()

	// Send http request to auth service
	// If it fails, fail the request
	resp, err := newHTTPClient(5*time.Second).R().
		SetContext(ctx).
		SetHeader("Authorization", authHeader).
		Post(config.AuthHost + api)
	if err != nil {
		return fmt.Errorf("auth request failed: %v", err)
	}

	// Verify status code
	// If this succeeds, the token is likely valid
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("request failed with status code: %d", resp.StatusCode())
	}

	// Otherwise return
	return nil
}
