package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "cds-client-secret"
	testIssuer   = "https://ehr.example.org"
	testAudience = "http://example.com" + patientViewPath
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": testIssuer,
		"sub": "cds-client",
		"aud": testAudience,
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"iat": time.Now().Unix(),
		"jti": "a2c4e6",
	}
}

func setupJWT(t *testing.T) {
	t.Helper()
	setupConfig(t)
	config.AuthMode = "jwt"
	config.AuthSecret = testSecret
	config.AuthIssuers = []string{testIssuer}
}

func TestJWTAuthAccepted(t *testing.T) {
	setupJWT(t)

	p := patientCase{gender: "male", age: 55, smoking: "Never smoker", systolic: 120, total: 213, hdl: 50}
	rec := serve(newHooksServer(), http.MethodPost, patientViewPath, hookBody(t, patientViewRequest(p)), map[string]string{
		"Authorization": "Bearer " + signToken(t, testSecret, validClaims()),
	})

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestJWTAuthRejected(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "https://intruder.example.org"

	wrongAudience := validClaims()
	wrongAudience["aud"] = "http://example.com" + orderSelectPath

	noExpiry := validClaims()
	delete(noExpiry, "exp")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"expired", "Bearer " + signToken(t, testSecret, expired)},
		{"untrusted issuer", "Bearer " + signToken(t, testSecret, wrongIssuer)},
		{"other service audience", "Bearer " + signToken(t, testSecret, wrongAudience)},
		{"no expiry", "Bearer " + signToken(t, testSecret, noExpiry)},
		{"wrong secret", "Bearer " + signToken(t, "not-the-secret", validClaims())},
		{"not a token", "Bearer abc.def.ghi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupJWT(t)

			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			p := patientCase{gender: "male", age: 55, systolic: 120, total: 213, hdl: 50}
			rec := serve(newHooksServer(), http.MethodPost, patientViewPath, hookBody(t, patientViewRequest(p)), headers)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `Bearer realm="example.com", error="invalid_token"`)
		})
	}
}

func TestDiscoveryNeedsNoToken(t *testing.T) {
	setupJWT(t)

	rec := serve(newHooksServer(), http.MethodGet, "/cds-services", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpenIdAuth(t *testing.T) {
	token := signToken(t, "issuer-key", validClaims())

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/openid" && r.Header.Get("Authorization") == "Bearer "+token {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer authServer.Close()

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"accepted", "Bearer " + token, http.StatusOK},
		{"rejected", "Bearer " + signToken(t, "issuer-key", jwt.MapClaims{"iss": "other"}), http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupConfig(t)
			config.AuthMode = "openid"
			config.AuthHost = authServer.URL + "/"

			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			p := patientCase{gender: "male", age: 55, systolic: 120, total: 213, hdl: 50}
			rec := serve(newHooksServer(), http.MethodPost, patientViewPath, hookBody(t, patientViewRequest(p)), headers)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
