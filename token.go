package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

func bearerToken(authHeader string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[len("Bearer "):]
	}
	return authHeader
}

// parseToken reads the claims of a token without verifying it. Only used
// once the token was accepted by another party.
func parseToken(authHeader string) (*jwt.Token, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(bearerToken(authHeader), jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// verifyToken checks the signature, expiry, audience and issuer of a CDS
// client token.
func verifyToken(authHeader, secret string, issuers []string, audience string) (*jwt.Token, error) {
	token, err := jwt.Parse(bearerToken(authHeader), func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	iss, err := getIssuer(token)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(issuers, iss) {
		return nil, fmt.Errorf("issuer %q is not trusted", iss)
	}

	return token, nil
}

func getIssuer(token *jwt.Token) (string, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("issuer (iss) claim not found")
	}

	// Extract the "iss" claim from the token payload
	iss, err := claims.GetIssuer()
	if err != nil {
		return "", fmt.Errorf("issuer (iss) not a valid string")
	}
	if iss == "" {
		return "", fmt.Errorf("invalid issuer (iss) value")
	}
	return iss, nil
}

// getClaim returns a string claim, or "" when absent.
func getClaim(token *jwt.Token, name string) string {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	value, _ := claims[name].(string)
	return value
}
