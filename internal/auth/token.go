package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ExtractTokenFromRequest extracts a bearer token from the Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// ParseHS256 validates a shared-secret token and returns the acting user id.
func ParseHS256(tokenString string, secret []byte) (int64, error) {
	if tokenString == "" {
		return 0, errors.New("empty token")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("failed to parse token: %w", err)
	}
	return userIDFromClaims(claims)
}

// userIDFromClaims reads a numeric "sub", falling back to a "user_id" claim.
func userIDFromClaims(claims map[string]interface{}) (int64, error) {
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		if id, err := strconv.ParseInt(sub, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	switch v := claims["user_id"].(type) {
	case float64:
		if v > 0 && v == float64(int64(v)) {
			return int64(v), nil
		}
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}
	return 0, errors.New("token carries no numeric user id")
}
