// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/pernocta/internal/authz"
	"github.com/tomtom215/pernocta/internal/config"
	"github.com/tomtom215/pernocta/internal/logging"
)

// Claims are the bearer token claims.
type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator validates requests per the configured auth mode and attaches
// the resulting subject to the request context.
type Authenticator struct {
	cfg config.AuthConfig
}

// NewAuthenticator creates the authenticator for the configured mode.
func NewAuthenticator(cfg config.AuthConfig) (*Authenticator, error) {
	switch cfg.Mode {
	case config.AuthModeBearer:
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("auth: bearer mode requires a JWT secret of at least 32 characters")
		}
	case config.AuthModeBasic:
		if cfg.BasicUser == "" || cfg.BasicPasswordHash == "" {
			return nil, fmt.Errorf("auth: basic mode requires basic_user and basic_password_hash")
		}
	}
	return &Authenticator{cfg: cfg}, nil
}

// Middleware authenticates the request. In none mode requests pass through
// without a subject and the authorizer's default role applies.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch a.cfg.Mode {
		case config.AuthModeNone:
			next.ServeHTTP(w, r)

		case config.AuthModeBearer:
			subject, err := a.authenticateBearer(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, codeAuthentication, "invalid or missing bearer token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(authz.WithSubject(r.Context(), subject)))

		case config.AuthModeBasic:
			subject, err := a.authenticateBasic(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="pernocta"`)
				respondError(w, http.StatusUnauthorized, codeAuthentication, "invalid credentials", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(authz.WithSubject(r.Context(), subject)))

		default:
			respondError(w, http.StatusInternalServerError, codeInternal, "unknown auth mode", nil)
		}
	})
}

func (a *Authenticator) authenticateBearer(r *http.Request) (*authz.Subject, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, fmt.Errorf("missing bearer token")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	roles := claims.Roles
	if len(roles) == 0 && a.cfg.DefaultRole != "" {
		roles = []string{a.cfg.DefaultRole}
	}
	return &authz.Subject{ID: claims.Username, Roles: roles}, nil
}

func (a *Authenticator) authenticateBasic(r *http.Request) (*authz.Subject, error) {
	user, password, ok := r.BasicAuth()
	if !ok {
		return nil, fmt.Errorf("missing basic credentials")
	}
	if subtle.ConstantTimeCompare([]byte(user), []byte(a.cfg.BasicUser)) != 1 {
		// Still run the hash comparison so username mismatches cost the
		// same as password mismatches.
		_ = bcrypt.CompareHashAndPassword([]byte(a.cfg.BasicPasswordHash), []byte(password))
		return nil, fmt.Errorf("unknown user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.cfg.BasicPasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("password mismatch")
	}

	roles := []string{a.cfg.DefaultRole}
	return &authz.Subject{ID: user, Roles: roles}, nil
}

// IssueToken signs a bearer token for the given user and roles. Used by the
// login endpoint in bearer mode.
func (a *Authenticator) IssueToken(username string, roles []string) (string, time.Time, error) {
	ttl := a.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	expiresAt := time.Now().Add(ttl)

	claims := &Claims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// loginRequest is the bearer-mode login body. Credentials are checked
// against the configured basic user.
type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login exchanges credentials for a bearer token. Only available in bearer
// mode.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if a.cfg.Mode != config.AuthModeBearer {
		respondError(w, http.StatusNotFound, codeNotFound, "login is only available in bearer mode", nil)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, codeValidation, "invalid request body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Username), []byte(a.cfg.BasicUser)) != 1 ||
		bcrypt.CompareHashAndPassword([]byte(a.cfg.BasicPasswordHash), []byte(req.Password)) != nil {
		logging.Warn().Str("username", sanitizeLogValue(req.Username)).Msg("Login rejected")
		respondError(w, http.StatusUnauthorized, codeAuthentication, "invalid credentials", nil)
		return
	}

	token, expiresAt, err := a.IssueToken(req.Username, []string{a.cfg.DefaultRole})
	if err != nil {
		respondError(w, http.StatusInternalServerError, codeInternal, "failed to issue token", err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}, start)
}
