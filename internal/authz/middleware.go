// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package authz

import (
	"context"
	"net/http"

	"github.com/tomtom215/pernocta/internal/logging"
)

// Subject is the authenticated principal attached to a request by the
// authentication middleware.
type Subject struct {
	ID    string
	Roles []string
}

type contextKey struct{}

// WithSubject returns a context carrying the authenticated subject.
func WithSubject(ctx context.Context, s *Subject) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// SubjectFrom extracts the authenticated subject, or nil when the request
// was not authenticated.
func SubjectFrom(ctx context.Context) *Subject {
	s, _ := ctx.Value(contextKey{}).(*Subject)
	return s
}

// Require returns chi-compatible middleware that rejects requests whose
// subject cannot perform the action on the object. Requests without a
// subject are evaluated under the enforcer's default role, so read-only
// endpoints stay reachable when authentication is disabled.
func (e *Enforcer) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			var roles []string
			if s := SubjectFrom(r.Context()); s != nil {
				id = s.ID
				roles = s.Roles
			}

			allowed, err := e.EnforceWithRoles(id, roles, object, action)
			if err != nil {
				logging.Warn().Err(err).Str("object", object).Str("action", action).Msg("Authorization check failed")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				logging.Warn().
					Str("subject", id).
					Str("object", object).
					Str("action", action).
					Msg("Request denied")
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
