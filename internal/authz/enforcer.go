// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package authz enforces role-based access to pipeline operations using
// Casbin. Three roles cover the API surface: viewers read datasets, runs,
// and predictions; operators additionally load datasets and assemble
// features; admins additionally train models and export to the warehouse.
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Objects the policy knows about.
const (
	ObjectDataset     = "dataset"
	ObjectFeatures    = "features"
	ObjectTraining    = "training"
	ObjectRuns        = "runs"
	ObjectPredictions = "predictions"
	ObjectExport      = "export"
)

// Actions the policy knows about.
const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Built-in roles, most to least privileged.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Enforcer wraps a Casbin enforcer loaded from the embedded model and
// policy. Role-less subjects fall back to the default role.
type Enforcer struct {
	enforcer    *casbin.SyncedEnforcer
	defaultRole string
}

// NewEnforcer builds the enforcer from the embedded RBAC model and policy.
// An empty defaultRole means viewer.
func NewEnforcer(defaultRole string) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadEmbeddedPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}

	if defaultRole == "" {
		defaultRole = RoleViewer
	}
	return &Enforcer{enforcer: enforcer, defaultRole: defaultRole}, nil
}

// loadEmbeddedPolicy parses and loads the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) >= 4 {
				if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
					return fmt.Errorf("add policy %v: %w", parts[1:], err)
				}
			}
		case "g":
			if len(parts) >= 3 {
				if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
					return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
				}
			}
		}
	}
	return nil
}

// Enforce checks whether the subject can perform the action on the object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s %s: %w", subject, object, action, err)
	}
	return allowed, nil
}

// EnforceWithRoles checks the subject directly, then each of its roles. A
// subject carrying no roles gets the default role.
func (e *Enforcer) EnforceWithRoles(subject string, roles []string, object, action string) (bool, error) {
	if subject != "" {
		if allowed, err := e.Enforce(subject, object, action); err != nil {
			return false, err
		} else if allowed {
			return true, nil
		}
	}

	if len(roles) == 0 {
		return e.Enforce(e.defaultRole, object, action)
	}
	for _, role := range roles {
		if allowed, err := e.Enforce(role, object, action); err != nil {
			return false, err
		} else if allowed {
			return true, nil
		}
	}
	return false, nil
}

// AddRoleForUser assigns a role to a user at runtime.
func (e *Enforcer) AddRoleForUser(user, role string) (bool, error) {
	added, err := e.enforcer.AddGroupingPolicy(user, role)
	if err != nil {
		return false, fmt.Errorf("add role %s for %s: %w", role, user, err)
	}
	return added, nil
}

// RolesForUser returns the roles assigned to a user.
func (e *Enforcer) RolesForUser(user string) ([]string, error) {
	return e.enforcer.GetRolesForUser(user)
}
