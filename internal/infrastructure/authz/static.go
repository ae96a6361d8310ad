// Package authz provides a configuration-backed implementation of the
// application's Authorizer port. It is the narrow stand-in for a real role
// store: a deployment-wide default permission set plus per-user grants.
package authz

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/approvalflow/approvalflow/internal/application/port"
)

// Wildcard grants every permission
const Wildcard = "*"

// Config holds the static permission table. User keys are uuid strings.
type Config struct {
	DefaultPermissions []string
	UserPermissions    map[string][]string
}

// StaticAuthorizer implements port.Authorizer from configuration
type StaticAuthorizer struct {
	defaults map[string]bool
	users    map[string]map[string]bool
	logger   *zap.Logger
}

// NewStaticAuthorizer builds the permission lookup tables once at construction
func NewStaticAuthorizer(cfg Config, logger *zap.Logger) port.Authorizer {
	a := &StaticAuthorizer{
		defaults: permissionSet(cfg.DefaultPermissions),
		users:    make(map[string]map[string]bool, len(cfg.UserPermissions)),
		logger:   logger,
	}
	for user, perms := range cfg.UserPermissions {
		a.users[user] = permissionSet(perms)
	}
	return a
}

// HasPermission reports whether the user holds the permission. The static
// table is deployment wide; tenant scoping happens in the services' queries.
func (a *StaticAuthorizer) HasPermission(ctx context.Context, tenantID, userID uuid.UUID, permission string) bool {
	if granted(a.defaults, permission) {
		return true
	}
	if granted(a.users[userID.String()], permission) {
		return true
	}
	a.logger.Debug("Permission denied",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
		zap.String("permission", permission))
	return false
}

func granted(set map[string]bool, permission string) bool {
	if len(set) == 0 {
		return false
	}
	return set[Wildcard] || set[permission]
}

func permissionSet(perms []string) map[string]bool {
	set := make(map[string]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set
}

// Verify interface compliance
var _ port.Authorizer = (*StaticAuthorizer)(nil)
