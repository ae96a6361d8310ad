package port

import (
	"context"

	"github.com/google/uuid"
)

// Actor identifies the tenant user performing a use case.
type Actor struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// Authorizer answers coarse permission checks for tenant users. Finer checks
// (step assignee, workflow initiator) stay inside the use cases themselves.
type Authorizer interface {
	HasPermission(ctx context.Context, tenantID, userID uuid.UUID, permission string) bool
}
