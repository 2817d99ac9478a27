package domain

import "context"

// Backend is the port to the authoritative identity store. Two
// implementations exist, a direct relational one (infrastructure/postgres)
// and an HTTP one against the ERP's own service (infrastructure/remote),
// selected at construction time by configuration. The gateway depends only
// on this interface.
type Backend interface {
	// LookupUser fetches the profile for username within realm.
	// Returns ErrNotFound when the ERP has no such (enabled) record, and
	// ErrAuthRequired when the backend cannot look anything up without a
	// previously established credential (remote mode before first login).
	LookupUser(ctx context.Context, realm, username string) (*User, error)

	// LookupUserByEmail resolves email to a username, then behaves like
	// LookupUser.
	LookupUserByEmail(ctx context.Context, realm, email string) (*User, error)

	// Authenticate checks the secret for username. A false return covers
	// bad credentials, disabled accounts and transport failures alike;
	// err is reserved for configuration-level faults.
	Authenticate(ctx context.Context, realm, username, secret string) (bool, error)

	// CreateUser provisions a new record in the ERP.
	CreateUser(ctx context.Context, realm string, input NewUserInput) error

	// CreateTenant provisions a tenant/organization record.
	CreateTenant(ctx context.Context, realm, tenantID, tenantName string) error

	// SearchUsers performs a substring search. Remote mode returns an
	// empty slice by policy.
	SearchUsers(ctx context.Context, realm string, filter SearchFilter) ([]*User, error)

	// CountUsers returns the total enabled users. Remote mode returns 0
	// by policy.
	CountUsers(ctx context.Context, realm string) (int, error)
}
