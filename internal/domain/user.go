package domain

import (
	"time"
)

// Attribute keys the bridge sets on profiles it synthesizes itself.
// Consumers can use them to tell real ERP data from stand-ins.
const (
	AttrPlaceholder     = "placeholder"
	AttrCreatedByBridge = "createdByBridge"
	AttrCreatedAt       = "createdAt"
	AttrTenant          = "tenant"
)

// DefaultTenant is the tenant label used when the ERP does not report one.
const DefaultTenant = "default"

// User is the transient profile view of an ERP identity. The authoritative
// record lives in the ERP; the bridge only holds re-fetchable copies.
// Username is the sole stable identifier: email lookups resolve to a
// username before anything else happens.
type User struct {
	Username   string            `json:"username"`
	FirstName  string            `json:"first_name"`
	LastName   string            `json:"last_name"`
	Email      string            `json:"email"`
	Enabled    bool              `json:"enabled"`
	Tenant     string            `json:"tenant"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at,omitempty"`
}

// IsPlaceholder reports whether this profile was synthesized by the bridge
// because no authenticated fetch was possible yet.
func (u *User) IsPlaceholder() bool {
	return u.Attributes[AttrPlaceholder] == "true"
}

// SetAttribute lazily allocates the attribute map.
func (u *User) SetAttribute(key, value string) {
	if u.Attributes == nil {
		u.Attributes = make(map[string]string)
	}
	u.Attributes[key] = value
}

// Clone returns a deep copy so cached snapshots are never mutated by callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Attributes != nil {
		c.Attributes = make(map[string]string, len(u.Attributes))
		for k, v := range u.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// NewUserInput carries the fields needed to provision a missing ERP record.
type NewUserInput struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Tenant    string
}

// SearchFilter holds query parameters for user search (database mode only).
type SearchFilter struct {
	// Query is matched as a substring against username, first name,
	// last name and email.
	Query  string
	Offset int
	Limit  int
}
