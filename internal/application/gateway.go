// Package application orchestrates the federation flow: realm gating,
// profile/token caching, credential validation and lazy provisioning over a
// pluggable backend. Every backend failure is absorbed here: callers only
// ever see a profile, not-found, or a boolean credential result.
package application

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"vn.io.arda/idbridge/internal/cache"
	"vn.io.arda/idbridge/internal/config"
	"vn.io.arda/idbridge/internal/domain"
	"vn.io.arda/idbridge/internal/events"
	"vn.io.arda/idbridge/internal/policy"
)

// Gateway implements the inbound lookup/validate/search contract.
type Gateway struct {
	backend  domain.Backend
	profiles *cache.ProfileCache
	policy   policy.Policy
	prov     config.ProvisioningConfig
	ttl      time.Duration
	audit    events.Publisher
}

// New creates a Gateway. profileTTL governs snapshot lifetime; audit may be
// events.Nop{}.
func New(backend domain.Backend, profiles *cache.ProfileCache, pol policy.Policy,
	prov config.ProvisioningConfig, profileTTL time.Duration, audit events.Publisher) *Gateway {
	if profileTTL <= 0 {
		profileTTL = cache.DefaultProfileTTL
	}
	if audit == nil {
		audit = events.Nop{}
	}
	return &Gateway{
		backend:  backend,
		profiles: profiles,
		policy:   pol,
		prov:     prov,
		ttl:      profileTTL,
		audit:    audit,
	}
}

// LookupByUsername answers an unauthenticated identity query. An inactive
// realm is indistinguishable from a missing user. When the backend cannot
// answer without a token, a deterministic placeholder profile is returned so
// the IdP can proceed to a login prompt.
func (g *Gateway) LookupByUsername(ctx context.Context, realm, username string) (*domain.User, error) {
	if !g.policy.Active(realm) {
		return nil, domain.ErrNotFound
	}

	if u, ok := g.profiles.Get(realm, username); ok {
		log.Debug().Str("realm", realm).Str("user", username).Msg("profile cache hit")
		return u.Clone(), nil
	}

	u, err := g.backend.LookupUser(ctx, realm, username)
	switch {
	case err == nil:
		g.profiles.Put(realm, username, u, g.ttl)
		return u.Clone(), nil

	case errors.Is(err, domain.ErrAuthRequired):
		// No token yet: hand back a stand-in so the login flow can
		// start; real data arrives after credential validation.
		log.Debug().Str("realm", realm).Str("user", username).Msg("no token for lookup, returning placeholder profile")
		p := g.placeholder(username)
		g.profiles.Put(realm, username, p, g.ttl)
		return p.Clone(), nil

	case errors.Is(err, domain.ErrNotFound):
		if g.prov.EnableUsers {
			return g.provision(ctx, realm, username)
		}
		return nil, domain.ErrNotFound

	default:
		log.Error().Err(err).Str("realm", realm).Str("user", username).Msg("backend lookup failed")
		return nil, domain.ErrNotFound
	}
}

// LookupByEmail resolves an email to a full profile. Unlike the username
// path there is no placeholder fallback: an unanswerable query is not-found.
func (g *Gateway) LookupByEmail(ctx context.Context, realm, email string) (*domain.User, error) {
	if !g.policy.Active(realm) {
		return nil, domain.ErrNotFound
	}

	u, err := g.backend.LookupUserByEmail(ctx, realm, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrAuthRequired) {
			log.Error().Err(err).Str("realm", realm).Str("email", email).Msg("backend email lookup failed")
		}
		return nil, domain.ErrNotFound
	}
	g.profiles.Put(realm, u.Username, u, g.ttl)
	return u.Clone(), nil
}

// ValidateCredential checks the secret against the backend. On success the
// stale snapshot is dropped and the enriched profile is fetched and cached
// before returning, so the very next lookup sees full data.
func (g *Gateway) ValidateCredential(ctx context.Context, realm, username, secret string) bool {
	if !g.policy.Active(realm) {
		return false
	}

	ok, err := g.backend.Authenticate(ctx, realm, username, secret)
	if err != nil {
		log.Error().Err(err).Str("realm", realm).Str("user", username).Msg("credential validation error")
		g.audit.Login(realm, username, false)
		return false
	}
	if !ok {
		log.Info().Str("realm", realm).Str("user", username).Msg("credential validation failed")
		g.audit.Login(realm, username, false)
		return false
	}

	// Force the next read to reflect just-verified state.
	g.profiles.Invalidate(realm, username)
	g.enrich(ctx, realm, username)

	log.Info().Str("realm", realm).Str("user", username).Msg("credential validation succeeded")
	g.audit.Login(realm, username, true)
	return true
}

// enrich performs the post-authentication profile fetch. Failures leave the
// cache empty rather than poisoning it; the validation result stands.
func (g *Gateway) enrich(ctx context.Context, realm, username string) {
	u, err := g.backend.LookupUser(ctx, realm, username)
	if err != nil {
		log.Warn().Err(err).Str("realm", realm).Str("user", username).Msg("post-authentication profile fetch failed")
		return
	}
	g.profiles.Put(realm, username, u, g.ttl)
}

// SearchUsers delegates substring search to the backend (empty in rest mode).
func (g *Gateway) SearchUsers(ctx context.Context, realm string, filter domain.SearchFilter) ([]*domain.User, error) {
	if !g.policy.Active(realm) {
		return []*domain.User{}, nil
	}
	users, err := g.backend.SearchUsers(ctx, realm, filter)
	if err != nil {
		log.Error().Err(err).Str("realm", realm).Msg("user search failed")
		return []*domain.User{}, nil
	}
	return users, nil
}

// CountUsers delegates to the backend (0 in rest mode).
func (g *Gateway) CountUsers(ctx context.Context, realm string) int {
	if !g.policy.Active(realm) {
		return 0
	}
	n, err := g.backend.CountUsers(ctx, realm)
	if err != nil {
		log.Error().Err(err).Str("realm", realm).Msg("user count failed")
		return 0
	}
	return n
}

// placeholder builds the deterministic stand-in profile for an identity that
// has not authenticated yet. Note the shape: the first name is the
// capitalized raw identifier, deliberately not the name-split derivation
// provisioning uses.
func (g *Gateway) placeholder(username string) *domain.User {
	email := username
	if !strings.Contains(username, "@") {
		email = username + "@" + g.emailDomain()
	}
	u := &domain.User{
		Username:  username,
		FirstName: capitalize(username),
		LastName:  placeholderLastName,
		Email:     email,
		Enabled:   true,
		Tenant:    domain.DefaultTenant,
	}
	u.SetAttribute(domain.AttrPlaceholder, "true")
	u.SetAttribute(domain.AttrTenant, domain.DefaultTenant)
	return u
}

// provision creates the missing record in the ERP and returns the resulting
// profile. A creation failure is reported as not-found so it never blocks a
// later login attempt.
func (g *Gateway) provision(ctx context.Context, realm, username string) (*domain.User, error) {
	id := deriveIdentity(username, g.emailDomain())

	if g.prov.EnableTenants && id.Tenant != domain.DefaultTenant {
		if err := g.backend.CreateTenant(ctx, realm, id.Tenant, id.Tenant+" Organization"); err != nil {
			log.Warn().Err(err).Str("tenant", id.Tenant).Msg("tenant provisioning failed, continuing with user creation")
		}
	}

	input := domain.NewUserInput{
		Username:  username,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Email:     id.Email,
		Tenant:    id.Tenant,
	}
	if err := g.backend.CreateUser(ctx, realm, input); err != nil {
		log.Error().Err(err).Str("realm", realm).Str("user", username).Msg("user provisioning failed")
		return nil, domain.ErrNotFound
	}

	now := time.Now()
	u := &domain.User{
		Username:  username,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Email:     id.Email,
		Enabled:   true,
		Tenant:    id.Tenant,
		CreatedAt: now,
	}
	u.SetAttribute(domain.AttrCreatedByBridge, "true")
	u.SetAttribute(domain.AttrCreatedAt, strconv.FormatInt(now.UnixMilli(), 10))
	u.SetAttribute(domain.AttrTenant, id.Tenant)

	g.profiles.Put(realm, username, u, g.ttl)
	g.audit.Provisioned(realm, username)
	log.Info().Str("realm", realm).Str("user", username).Str("tenant", id.Tenant).Msg("provisioned missing user")
	return u.Clone(), nil
}

func (g *Gateway) emailDomain() string {
	if g.prov.EmailDomain == "" {
		return defaultEmailDomain
	}
	return g.prov.EmailDomain
}
