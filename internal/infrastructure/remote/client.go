// Package remote implements domain.Backend against the ERP's own REST
// service. Lookups require a bearer token previously obtained through a
// credential exchange; search and count are unsupported over this transport
// for data-minimization reasons.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"vn.io.arda/idbridge/internal/cache"
	"vn.io.arda/idbridge/internal/config"
	"vn.io.arda/idbridge/internal/domain"
)

// serviceAccountKey is the token-cache identifier for the service account;
// the NUL prefix keeps it out of the username namespace.
const serviceAccountKey = "\x00service-account"

// defaultTokenTTL applies when the auth response carries neither expires_in
// nor a parseable exp claim.
const defaultTokenTTL = 5 * time.Minute

// Client is the HTTP implementation of domain.Backend.
type Client struct {
	baseURL              string
	authEndpoint         string
	userEndpoint         string
	createUserEndpoint   string
	createTenantEndpoint string

	serviceUsername string
	servicePassword string

	httpClient *http.Client
	tokens     *cache.TokenCache
}

// New creates a Client from configuration. InsecureSkipVerify is honored only
// outside production; a production config asking for it keeps verification on.
func New(cfg config.RemoteConfig, env string, tokens *cache.TokenCache) *Client {
	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		if env == "production" {
			log.Error().Msg("remote.insecure_skip_verify ignored: certificate validation stays on in production")
		} else {
			log.Warn().Msg("TLS certificate validation disabled (development configuration)")
			transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}

	return &Client{
		baseURL:              strings.TrimRight(cfg.BaseURL, "/"),
		authEndpoint:         cfg.AuthEndpoint,
		userEndpoint:         cfg.UserEndpoint,
		createUserEndpoint:   cfg.CreateUserEndpoint,
		createTenantEndpoint: cfg.CreateTenantEndpoint,
		serviceUsername:      cfg.ServiceAccountUsername,
		servicePassword:      cfg.ServiceAccountPassword,
		httpClient: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
			Transport: transport,
		},
		tokens: tokens,
	}
}

// TestConnection probes the service root. Any 2xx–3xx status counts as
// reachable; this is a best-effort startup check, not a health gate.
func (c *Client) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", c.baseURL).Msg("ERP connectivity probe failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type tokenEnvelope struct {
	Data *tokenResponse `json:"data"`
	tokenResponse
}

// Authenticate exchanges the user's credentials at the token endpoint.
// On success the bearer token is cached under (realm, username) with the
// server-declared TTL. Failures of any kind (401, network error, malformed
// response) come back as (false, nil); errors never propagate past here.
func (c *Client) Authenticate(ctx context.Context, realm, username, secret string) (bool, error) {
	// Any previously held token is stale the moment a fresh credential
	// check starts.
	c.tokens.Invalidate(realm, username)

	tok, ttl, ok := c.exchange(ctx, username, secret)
	if !ok {
		return false, nil
	}

	c.tokens.Put(realm, username, cache.Token{Value: tok}, ttl)
	log.Info().
		Str("realm", realm).
		Str("user", username).
		Dur("ttl", ttl).
		Msg("ERP token obtained and cached")
	return true, nil
}

// exchange performs the transport-level basic-auth POST to the token
// endpoint and returns the bearer token with its lifetime.
func (c *Client) exchange(ctx context.Context, username, secret string) (string, time.Duration, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.authEndpoint, nil)
	if err != nil {
		return "", 0, false
	}
	req.SetBasicAuth(username, secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("user", username).Msg("ERP credential exchange failed")
		return "", 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Str("user", username).Msg("ERP rejected credentials")
		return "", 0, false
	}

	var env tokenEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		log.Warn().Err(err).Msg("malformed token response from ERP")
		return "", 0, false
	}
	body := env.tokenResponse
	if env.Data != nil {
		body = *env.Data
	}
	if body.AccessToken == "" {
		log.Warn().Str("user", username).Msg("ERP token response missing access_token")
		return "", 0, false
	}

	return body.AccessToken, tokenTTL(body), true
}

// tokenTTL prefers the declared expires_in; when absent, falls back to the
// token's own exp claim (ERP tokens are JWTs), then to defaultTokenTTL.
func tokenTTL(body tokenResponse) time.Duration {
	if body.ExpiresIn > 0 {
		return time.Duration(body.ExpiresIn) * time.Second
	}
	if claims := parseExp(body.AccessToken); !claims.IsZero() {
		if ttl := time.Until(claims); ttl > 0 {
			return ttl
		}
	}
	return defaultTokenTTL
}

func parseExp(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

type userInfo struct {
	UserLoginID string            `json:"userLoginId"`
	PartyID     string            `json:"partyId"`
	FirstName   string            `json:"firstName"`
	LastName    string            `json:"lastName"`
	Email       string            `json:"email"`
	TenantID    string            `json:"tenantId"`
	Enabled     *bool             `json:"enabled"`
	Attributes  map[string]string `json:"attributes"`
}

type userInfoEnvelope struct {
	Success *bool     `json:"success"`
	Data    *userInfo `json:"data"`
	User    *userInfo `json:"user"`
}

// LookupUser fetches the profile for username. It needs a valid bearer token
// for this identity (or a configured service account); without one it
// returns domain.ErrAuthRequired so the gateway can fall back to a
// placeholder record.
func (c *Client) LookupUser(ctx context.Context, realm, username string) (*domain.User, error) {
	token, ok := c.bearerFor(ctx, realm, username)
	if !ok {
		return nil, domain.ErrAuthRequired
	}

	info, err := c.getUserInfo(ctx, realm, username, token, map[string]string{"userLoginId": username})
	if err != nil {
		return nil, err
	}
	return c.toUser(username, info), nil
}

// LookupUserByEmail reverse-resolves the email to a username, then delegates
// to LookupUser.
func (c *Client) LookupUserByEmail(ctx context.Context, realm, email string) (*domain.User, error) {
	token, ok := c.bearerFor(ctx, realm, "")
	if !ok {
		return nil, domain.ErrAuthRequired
	}

	info, err := c.getUserInfo(ctx, realm, email, token, map[string]string{"email": email})
	if err != nil {
		return nil, err
	}
	if info.UserLoginID == "" {
		return nil, domain.ErrNotFound
	}
	log.Debug().Str("email", email).Str("user", info.UserLoginID).Msg("resolved email to username")
	return c.LookupUser(ctx, realm, info.UserLoginID)
}

// getUserInfo performs an authenticated profile fetch. A 401 evicts the
// caller's token and surfaces ErrAuthRequired; there is no transparent retry.
func (c *Client) getUserInfo(ctx context.Context, realm, identity, token string, body map[string]string) (*userInfo, error) {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.userEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build getUserInfo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ERP getUserInfo: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.evictToken(realm, identity, token)
		return nil, domain.ErrAuthRequired
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ERP getUserInfo: status %d", resp.StatusCode)
	}

	var env userInfoEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("ERP getUserInfo: malformed response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return nil, domain.ErrNotFound
	}
	info := env.Data
	if info == nil {
		info = env.User
	}
	if info == nil {
		return nil, fmt.Errorf("ERP getUserInfo: response carries no user data")
	}
	return info, nil
}

// toUser validates mandatory fields and fills documented placeholders for the
// optional ones. A missing email is an error-level data-quality event but
// does not fail the fetch, and it is never fabricated.
func (c *Client) toUser(username string, info *userInfo) *domain.User {
	u := &domain.User{
		Username:   username,
		FirstName:  info.FirstName,
		LastName:   info.LastName,
		Email:      info.Email,
		Tenant:     info.TenantID,
		Enabled:    info.Enabled == nil || *info.Enabled,
		Attributes: info.Attributes,
	}
	if info.UserLoginID != "" {
		u.Username = info.UserLoginID
	}

	if u.FirstName == "" {
		u.FirstName = capitalize(u.Username)
		log.Warn().Str("user", u.Username).Msg("ERP profile missing firstName, using capitalized username")
	}
	if u.LastName == "" {
		u.LastName = "User"
		log.Warn().Str("user", u.Username).Msg("ERP profile missing lastName, using placeholder")
	}
	if u.Tenant == "" {
		u.Tenant = domain.DefaultTenant
		log.Warn().Str("user", u.Username).Msg("ERP profile missing tenantId, using default")
	}
	if u.Email == "" {
		log.Error().Str("user", u.Username).Msg("ERP profile missing email, downstream consumers treat it as mandatory")
	}
	u.SetAttribute(domain.AttrTenant, u.Tenant)
	return u
}

// CreateUser provisions a new ERP record through the configured endpoint,
// using the same authenticated-transport convention as the fetch calls.
func (c *Client) CreateUser(ctx context.Context, realm string, input domain.NewUserInput) error {
	return c.postCreate(ctx, realm, c.createUserEndpoint, map[string]string{
		"userLoginId": input.Username,
		"firstName":   input.FirstName,
		"lastName":    input.LastName,
		"email":       input.Email,
		"tenantId":    input.Tenant,
	})
}

// CreateTenant provisions a tenant/organization record.
func (c *Client) CreateTenant(ctx context.Context, realm, tenantID, tenantName string) error {
	return c.postCreate(ctx, realm, c.createTenantEndpoint, map[string]string{
		"partyId":   tenantID,
		"groupName": tenantName,
	})
}

func (c *Client) postCreate(ctx context.Context, realm, endpoint string, body map[string]string) error {
	token, ok := c.bearerFor(ctx, realm, "")
	if !ok {
		return domain.ErrAuthRequired
	}

	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ERP create call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate(realm, serviceAccountKey)
		return domain.ErrAuthRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ERP create call: status %d", resp.StatusCode)
	}
	return nil
}

// SearchUsers is intentionally unsupported over the network transport.
func (c *Client) SearchUsers(ctx context.Context, realm string, filter domain.SearchFilter) ([]*domain.User, error) {
	log.Debug().Str("realm", realm).Msg("user search not supported in rest mode, returning empty result")
	return []*domain.User{}, nil
}

// CountUsers is intentionally unsupported over the network transport.
func (c *Client) CountUsers(ctx context.Context, realm string) (int, error) {
	return 0, nil
}

// bearerFor returns a usable bearer token for the identity: the user's own
// cached token when username is known, otherwise (or as fallback) a
// service-account token if credentials are configured.
func (c *Client) bearerFor(ctx context.Context, realm, username string) (string, bool) {
	if username != "" {
		if tok, ok := c.tokens.Get(realm, username); ok {
			return tok.Value, true
		}
	}
	if c.serviceUsername == "" {
		return "", false
	}
	if tok, ok := c.tokens.Get(realm, serviceAccountKey); ok {
		return tok.Value, true
	}
	tok, ttl, ok := c.exchange(ctx, c.serviceUsername, c.servicePassword)
	if !ok {
		log.Warn().Str("realm", realm).Msg("service account credential exchange failed")
		return "", false
	}
	c.tokens.Put(realm, serviceAccountKey, cache.Token{Value: tok}, ttl)
	return tok, true
}

// evictToken clears whichever cached token matches the rejected value so the
// next call re-authenticates instead of reusing it.
func (c *Client) evictToken(realm, identity, rejected string) {
	if tok, ok := c.tokens.Get(realm, identity); ok && tok.Value == rejected {
		c.tokens.Invalidate(realm, identity)
		log.Debug().Str("realm", realm).Str("user", identity).Msg("cleared rejected bearer token")
		return
	}
	if tok, ok := c.tokens.Get(realm, serviceAccountKey); ok && tok.Value == rejected {
		c.tokens.Invalidate(realm, serviceAccountKey)
		log.Debug().Str("realm", realm).Msg("cleared rejected service account token")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
