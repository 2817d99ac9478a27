// Package postgres implements domain.Backend with direct queries against the
// ERP's relational schema: user_login (credentials), person (names),
// contact_mech (email), party_attribute (custom attributes).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"vn.io.arda/idbridge/internal/domain"
	"vn.io.arda/idbridge/internal/password"
)

const baseSelect = `
	SELECT ul.user_login_id,
	       COALESCE(p.first_name, ''),
	       COALESCE(p.last_name, ''),
	       COALESCE(cm.info_string, ''),
	       COALESCE(ul.enabled, 'Y') = 'Y',
	       COALESCE(ta.attr_value, ''),
	       ul.party_id
	FROM user_login ul
	JOIN person p ON p.party_id = ul.party_id
	LEFT JOIN party_contact_mech pcm
	       ON pcm.party_id = ul.party_id AND pcm.thru_date IS NULL
	LEFT JOIN contact_mech cm
	       ON cm.contact_mech_id = pcm.contact_mech_id
	      AND cm.contact_mech_type_id = 'EMAIL_ADDRESS'
	LEFT JOIN party_attribute ta
	       ON ta.party_id = ul.party_id AND ta.attr_name = 'tenantId'`

// attributeMapping is one parsed "attributeName:table.column" entry.
type attributeMapping struct {
	name   string
	table  string
	column string
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Backend is the relational implementation of domain.Backend.
type Backend struct {
	pool     *pgxpool.Pool
	mappings []attributeMapping
}

// New creates a Backend over an established pool. attributeMappings entries
// use the form "attributeName:table.column"; malformed or unsafe entries are
// a configuration error.
func New(pool *pgxpool.Pool, attributeMappings []string) (*Backend, error) {
	b := &Backend{pool: pool}
	for _, raw := range attributeMappings {
		m, err := parseMapping(raw)
		if err != nil {
			return nil, err
		}
		b.mappings = append(b.mappings, m)
	}
	return b, nil
}

func parseMapping(raw string) (attributeMapping, error) {
	name, source, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || strings.TrimSpace(name) == "" {
		return attributeMapping{}, fmt.Errorf("attribute mapping %q must be 'attributeName:table.column'", raw)
	}
	table, column, ok := strings.Cut(source, ".")
	if !ok {
		return attributeMapping{}, fmt.Errorf("attribute mapping %q must reference table.column", raw)
	}
	if !identPattern.MatchString(table) || !identPattern.MatchString(column) {
		return attributeMapping{}, fmt.Errorf("attribute mapping %q contains an invalid identifier", raw)
	}
	return attributeMapping{name: strings.TrimSpace(name), table: table, column: column}, nil
}

// LookupUser fetches a profile by username. Disabled accounts are reported
// as not found, same as missing ones.
func (b *Backend) LookupUser(ctx context.Context, realm, username string) (*domain.User, error) {
	row := b.pool.QueryRow(ctx, baseSelect+" WHERE ul.user_login_id = $1", username)
	u, partyID, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lookup user %q: %w", username, err)
	}
	if !u.Enabled {
		log.Debug().Str("user", username).Msg("account disabled, treating as not found")
		return nil, domain.ErrNotFound
	}
	b.loadCustomAttributes(ctx, partyID, u)
	return u, nil
}

// LookupUserByEmail resolves the email to a username first, then delegates
// to LookupUser.
func (b *Backend) LookupUserByEmail(ctx context.Context, realm, email string) (*domain.User, error) {
	var username string
	err := b.pool.QueryRow(ctx, `
		SELECT ul.user_login_id
		FROM user_login ul
		JOIN party_contact_mech pcm ON pcm.party_id = ul.party_id AND pcm.thru_date IS NULL
		JOIN contact_mech cm ON cm.contact_mech_id = pcm.contact_mech_id
		WHERE cm.contact_mech_type_id = 'EMAIL_ADDRESS'
		  AND LOWER(cm.info_string) = LOWER($1)
		LIMIT 1`, email).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	return b.LookupUser(ctx, realm, username)
}

// Authenticate fetches the stored digest and verifies the secret against it.
// Unknown users, disabled accounts and digest mismatches all come back as
// (false, nil).
func (b *Backend) Authenticate(ctx context.Context, realm, username, secret string) (bool, error) {
	var stored string
	var enabled bool
	err := b.pool.QueryRow(ctx, `
		SELECT COALESCE(current_password, ''), COALESCE(enabled, 'Y') = 'Y'
		FROM user_login
		WHERE user_login_id = $1`, username).Scan(&stored, &enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("fetch credential for %q: %w", username, err)
	}
	if !enabled {
		log.Debug().Str("user", username).Msg("credential check for disabled account")
		return false, nil
	}
	if stored == "" {
		return false, nil
	}
	return password.Verify(secret, stored), nil
}

// CreateUser provisions party, person, user_login and email rows in a single
// transaction. The party id is derived from the username.
func (b *Backend) CreateUser(ctx context.Context, realm string, input domain.NewUserInput) error {
	// Seed with a random credential nobody knows; the account stays
	// unusable until the ERP assigns a real password.
	digest, err := password.GenerateUnguessable(password.DefaultAlgorithm)
	if err != nil {
		return fmt.Errorf("seed credential: %w", err)
	}

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback(ctx)

	partyID := input.Username
	if _, err := tx.Exec(ctx,
		`INSERT INTO party (party_id, party_type_id) VALUES ($1, 'PERSON')`,
		partyID); err != nil {
		return fmt.Errorf("insert party: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO person (party_id, first_name, last_name) VALUES ($1, $2, $3)`,
		partyID, input.FirstName, input.LastName); err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_login (user_login_id, party_id, current_password, enabled) VALUES ($1, $2, $3, 'Y')`,
		input.Username, partyID, digest); err != nil {
		return fmt.Errorf("insert user_login: %w", err)
	}
	if input.Email != "" {
		var mechID string
		if err := tx.QueryRow(ctx,
			`INSERT INTO contact_mech (contact_mech_id, contact_mech_type_id, info_string)
			 VALUES ($1 || '-email', 'EMAIL_ADDRESS', $2) RETURNING contact_mech_id`,
			partyID, input.Email).Scan(&mechID); err != nil {
			return fmt.Errorf("insert contact_mech: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO party_contact_mech (party_id, contact_mech_id, from_date) VALUES ($1, $2, NOW())`,
			partyID, mechID); err != nil {
			return fmt.Errorf("insert party_contact_mech: %w", err)
		}
	}
	if input.Tenant != "" && input.Tenant != domain.DefaultTenant {
		if _, err := tx.Exec(ctx,
			`INSERT INTO party_attribute (party_id, attr_name, attr_value) VALUES ($1, 'tenantId', $2)`,
			partyID, input.Tenant); err != nil {
			return fmt.Errorf("insert tenant attribute: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	log.Info().Str("user", input.Username).Str("tenant", input.Tenant).Msg("provisioned user in ERP database")
	return nil
}

// CreateTenant provisions a party-group row for the tenant.
func (b *Backend) CreateTenant(ctx context.Context, realm, tenantID, tenantName string) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create tenant: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO party (party_id, party_type_id) VALUES ($1, 'PARTY_GROUP') ON CONFLICT DO NOTHING`,
		tenantID); err != nil {
		return fmt.Errorf("insert tenant party: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO party_group (party_id, group_name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		tenantID, tenantName); err != nil {
		return fmt.Errorf("insert party_group: %w", err)
	}
	return tx.Commit(ctx)
}

// SearchUsers performs a substring search over username, first name, last
// name and email.
func (b *Backend) SearchUsers(ctx context.Context, realm string, filter domain.SearchFilter) ([]*domain.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := b.pool.Query(ctx, baseSelect+`
		WHERE COALESCE(ul.enabled, 'Y') = 'Y'
		  AND ($1 = '' OR ul.user_login_id ILIKE '%' || $1 || '%'
		       OR p.first_name ILIKE '%' || $1 || '%'
		       OR p.last_name ILIKE '%' || $1 || '%'
		       OR cm.info_string ILIKE '%' || $1 || '%')
		ORDER BY ul.user_login_id
		OFFSET $2 LIMIT $3`, filter.Query, filter.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, partyID, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		b.loadCustomAttributes(ctx, partyID, u)
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the number of enabled accounts.
func (b *Backend) CountUsers(ctx context.Context, realm string) (int, error) {
	var n int
	err := b.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_login WHERE COALESCE(enabled, 'Y') = 'Y'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUser(row pgx.Row) (*domain.User, string, error) {
	u := &domain.User{}
	var tenant, partyID string
	if err := row.Scan(&u.Username, &u.FirstName, &u.LastName, &u.Email, &u.Enabled, &tenant, &partyID); err != nil {
		return nil, "", err
	}
	if tenant == "" {
		tenant = domain.DefaultTenant
	}
	u.Tenant = tenant
	u.SetAttribute(domain.AttrTenant, tenant)
	return u, partyID, nil
}

// loadCustomAttributes resolves the configured attributeName:table.column
// mappings for one party. Failures are data-quality warnings, never fatal
// for the lookup.
func (b *Backend) loadCustomAttributes(ctx context.Context, partyID string, u *domain.User) {
	for _, m := range b.mappings {
		// Identifiers were validated at construction; only values are
		// parameterized.
		q := fmt.Sprintf(`SELECT %s::text FROM %s WHERE party_id = $1 LIMIT 1`, m.column, m.table)
		var value string
		if err := b.pool.QueryRow(ctx, q, partyID).Scan(&value); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				log.Warn().Err(err).Str("attribute", m.name).Msg("custom attribute query failed")
			}
			continue
		}
		u.SetAttribute(m.name, value)
	}
}
