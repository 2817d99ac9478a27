// Package policy decides, per call, whether the bridge participates in a
// given realm. The administrative realm is never active unless the allow-list
// names it explicitly. That invariant is enforced here and nowhere else.
package policy

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultAdminRealm is the IdP's most privileged realm.
const DefaultAdminRealm = "master"

// Policy is the activation configuration. It is cheap to evaluate and the
// decision is never memoized: gateway entry points call Active on every
// request so configuration edits take effect immediately.
type Policy struct {
	// AdminRealm is the protected administrative realm name.
	AdminRealm string
	// EnabledRealms is the allow-list. Empty means every realm except the
	// administrative one.
	EnabledRealms []string
}

// Active reports whether the bridge answers queries for realm.
func (p Policy) Active(realm string) bool {
	admin := p.AdminRealm
	if admin == "" {
		admin = DefaultAdminRealm
	}

	if realm == admin {
		if p.contains(admin) {
			log.Warn().Str("realm", realm).Msg("bridge active for administrative realm, ensure this is intentional")
			return true
		}
		return false
	}

	if len(p.EnabledRealms) == 0 {
		return true
	}
	return p.contains(realm)
}

func (p Policy) contains(realm string) bool {
	for _, r := range p.EnabledRealms {
		if strings.TrimSpace(r) == realm {
			return true
		}
	}
	return false
}
