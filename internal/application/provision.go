package application

import "strings"

const (
	// placeholderLastName marks a surname the bridge could not derive.
	placeholderLastName = "User"

	defaultEmailDomain = "example.com"
)

// derivedIdentity is the plausible profile derived from a bare identifier
// when provisioning a missing ERP record.
type derivedIdentity struct {
	FirstName string
	LastName  string
	Email     string
	Tenant    string
}

// deriveIdentity splits an identifier into name parts for provisioning.
//
// For email-style identifiers the local part's first two "."-separated
// segments become first and last name (extra segments are ignored); a
// single-segment local part gets the placeholder surname. A bare identifier
// keeps the placeholder surname (its first dot-segment only seeds the first
// name) and its email is synthesized by appending emailDomain.
func deriveIdentity(identifier, emailDomain string) derivedIdentity {
	d := derivedIdentity{Tenant: "default"}

	if at := strings.Index(identifier, "@"); at >= 0 {
		d.Email = identifier
		local := identifier[:at]
		parts := strings.Split(local, ".")
		if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
			d.FirstName = capitalize(parts[0])
			d.LastName = capitalize(parts[1])
		} else {
			d.FirstName = capitalize(local)
			d.LastName = placeholderLastName
		}
		return d
	}

	d.Email = identifier + "@" + emailDomain
	first, _, _ := strings.Cut(identifier, ".")
	d.FirstName = capitalize(first)
	d.LastName = placeholderLastName
	return d
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
