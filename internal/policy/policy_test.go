package policy_test

import (
	"testing"

	"vn.io.arda/idbridge/internal/policy"
)

func TestAdminRealmDeniedByDefault(t *testing.T) {
	allowLists := [][]string{
		nil,
		{},
		{"acme"},
		{"acme", "company"},
		{"Master"}, // exact match only
	}
	for _, list := range allowLists {
		p := policy.Policy{EnabledRealms: list}
		if p.Active("master") {
			t.Fatalf("master realm active with allow-list %v", list)
		}
	}
}

func TestAdminRealmRequiresExplicitEntry(t *testing.T) {
	p := policy.Policy{EnabledRealms: []string{"acme", "master"}}
	if !p.Active("master") {
		t.Fatal("master realm inactive despite explicit allow-list entry")
	}
}

func TestEmptyAllowListEnablesNonAdminRealms(t *testing.T) {
	p := policy.Policy{}
	if !p.Active("acme") {
		t.Fatal("non-admin realm inactive with empty allow-list")
	}
}

func TestNonEmptyAllowListIsExclusive(t *testing.T) {
	p := policy.Policy{EnabledRealms: []string{"acme", " company "}}
	if !p.Active("acme") {
		t.Fatal("listed realm inactive")
	}
	if !p.Active("company") {
		t.Fatal("listed realm with surrounding whitespace inactive")
	}
	if p.Active("other") {
		t.Fatal("unlisted realm active")
	}
}

func TestCustomAdminRealm(t *testing.T) {
	p := policy.Policy{AdminRealm: "root"}
	if p.Active("root") {
		t.Fatal("custom admin realm active by default")
	}
	if !p.Active("master") {
		t.Fatal("realm named master should be ordinary when admin realm is root")
	}
}
