package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"vn.io.arda/idbridge/internal/config"
)

func TestParseMapping(t *testing.T) {
	m, err := parseMapping("department:party_attribute.dept_id")
	if err != nil {
		t.Fatalf("parseMapping: %v", err)
	}
	if m.name != "department" || m.table != "party_attribute" || m.column != "dept_id" {
		t.Fatalf("unexpected mapping %+v", m)
	}
}

func TestParseMappingRejectsMalformed(t *testing.T) {
	cases := []string{
		"department",
		"department:party_attribute",
		"department:party_attribute.dept_id; DROP TABLE user_login",
		"department:party attribute.dept",
		":table.col",
	}
	for _, raw := range cases {
		if _, err := parseMapping(raw); err == nil {
			t.Fatalf("parseMapping(%q) accepted a malformed entry", raw)
		}
	}
}

func TestPoolKeyIgnoresRealmAndSecrets(t *testing.T) {
	a := config.DatabaseConfig{Host: "db", Port: 5432, Name: "erp", User: "svc", Password: "one"}
	b := config.DatabaseConfig{Host: "db", Port: 5432, Name: "erp", User: "svc", Password: "two"}
	if poolKey(a) != poolKey(b) {
		t.Fatal("pool key must not vary with password alone")
	}

	c := config.DatabaseConfig{Host: "db2", Port: 5432, Name: "erp", User: "svc"}
	if poolKey(a) == poolKey(c) {
		t.Fatal("distinct hosts must produce distinct pool keys")
	}
}

// Pool construction is lazy in pgx, so the registry can be exercised without
// a reachable server: no connection is attempted until first use.
func TestPoolsGetCreatesOnePoolPerKey(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "127.0.0.1", Port: 5432, Name: "erp", User: "svc", Password: "pw", PoolSize: 2,
	}
	p := NewPools()
	defer p.CloseAll()

	first, err := p.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := p.Get(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Get (repeat): %v", err)
	}
	if first != second {
		t.Fatal("same connection parameters produced two distinct pools")
	}

	other := cfg
	other.Name = "erp_reporting"
	third, err := p.Get(context.Background(), other)
	if err != nil {
		t.Fatalf("Get (other db): %v", err)
	}
	if third == first {
		t.Fatal("distinct connection parameters shared one pool")
	}
}

func TestPoolsGetConcurrentFirstUse(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host: "127.0.0.1", Port: 5432, Name: "erp", User: "svc", Password: "pw", PoolSize: 2,
	}
	p := NewPools()
	defer p.CloseAll()

	var wg sync.WaitGroup
	pools := make([]*pgxpool.Pool, 8)
	for i := range pools {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			pool, err := p.Get(context.Background(), cfg)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			pools[n] = pool
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(pools); i++ {
		if pools[i] != pools[0] {
			t.Fatal("concurrent first use created more than one pool for the same key")
		}
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("short"); got != "***" {
		t.Fatalf("maskKey(short) = %q", got)
	}
	key := "db:5432/erp@svc"
	masked := maskKey(key)
	if masked == key || len(masked) != 13 {
		t.Fatalf("maskKey(%q) = %q", key, masked)
	}
}
