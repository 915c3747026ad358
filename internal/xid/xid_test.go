package xid

import (
	"strings"
	"testing"
)

func TestNewCarriesPrefix(t *testing.T) {
	id := New("dbt")
	if !strings.HasPrefix(id, "dbt-") {
		t.Fatalf("expected dbt- prefix, got %s", id)
	}
	if parts := strings.Split(id, "-"); len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		t.Fatalf("expected prefix-timestamp-random shape, got %s", id)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New("itm")
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}
