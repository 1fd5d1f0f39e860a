package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	c := Config{}
	c.Ops.Port = 8420
	c.Database.Addrs = []string{"localhost:6379"}
	c.ApplyDefaults()
	return c
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()

	if c.Database.KeyPrefix != "dk:" {
		t.Errorf("key prefix = %q", c.Database.KeyPrefix)
	}
	if c.AI.MaxConcurrent != 2 {
		t.Errorf("ai.max_concurrent = %d, want 2", c.AI.MaxConcurrent)
	}
	if c.AI.MinCallIntervalMS != 100 {
		t.Errorf("ai.min_call_interval_ms = %d, want 100", c.AI.MinCallIntervalMS)
	}
	if c.Search.VectorLimit != 100 {
		t.Errorf("search.vector_limit = %d, want 100", c.Search.VectorLimit)
	}
	if c.Search.BudgetSec != 45 {
		t.Errorf("search.budget_sec = %d, want 45", c.Search.BudgetSec)
	}
	if c.Search.BreakerCooldownSec != 300 {
		t.Errorf("search.breaker_cooldown_sec = %d, want 300", c.Search.BreakerCooldownSec)
	}
	if c.Ingest.WatchDebounceSec != 5 {
		t.Errorf("ingest.watch_debounce_sec = %d, want 5", c.Ingest.WatchDebounceSec)
	}
	if len(c.Ingest.AllowedExtensions) == 0 {
		t.Error("allowed extensions not defaulted")
	}
}

func TestValidate(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := validConfig()
	bad.Ops.Port = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for missing port")
	}

	bad = validConfig()
	bad.Database.Addrs = nil
	if err := bad.Validate(); err == nil {
		t.Error("expected error for missing addrs")
	}

	bad = validConfig()
	bad.Ingest.AllowedExtensions = []string{".pdf"}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for dotted extension")
	}

	bad = validConfig()
	bad.Search.DefaultPageSize = 500
	if err := bad.Validate(); err == nil {
		t.Error("expected error for default page size above max")
	}
}

func TestAIConfigEnabled(t *testing.T) {
	c := AIConfig{}
	if c.Enabled() {
		t.Error("empty api key should disable AI")
	}
	c.APIKey = "sk-test"
	if !c.Enabled() {
		t.Error("expected enabled")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("DOCKEEP_TEST_VAR", "redis:6379")

	in := []byte("addr: ${DOCKEEP_TEST_VAR}\nfallback: ${DOCKEEP_UNSET_VAR:-default-value}\nempty: ${DOCKEEP_UNSET_VAR}")
	out := string(expandEnvVars(in))

	if !strings.Contains(out, "addr: redis:6379") {
		t.Errorf("env var not expanded: %s", out)
	}
	if !strings.Contains(out, "fallback: default-value") {
		t.Errorf("default not applied: %s", out)
	}
	if !strings.Contains(out, "empty: \n") && !strings.HasSuffix(out, "empty: ") {
		t.Errorf("unset var should expand to empty: %s", out)
	}
}
