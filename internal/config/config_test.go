package config

import (
	"testing"
	"time"
)

func TestLoadAPIFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/agora")
	t.Setenv("PORT", "9090")
	t.Setenv("AGORA_SEED_ON_STARTUP", "false")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("PORT not normalized: %q", cfg.Addr)
	}
	if cfg.SeedOnStartup {
		t.Fatalf("seed flag not read")
	}
}

func TestLoadAPIPoolLimits(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/agora")
	t.Setenv("AGORA_DB_MAX_CONNS", "40")
	t.Setenv("AGORA_DB_MIN_CONNS", "4")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBMaxConns != 40 || cfg.DBMinConns != 4 {
		t.Fatalf("pool limits not read: max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}

	// Garbage and non-positive values fall back to the defaults.
	t.Setenv("AGORA_DB_MAX_CONNS", "lots")
	t.Setenv("AGORA_DB_MIN_CONNS", "-1")
	cfg, err = LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 2 {
		t.Fatalf("fallback limits got max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestLoadAPIRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("missing DATABASE_URL should fail")
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/agora")
	t.Setenv("AGORA_WORKER_INTERVAL", "15m")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Interval != 15*time.Minute {
		t.Fatalf("interval got %s", cfg.Interval)
	}

	// Garbage durations fall back to the default.
	t.Setenv("AGORA_WORKER_INTERVAL", "soon")
	cfg, err = LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Interval != time.Hour {
		t.Fatalf("fallback interval got %s", cfg.Interval)
	}
}
