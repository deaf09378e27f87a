package postgres

import (
	"testing"
	"time"

	"github.com/ogurasousui/offboarding-engine/internal/platform/config"
)

func TestBuildPoolConfig(t *testing.T) {
	t.Parallel()

	dbCfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            15432,
		User:            "offboarding",
		Password:        "p@ss",
		Name:            "offboarding",
		SSLMode:         "disable",
		ApplicationName: "offboarding-engine",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}

	poolCfg, err := BuildPoolConfig(dbCfg)
	if err != nil {
		t.Fatalf("BuildPoolConfig returned error: %v", err)
	}

	if poolCfg.MaxConns != 20 || poolCfg.MinConns != 5 {
		t.Errorf("unexpected pool size: max=%d min=%d", poolCfg.MaxConns, poolCfg.MinConns)
	}
	if poolCfg.MaxConnLifetime != 30*time.Minute || poolCfg.MaxConnIdleTime != 10*time.Minute {
		t.Errorf("unexpected lifetimes: %v %v", poolCfg.MaxConnLifetime, poolCfg.MaxConnIdleTime)
	}
	if poolCfg.ConnConfig.Database != "offboarding" {
		t.Errorf("expected database offboarding, got %s", poolCfg.ConnConfig.Database)
	}
	if poolCfg.ConnConfig.Password != "p@ss" {
		t.Errorf("expected escaped password to round-trip, got %s", poolCfg.ConnConfig.Password)
	}
	if got := poolCfg.ConnConfig.RuntimeParams["application_name"]; got != "offboarding-engine" {
		t.Errorf("unexpected application_name %q", got)
	}
}
