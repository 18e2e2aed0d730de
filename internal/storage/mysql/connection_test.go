package mysql

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{MaxOpenConns: 4}.withDefaults()
	if cfg.MaxOpenConns != 4 || cfg.MaxIdleConns != 4 {
		t.Fatalf("idle connections must not exceed open connections: %+v", cfg)
	}
	if cfg.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected lifetime: %s", cfg.ConnMaxLifetime)
	}

	kept := Config{MaxOpenConns: 50, MaxIdleConns: 5, ConnMaxLifetime: time.Minute}.withDefaults()
	if kept.MaxOpenConns != 50 || kept.MaxIdleConns != 5 || kept.ConnMaxLifetime != time.Minute {
		t.Fatalf("explicit values overwritten: %+v", kept)
	}
}

func TestDriverConfig(t *testing.T) {
	if _, err := (Config{DSN: "  "}).driverConfig(); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if _, err := (Config{DSN: "no-slash-here"}).driverConfig(); err == nil {
		t.Fatal("expected error for malformed dsn")
	}

	dc, err := Config{DSN: "agent:secret@tcp(db:3306)/storyagent?multiStatements=true"}.driverConfig()
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if dc.Addr != "db:3306" || dc.DBName != "storyagent" || dc.MultiStatements {
		t.Fatalf("unexpected driver config: %+v", dc)
	}
}
