package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "", DefaultPoolConfig()); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestConfigure(t *testing.T) {
	raw, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer raw.Close()

	db := sqlx.NewDb(raw, "postgres")
	Configure(db, PoolConfig{MaxOpenConns: 3})

	if got := db.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("MaxOpenConnections = %d, want 3", got)
	}
}

func TestOpen_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Open(ctx, dsn, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()
}
