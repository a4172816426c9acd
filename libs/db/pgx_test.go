package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation})
	exclusion := &pgconn.PgError{Code: CodeExclusionViolation}
	other := &pgconn.PgError{Code: "42P01"}

	if !IsUniqueViolation(unique) || !IsConflict(unique) {
		t.Fatalf("expected wrapped 23505 to be a unique conflict")
	}
	if IsUniqueViolation(exclusion) || !IsConflict(exclusion) {
		t.Fatalf("expected 23P01 to be a conflict but not unique")
	}
	if IsConflict(other) || IsConflict(errors.New("boom")) {
		t.Fatalf("unexpected conflict classification")
	}
	if !IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to be not found")
	}
}

func TestHasParam(t *testing.T) {
	cases := []struct {
		raw  string
		key  string
		want bool
	}{
		{"postgres://app:pw@db:5432/agenda?pool_max_conns=20", "pool_max_conns", true},
		{"postgres://app:pw@db:5432/agenda?sslmode=disable", "pool_max_conns", false},
		{"host=db user=app pool_min_conns=2", "pool_min_conns", true},
		{"host=db user=app", "pool_min_conns", false},
	}
	for _, c := range cases {
		if got := hasParam(c.raw, c.key); got != c.want {
			t.Fatalf("hasParam(%q, %q) = %v", c.raw, c.key, got)
		}
	}
}

func TestReadyCheckWithoutPool(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); !errors.Is(err, errNoPool) {
		t.Fatalf("expected errNoPool, got %v", err)
	}
}
