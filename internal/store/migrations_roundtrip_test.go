package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ORGCHART_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("ORGCHART_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply up migrations (idempotent pass): %v", err)
	}
	if err := RollbackMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}

	people := NewPostgresStore(db)
	err = people.UpsertPeople(ctx, []PersonRecord{
		{Person: personFixture("boss", "Boss")},
		{Person: personFixture("b", "Bea"), ManagerID: "boss"},
		{Person: personFixture("a", "Al"), ManagerID: "boss"},
		{Person: personFixture("c", "Cy"), ManagerID: "boss"},
	})
	if err != nil {
		t.Fatalf("seed people: %v", err)
	}

	first, cursor, err := people.ListDirectReports(ctx, "boss", "", 2)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(first) != 2 || first[0].ID != "a" || first[1].ID != "b" || cursor == "" {
		t.Fatalf("unexpected page 1: %+v cursor=%q", first, cursor)
	}
	second, cursor, err := people.ListDirectReports(ctx, "boss", cursor, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second) != 1 || second[0].ID != "c" || cursor != "" {
		t.Fatalf("unexpected page 2: %+v cursor=%q", second, cursor)
	}
}
