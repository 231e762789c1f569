package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

// TestActivitiesImmutabilityBlocksUpdate verifies that UPDATE operations
// on activities are blocked by the database trigger with a hard failure.
func TestActivitiesImmutabilityBlocksUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	db, err := Open(ctx, testDatabaseURL(t))
	if err != nil {
		t.Skipf("open database: %v", err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		INSERT INTO activities (id, actor_id, action, entity_type, entity_id, detail)
		VALUES ('act_test_update', 'usr_test', 'task.created', 'task', 'tsk_test', 'created')
	`)
	if err != nil {
		t.Fatalf("insert activity: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		UPDATE activities SET detail = 'tampered' WHERE id = 'act_test_update'
	`)
	if err == nil {
		t.Fatal("expected UPDATE to be blocked, but it succeeded")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000 (object_not_in_prerequisite_state), got: %s", pgErr.SQLState())
	}

	_, _ = db.ExecContext(ctx, `TRUNCATE activities`)
}

// TestActivitiesImmutabilityBlocksDelete verifies that DELETE operations
// on activities are blocked the same way.
func TestActivitiesImmutabilityBlocksDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	db, err := Open(ctx, testDatabaseURL(t))
	if err != nil {
		t.Skipf("open database: %v", err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		INSERT INTO activities (id, actor_id, action, entity_type, entity_id, detail)
		VALUES ('act_test_delete', 'usr_test', 'task.deleted', 'task', 'tsk_test', 'deleted')
	`)
	if err != nil {
		t.Fatalf("insert activity: %v", err)
	}

	_, err = db.ExecContext(ctx, `DELETE FROM activities WHERE id = 'act_test_delete'`)
	if err == nil {
		t.Fatal("expected DELETE to be blocked, but it succeeded")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000 (object_not_in_prerequisite_state), got: %s", pgErr.SQLState())
	}

	_, _ = db.ExecContext(ctx, `TRUNCATE activities`)
}

// testDatabaseURL returns the database URL for integration tests,
// falling back to standard Postgres environment variables for CI.
func testDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("TASKBOARD_TEST_DATABASE_URL"); url != "" {
		return url
	}

	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "taskboard")
	pass := envOr("POSTGRES_PASSWORD", "taskboard")
	dbname := envOr("POSTGRES_DB", "taskboard_test")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
