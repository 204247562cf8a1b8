package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// NewTestDB opens an in-memory SQLite database with the given models created.
// The pool is pinned to one connection so every query sees the same memory DB.
func NewTestDB(t testing.TB, models ...interface{}) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, m := range models {
		if _, err := bunDB.NewCreateTable().Model(m).IfNotExists().Exec(context.Background()); err != nil {
			t.Fatalf("Failed to create table for %T: %v", m, err)
		}
	}
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

var voteCountTriggers = []string{
	`CREATE TRIGGER votes_count_insert AFTER INSERT ON votes BEGIN
		UPDATE suggest SET vote_count = vote_count + 1 WHERE id = NEW.suggestion_id;
	END`,
	`CREATE TRIGGER votes_count_delete AFTER DELETE ON votes BEGIN
		UPDATE suggest SET vote_count = MAX(vote_count - 1, 0) WHERE id = OLD.suggestion_id;
	END`,
}

// CreateVoteCountTriggers installs the SQLite equivalent of the vote-count
// trigger from the Postgres migrations.
func CreateVoteCountTriggers(t testing.TB, db *bun.DB) {
	t.Helper()
	for _, stmt := range voteCountTriggers {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("Failed to create vote count trigger: %v", err)
		}
	}
}
