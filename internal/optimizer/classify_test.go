package optimizer

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{name: "plain select", query: "SELECT * FROM users", want: QueryRead},
		{name: "lowercase select", query: "select id from users", want: QueryRead},
		{name: "leading whitespace", query: "  \n\tSELECT 1", want: QueryRead},
		{name: "read-only cte", query: "WITH recent AS (SELECT id FROM logs) SELECT * FROM recent", want: QueryRead},

		{name: "insert", query: "INSERT INTO users (name) VALUES (?)", want: QueryWrite},
		{name: "update", query: "UPDATE users SET name = ?", want: QueryWrite},
		{name: "delete", query: "DELETE FROM users WHERE id = ?", want: QueryWrite},
		{name: "replace", query: "REPLACE INTO users VALUES (?, ?)", want: QueryWrite},

		{name: "create table", query: "CREATE TABLE t (id INTEGER)", want: QueryDDL},
		{name: "alter table", query: "ALTER TABLE t ADD COLUMN x TEXT", want: QueryDDL},
		{name: "drop index", query: "DROP INDEX idx_t", want: QueryDDL},

		{name: "begin", query: "BEGIN IMMEDIATE", want: QueryTransaction},
		{name: "commit", query: "COMMIT", want: QueryTransaction},
		{name: "rollback", query: "ROLLBACK", want: QueryTransaction},

		{name: "writing cte", query: "WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x", want: QueryMixed},
		{name: "empty", query: "", want: QueryMixed},
		{name: "unknown keyword", query: "VACUUM", want: QueryMixed},

		// Pragmas can mutate state, so they never take the read path.
		{name: "mutating pragma", query: "PRAGMA wal_checkpoint(TRUNCATE)", want: QueryMixed},
		{name: "reading pragma", query: "PRAGMA journal_mode", want: QueryMixed},
		{name: "explain", query: "EXPLAIN QUERY PLAN SELECT 1", want: QueryMixed},

		// Identifiers containing write keywords must not trip the scan.
		{name: "column named created_at", query: "SELECT created_at FROM events", want: QueryRead},
		{name: "column named update_count", query: "SELECT update_count FROM stats", want: QueryRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.query); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.query, got, tt.want)
			}
		})
	}
}

func TestQueryTypeString(t *testing.T) {
	tests := []struct {
		qt   QueryType
		want string
	}{
		{QueryRead, "read"},
		{QueryWrite, "write"},
		{QueryDDL, "ddl"},
		{QueryTransaction, "transaction"},
		{QueryMixed, "mixed"},
		{QueryType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.qt.String(); got != tt.want {
			t.Errorf("QueryType(%d).String() = %q, want %q", tt.qt, got, tt.want)
		}
	}
}
