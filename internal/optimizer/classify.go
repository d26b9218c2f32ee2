package optimizer

import "strings"

// QueryType buckets a statement for admission control.
type QueryType int

// Query classifications.
const (
	// QueryRead is a SELECT with no embedded write keywords.
	QueryRead QueryType = iota

	// QueryWrite is an INSERT, UPDATE, DELETE, or REPLACE.
	QueryWrite

	// QueryDDL is a CREATE, ALTER, or DROP.
	QueryDDL

	// QueryTransaction is an explicit BEGIN, COMMIT, or ROLLBACK.
	QueryTransaction

	// QueryMixed is anything that cannot be proven read-only.
	QueryMixed
)

// String returns the classification name for logs and metrics.
func (q QueryType) String() string {
	switch q {
	case QueryRead:
		return "read"
	case QueryWrite:
		return "write"
	case QueryDDL:
		return "ddl"
	case QueryTransaction:
		return "transaction"
	case QueryMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// writeKeywords embedded in a SELECT force the write path. Covers CTEs
// that modify (WITH ... INSERT) and SELECT INTO style statements.
var writeKeywords = []string{"INSERT", "UPDATE", "DELETE", "REPLACE", "CREATE", "ALTER", "DROP"}

// Classify buckets a SQL statement by its leading keyword.
//
// Statements that start with SELECT but contain write keywords are
// classified Mixed and routed through the write path, trading
// concurrency for safety.
func Classify(query string) QueryType {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return QueryMixed
	}

	upper := strings.ToUpper(trimmed)
	first := firstWord(upper)

	switch first {
	case "CREATE", "ALTER", "DROP":
		return QueryDDL
	case "BEGIN", "COMMIT", "ROLLBACK", "END":
		return QueryTransaction
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		return QueryWrite
	case "SELECT", "WITH":
		for _, kw := range writeKeywords {
			if containsWord(upper, kw) && first != kw {
				return QueryMixed
			}
		}
		return QueryRead
	default:
		// PRAGMA and EXPLAIN land here: pragmas like wal_checkpoint or
		// journal_mode mutate state, so they take the write path.
		return QueryMixed
	}
}

// firstWord returns the first whitespace-delimited token.
func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// containsWord reports whether kw appears as a standalone word, not as
// a substring of an identifier.
func containsWord(s, kw string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)

		beforeOK := start == 0 || !isWordChar(s[start-1])
		afterOK := end == len(s) || !isWordChar(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
