package sqlutil

import "strings"

// QuoteMySQLIdent quotes an identifier with backticks.
func QuoteMySQLIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// QuoteANSIIdent quotes an identifier with double quotes, as PostgreSQL and SQLite expect.
func QuoteANSIIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
