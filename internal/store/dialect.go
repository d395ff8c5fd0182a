package store

import (
	"strconv"
	"strings"
)

// dialect captures the few differences between the SQL backends.
type dialect struct {
	name         string
	dollarParams bool
}

var (
	sqliteDialect   = dialect{name: "sqlite"}
	postgresDialect = dialect{name: "postgres", dollarParams: true}
)

// rebind rewrites ? placeholders as $1, $2, ... for backends that need it.
// Queries must not contain literal question marks.
func (d dialect) rebind(query string) string {
	if !d.dollarParams || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
