package sqlstore

import (
	"strconv"
	"strings"
)

type dialect struct {
	name       string
	driverName string
	dollar     bool
}

var (
	sqliteDialect   = dialect{name: "sqlite3", driverName: "sqlite3"}
	postgresDialect = dialect{name: "postgres", driverName: "postgres", dollar: true}
)

// rebind rewrites '?' placeholders to $n for postgres.
func (d dialect) rebind(query string) string {
	if !d.dollar {
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
