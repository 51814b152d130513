// Package sqlxrepos implements the core repositories with hand-written
// parameterized SQL over sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/akela-hq/akela/core"
)

// repoBase holds the shared executor plumbing. The stored db serves queries
// unless the service passes a transaction override.
type repoBase struct {
	db *sqlx.DB
}

func (r repoBase) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return r.db
}

// rebind converts "?" placeholders to postgres "$N" ones.
func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
