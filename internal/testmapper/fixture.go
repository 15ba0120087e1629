package testmapper

import (
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/internal/fakedb"
)

// MissingID is a user id no row exists for.
const MissingID int64 = 404

// DuplicateName makes Rename fail with a unique violation.
const DuplicateName = "dup"

// NewCatalog returns a catalog holding the descriptors of this package only.
func NewCatalog() *catalog.Catalog {
	cat := catalog.New()
	cat.MustRegister(Descriptors()...)
	return cat
}

// UserDB answers the statements of the mappers in this package.
func UserDB() *fakedb.DataSource {
	return fakedb.NewDataSource(fakedb.NewConn(answer))
}

func answer(sql string, args []any) fakedb.Result {
	cols := []string{"id", "name", "email"}
	lower := strings.ToLower(strings.TrimSpace(sql))
	switch {
	case strings.HasPrefix(lower, "set "):
		return fakedb.Result{Tag: "SET"}
	case strings.HasPrefix(lower, "select version()"):
		return fakedb.Result{Columns: []string{"version"}, Rows: [][]any{{"PostgreSQL 16.4 on x86_64-pc-linux-musl"}}}
	case strings.HasPrefix(lower, "update"):
		if len(args) > 0 && args[0] == DuplicateName {
			return fakedb.Result{Err: &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}}
		}
		return fakedb.Result{Tag: "UPDATE 1"}
	case strings.HasPrefix(lower, "insert"):
		return fakedb.Result{Tag: "INSERT 0 1"}
	case strings.Contains(lower, "'generic'"):
		return fakedb.Result{Columns: []string{"?column?"}, Rows: [][]any{{"generic"}}}
	case strings.Contains(lower, "'postgres'"):
		return fakedb.Result{Columns: []string{"?column?"}, Rows: [][]any{{"postgres"}}}
	case strings.Contains(lower, "count(*)"):
		return fakedb.Result{Columns: []string{"count"}, Rows: [][]any{{int64(2)}}}
	case len(args) == 1 && args[0] == MissingID:
		return fakedb.Result{Columns: cols}
	case len(args) == 1:
		return fakedb.Result{Columns: cols, Rows: [][]any{{args[0], "ann", "Ann@Example.com"}}}
	default:
		return fakedb.Result{Columns: cols, Rows: [][]any{
			{int64(1), "ann", "ann@example.com"},
			{int64(2), "bob", "bob@example.com"},
		}}
	}
}
