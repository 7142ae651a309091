package database

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect papers over the differences between the Postgres (pgx) and MySQL
// drivers. Queries are written with "?" placeholders.
type Dialect struct {
	Driver string
}

var (
	Postgres = Dialect{Driver: "pgx"}
	MySQL    = Dialect{Driver: "mysql"}
)

// Rebind rewrites "?" placeholders into the driver's native form.
func (d Dialect) Rebind(query string) string {
	if d.Driver == "mysql" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// InsertIgnore returns an INSERT statement that silently skips rows whose
// key already exists. RowsAffected is 0 for a skipped row.
func (d Dialect) InsertIgnore(table string, columns ...string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	cols := strings.Join(columns, ", ")
	if d.Driver == "mysql" {
		return "INSERT IGNORE INTO " + table + " (" + cols + ") VALUES (" + placeholders + ")"
	}
	return d.Rebind("INSERT INTO " + table + " (" + cols + ") VALUES (" + placeholders + ") ON CONFLICT DO NOTHING")
}

// IsUniqueViolation reports whether err is a duplicate key error from either driver.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
