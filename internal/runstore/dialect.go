package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// dialect holds what differs between the SQLite and PostgreSQL run stores.
type dialect struct {
	driver     string
	numbered   bool // $N placeholders, ids come back through RETURNING
	primaryKey string
	boolType   string
	boolFalse  string
	init       []string
	duplicate  func(error) bool
}

var (
	sqliteDialect = dialect{
		driver:     "sqlite",
		primaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
		boolType:   "INTEGER",
		boolFalse:  "0",
		init: []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
		},
		duplicate: func(err error) bool {
			return strings.Contains(err.Error(), "UNIQUE constraint failed")
		},
	}

	postgresDialect = dialect{
		driver:     "postgres",
		numbered:   true,
		primaryKey: "BIGSERIAL PRIMARY KEY",
		boolType:   "BOOLEAN",
		boolFalse:  "FALSE",
		init:       []string{"SET TIME ZONE 'UTC'"},
		duplicate: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == "23505"
		},
	}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "", sqliteDialect.driver:
		return sqliteDialect, nil
	case postgresDialect.driver:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// insertSQL is the statement insertID runs.
func (d dialect) insertSQL(query string) string {
	if d.numbered {
		return d.rebind(query) + " RETURNING id"
	}
	return query
}

// insertID runs an INSERT and returns the id of the new row.
func (d dialect) insertID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	stmt := d.insertSQL(query)
	if d.numbered {
		var id int64
		err := tx.QueryRowContext(ctx, stmt, args...).Scan(&id)
		return id, err
	}
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d dialect) isDuplicate(err error) bool {
	return err != nil && d.duplicate(err)
}
