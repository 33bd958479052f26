package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/marcandre22/ready-mix-coach/internal/types"
)

// TicketsTable is the table LoadSQL reads.
const TicketsTable = "tickets"

// IsDSN reports whether source names a database rather than a file.
func IsDSN(source string) bool {
	_, _, err := driverFor(source)
	return err == nil
}

// driverFor maps a DSN scheme onto a database/sql driver name and the
// connection string that driver expects.
func driverFor(dsn string) (driver, conn string, err error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "", "", fmt.Errorf("dsn %q has no scheme", dsn)
	}
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3", "file":
		return "sqlite", rest, nil
	case "postgres", "postgresql":
		return "pgx", dsn, nil
	case "mysql":
		return "mysql", rest, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// OpenDB connects to the database named by dsn and pings it.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	driver, conn, err := driverFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}
	return db, nil
}

// LoadDSN opens dsn, reads the tickets table and closes the connection.
func LoadDSN(ctx context.Context, dsn string, opts Options) ([]types.Ticket, error) {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	return LoadSQL(ctx, db, opts)
}

// LoadSQL reads every row of the tickets table. Columns are matched by
// name like spreadsheet headers, so extra or missing optional columns are fine.
func LoadSQL(ctx context.Context, db *sql.DB, opts Options) ([]types.Ticket, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+TicketsTable)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", TicketsTable, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	table := [][]string{cols}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = sqlString(v)
		}
		table = append(table, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	if len(table) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}
	return parseRows(table, opts, TicketsTable)
}

func sqlString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// ExportDSN writes tickets into the tickets table of dsn.
func ExportDSN(ctx context.Context, dsn string, tickets []types.Ticket) error {
	driver, _, err := driverFor(dsn)
	if err != nil {
		return err
	}
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return CreateTicketsTable(ctx, db, driver, tickets)
}

// CreateTicketsTable creates the tickets table (if needed) and inserts
// tickets. driver is the database/sql driver name; it picks the
// placeholder style.
func CreateTicketsTable(ctx context.Context, db *sql.DB, driver string, tickets []types.Ticket) error {
	header := exportHeader()
	defs := make([]string, len(header))
	for i, h := range header {
		defs[i] = h + " TEXT"
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", TicketsTable, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", TicketsTable, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	marks := make([]string, len(header))
	for i := range marks {
		marks[i] = "?"
		if driver == "pgx" {
			marks[i] = "$" + strconv.Itoa(i+1)
		}
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TicketsTable, strings.Join(header, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tickets {
		row := exportRow(t)
		args := make([]any, len(row))
		for i, v := range row {
			if v == "" {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", t.TicketID, err)
		}
	}
	return tx.Commit()
}
