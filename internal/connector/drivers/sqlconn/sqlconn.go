// Package sqlconn implements the verification drivers for the SQL
// family of connectors: MySQL, PostgreSQL, Oracle and SQL Server.
package sqlconn

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"    // mysql
	_ "github.com/jackc/pgx/v5/stdlib"    // pgx
	_ "github.com/microsoft/go-mssqldb"   // sqlserver
	_ "github.com/sijms/go-ora/v2"        // oracle

	"github.com/probeflow/probeflow/internal/connector"
	"github.com/probeflow/probeflow/internal/core"
)

// sqlDriver serves one SQL backend through database/sql. The config map
// uses the shared keys host, port, username, password and database; a
// dsn key overrides assembly entirely.
type sqlDriver struct {
	connectorType core.ConnectorType
	driverName    string
	defaultPort   string
	buildDSN      func(cfg map[string]string, port string) string
}

func (d *sqlDriver) Type() core.ConnectorType { return d.connectorType }

func (d *sqlDriver) Execute(ctx context.Context, config map[string]string, query string) (string, error) {
	db, err := d.open(config)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = db.Close()
	}()

	if isRowQuery(query) {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return "", fmt.Errorf("query failed: %w", err)
		}
		defer func() {
			_ = rows.Close()
		}()
		return rowsToJSON(rows)
	}

	res, err := db.ExecContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("statement failed: %w", err)
	}
	affected, _ := res.RowsAffected()
	return fmt.Sprintf(`{"rowsAffected":%d}`, affected), nil
}

func (d *sqlDriver) Ping(ctx context.Context, config map[string]string) error {
	db, err := d.open(config)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()
	return db.PingContext(ctx)
}

func (d *sqlDriver) open(config map[string]string) (*sql.DB, error) {
	dsn := config["dsn"]
	if dsn == "" {
		port := config["port"]
		if port == "" {
			port = d.defaultPort
		}
		dsn = d.buildDSN(config, port)
	}
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.driverName, err)
	}
	return db, nil
}

// isRowQuery decides between QueryContext and ExecContext by statement
// verb. Verification queries are almost always SELECTs.
func isRowQuery(query string) bool {
	verb := strings.ToUpper(firstWord(query))
	switch verb {
	case "SELECT", "WITH", "SHOW", "DESC", "DESCRIBE", "EXPLAIN":
		return true
	default:
		return false
	}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// rowsToJSON serializes a result set as a JSON array of row objects so
// the assertion layer can address values as $[i].column.
func rowsToJSON(rows *sql.Rows) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to iterate rows: %w", err)
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}
	return string(encoded), nil
}

// normalizeValue keeps the JSON encoding readable: byte slices become
// strings instead of base64.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func mysqlDSN(cfg map[string]string, port string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg["username"], cfg["password"], cfg["host"], port, cfg["database"])
}

func postgresDSN(cfg map[string]string, port string) string {
	sslMode := cfg["sslmode"]
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg["username"], cfg["password"]),
		Host:     fmt.Sprintf("%s:%s", cfg["host"], port),
		Path:     cfg["database"],
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}

// oracleDSN treats the database key as the Oracle service name.
func oracleDSN(cfg map[string]string, port string) string {
	u := url.URL{
		Scheme: "oracle",
		User:   url.UserPassword(cfg["username"], cfg["password"]),
		Host:   fmt.Sprintf("%s:%s", cfg["host"], port),
		Path:   cfg["database"],
	}
	return u.String()
}

func sqlserverDSN(cfg map[string]string, port string) string {
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg["username"], cfg["password"]),
		Host:     fmt.Sprintf("%s:%s", cfg["host"], port),
		RawQuery: "database=" + url.QueryEscape(cfg["database"]),
	}
	return u.String()
}

func init() {
	connector.Register(&sqlDriver{
		connectorType: core.ConnectorMySQL,
		driverName:    "mysql",
		defaultPort:   "3306",
		buildDSN:      mysqlDSN,
	})
	connector.Register(&sqlDriver{
		connectorType: core.ConnectorPostgres,
		driverName:    "pgx",
		defaultPort:   "5432",
		buildDSN:      postgresDSN,
	})
	connector.Register(&sqlDriver{
		connectorType: core.ConnectorOracle,
		driverName:    "oracle",
		defaultPort:   "1521",
		buildDSN:      oracleDSN,
	})
	connector.Register(&sqlDriver{
		connectorType: core.ConnectorSQLServer,
		driverName:    "sqlserver",
		defaultPort:   "1433",
		buildDSN:      sqlserverDSN,
	})
}
