// Package sqldb implements the SQL database content provider. Each check
// declares a query in its params; the provider runs the queries against
// the monitored database described by the cycle's credential bundle.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelmon/kestrel/internal/content"
	"github.com/kestrelmon/kestrel/internal/secrets"

	_ "github.com/go-sql-driver/mysql"       // mysql driver
	_ "github.com/lib/pq"                    // postgres driver
	_ "github.com/microsoft/go-mssqldb"      // sqlserver driver
)

// Kind is the provider kind this package registers under.
const Kind = "SqlDb"

// Compile-time interface guards.
var (
	_ content.Provider = (*Provider)(nil)
	_ content.Check    = (*queryCheck)(nil)
)

// Provider runs declared queries against one monitored SQL database.
type Provider struct {
	name   string
	logger *zap.Logger
	checks []content.Check
	db     *sql.DB
}

// New is the content.Factory for SqlDb declarations.
func New(name string, decl *content.Declaration, logger *zap.Logger) (content.Provider, error) {
	p := &Provider{name: name, logger: logger}
	for i := range decl.Checks {
		spec := decl.Checks[i]
		query := strings.TrimSpace(spec.Params["query"])
		if query == "" {
			return nil, fmt.Errorf("check %q: params.query is required", spec.Name)
		}
		p.checks = append(p.checks, &queryCheck{spec: spec, provider: p, query: query})
	}
	return p, nil
}

func (p *Provider) Name() string            { return p.name }
func (p *Provider) Kind() string            { return Kind }
func (p *Provider) Checks() []content.Check { return p.checks }

// Configure opens the database connection described by the bundle. The
// connection is shared by all of the provider's checks within the cycle.
func (p *Provider) Configure(bundle *secrets.CredentialBundle) error {
	if bundle == nil {
		return fmt.Errorf("provider %q requires credentials", p.name)
	}

	conn, err := connectionFromFields(bundle.Fields)
	if err != nil {
		return fmt.Errorf("provider %q: %w", p.name, err)
	}

	driver, dsn, err := conn.dsn()
	if err != nil {
		return fmt.Errorf("provider %q: %w", p.name, err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("provider %q: open %s connection: %w", p.name, driver, err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if p.db != nil {
		p.db.Close()
	}
	p.db = db
	p.logger.Debug("database connection configured",
		zap.String("driver", driver),
		zap.String("host", conn.Host),
	)
	return nil
}

// Validate pings the monitored database. Used by onboarding to prove the
// just-stored credentials actually work.
func (p *Provider) Validate(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("provider %q is not configured", p.name)
	}
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// connection is the monitored-database address assembled from credential
// bundle fields.
type connection struct {
	Driver   string
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

func connectionFromFields(fields map[string]string) (*connection, error) {
	c := &connection{
		Driver:   strings.ToLower(strings.TrimSpace(fields["driver"])),
		Host:     fields["host"],
		Database: fields["database"],
		Username: fields["username"],
		Password: fields[secrets.FieldPassword],
	}
	for _, req := range []struct{ name, value string }{
		{"driver", c.Driver},
		{"host", c.Host},
		{"database", c.Database},
		{"username", c.Username},
		{"password", c.Password},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("credential field %q is required", req.name)
		}
	}

	if raw := fields["port"]; raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("credential field \"port\": invalid value %q", raw)
		}
		c.Port = port
	}
	return c, nil
}

// dsn builds the driver name and DSN for the connection.
func (c *connection) dsn() (driver, dsn string, err error) {
	switch c.Driver {
	case "mysql":
		port := c.Port
		if port == 0 {
			port = 3306
		}
		return "mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.Username, c.Password, c.Host, port, c.Database), nil
	case "postgres", "postgresql":
		port := c.Port
		if port == 0 {
			port = 5432
		}
		return "postgres", fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=require",
			c.Host, port, c.Username, c.Password, c.Database), nil
	case "mssql", "sqlserver":
		port := c.Port
		if port == 0 {
			port = 1433
		}
		return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			url.QueryEscape(c.Username), url.QueryEscape(c.Password), c.Host, port, c.Database), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// queryCheck runs one declared query through the provider's connection.
type queryCheck struct {
	spec     content.CheckSpec
	provider *Provider
	query    string
}

func (c *queryCheck) Name() string            { return c.spec.Name }
func (c *queryCheck) Enabled() bool           { return c.spec.Enabled }
func (c *queryCheck) Interval() time.Duration { return c.spec.Interval() }
func (c *queryCheck) Destination() string     { return c.spec.Destination }
func (c *queryCheck) TimeField() string       { return c.spec.TimeField }

// Run executes the declared query and maps each row into a result record.
// The declared time field is stamped with the run time when the query
// itself does not produce that column.
func (c *queryCheck) Run(ctx context.Context) (*content.Result, error) {
	if c.provider.db == nil {
		return nil, fmt.Errorf("provider %q is not configured", c.provider.name)
	}

	started := time.Now().UTC()
	rows, err := c.provider.db.QueryContext(ctx, c.query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns)+1)
		for i, col := range columns {
			row[col] = normalize(values[i])
		}
		if _, ok := row[c.spec.TimeField]; !ok {
			row[c.spec.TimeField] = started.Format(time.RFC3339Nano)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &content.Result{TimeField: c.spec.TimeField, Rows: out}, nil
}

// normalize converts driver-specific scan values into JSON-friendly ones.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
