// Package dbutil constructs database connections.
package dbutil

import (
	"context"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/jamestiotio/sapling/src/internal/backoff"
	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/log"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections.
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default number of idle database connections
	// to maintain.  (2 comes from the default in database/sql.go.)
	DefaultMaxIdleConns = 2
	// DefaultSSLMode disables TLS; deployments that need it set WithSSLMode.
	DefaultSSLMode = "disable"
)

type dbConfig struct {
	host           string
	port           int
	user, password string
	name           string
	maxOpenConns   int
	maxIdleConns   int
	sslMode        string
}

// Option configures the database connection.
type Option func(*dbConfig)

func WithHostPort(host string, port int) Option {
	return func(c *dbConfig) {
		c.host = host
		c.port = port
	}
}

func WithDBName(name string) Option {
	return func(c *dbConfig) { c.name = name }
}

func WithUserPassword(user, password string) Option {
	return func(c *dbConfig) {
		c.user = user
		c.password = password
	}
}

func WithMaxOpenConns(n int) Option {
	return func(c *dbConfig) { c.maxOpenConns = n }
}

func WithSSLMode(mode string) Option {
	return func(c *dbConfig) { c.sslMode = mode }
}

func newConfig(opts ...Option) *dbConfig {
	c := &dbConfig{
		maxOpenConns: DefaultMaxOpenConns,
		maxIdleConns: DefaultMaxIdleConns,
		sslMode:      DefaultSSLMode,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetDSN returns the string for connecting to the postgres instance with the
// parameters specified in opts.
func GetDSN(opts ...Option) string {
	c := newConfig(opts...)
	fields := map[string]string{
		"connect_timeout": "30",
		"sslmode":         c.sslMode,
	}
	if c.host != "" {
		fields["host"] = c.host
	}
	if c.port != 0 {
		fields["port"] = strconv.Itoa(c.port)
	}
	if c.name != "" {
		fields["dbname"] = c.name
	}
	if c.user != "" {
		fields["user"] = c.user
	}
	if c.password != "" {
		fields["password"] = c.password
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

// NewDB creates a new DB.
func NewDB(opts ...Option) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", GetDSN(opts...))
	if err != nil {
		return nil, errors.EnsureStack(err)
	}
	c := newConfig(opts...)
	if c.maxOpenConns != 0 {
		db.SetMaxOpenConns(c.maxOpenConns)
	}
	db.SetMaxIdleConns(c.maxIdleConns)
	return db, nil
}

// WaitUntilReady attempts to ping the database until the context is
// cancelled.  Progress information is logged through ctx.
func WaitUntilReady(ctx context.Context, db *sqlx.DB) error {
	const period = time.Second
	const timeout = time.Second
	log.Info(ctx, "waiting for db to be ready")
	return backoff.RetryUntilCancel(ctx, func() error {
		log.Debug(ctx, "pinging db")
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return errors.EnsureStack(err)
		}
		log.Info(ctx, "db is ready")
		return nil
	}, backoff.NewConstantBackOff(period), backoff.NotifyCtx(ctx, "ping db"))
}
