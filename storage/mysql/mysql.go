// Package mysql provides a database/sql-backed MySQL client: the row-store
// adapter's connection layer, autocommit by default with an optional
// transaction scope.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // mysql driver for database/sql
)

type clientBuilder func(ctx context.Context, builderOpts ...ClientBuilderOpt) (Client, error)

var globalBuilder clientBuilder = DefaultClientBuilder

// SetClientBuilder sets the mysql client builder.
func SetClientBuilder(builder clientBuilder) { globalBuilder = builder }

// GetClientBuilder gets the mysql client builder.
func GetClientBuilder() clientBuilder { return globalBuilder }

// DefaultClientBuilder opens a database/sql connection via the MySQL driver.
func DefaultClientBuilder(ctx context.Context, builderOpts ...ClientBuilderOpt) (Client, error) {
	o := &ClientBuilderOpts{}
	for _, opt := range builderOpts {
		opt(o)
	}
	if o.DSN == "" {
		return nil, errors.New("mysql: dsn is empty")
	}

	db, err := sql.Open("mysql", o.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open connection: %w", err)
	}
	if o.MaxOpenConns > 0 {
		db.SetMaxOpenConns(o.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &sqlClient{db: db}, nil
}

// ClientBuilderOpt configures a ClientBuilderOpts.
type ClientBuilderOpt func(*ClientBuilderOpts)

// ClientBuilderOpts holds the mysql client configuration.
type ClientBuilderOpts struct {
	// DSN is the go-sql-driver/mysql data source name, e.g.
	// "user:pass@tcp(host:3306)/dbname?parseTime=true".
	DSN          string
	MaxOpenConns int
}

// WithDSN sets the connection DSN.
func WithDSN(dsn string) ClientBuilderOpt { return func(o *ClientBuilderOpts) { o.DSN = dsn } }

// WithMaxOpenConns bounds the connection pool size.
func WithMaxOpenConns(n int) ClientBuilderOpt {
	return func(o *ClientBuilderOpts) { o.MaxOpenConns = n }
}

// HandlerFunc processes query results; rows are closed automatically after
// it returns.
type HandlerFunc func(*sql.Rows) error

// TxFunc executes within a transaction.
type TxFunc func(*sql.Tx) error

// Client is the narrow row-store operation set: autocommit query/exec plus
// an optional explicit transaction scope.
type Client interface {
	// ExecContext runs a statement that doesn't return rows.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	// Query runs a statement that returns rows and hands them to handler.
	Query(ctx context.Context, handler HandlerFunc, query string, args ...any) error
	// Transaction runs fn within a transaction, committing on nil error and
	// rolling back otherwise.
	Transaction(ctx context.Context, fn TxFunc) error
	// Close releases the connection pool.
	Close() error
}

type sqlClient struct {
	db *sql.DB
}

func (c *sqlClient) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *sqlClient) Query(ctx context.Context, handler HandlerFunc, query string, args ...any) error {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mysql: query: %w", err)
	}
	defer rows.Close()
	if err := handler(rows); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("mysql: rows iteration: %w", err)
	}
	return nil
}

func (c *sqlClient) Transaction(ctx context.Context, fn TxFunc) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit transaction: %w", err)
	}
	return nil
}

func (c *sqlClient) Close() error { return c.db.Close() }
