// Package neo4j implements graphengine.Adapter against a Neo4j cluster via
// the official Bolt driver.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/trpc-group/compliance-rag/apperr"
	"github.com/trpc-group/compliance-rag/graphengine"
	"github.com/trpc-group/compliance-rag/retry"
)

const executeRetryAttempts = 3

var _ graphengine.Adapter = (*Adapter)(nil)

// Adapter implements graphengine.Adapter over a neo4j.DriverWithContext.
type Adapter struct {
	driver      neo4j.DriverWithContext
	database    string
	rowCap      int
	queryTimeout time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDatabase selects a non-default database name.
func WithDatabase(name string) Option { return func(a *Adapter) { a.database = name } }

// WithRowCap bounds the number of rows Execute returns, regardless of how
// many the query would otherwise produce.
func WithRowCap(n int) Option { return func(a *Adapter) { a.rowCap = n } }

// WithQueryTimeout bounds how long a single Execute call may run.
func WithQueryTimeout(d time.Duration) Option { return func(a *Adapter) { a.queryTimeout = d } }

// New connects to uri with basic auth and returns an Adapter.
func New(uri, username, password string, opts ...Option) (*Adapter, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphengine/neo4j: create driver: %w", err)
	}
	a := &Adapter{driver: driver, rowCap: 100, queryTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Close releases the underlying driver's connection pool.
func (a *Adapter) Close(ctx context.Context) error {
	return a.driver.Close(ctx)
}

// Execute implements graphengine.Adapter, running stmt in a read
// transaction bounded by the configured query timeout and row cap. Transient
// failures are retried per retry.Simple.
func (a *Adapter) Execute(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error) {
	var rows []map[string]any
	err := retry.DoErr(ctx, retry.Simple(executeRetryAttempts), "graphengine/neo4j.Execute", func(ctx context.Context) error {
		queryCtx, cancel := context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()

		sessionCfg := neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead}
		if a.database != "" {
			sessionCfg.DatabaseName = a.database
		}
		session := a.driver.NewSession(queryCtx, sessionCfg)
		defer session.Close(queryCtx)

		out, err := neo4j.ExecuteRead(queryCtx, session, func(tx neo4j.ManagedTransaction) ([]map[string]any, error) {
			result, err := tx.Run(queryCtx, stmt, params)
			if err != nil {
				return nil, err
			}
			var rows []map[string]any
			for result.Next(queryCtx) {
				if len(rows) >= a.rowCap {
					break
				}
				record := result.Record()
				row := make(map[string]any, len(record.Keys))
				for _, key := range record.Keys {
					v, _ := record.Get(key)
					row[key] = v
				}
				rows = append(rows, row)
			}
			if err := result.Err(); err != nil {
				return rows, err
			}
			return rows, nil
		})
		if err != nil {
			return apperr.New(apperr.KindGraphEngine, "execute", retry.IsTransientNetworkError(err), err)
		}
		rows = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graphengine/neo4j: execute: %w", err)
	}
	return rows, nil
}
