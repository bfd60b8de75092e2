// Package graphengine defines the narrow Cypher-execution interface used by
// the graph retriever.
package graphengine

import "context"

// Adapter runs a single Cypher statement and returns its result rows, each
// row a column-name-to-value map.
type Adapter interface {
	Execute(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error)
}
