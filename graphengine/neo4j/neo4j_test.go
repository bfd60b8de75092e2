package neo4j

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOptions_ApplyOverDefaults(t *testing.T) {
	a := &Adapter{rowCap: 100, queryTimeout: 15 * time.Second}
	for _, opt := range []Option{
		WithDatabase("neo4j"),
		WithRowCap(50),
		WithQueryTimeout(5 * time.Second),
	} {
		opt(a)
	}
	require.Equal(t, "neo4j", a.database)
	require.Equal(t, 50, a.rowCap)
	require.Equal(t, 5*time.Second, a.queryTimeout)
}

func TestNew_InvalidURIReturnsError(t *testing.T) {
	_, err := New("not-a-valid-scheme", "user", "pass")
	require.Error(t, err)
}
