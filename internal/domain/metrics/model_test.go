package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

// The AI-prefixed identifiers are easy to mangle: gorm's initialism replacer
// matches "IP" and "ID" inside them and derives a_iplatforms_used style names
// unless the column is pinned. Keep this in step with the migration schema and
// the raw summary SQL.
func TestSessionMetricsColumnNames(t *testing.T) {
	s, err := schema.Parse(&SessionMetrics{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	columns := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		columns[f.DBName] = true
	}

	expected := []string{
		"id",
		"session_id",
		"session_key",
		"participant_id",
		"query_count",
		"avg_query_length",
		"ai_platforms_used",
		"ai_result_clicks",
		"ai_dwell_time_seconds",
		"ecommerce_visits",
		"products_viewed",
		"conversions",
		"ai_attributed_conversions",
		"ai_to_purchase_seconds",
		"computed_at",
		"updated_at",
	}
	for _, col := range expected {
		assert.True(t, columns[col], "missing column %s", col)
	}
	assert.Len(t, s.Fields, len(expected))
}
