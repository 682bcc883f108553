package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListRunsQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    RunFilter
		wantWhere string
		wantArgs  []any
		wantTail  string
	}{
		{
			name:     "no filter uses default limit",
			filter:   RunFilter{},
			wantArgs: nil,
			wantTail: "ORDER BY created_at DESC LIMIT 50",
		},
		{
			name:      "company and status",
			filter:    RunFilter{Company: "Acme Corp", Status: RunStatusCompleted, Limit: 5},
			wantWhere: "WHERE company ILIKE $1 AND status = $2",
			wantArgs:  []any{"Acme Corp", RunStatusCompleted},
			wantTail:  "ORDER BY created_at DESC LIMIT 5",
		},
		{
			name:      "status with offset",
			filter:    RunFilter{Status: RunStatusRunning, Limit: 10, Offset: 20},
			wantWhere: "WHERE status = $1",
			wantArgs:  []any{RunStatusRunning},
			wantTail:  "LIMIT 10 OFFSET 20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := listRunsQuery(tt.filter)
			require.NoError(t, err)
			assert.Contains(t, query, "FROM research_runs")
			if tt.wantWhere != "" {
				assert.Contains(t, query, tt.wantWhere)
			} else {
				assert.NotContains(t, query, "WHERE")
			}
			assert.True(t, strings.HasSuffix(query, tt.wantTail), query)
			if tt.wantArgs == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestGenerationLogQuery(t *testing.T) {
	query, args, err := generationLogQuery("Acme Corp", 0)
	require.NoError(t, err)
	assert.Contains(t, query, "FROM generation_log WHERE target_company = $1")
	assert.True(t, strings.HasSuffix(query, "LIMIT 50"))
	assert.Equal(t, []any{"Acme Corp"}, args)

	query, args, err = generationLogQuery("", 3)
	require.NoError(t, err)
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)
}

func TestSchemaDeclaresTables(t *testing.T) {
	for _, table := range []string{"research_runs", "section_texts", "generation_log"} {
		assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	require.NotNil(t, nullIfEmpty("x"))
	assert.Equal(t, "x", *nullIfEmpty("x"))
}
