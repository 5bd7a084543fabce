//go:build integration

package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tetherhq/tether-engine/pkg/testhelpers"
)

// Test_001_CreateCommitments verifies migration 001 creates the commitments table correctly
func Test_001_CreateCommitments(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	ctx := context.Background()

	// Verify the table exists
	var tableExists bool
	err := engineDB.DB.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = 'commitments'
		)
	`).Scan(&tableExists)
	require.NoError(t, err)
	assert.True(t, tableExists, "commitments table should exist")

	// Verify key columns exist with correct types
	columns := map[string]string{
		"id":               "uuid",
		"title":            "character varying",
		"description":      "text",
		"commitment_type":  "character varying",
		"status":           "character varying",
		"start_date":       "timestamp with time zone",
		"end_date":         "timestamp with time zone",
		"timezone":         "character varying",
		"date_certainty":   "character varying",
		"participants":     "jsonb",
		"organizer":        "character varying",
		"location":         "text",
		"meeting_links":    "jsonb",
		"auto_linked":      "boolean",
		"confidence_score": "double precision",
		"metadata":         "jsonb",
		"created_at":       "timestamp with time zone",
		"updated_at":       "timestamp with time zone",
	}

	for colName, expectedType := range columns {
		var dataType string
		err := engineDB.DB.Pool.QueryRow(ctx, `
			SELECT data_type
			FROM information_schema.columns
			WHERE table_name = 'commitments'
			AND column_name = $1
		`, colName).Scan(&dataType)
		require.NoError(t, err, "Column %s should exist", colName)
		assert.Equal(t, expectedType, dataType, "Column %s should have type %s", colName, expectedType)
	}

	// Verify query indexes exist, including the GIN indexes on JSONB columns
	indexes := []string{
		"idx_commitments_dates",
		"idx_commitments_type",
		"idx_commitments_status",
		"idx_commitments_certainty",
		"idx_commitments_created_at",
		"idx_commitments_metadata_gin",
		"idx_commitments_participants_gin",
	}
	for _, indexName := range indexes {
		var indexExists bool
		err := engineDB.DB.Pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT FROM pg_indexes
				WHERE tablename = 'commitments'
				AND indexname = $1
			)
		`, indexName).Scan(&indexExists)
		require.NoError(t, err)
		assert.True(t, indexExists, "Index %s should exist", indexName)
	}

	// Verify status column has default value 'active'
	var statusDefault string
	err = engineDB.DB.Pool.QueryRow(ctx, `
		SELECT column_default
		FROM information_schema.columns
		WHERE table_name = 'commitments'
		AND column_name = 'status'
	`).Scan(&statusDefault)
	require.NoError(t, err)
	assert.Contains(t, statusDefault, "active", "Status column should default to 'active'")

	// Verify date_certainty column has default value 'unknown'
	var certaintyDefault string
	err = engineDB.DB.Pool.QueryRow(ctx, `
		SELECT column_default
		FROM information_schema.columns
		WHERE table_name = 'commitments'
		AND column_name = 'date_certainty'
	`).Scan(&certaintyDefault)
	require.NoError(t, err)
	assert.Contains(t, certaintyDefault, "unknown", "date_certainty column should default to 'unknown'")
}
