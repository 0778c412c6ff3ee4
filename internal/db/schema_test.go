package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestSchemaSQLUsesDimension(t *testing.T) {
	sql := SchemaSQL(768)

	assert.Contains(t, sql, "HNSW DIMENSION 768 DIST COSINE")
	assert.Contains(t, sql, "array::len($value) = 768")
	assert.NotContains(t, sql, "%!")
}

func TestRecordID(t *testing.T) {
	id, err := recordID(surrealmodels.NewRecordID("session", "abc123"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = recordID(surrealmodels.NewRecordID("session", 42))
	assert.Error(t, err)
}
