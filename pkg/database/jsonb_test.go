package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBRoundTrip(t *testing.T) {
	original := NewJSONB(map[string]any{"publicatie_id": "12345", "perceel": float64(2)})

	value, err := original.Value()
	require.NoError(t, err)

	var scanned JSONB[map[string]any]
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, original.Data, scanned.Data)
}

func TestJSONBNilMapValuesAsEmptyDocument(t *testing.T) {
	var empty JSONB[map[string]any]

	value, err := empty.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), value)
}

func TestJSONBScanNull(t *testing.T) {
	existing := NewJSONB(map[string]any{"key": "value"})
	require.NoError(t, existing.Scan(nil))
	assert.Nil(t, existing.Data)
}

func TestJSONBScanRejectsNonBytes(t *testing.T) {
	var target JSONB[map[string]any]
	assert.Error(t, target.Scan(42))
}
