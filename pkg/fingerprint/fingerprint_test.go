package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap_Deterministic(t *testing.T) {
	a := map[string]any{"name": "Blue Door Cafe", "closed": false, "latitude": 47.6}
	b := map[string]any{"latitude": 47.6, "closed": false, "name": "Blue Door Cafe"}

	assert.Equal(t, FromMap(a), FromMap(b))
}

func TestFromMap_IgnoresBookkeepingFields(t *testing.T) {
	a := map[string]any{"name": "Blue Door Cafe", "updated_at": "2026-01-01T00:00:00Z"}
	b := map[string]any{"name": "Blue Door Cafe", "updated_at": "2026-02-01T00:00:00Z"}

	assert.Equal(t, FromMap(a), FromMap(b))
}

func TestFromMap_NestedFieldsAreNotExcluded(t *testing.T) {
	a := map[string]any{"venue": map[string]any{"updated_at": "2026-01-01T00:00:00Z"}}
	b := map[string]any{"venue": map[string]any{"updated_at": "2026-02-01T00:00:00Z"}}

	assert.NotEqual(t, FromMap(a), FromMap(b))
}

func TestFromJSON(t *testing.T) {
	digest1, err := FromJSON(json.RawMessage(`{"name":"Blue Door Cafe","tags":["coffee","wifi"]}`))
	require.NoError(t, err)
	digest2, err := FromJSON(json.RawMessage(`{"tags":["coffee","wifi"],"name":"Blue Door Cafe"}`))
	require.NoError(t, err)

	assert.Equal(t, digest1, digest2)
	assert.Len(t, digest1, 64)

	digest3, err := FromJSON(json.RawMessage(`{"name":"Red Door Cafe","tags":["coffee","wifi"]}`))
	require.NoError(t, err)
	assert.NotEqual(t, digest1, digest3)
}

func TestFromJSON_InvalidPayload(t *testing.T) {
	_, err := FromJSON(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestFromMap_ArrayOrderMatters(t *testing.T) {
	a := map[string]any{"tags": []any{"coffee", "wifi"}}
	b := map[string]any{"tags": []any{"wifi", "coffee"}}

	assert.NotEqual(t, FromMap(a), FromMap(b))
}
