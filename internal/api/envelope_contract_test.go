package api

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureDir returns testdata/envelope at the repository root. Client
// libraries parse the same files.
func fixtureDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get caller info")

	root := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	return filepath.Join(root, "testdata", "envelope")
}

func loadFixture(t *testing.T, name string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(fixtureDir(t), name))
	require.NoError(t, err, "contract tests require shared fixtures")

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func transformToMap(t *testing.T, status string, v any) map[string]any {
	t.Helper()
	result, err := EnvelopeTransformer(nil, status, v)
	require.NoError(t, err)

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEnvelopeContract_SuccessMatchesFixture(t *testing.T) {
	expected := loadFixture(t, "success.json")

	got := transformToMap(t, "200", ResolveResponse{
		Identifier: "B08NWQ8JRF",
		SourceURL:  "https://www.amazon.com/dp/B08NWQ8JRF",
	})

	assert.Equal(t, expected, got)
}

func TestEnvelopeContract_SimpleErrorMatchesFixture(t *testing.T) {
	expected := loadFixture(t, "error_simple.json")

	got := transformToMap(t, "502", errors.New("upstream request failed"))

	assert.Equal(t, expected, got)
}

func TestEnvelopeContract_DetailedErrorMatchesFixture(t *testing.T) {
	expected := loadFixture(t, "error_detailed.json")

	got := transformToMap(t, "409", &APIError{
		Code:    "CONFLICT",
		Message: "B08NWQ8JRF already has a canonical product",
		Details: map[string]any{
			"success":       false,
			"message":       "reconcile: identifier already has a canonical product",
			"state":         "rejected",
			"reason":        "already-canonical",
			"live_metadata": false,
		},
	})

	assert.Equal(t, expected, got)
	for key := range got {
		assert.Contains(t, expected, key, "unexpected field %s", key)
	}
}

// Clients key on "v"; renaming it breaks them silently.
func TestEnvelopeContract_VersionFieldName(t *testing.T) {
	got := transformToMap(t, "200", nil)

	assert.Contains(t, got, "v")
	assert.NotContains(t, got, "version")
	assert.NotContains(t, got, "Version")
}
