package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"go string", `"168h"`, 168 * time.Hour},
		{"compound string", `"1h30m"`, 90 * time.Minute},
		{"seconds", `3600`, time.Hour},
		{"fractional seconds", `1.5`, 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_UnmarshalJSON_Invalid(t *testing.T) {
	for _, input := range []string{`"soon"`, `true`, `{}`} {
		var d Duration
		assert.Error(t, json.Unmarshal([]byte(input), &d), input)
	}
}

func TestDuration_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal(Duration{Duration: 36 * time.Hour})
	require.NoError(t, err)
	assert.JSONEq(t, `"36h0m0s"`, string(raw))
}

func TestDuration_InStruct(t *testing.T) {
	var body struct {
		OlderThan Duration `json:"older_than"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"older_than":"720h"}`), &body))
	assert.Equal(t, 30*24*time.Hour, body.OlderThan.Duration)
}
