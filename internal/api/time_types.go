package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// Duration is a time.Duration that travels as a Go duration string
// ("168h", "30m") and also accepts a number of seconds.
type Duration struct {
	time.Duration
}

// UnmarshalJSON parses a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q", s)
		}
		d.Duration = v
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into Duration", string(data))
}

// MarshalJSON outputs the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Schema implements huma.SchemaProvider.
func (Duration) Schema(huma.Registry) *huma.Schema {
	return &huma.Schema{
		OneOf: []*huma.Schema{
			{Type: huma.TypeString, Examples: []any{"168h"}},
			{Type: huma.TypeNumber, Minimum: new(float64)},
		},
		Description: "Go duration string or number of seconds",
	}
}
