package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	var v struct {
		Interval Duration `json:"interval"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"interval":"1m30s"}`), &v))
	assert.Equal(t, 90*time.Second, v.Interval.Duration)

	require.NoError(t, json.Unmarshal([]byte(`{"interval":1000}`), &v))
	assert.Equal(t, time.Microsecond, v.Interval.Duration)

	assert.Error(t, json.Unmarshal([]byte(`{"interval":"soon"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"interval":true}`), &v))
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration{5 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, `"5m0s"`, string(b))
}
