package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/srg/thpgw/internal/cache"
	"github.com/srg/thpgw/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOrdersKeysAndBlanksMissing(t *testing.T) {
	now := time.Now()
	rep := Build([]cache.Entry{
		{Kind: sensor.Pressure, Value: "1013.25"},
		{Kind: sensor.Temperature, Value: "23.45"},
	}, now)

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Equal(t, `{"Temperature":"23.45","Humidity":"","Pressure":"1013.25"}`, string(data),
		"keys MUST keep Temperature, Humidity, Pressure order and missing values MUST be empty strings")
	assert.Equal(t, now, rep.CreatedAt)
	assert.False(t, rep.Empty())
}

func TestBuildBlanksStaleEntries(t *testing.T) {
	rep := Build([]cache.Entry{
		{Kind: sensor.Humidity, Value: "41.0", Stale: true},
	}, time.Now())

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Equal(t, `{"Temperature":"","Humidity":"","Pressure":""}`, string(data))
	assert.True(t, rep.Empty(), "report with only stale values MUST be empty")
}

func TestZeroReport(t *testing.T) {
	var rep Report
	assert.True(t, rep.Empty())
	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}
