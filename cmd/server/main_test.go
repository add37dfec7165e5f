package main

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidb-charts/internal/config"
)

func TestCheckConfig_LogsFindingsAndFailsOnErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := &config.Config{
		Charts: config.ChartsConfig{
			DefaultLimit:          10,
			MaxLimit:              100,
			QueryRetryMaxAttempts: 0,
			MaxExecutionTime:      time.Second,
		},
	}

	err := checkConfig(cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "query_retry_max_attempts")

	logged := buf.String()
	assert.Contains(t, logged, "configuration warning")
	assert.Contains(t, logged, "field=charts.max_execution_time")
	assert.Contains(t, logged, "configuration error")
	assert.Contains(t, logged, "field=charts.query_retry_max_attempts")
}
