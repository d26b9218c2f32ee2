package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false}, logging.Default())
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestDisconnectedClientIsInert(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("zero-value client should not report connected")
	}

	// Writes on a disconnected client must be silent no-ops.
	c.WritePoint("test", nil, map[string]interface{}{"value": 1})
	c.Flush()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on zero-value client should be nil, got %v", err)
	}
}
