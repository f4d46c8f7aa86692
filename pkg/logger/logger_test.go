package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_TeesJSONToShipWriter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("production", &buf)
	require.NoError(t, err)

	l.Info("order placed", zap.String("order_id", "o-1"))
	_ = l.Sync()

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "order placed", line["msg"])
	assert.Equal(t, "o-1", line["order_id"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "timestamp")
}

func TestNew_DevelopmentWithoutWriter(t *testing.T) {
	l, err := New("development", nil)
	require.NoError(t, err)
	assert.NotNil(t, l)
}
