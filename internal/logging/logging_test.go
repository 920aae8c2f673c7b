package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/quiverdb/internal/logging"
)

func TestJSONOutputCarriesComponentField(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(logging.Config{Level: logging.InfoLevel, JSON: true, Output: &buf})
	l.WithComponent("server").Info("listening")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "listening", entry["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(logging.Config{Level: logging.WarnLevel, JSON: true, Output: &buf})
	l.Info("dropped")
	assert.Empty(t, buf.String())
	l.Warn("kept")
	assert.NotEmpty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	lvl, err := logging.ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, logging.DebugLevel, lvl)
}
