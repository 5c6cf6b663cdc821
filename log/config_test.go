package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRules(t *testing.T) {
	cfg := &Config{
		DefaultLevel: "warn",
		Loggers:      map[string]string{"race": "debug", "ingest": "INFO"},
	}
	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t,
		"warn+:* info+:ingest info+:ingest.* debug+:race debug+:race.*",
		rules)
}

func TestConfigRulesInvalidLevel(t *testing.T) {
	cfg := &Config{Loggers: map[string]string{"race": "loud"}}
	_, err := cfg.Rules()
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.yml")
	require.NoError(t, os.WriteFile(path,
		[]byte("defaultLevel: error\nloggers:\n  ingest.tcp: debug\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.DefaultLevel)
	assert.Equal(t, map[string]string{"ingest.tcp": "debug"}, cfg.Loggers)
}

func TestFilteredLogger(t *testing.T) {
	cfg := &Config{DefaultLevel: "info", Loggers: map[string]string{"race": "debug"}}
	rules, err := cfg.Rules()
	require.NoError(t, err)
	opt, err := WithFilterRules(rules)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	l := New(buf, DebugLevel, opt)
	l.Named("ingest").Debug("hidden")
	l.Named("race").Debug("visible")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}
