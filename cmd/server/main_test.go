package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/copper/internal/infrastructure/config"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
)

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		mode     string
		dev      bool
		wantPort string
		wantNode bool
		wantDev  bool
		wantErr  bool
	}{
		{name: "no flags keeps config", wantPort: "9115"},
		{name: "port override", port: "9200", wantPort: "9200"},
		{name: "node mode", mode: "node", wantPort: "9115", wantNode: true},
		{name: "dev logging", dev: true, wantPort: "9115", wantDev: true},
		{name: "unknown mode", mode: "hub", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()

			err := applyFlags(cfg, tt.port, tt.mode, tt.dev)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantNode, cfg.Node.Enabled)
			assert.Equal(t, tt.wantDev, cfg.Logging.Development)
		})
	}
}

func TestStandaloneFlagDisablesNode(t *testing.T) {
	cfg := config.Default()
	cfg.Node.Enabled = true

	require.NoError(t, applyFlags(cfg, "", "standalone", false))
	assert.False(t, cfg.Node.Enabled)
}

func TestLoggerConfig(t *testing.T) {
	prod := loggerConfig(config.LogConfig{})
	assert.Equal(t, logging.DefaultConfig(), prod)

	dev := loggerConfig(config.LogConfig{Development: true})
	assert.True(t, dev.Development)
	assert.Equal(t, "debug", dev.Level)

	warn := loggerConfig(config.LogConfig{Level: "warn", Development: true})
	assert.Equal(t, "warn", warn.Level)
	assert.True(t, warn.Development)
}
