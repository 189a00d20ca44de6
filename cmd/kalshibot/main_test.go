package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afuentes7/kalshibot/config"
)

func TestStrategyConfig_DefaultInventoryCapReachesStrategy(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	sc := strategyConfig(cfg, nil)
	// Una sesión sin YAML debe quotear con tope 50 por lado, no sin tope.
	assert.Equal(t, 50, sc.MaxInventory)
}

func TestStrategyConfig_UncappedSentinelMapsToZero(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Strategy.MaxInventory = -1

	sc := strategyConfig(cfg, nil)
	assert.Equal(t, 0, sc.MaxInventory)
}
