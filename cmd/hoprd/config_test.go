package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, uint64(16), cfg.Session.TagStart)
	require.Equal(t, uint64(1024), cfg.Session.TagEnd)
	require.Equal(t, 128, cfg.Session.MaxSessions)
	require.Equal(t, "127.0.0.1:9090", cfg.Metrics.ListenAddr)
}

func TestParseAddressRejectsWrongLength(t *testing.T) {
	_, err := parseAddress("0xabc")
	require.Error(t, err)

	addr, err := parseAddress("0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), addr[19])
}
