package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/btcpeer/btcpeer/lib/config"
	"github.com/go-i2p/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	viper.Reset()
	config.CfgFile = ""
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(viper.Reset)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestConfigCommandDefaults(t *testing.T) {
	out := execute(t, "config")
	assert.Contains(t, out, "peers: 8")
	assert.Contains(t, out, config.DefaultSeed)
}

func TestConfigCommandFlags(t *testing.T) {
	out := execute(t, "config",
		"--peers", "3",
		"--seed", "seed.example.org",
		"--seed", "seed.example.net",
		"--nameserver", "127.0.0.1:53",
		"--log-level", "debug")
	assert.Contains(t, out, "peers: 3")
	assert.Contains(t, out, "seed.example.org")
	assert.Contains(t, out, "seed.example.net")
	assert.NotContains(t, out, config.DefaultSeed)
	assert.Contains(t, out, "127.0.0.1:53")
	assert.Contains(t, out, "log_level: debug")
}

func TestInvalidFlagRejected(t *testing.T) {
	viper.Reset()
	config.CfgFile = ""
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(viper.Reset)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "--peers", "0"})
	assert.ErrorIs(t, root.Execute(), config.ErrInvalid)
}

func TestAddressSourceConnect(t *testing.T) {
	cfg := config.Defaults()
	cfg.Connect = []string{"192.0.2.7", "192.0.2.8"}

	src, err := addressSource(&cfg)
	require.NoError(t, err)
	addrs, err := src.Addresses(context.Background())
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, "192.0.2.7", addrs[0].String())
}

func TestAddressSourceSeeds(t *testing.T) {
	cfg := config.Defaults()
	src, err := addressSource(&cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{config.DefaultSeed}, src.Seeds())

	cfg.Connect = []string{"not-an-ip"}
	_, err = addressSource(&cfg)
	assert.Error(t, err)
}

func TestApplyLogLevel(t *testing.T) {
	l := logger.GetGoI2PLogger()
	prev := l.GetLevel()
	t.Cleanup(func() { l.SetLevel(prev) })

	require.NoError(t, applyLogLevel("debug"))
	assert.Equal(t, logger.DebugLevel, l.GetLevel())
	require.NoError(t, applyLogLevel("warn"))
	assert.Equal(t, logger.Level(logrus.WarnLevel), l.GetLevel())

	assert.Error(t, applyLogLevel("loud"))
	assert.Equal(t, logger.Level(logrus.WarnLevel), l.GetLevel())
}
