package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildConfigDefaultsToLeader(t *testing.T) {
	fs := BuildFlagSet()
	v, err := BuildViper(fs, nil)
	require.NoError(t, err)

	cfg, err := BuildConfig(v)
	require.NoError(t, err)
	require.Equal(t, "leader", cfg.InitialRole)
	require.Equal(t, "memory", cfg.StorageDriver)
	require.True(t, cfg.EnableGenesis)
}

func TestBuildConfigRejectsFollowerWithoutLeaderHTTP(t *testing.T) {
	fs := BuildFlagSet()
	v, err := BuildViper(fs, []string{"--initial-role=follower"})
	require.NoError(t, err)

	_, err = BuildConfig(v)
	require.Error(t, err)
}

func TestBuildConfigAcceptsFollowerWithLeaderHTTP(t *testing.T) {
	fs := BuildFlagSet()
	v, err := BuildViper(fs, []string{"--initial-role=follower", "--leader-http=http://leader:3000"})
	require.NoError(t, err)

	cfg, err := BuildConfig(v)
	require.NoError(t, err)
	require.Equal(t, "follower", cfg.InitialRole)
	require.Equal(t, "http://leader:3000", cfg.LeaderHTTP)
}

func TestBuildConfigDefaultsLogFileToStderr(t *testing.T) {
	fs := BuildFlagSet()
	v, err := BuildViper(fs, nil)
	require.NoError(t, err)

	cfg, err := BuildConfig(v)
	require.NoError(t, err)
	require.Empty(t, cfg.LogFile)
}

func TestBuildConfigAcceptsLogFile(t *testing.T) {
	fs := BuildFlagSet()
	v, err := BuildViper(fs, []string{"--log-file=/var/log/stratus.log"})
	require.NoError(t, err)

	cfg, err := BuildConfig(v)
	require.NoError(t, err)
	require.Equal(t, "/var/log/stratus.log", cfg.LogFile)
}

func TestBuildConfigRejectsSQLDriverWithoutDSN(t *testing.T) {
	fs := BuildFlagSet()
	v, err := BuildViper(fs, []string{"--storage-driver=sqlite"})
	require.NoError(t, err)

	_, err = BuildConfig(v)
	require.Error(t, err)
}
