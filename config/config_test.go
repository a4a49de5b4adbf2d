package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("SEALEDCOURT_COURT_OWNER", "0xowner")
	t.Setenv("SEALEDCOURT_SERVER_JWT_SECRET", "s3cret")
	t.Setenv("SEALEDCOURT_COURT_ARBITRATOR_COUNT", "5")
	t.Setenv("SEALEDCOURT_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0xowner", cfg.Court.Owner)
	assert.Equal(t, 5, cfg.Court.ArbitratorCount)
	assert.Equal(t, 7*24*time.Hour, cfg.Court.VotingWindow)
	assert.Equal(t, 3*24*time.Hour, cfg.Court.DecryptionTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Oracle.Local)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "court.yaml")
	body := []byte(`
server:
  jwt_secret: from-file
court:
  owner: "0xfile"
  voting_window: 48h
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("SEALEDCOURT_COURT_OWNER", "0xenv")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0xenv", cfg.Court.Owner)
	assert.Equal(t, 48*time.Hour, cfg.Court.VotingWindow)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "from-file", cfg.Server.JWTSecret)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "court.owner is required")
	assert.Contains(t, err.Error(), "server.jwt_secret is required")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
