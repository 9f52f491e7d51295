package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/leakwatch/internal/signature"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"TG_API_ID", "TG_API_HASH", "TG_PHONE", "TG_PASSWORD", "TWITCH_OAUTH",
		"NOTIFIER_TELEGRAM_TOKEN", "AWS_ROLE_ARN", "AWS_WEB_IDENTITY_TOKEN_FILE", "S3_ACCESS_KEY_ID",
		"S3_SECRET_ACCESS_KEY", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoadFromFileWithDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
telegram:
  api_id: 42
  api_hash: abc
signatures: [Combo, "DB Dump"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Telegram.APIID)
	assert.Equal(t, "session_monitor.json", cfg.Telegram.SessionFile)
	assert.Equal(t, "threat_alerts.log", cfg.Files.AlertLog)
	assert.Equal(t, "discovered_groups.txt", cfg.Files.LinksFile)
	assert.Equal(t, "system_error.log", cfg.Files.ErrorLog)
	assert.Equal(t, 100, cfg.Dispatcher.BufferSize)
	assert.Equal(t, []string{"t.me", "telegram.me"}, cfg.LinkHosts)
	assert.True(t, cfg.CrawlerEnabled())
	assert.True(t, cfg.MuteJoinedGroups())
	assert.False(t, cfg.S3Enabled())

	set, err := cfg.SignatureSet()
	require.NoError(t, err)
	assert.Equal(t, []string{"combo", "db dump"}, set.Terms())
}

func TestLoadEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("TG_API_ID", "12345")
	t.Setenv("TG_API_HASH", "hash")
	t.Setenv("TG_PHONE", "+5511999999999")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 12345, cfg.Telegram.APIID)
	assert.Equal(t, "+5511999999999", cfg.Telegram.Phone)

	set, err := cfg.SignatureSet()
	require.NoError(t, err)
	assert.Equal(t, len(signature.Defaults), set.Len())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("TG_API_HASH", "from-env")
	path := writeConfig(t, "telegram:\n  api_id: 1\n  api_hash: from-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.APIHash)
}

func TestLoadMissingCredentials(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_id")

	t.Setenv("TG_API_ID", "1")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_hash")
}

func TestLoadNonNumericAPIID(t *testing.T) {
	clearEnv(t)
	t.Setenv("TG_API_ID", "abc")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "telegram: [unclosed"))
	assert.Error(t, err)
}

func TestValidateOptionalSections(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"twitch without oauth", "twitch:\n  username: u\n  channels: [a]\n"},
		{"notifier without chats", "notifier:\n  telegram_token: t\n"},
		{"s3 without region", "s3:\n  bucket: b\n"},
		{"s3 key without secret", "s3:\n  bucket: b\n  region: r\n  access_key_id: k\n"},
		{"s3 role without token", "s3:\n  bucket: b\n  region: r\n  role_arn: arn\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "telegram:\n  api_id: 1\n  api_hash: h\n"+tt.body))
			assert.Error(t, err)
		})
	}
}

func TestFlagsExplicitlyDisabled(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "telegram:\n  api_id: 1\n  api_hash: h\n  mute_joined: false\ncrawler:\n  enabled: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.CrawlerEnabled())
	assert.False(t, cfg.MuteJoinedGroups())
}

func TestSignatureSetWithFile(t *testing.T) {
	clearEnv(t)
	sigPath := filepath.Join(t.TempDir(), "sigs.txt")
	require.NoError(t, os.WriteFile(sigPath, []byte("# extra\nsql dump\n"), 0644))

	cfg, err := Load(writeConfig(t, "telegram:\n  api_id: 1\n  api_hash: h\nsignatures: [combo]\nsignatures_file: "+sigPath+"\n"))
	require.NoError(t, err)

	set, err := cfg.SignatureSet()
	require.NoError(t, err)
	assert.Equal(t, []string{"combo", "sql dump"}, set.Terms())
}

func TestSignatureSetEmpty(t *testing.T) {
	sigPath := filepath.Join(t.TempDir(), "sigs.txt")
	require.NoError(t, os.WriteFile(sigPath, []byte("# nothing\n"), 0644))

	cfg := &Config{SignaturesFile: sigPath}
	_, err := cfg.SignatureSet()
	assert.Error(t, err)
}
