package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestDefaultsAreValid(t *testing.T) {
	for _, env := range []Environment{Development, Test, Staging} {
		assert.NoError(t, Default(env).Validate(), env)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default(Production)
	cfg.Server.Port = 0
	cfg.Email.Transport = "smtp"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.port", "email.transport", "webhook_secret", "private_key", "cors.allowed_origins"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParameterNames(t *testing.T) {
	t.Run("SatisfyProductionSecrets", func(t *testing.T) {
		cfg := Default(Production)
		cfg.CORS.AllowedOrigins = []string{"https://history.newtheatre.org.uk"}
		cfg.Email.Transport = "ses"
		cfg.Parameters.Enabled = true
		cfg.Auth.PrivateKeyParameter = "/lumina/jwt/private"
		cfg.GitHub.WebhookSecretParameter = "/lumina/github/webhook-secret"

		assert.NoError(t, cfg.Validate())
	})

	t.Run("RequireParameterStore", func(t *testing.T) {
		cfg := Default(Staging)
		cfg.GitHub.TokenParameter = "/lumina/github/access-token"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parameters.enabled")
	})
}

func TestTableName(t *testing.T) {
	db := Database{BaseName: "LuminaMember"}
	assert.Equal(t, "LuminaMember-staging", db.TableName(Staging))

	db.Table = "Explicit"
	assert.Equal(t, "Explicit", db.TableName(Staging))
}

func TestLoaderLayers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: 9000
logging:
  level: warn
github:
  repo: lumina
`)
	writeFile(t, dir, "staging.yaml", `
server:
  port: 9100
database:
  timeout: 2s
`)
	writeFile(t, dir, "local.yaml", `
server:
  port: 1
`)

	cfg, err := NewLoader(dir, map[string]string{
		"LUMINA_ENVIRONMENT":          "staging",
		"LUMINA_LOGGING_LEVEL":        "debug",
		"LUMINA_CORS_ALLOWED_ORIGINS": "https://a.example,https://b.example",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, Staging, cfg.Environment)
	assert.Equal(t, 9100, cfg.Server.Port, "environment file beats base, local.yaml ignored outside development")
	assert.Equal(t, 2*time.Second, cfg.Database.Timeout)
	assert.Equal(t, "lumina", cfg.GitHub.Repo)
	assert.Equal(t, "debug", cfg.Logging.Level, "env beats files")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "LuminaMember-staging", cfg.Database.TableName(cfg.Environment))
	assert.Equal(t, []string{"defaults", filepath.Join(dir, "base.yaml"), filepath.Join(dir, "staging.yaml"), "env"}, cfg.LoadedFrom)
}

func TestLoaderLocalOverridesInDevelopment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "local.json", `{"server": {"port": 7000}}`)

	cfg, err := NewLoader(dir, map[string]string{}).Load()
	require.NoError(t, err)
	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoaderRejects(t *testing.T) {
	t.Run("UnknownKey", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "serverr:\n  port: 1\n")
		_, err := NewLoader(dir, map[string]string{}).Load()
		assert.Error(t, err)
	})

	t.Run("FileChangesEnvironment", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "environment: production\n")
		_, err := NewLoader(dir, map[string]string{}).Load()
		assert.ErrorContains(t, err, "environment")
	})

	t.Run("BadEnvValue", func(t *testing.T) {
		_, err := NewLoader(t.TempDir(), map[string]string{"LUMINA_SERVER_PORT": "eighty"}).Load()
		assert.Error(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := NewLoader(t.TempDir(), map[string]string{"LUMINA_ENVIRONMENT": "production"}).Load()
		assert.ErrorContains(t, err, "invalid configuration")
	})
}

func TestMissingDirectoryUsesDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent"), map[string]string{}).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 90*24*time.Hour, cfg.Auth.TokenTTL)
}

func TestWatcherReloadsLogLevel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "logging:\n  level: info\n")

	loader := NewLoader(dir, map[string]string{})
	cfg, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	WatchLogLevel(w, level, func(s string) zapcore.Level {
		var l zapcore.Level
		_ = l.UnmarshalText([]byte(s))
		return l
	})

	writeFile(t, dir, "base.yaml", "logging:\n  level: debug\n")

	require.Eventually(t, func() bool {
		return level.Level() == zapcore.DebugLevel
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "debug", w.Config().Logging.Level)
}

func TestWatcherKeepsConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir, map[string]string{})
	cfg, err := loader.Load()
	require.NoError(t, err)

	w, err := NewWatcher(loader, cfg, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, dir, "base.yaml", "server:\n  port: -1\n")
	w.reload()
	assert.Same(t, cfg, w.Config())
}

func TestWatcherInertOutsideDevelopment(t *testing.T) {
	cfg := Default(Staging)
	w, err := NewWatcher(NewLoader(t.TempDir(), map[string]string{"LUMINA_ENVIRONMENT": "staging"}), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, w.fsw)
	assert.NoError(t, w.Close())
}
