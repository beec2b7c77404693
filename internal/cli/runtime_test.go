package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/tablekit/internal/config"
	"github.com/vvka-141/tablekit/internal/logging"
	"github.com/vvka-141/tablekit/pkg/tablekit"
)

// newFlagCommand mirrors the persistent flags of rootCmd.
func newFlagCommand(configDir, connection, logFormat string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("verbose", false, "")
	cmd.Flags().String("log-format", logFormat, "")
	cmd.Flags().String("config-dir", configDir, "")
	cmd.Flags().String("connection", connection, "")
	return cmd
}

func writeProjectConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(content), 0o644))
	return dir
}

func TestLoadProjectConfig_Missing(t *testing.T) {
	cfg, err := loadProjectConfig(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadProjectConfig_Invalid(t *testing.T) {
	dir := writeProjectConfig(t, "pool: [not, a, map]\n")
	_, err := loadProjectConfig(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, tablekit.ErrInvalidConfig)
}

func TestBuildSettings_FromProjectConfig(t *testing.T) {
	t.Setenv(config.ConnectionEnvVar, "")
	dir := writeProjectConfig(t, `connection: postgres://app@db.internal/schools
log_format: json
timeout: 90s
pool:
  max_sessions: 8
retry:
  max_attempts: 3
pagination:
  page_size: 5
  strategy: tuple
classification:
  OVERLOADED:
    class: fatal
`)

	s, err := buildSettings(newFlagCommand(dir, "", ""), 0)
	require.NoError(t, err)

	assert.Equal(t, "postgres://app@db.internal/schools", s.connString)
	assert.IsType(t, &logging.ZapLogger{}, s.logger)
	assert.Equal(t, 90*time.Second, s.timeout)
	assert.Equal(t, 8, s.pool.MaxSessions)
	assert.Equal(t, 3, s.policy.MaxAttempts)
	assert.Equal(t, 5, s.paging.PageSize)
	assert.Equal(t, tablekit.ClassFatal, s.classifier.Classify(tablekit.NewStatusError(tablekit.StatusOverloaded, "busy")).Class)
}

func TestBuildSettings_FlagsWin(t *testing.T) {
	t.Setenv(config.ConnectionEnvVar, "postgres://env/db")
	dir := writeProjectConfig(t, "connection: postgres://file/db\nlog_format: json\ntimeout: 90s\n")

	s, err := buildSettings(newFlagCommand(dir, "postgres://flag/db", "plain"), 2*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "postgres://flag/db", s.connString)
	assert.IsType(t, &logging.ConsoleLogger{}, s.logger)
	assert.Equal(t, 2*time.Second, s.timeout)
}

func TestBuildSettings_EnvBeatsFile(t *testing.T) {
	t.Setenv(config.ConnectionEnvVar, "postgres://env/db")
	dir := writeProjectConfig(t, "connection: postgres://file/db\n")

	s, err := buildSettings(newFlagCommand(dir, "", ""), 0)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", s.connString)
	assert.Equal(t, DefaultCommandTimeout, s.timeout)
}

func TestBuildSettings_InvalidSections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"pool", "pool:\n  acquire_timeout: soon\n"},
		{"retry", "retry:\n  jitter: 2\n"},
		{"classification", "classification:\n  NOT_A_STATUS:\n    class: fatal\n"},
		{"pagination", "pagination:\n  read_mode: rw\n"},
		{"timeout", "timeout: forever\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildSettings(newFlagCommand(writeProjectConfig(t, tt.yaml), "", ""), 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tablekit.ErrInvalidConfig)
		})
	}
}

func TestResolveEffectiveTimeout(t *testing.T) {
	timeout, err := resolveEffectiveTimeout(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultCommandTimeout, timeout)

	timeout, err = resolveEffectiveTimeout(&config.ProjectConfig{Timeout: "30s"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)

	timeout, err = resolveEffectiveTimeout(&config.ProjectConfig{Timeout: "30s"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, timeout)
}

func TestCommandContext_AppliesTimeout(t *testing.T) {
	ctx, cancel := commandContext(time.Minute)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestOpenApp_RequiresConnection(t *testing.T) {
	t.Setenv(config.ConnectionEnvVar, "")
	s, err := buildSettings(newFlagCommand(t.TempDir(), "", ""), 0)
	require.NoError(t, err)

	_, err = openApp(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, tablekit.ErrInvalidConfig)
	assert.Contains(t, err.Error(), config.ConnectionEnvVar)
}
