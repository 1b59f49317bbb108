package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultControlAddr, cfg.GetControlAddr())
	assert.Equal(t, DefaultTelemetryAddr, cfg.GetTelemetryAddr())
	assert.Equal(t, DefaultStatusAddr, cfg.GetStatusAddr())
	assert.Equal(t, DefaultAdminListen, cfg.GetAdminListen())
	assert.Equal(t, time.Millisecond, cfg.GetPollInterval())
	assert.Equal(t, time.Second/60, cfg.GetTickInterval())
	assert.Equal(t, 30*time.Second, cfg.GetStatsInterval())
	assert.Equal(t, DefaultJournalPath, cfg.GetJournalPath())
	assert.False(t, cfg.GetRecordPoses())
	assert.Equal(t, "diag", cfg.GetLogLevel())
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	empty := &Config{}
	def := Default()

	assert.Equal(t, def.GetControlAddr(), empty.GetControlAddr())
	assert.Equal(t, def.GetTickInterval(), empty.GetTickInterval())
	assert.Equal(t, def.GetJournalPath(), empty.GetJournalPath())
	assert.Equal(t, def.GetLogLevel(), empty.GetLogLevel())
}

func TestDefaultsFileMatchesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("%s drifted from Default() (-want +got):\n%s", DefaultConfigPath, diff)
	}
}

func TestLoad_JSONPartial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
  "control_addr": "0.0.0.0:20003",
  "tick_interval": "10ms",
  "record_poses": true
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:20003", cfg.GetControlAddr())
	assert.Equal(t, DefaultTelemetryAddr, cfg.GetTelemetryAddr())
	assert.Equal(t, 10*time.Millisecond, cfg.GetTickInterval())
	assert.True(t, cfg.GetRecordPoses())
	assert.Nil(t, cfg.StatusAddr)
}

func TestLoad_YAML(t *testing.T) {
	for _, name := range []string{"bridge.yaml", "bridge.YML"} {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, name, `
status_addr: 10.0.0.5:10006
poll_interval: 2ms
journal_path: ""
admin_listen: ""
log_level: trace
`)
			cfg, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, "10.0.0.5:10006", cfg.GetStatusAddr())
			assert.Equal(t, 2*time.Millisecond, cfg.GetPollInterval())
			assert.Empty(t, cfg.GetJournalPath(), "explicit empty path disables the journal")
			assert.Empty(t, cfg.GetAdminListen())
			assert.Equal(t, "trace", cfg.GetLogLevel())
		})
	}
}

func TestLoad_ExampleYAML(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "simbridge.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.GetStatsInterval())
	assert.True(t, cfg.GetRecordPoses())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"extension", "bridge.toml", `x = 1`, "extension"},
		{"bad json", "bad.json", `{`, "failed to parse"},
		{"bad yaml", "bad.yaml", "control_addr: [", "failed to parse"},
		{"bad address", "addr.json", `{"control_addr": "10003"}`, "control_addr"},
		{"bad duration", "dur.json", `{"poll_interval": "soon"}`, "poll_interval"},
		{"zero tick", "tick.json", `{"tick_interval": "0s"}`, "tick_interval must be positive"},
		{"negative stats", "stats.json", `{"stats_interval": "-1s"}`, "stats_interval"},
		{"same ports", "same.json", `{"control_addr": "127.0.0.1:9000", "telemetry_addr": "127.0.0.1:9000"}`, "must differ"},
		{"status collides", "status.json", `{"status_addr": "127.0.0.1:10003"}`, "status_addr"},
		{"log level", "level.json", `{"log_level": "loud"}`, "log_level"},
		{"admin listen", "admin.json", `{"admin_listen": "8086"}`, "admin_listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to stat")
}

func TestLoad_TooLarge(t *testing.T) {
	big := `{"log_level": "diag", "pad": "` + strings.Repeat("x", maxFileSize) + `"}`
	_, err := Load(writeConfig(t, "big.json", big))
	assert.ErrorContains(t, err, "too large")
}

func TestValidate_EphemeralPortsMayRepeat(t *testing.T) {
	cfg := &Config{
		ControlAddr:   ptrString("127.0.0.1:0"),
		TelemetryAddr: ptrString("127.0.0.1:0"),
	}
	assert.NoError(t, cfg.Validate())
}

func TestGetDuration_FallsBackOnGarbage(t *testing.T) {
	cfg := &Config{PollInterval: ptrString("garbage"), StatsInterval: ptrString("0s")}
	assert.Equal(t, DefaultPollInterval, cfg.GetPollInterval())
	assert.Zero(t, cfg.GetStatsInterval())
}
