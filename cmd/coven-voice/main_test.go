// ABOUTME: Tests for the coven-voice command helpers
// ABOUTME: Covers config path resolution, logger setup, init output and the token command

package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-voice/internal/auth"
	"github.com/2389/coven-voice/internal/config"
	"github.com/2389/coven-voice/internal/state"
	"github.com/2389/coven-voice/internal/store"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("COVEN_VOICE_CONFIG", "/tmp/explicit.yaml")
	assert.Equal(t, "/tmp/explicit.yaml", getConfigPath())

	t.Setenv("COVEN_VOICE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "coven", "voice.yaml"), getConfigPath())
}

func TestGetDataPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	assert.Equal(t, filepath.Join("/tmp/data", "coven-voice"), getDataPath())
}

func TestBaseURL(t *testing.T) {
	t.Setenv("COVEN_VOICE_URL", "")
	cfg := &config.Config{Server: config.ServerConfig{HTTPAddr: "0.0.0.0:8080"}}
	assert.Equal(t, "http://127.0.0.1:8080", baseURL(cfg))

	cfg.Server.HTTPAddr = "10.0.0.5:9000"
	assert.Equal(t, "http://10.0.0.5:9000", baseURL(cfg))

	t.Setenv("COVEN_VOICE_URL", "https://voice.example.ts.net/")
	assert.Equal(t, "https://voice.example.ts.net", baseURL(cfg))
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "call_id", "CA1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "CA1", entry["call_id"])
}

func TestSetupLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.With("call_id", "CA1").WithGroup("turn").Debug("routed", "route", "end_call")

	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "routed")
	assert.Contains(t, out, "call_id=")
	assert.Contains(t, out, "CA1")
	assert.Contains(t, out, "turn.route=")
	assert.Contains(t, out, "end_call")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestRunInit_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coven", "voice.yaml")
	t.Setenv("COVEN_VOICE_CONFIG", path)
	t.Setenv("GROQ_API_KEY", "gsk-test")

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(""), &out))
	assert.Contains(t, out.String(), "Config written to "+path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderGroq, cfg.Model.Provider)
	assert.Equal(t, "gsk-test", cfg.Model.APIKey)
	assert.Equal(t, config.BackendMemory, cfg.Sessions.Backend)
	assert.Len(t, cfg.Auth.JWTSecret, 64)
}

func TestRunInit_SQLiteAnswers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice.yaml")
	t.Setenv("COVEN_VOICE_CONFIG", path)
	t.Setenv("XDG_DATA_HOME", dir)

	answers := strings.Join([]string{
		"",                          // config path
		"127.0.0.1:9090",            // http
		"127.0.0.1:9091",            // grpc
		"https://voice.example.com", // public url
		"no",                        // tailscale
		"AC123",                     // account sid
		"secret",                    // auth token
		"+15550001111",              // phone number
		"yes",                       // validate signatures
		"openai",                    // provider
		"sk-test",                   // api key
		"rules",                     // supervisor
		"sqlite",                    // backend
		"",                          // sqlite path
		"debug",                     // level
		"json",                      // format
	}, "\n") + "\n"

	require.NoError(t, runInit(strings.NewReader(answers), &bytes.Buffer{}))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "https://voice.example.com", cfg.Server.PublicURL)
	assert.True(t, cfg.TwilioEnabled())
	assert.True(t, cfg.Twilio.ValidateSignatures)
	assert.Equal(t, config.SupervisorRules, cfg.Supervisor.Mode)
	assert.Equal(t, filepath.Join(dir, "coven-voice", "sessions.db"), cfg.Sessions.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestRunInit_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0600))
	t.Setenv("COVEN_VOICE_CONFIG", path)

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader("\nno\n"), &out))
	assert.Contains(t, out.String(), "Aborted.")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestRunToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.yaml")
	cfgYAML := "supervisor:\n  mode: rules\nauth:\n  jwt_secret: \"s3cret\"\n"
	require.NoError(t, os.WriteFile(path, []byte(cfgYAML), 0600))
	t.Setenv("COVEN_VOICE_CONFIG", path)

	var out bytes.Buffer
	require.NoError(t, runToken([]string{"-subject", "alice", "-ttl", "1h"}, &out))

	subject, err := auth.NewJWTVerifier([]byte("s3cret")).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}

func TestRunToken_NoSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("supervisor:\n  mode: rules\n"), 0600))
	t.Setenv("COVEN_VOICE_CONFIG", path)

	err := runToken(nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestPrintCalls(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printCalls(&buf, nil))
	assert.Equal(t, "no active calls\n", buf.String())

	buf.Reset()
	now := time.Now()
	require.NoError(t, printCalls(&buf, []store.Summary{
		{CallID: "CA1", Stage: state.StageDiscovery, TurnCount: 3, CreatedAt: now, LastAccess: now},
	}))
	out := buf.String()
	assert.Contains(t, out, "CALL")
	assert.Contains(t, out, "CA1")
	assert.Contains(t, out, string(state.StageDiscovery))
}
