package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"mercator-hq/governor/pkg/cli"
	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/security/secrets"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// runValidate executes the validate command with the given globals.
func runValidate(t *testing.T, path, output string, full bool) (string, error) {
	t.Helper()
	cfgFile, envName = path, "development"
	validateFlags.output, validateFlags.full = output, full
	t.Cleanup(func() {
		cfgFile, envName = "", ""
		validateFlags.output, validateFlags.full = "text", false
	})

	buf := &bytes.Buffer{}
	validateCmd.SetOut(buf)
	err := validateConfig(validateCmd, nil)
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	versionCmd.Run(versionCmd, nil)

	out := buf.String()
	if !strings.Contains(out, "Governor "+Version) {
		t.Errorf("Expected version line, got %q", out)
	}
	if !strings.Contains(out, "Go Version:") {
		t.Errorf("Expected Go version line, got %q", out)
	}
}

func TestValidateCommand_Text(t *testing.T) {
	path := writeConfig(t, "queue:\n  max_concurrent: 7\n")

	out, err := runValidate(t, path, "text", false)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "7 concurrent")
}

func TestValidateCommand_JSON(t *testing.T) {
	path := writeConfig(t, "usage_control:\n  queue_enabled: false\n")

	out, err := runValidate(t, path, "json", false)
	require.NoError(t, err)

	var s configSummary
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.True(t, s.Valid)
	assert.False(t, s.QueueEnabled)
}

func TestValidateCommand_FullMasksSecrets(t *testing.T) {
	path := writeConfig(t, `
upstream:
  mode: http
  endpoint: https://ai.example.com/generate
  api_key: sk-supersecretvalue
`)

	out, err := runValidate(t, path, "yaml", true)
	require.NoError(t, err)
	assert.NotContains(t, out, "supersecretvalue")

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "sk-s***", cfg.Upstream.APIKey)
	assert.Equal(t, "https://ai.example.com/generate", cfg.Upstream.Endpoint)
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeConfig(t, "queue:\n  max_concurrent: -1\n")

	_, err := runValidate(t, path, "text", false)
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}

func TestValidateCommand_BadOutput(t *testing.T) {
	_, err := runValidate(t, "", "xml", false)
	assert.Error(t, err)
}

func TestParseSets(t *testing.T) {
	sets, err := parseSets([]string{"queue.max_concurrent=20", "usage_control.ai_path_prefixes=/ai/generate,/ai/v2"})
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "queue.max_concurrent", sets[0].key)
	assert.Equal(t, "20", sets[0].value)

	_, err = parseSets([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSets([]string{"=5"})
	assert.Error(t, err)
}

func TestApplyOverrides(t *testing.T) {
	runFlags.listenAddress = "127.0.0.1:9999"
	t.Cleanup(func() { runFlags.listenAddress = "" })

	cfg, err := applyOverrides(config.Base(), []keyValue{{key: "queue.max_concurrent", value: "20"}})
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Queue.MaxConcurrent)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.ListenAddress)

	_, err = applyOverrides(config.Base(), []keyValue{{key: "queue.max_concurrent", value: "-5"}})
	assert.Error(t, err, "overrides are validated")
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("GOVERNOR_SECRET_UPSTREAM_KEY", "sk-resolved")
	resolver, err := secrets.FromConfig(config.SecretsConfig{EnvPrefix: "GOVERNOR_SECRET_"})
	require.NoError(t, err)

	cfg := config.Base()
	cfg.Upstream.APIKey = "${secret:upstream-key}"
	out, err := resolveSecrets(resolver, cfg)
	require.NoError(t, err)
	assert.Equal(t, "sk-resolved", out.Upstream.APIKey)

	cfg.Upstream.APIKey = "${secret:missing}"
	_, err = resolveSecrets(resolver, cfg)
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}
