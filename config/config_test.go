package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir, err = os.MkdirTemp("", "stella-config-test-*")
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) writeFile(name, content string) string {
	path := filepath.Join(suite.tempDir, name)
	require.NoError(suite.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (suite *ConfigTestSuite) TestLoadDefaults() {
	cfg, err := Load("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "gemini", cfg.Provider)
	assert.Empty(suite.T(), cfg.ModelName)
	assert.Empty(suite.T(), cfg.BaseURL)
	assert.Equal(suite.T(), DefaultPath, cfg.Path)
	assert.Equal(suite.T(), LoopConfig{
		SendTimeout:         2 * time.Minute,
		CommandTimeout:      2 * time.Minute,
		MaxRetries:          2,
		LoopDetectionWindow: 6,
	}, cfg.Loop, "max_output_chars defaults to 0 so per-tool limits apply")
	assert.Equal(suite.T(), LogConfig{Level: "info", Format: "console"}, cfg.Log)
}

func (suite *ConfigTestSuite) TestLoadFile() {
	path := suite.writeFile("custom.yaml", `
provider: openai
model_name: gpt-4o
loop:
  send_timeout: 30s
  max_turns: 50
log:
  format: json
`)

	cfg, err := Load(path)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "openai", cfg.Provider)
	assert.Equal(suite.T(), "gpt-4o", cfg.ModelName)
	assert.Equal(suite.T(), 30*time.Second, cfg.Loop.SendTimeout)
	assert.Equal(suite.T(), 50, cfg.Loop.MaxTurns)
	assert.Equal(suite.T(), 2*time.Minute, cfg.Loop.CommandTimeout, "unset keys keep defaults")
	assert.Equal(suite.T(), "json", cfg.Log.Format)
	assert.Equal(suite.T(), path, cfg.Path)
}

func (suite *ConfigTestSuite) TestEnvironmentOverridesFile() {
	path := suite.writeFile("stella.yaml", "provider: openai\nloop:\n  max_turns: 5\n")
	suite.T().Setenv("STELLA_PROVIDER", "anthropic")
	suite.T().Setenv("STELLA_LOOP_MAX_TURNS", "9")
	suite.T().Setenv("STELLA_LOOP_ASK_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "anthropic", cfg.Provider)
	assert.Equal(suite.T(), 9, cfg.Loop.MaxTurns)
	assert.Equal(suite.T(), 45*time.Second, cfg.Loop.AskTimeout)
}

func (suite *ConfigTestSuite) TestDotEnvIsLoaded() {
	suite.writeFile(".env", "STELLA_MODEL_NAME=from-dotenv\n")
	suite.T().Cleanup(func() { os.Unsetenv("STELLA_MODEL_NAME") })

	cfg, err := Load("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "from-dotenv", cfg.ModelName)
}

func (suite *ConfigTestSuite) TestMalformedDotEnvFails() {
	suite.writeFile(".env", "STELLA_MODEL_NAME=\"unterminated\n")

	_, err := Load("")
	assert.ErrorContains(suite.T(), err, "load .env")
}

func (suite *ConfigTestSuite) TestModelOverrides() {
	suite.T().Setenv("STELLA_PROVIDER", "")
	suite.T().Setenv("STELLA_MODEL_NAME", "")
	os.Unsetenv("STELLA_PROVIDER")
	os.Unsetenv("STELLA_MODEL_NAME")
	assert.Empty(suite.T(), ModelOverrides())

	suite.T().Setenv("STELLA_MODEL_NAME", "pinned")
	assert.Equal(suite.T(), []string{"STELLA_MODEL_NAME"}, ModelOverrides())

	suite.T().Setenv("STELLA_PROVIDER", "openai")
	assert.Equal(suite.T(), []string{"STELLA_PROVIDER", "STELLA_MODEL_NAME"}, ModelOverrides())
}

func (suite *ConfigTestSuite) TestLoadRejectsInvalidValues() {
	path := suite.writeFile("bad.yaml", "log:\n  format: xml\n")
	_, err := Load(path)
	assert.ErrorContains(suite.T(), err, "log.format")

	path = suite.writeFile("negative.yaml", "loop:\n  max_turns: -1\n")
	_, err = Load(path)
	assert.ErrorContains(suite.T(), err, "loop.max_turns")

	path = suite.writeFile("broken.yaml", "provider: [unterminated\n")
	_, err = Load(path)
	assert.Error(suite.T(), err)
}

func (suite *ConfigTestSuite) TestSaveCreatesFile() {
	path := filepath.Join(suite.tempDir, "new.yaml")
	require.NoError(suite.T(), SaveModel(path, "openai", "gpt-4o"))

	info, err := os.Stat(path)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), os.FileMode(0o640), info.Mode().Perm())

	cfg, err := Load(path)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "openai", cfg.Provider)
	assert.Equal(suite.T(), "gpt-4o", cfg.ModelName)
}

func (suite *ConfigTestSuite) TestSaveMergesExistingDocument() {
	path := suite.writeFile("stella.yaml", `# my settings
provider: gemini
loop:
  max_turns: 7
`)

	require.NoError(suite.T(), SaveModel(path, "anthropic", "claude-sonnet-4-5"))

	data, err := os.ReadFile(path)
	require.NoError(suite.T(), err)
	assert.Contains(suite.T(), string(data), "# my settings")

	var got map[string]interface{}
	require.NoError(suite.T(), yaml.Unmarshal(data, &got))
	assert.Equal(suite.T(), "anthropic", got["provider"])
	assert.Equal(suite.T(), "claude-sonnet-4-5", got["model_name"])
	assert.Equal(suite.T(), map[string]interface{}{"max_turns": 7}, got["loop"])

	entries, err := os.ReadDir(suite.tempDir)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), entries, 1, "no temp files left behind")
}

func (suite *ConfigTestSuite) TestSaveRejectsNonMapping() {
	path := suite.writeFile("list.yaml", "- a\n- b\n")
	err := Save(path, map[string]string{"provider": "openai"})
	assert.ErrorContains(suite.T(), err, "not a mapping")
}
