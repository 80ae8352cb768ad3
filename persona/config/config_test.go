package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/persona-rag/persona"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
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

	suite.tempDir = suite.T().TempDir()

	// Change to temp directory so no stray ./config.yaml is picked up
	err = os.Chdir(suite.tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		_ = os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultDatabaseDSN, cfg.Database.DSN)
	assert.Equal(suite.T(), internal.DefaultDatabaseType, cfg.Database.Type)
	assert.Equal(suite.T(), "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(suite.T(), float32(0), cfg.LLM.Temperature)
	assert.Equal(suite.T(), "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(suite.T(), internal.DefaultEmbeddingDims, cfg.Embedding.Dims)
	assert.Equal(suite.T(), internal.DefaultMaxIterations, cfg.Harness.MaxIterations)
	assert.Equal(suite.T(), internal.DefaultHistoryWindow, cfg.Harness.HistoryWindow)
	assert.Equal(suite.T(), 30*time.Second, cfg.Harness.ToolTimeout)
	assert.Equal(suite.T(), 0, cfg.Harness.MaxContextTokens)
	assert.Equal(suite.T(), 10000, cfg.Harness.RateLimitMaxKeys)
	assert.Equal(suite.T(), 1000, cfg.Ingest.ChunkSize)
	assert.Equal(suite.T(), 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(suite.T(), "cosine", cfg.Memory.Distance)
	assert.Equal(suite.T(), []string{"curriculo", "resume"}, cfg.Tools.ResumeKeywords)
	assert.Contains(suite.T(), cfg.Server.CORSOrigins, "http://localhost:3000")
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
server:
  addr: ":8080"
  request_timeout: 15s
llm:
  model: "gpt-4.1-mini"
  temperature: 0.2
harness:
  max_iterations: 3
  history_window: 6
tools:
  thesis_source: "thesis.pdf"
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), ":8080", cfg.Server.Addr)
	assert.Equal(suite.T(), 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(suite.T(), "gpt-4.1-mini", cfg.LLM.Model)
	assert.InDelta(suite.T(), 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(suite.T(), 3, cfg.Harness.MaxIterations)
	assert.Equal(suite.T(), 6, cfg.Harness.HistoryWindow)
	assert.Equal(suite.T(), "thesis.pdf", cfg.Tools.ThesisSource)
	// untouched keys keep their defaults
	assert.Equal(suite.T(), "potencial_hidrodinamica_completo.pdf", cfg.Tools.ResearchReportSource)
}

func (suite *ConfigTestSuite) TestLoadConfigFromEnv() {
	suite.T().Setenv("LLM_API_KEY", "sk-test")
	suite.T().Setenv("HARNESS_MAX_ITERATIONS", "7")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "sk-test", cfg.LLM.APIKey)
	assert.Equal(suite.T(), 7, cfg.Harness.MaxIterations)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
server:
  addr: ":8080"
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	err := os.WriteFile(configFile, []byte(malformedContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsInvalidValues() {
	configContent := `
memory:
  distance: "dot"
`
	configFile := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configFile, []byte(configContent), 0o644))

	cfg, err := LoadConfig(configFile)
	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
	assert.Contains(suite.T(), err.Error(), "memory.distance")
}

func (suite *ConfigTestSuite) TestAppConfigGlobal() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), cfg.LLM.Model, AppConfig.LLM.Model)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Database:  DatabaseConfig{Type: "libsql"},
		Embedding: EmbeddingConfig{Dims: 1536},
		Memory:    MemoryConfig{Distance: "l2"},
		Ingest:    IngestConfig{ChunkSize: 1000, ChunkOverlap: 200},
	}
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.Ingest.ChunkOverlap = 1000
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Embedding.Dims = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Database.Type = "postgres"
	assert.Error(t, bad.Validate())
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for b.Loop() {
		cfg, err := LoadConfig("")
		if err != nil {
			b.Fatal(err)
		}
		_ = cfg
	}
}
