package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Evolution.NewNodeProbability = 1.5
	cfg.Fitness.ScoreWeight = -0.1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestFileSourceOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evoflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runner:
  max_total_node_invocations: 7
  node_timeout: 30s
evolution:
  generations: 12
  crossover_probability: 0.8
fitness:
  cost_weight: 0.5
`), 0o644))

	cfg, err := LoadDefault(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Runner.MaxTotalNodeInvocations)
	assert.Equal(t, 30*time.Second, cfg.Runner.NodeTimeout)
	assert.Equal(t, 12, cfg.Evolution.Generations)
	assert.InDelta(t, 0.8, cfg.Evolution.CrossoverProbability, 1e-9)
	assert.InDelta(t, 0.5, cfg.Fitness.CostWeight, 1e-9)
	// Untouched fields keep their defaults.
	assert.Equal(t, 8, cfg.Evolution.PopulationSize)
}

func TestFileSourceMissingFileSkipped(t *testing.T) {
	cfg, err := LoadDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Evolution, cfg.Evolution)
}

func TestFileSourceRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runner: ["), 0o644))

	_, err := LoadDefault(path)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestEnvironmentSourceOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evoflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("evolution:\n  generations: 12\n"), 0o644))

	t.Setenv("EVOFLOW_EVOLUTION_GENERATIONS", "3")
	t.Setenv("EVOFLOW_GATEWAY_API_KEY", "sk-test")
	t.Setenv("EVOFLOW_RUNNER_RATE_WINDOW", "90s")
	t.Setenv("EVOFLOW_TOOLS_UNIQUE_TOOLS", "false")

	cfg, err := LoadDefault(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Evolution.Generations)
	assert.Equal(t, "sk-test", cfg.Gateway.APIKey)
	assert.Equal(t, 90*time.Second, cfg.Runner.RateWindow)
	assert.False(t, cfg.Tools.UniqueTools)
}

func TestEnvironmentSourceIgnoresUnknownKeys(t *testing.T) {
	t.Setenv("EVOFLOW_SOMETHING_ELSE", "whatever")
	_, err := LoadDefault()
	assert.NoError(t, err)
}

func TestEnvironmentSourceRejectsBadValue(t *testing.T) {
	t.Setenv("EVOFLOW_EVOLUTION_GENERATIONS", "many")
	_, err := LoadDefault()
	require.Error(t, err)
	assert.Equal(t, errors.InvalidInput, errors.Code(err))
}

func TestLoadValidatesMergedResult(t *testing.T) {
	t.Setenv("EVOFLOW_EVOLUTION_POPULATION_SIZE", "0")
	_, err := LoadDefault()
	require.Error(t, err)
	assert.Equal(t, errors.ValidationFailed, errors.Code(err))
}
