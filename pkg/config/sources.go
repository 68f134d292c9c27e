package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// Source loads configuration from one origin. Higher priority sources
// override lower ones.
type Source interface {
	Load(cfg *Config, paths []string) error
	Name() string
	Priority() int
}

// FileSource loads YAML configuration files. Missing files are skipped
// so callers can pass a search path.
type FileSource struct {
	priority int
}

// NewFileSource creates a file source at the default priority.
func NewFileSource() *FileSource {
	return &FileSource{priority: 100}
}

func (fs *FileSource) Name() string  { return "file" }
func (fs *FileSource) Priority() int { return fs.priority }

func (fs *FileSource) Load(cfg *Config, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrap(err, errors.InvalidInput, "reading config file "+path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return errors.Wrap(err, errors.InvalidInput, "parsing config file "+path)
		}
	}
	return nil
}

// EnvironmentSource overrides configuration from EVOFLOW_* environment
// variables, e.g. EVOFLOW_EVOLUTION_GENERATIONS=10.
type EnvironmentSource struct {
	priority int
	prefix   string
}

// NewEnvironmentSource creates an environment source that overrides the
// file source.
func NewEnvironmentSource() *EnvironmentSource {
	return &EnvironmentSource{priority: 200, prefix: "EVOFLOW_"}
}

// NewEnvironmentSourceWithPrefix creates an environment source with a
// custom variable prefix.
func NewEnvironmentSourceWithPrefix(prefix string) *EnvironmentSource {
	return &EnvironmentSource{priority: 200, prefix: prefix}
}

func (es *EnvironmentSource) Name() string  { return "environment" }
func (es *EnvironmentSource) Priority() int { return es.priority }

func (es *EnvironmentSource) Load(cfg *Config, _ []string) error {
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, es.prefix) {
			continue
		}
		if err := es.apply(cfg, strings.TrimPrefix(key, es.prefix), value); err != nil {
			return errors.Wrap(err, errors.InvalidInput, "applying environment variable "+key)
		}
	}
	return nil
}

// apply maps one trimmed variable name onto its config field. Unknown
// names are ignored so unrelated EVOFLOW_* variables do not break
// loading.
func (es *EnvironmentSource) apply(cfg *Config, name, value string) error {
	switch name {
	case "RUNNER_MAX_TOTAL_NODE_INVOCATIONS":
		return setInt(&cfg.Runner.MaxTotalNodeInvocations, value)
	case "RUNNER_MAX_PER_NODE_INVOCATIONS":
		return setInt(&cfg.Runner.MaxPerNodeInvocations, value)
	case "RUNNER_MAX_RETRIES_FOR_WORKFLOW_REPAIR":
		return setInt(&cfg.Runner.MaxRetriesForWorkflowRepair, value)
	case "RUNNER_NODE_TIMEOUT":
		return setDuration(&cfg.Runner.NodeTimeout, value)
	case "RUNNER_MAX_PARALLEL_NODES":
		return setInt(&cfg.Runner.MaxParallelNodes, value)
	case "RUNNER_MAX_CONCURRENT_WORKFLOWS":
		return setInt(&cfg.Runner.MaxConcurrentWorkflows, value)
	case "RUNNER_MAX_REQUESTS_PER_WINDOW":
		return setInt(&cfg.Runner.MaxRequestsPerWindow, value)
	case "RUNNER_RATE_WINDOW":
		return setDuration(&cfg.Runner.RateWindow, value)

	case "EVOLUTION_POPULATION_SIZE":
		return setInt(&cfg.Evolution.PopulationSize, value)
	case "EVOLUTION_GENERATIONS":
		return setInt(&cfg.Evolution.Generations, value)
	case "EVOLUTION_NEW_NODE_PROBABILITY":
		return setFloat(&cfg.Evolution.NewNodeProbability, value)
	case "EVOLUTION_TOURNAMENT_SIZE":
		return setInt(&cfg.Evolution.TournamentSize, value)
	case "EVOLUTION_MAX_COST_USD":
		return setFloat(&cfg.Evolution.MaxCostUSD, value)
	case "EVOLUTION_MAX_DURATION":
		return setDuration(&cfg.Evolution.MaxDuration, value)
	case "EVOLUTION_MUTATION_MODEL":
		cfg.Evolution.MutationModel = value
	case "EVOLUTION_SIMILARITY_THRESHOLD":
		return setFloat(&cfg.Evolution.SimilarityThreshold, value)

	case "FITNESS_SCORE_WEIGHT":
		return setFloat(&cfg.Fitness.ScoreWeight, value)
	case "FITNESS_TIME_WEIGHT":
		return setFloat(&cfg.Fitness.TimeWeight, value)
	case "FITNESS_COST_WEIGHT":
		return setFloat(&cfg.Fitness.CostWeight, value)
	case "FITNESS_TIME_BASELINE":
		return setDuration(&cfg.Fitness.TimeBaseline, value)
	case "FITNESS_COST_BASELINE_USD":
		return setFloat(&cfg.Fitness.CostBaselineUSD, value)

	case "TOOLS_MAX_TOOLS_PER_AGENT":
		return setInt(&cfg.Tools.MaxToolsPerAgent, value)
	case "TOOLS_UNIQUE_TOOLS":
		return setBool(&cfg.Tools.UniqueTools, value)

	case "GATEWAY_PROVIDER":
		cfg.Gateway.Provider = value
	case "GATEWAY_API_KEY":
		cfg.Gateway.APIKey = value
	case "GATEWAY_BASE_URL":
		cfg.Gateway.BaseURL = value
	case "GATEWAY_MAX_TOKENS":
		return setInt(&cfg.Gateway.MaxTokens, value)

	case "STORAGE_DRIVER":
		cfg.Storage.Driver = value
	case "STORAGE_PATH":
		cfg.Storage.Path = value

	case "LOGGING_LEVEL":
		cfg.Logging.Level = strings.ToLower(value)
	case "LOGGING_FILE_PATH":
		cfg.Logging.FilePath = value
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setBool(dst *bool, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
