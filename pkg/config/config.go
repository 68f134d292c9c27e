package config

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// Config is the complete configuration for the evoflow system.
type Config struct {
	// Runner bounds individual workflow runs.
	Runner RunnerConfig `yaml:"runner" validate:"required"`

	// Evolution controls the generation loop.
	Evolution EvolutionConfig `yaml:"evolution" validate:"required"`

	// Fitness holds the scoring weights and baselines.
	Fitness FitnessConfig `yaml:"fitness" validate:"required"`

	// Tools bounds per-node tool sets during validation.
	Tools ToolsConfig `yaml:"tools,omitempty"`

	// Gateway configures the model provider.
	Gateway GatewayConfig `yaml:"gateway,omitempty"`

	// Storage selects the persistence backend.
	Storage StorageConfig `yaml:"storage,omitempty"`

	// Logging configures log level and destinations.
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// RunnerConfig holds the workflow scheduler limits.
type RunnerConfig struct {
	// Maximum node invocations across one run. Zero means unlimited.
	MaxTotalNodeInvocations int `yaml:"max_total_node_invocations" validate:"min=0"`

	// Maximum invocations of any single node within one run.
	MaxPerNodeInvocations int `yaml:"max_per_node_invocations" validate:"min=0"`

	// Retries for repairable (malformed structured output) failures.
	MaxRetriesForWorkflowRepair int `yaml:"max_retries_for_workflow_repair" validate:"min=0"`

	// Timeout for a single node invocation.
	NodeTimeout time.Duration `yaml:"node_timeout" validate:"min=0"`

	// Concurrent node invocations within one run.
	MaxParallelNodes int `yaml:"max_parallel_nodes" validate:"min=1"`

	// Concurrent workflow runs across the process.
	MaxConcurrentWorkflows int `yaml:"max_concurrent_workflows" validate:"min=1"`

	// Sliding-window AI request limit. Zero requests disables limiting.
	// This is the single bound on gateway traffic: a window limit also
	// caps how many AI requests can be outstanding at once, so there is
	// no separate concurrent-request knob.
	MaxRequestsPerWindow int           `yaml:"max_requests_per_window" validate:"min=0"`
	RateWindow           time.Duration `yaml:"rate_window" validate:"min=0"`
}

// EvolutionConfig holds the generation-loop settings.
type EvolutionConfig struct {
	PopulationSize int `yaml:"population_size" validate:"min=1"`
	Generations    int `yaml:"generations" validate:"min=1"`

	// Probability that an offspring is produced by mutation that adds a
	// fresh node rather than by crossover alone.
	NewNodeProbability float64 `yaml:"new_node_probability" validate:"min=0,max=1"`

	TournamentSize int `yaml:"tournament_size" validate:"min=1"`

	// Probability that an offspring is bred from two parents instead of
	// mutated from one. Zero disables crossover entirely.
	CrossoverProbability float64 `yaml:"crossover_probability" validate:"min=0,max=1"`

	// Spend ceiling for a whole evolution run. Zero means unlimited.
	MaxCostUSD float64 `yaml:"max_cost_usd" validate:"min=0"`

	// Wall-clock ceiling for a whole evolution run. Zero means unlimited.
	MaxDuration time.Duration `yaml:"max_duration" validate:"min=0"`

	// Model used for LLM-guided mutation and crossover.
	MutationModel string `yaml:"mutation_model"`

	// Genomes above this prompt-similarity are pruned as duplicates.
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"min=0,max=1"`
}

// FitnessConfig holds scoring weights and normalization baselines. Each
// weight lives in [0,1]; the weights are deliberately not required to
// sum to one.
type FitnessConfig struct {
	ScoreWeight float64 `yaml:"score_weight" validate:"min=0,max=1"`
	TimeWeight  float64 `yaml:"time_weight" validate:"min=0,max=1"`
	CostWeight  float64 `yaml:"cost_weight" validate:"min=0,max=1"`

	// Baselines a run is measured against: a run at the baseline scores
	// zero on that component, a free or instant run scores full marks.
	TimeBaseline    time.Duration `yaml:"time_baseline" validate:"min=0"`
	CostBaselineUSD float64       `yaml:"cost_baseline_usd" validate:"min=0"`
}

// ToolsConfig bounds node tool sets.
type ToolsConfig struct {
	MaxToolsPerAgent int  `yaml:"max_tools_per_agent" validate:"min=0"`
	UniqueTools      bool `yaml:"unique_tools"`
}

// GatewayConfig configures the model provider adapter.
type GatewayConfig struct {
	Provider  string `yaml:"provider" validate:"omitempty,oneof=anthropic"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty" validate:"omitempty,url"`
	MaxTokens int    `yaml:"max_tokens" validate:"min=1"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=memory sqlite"`

	// Path is the SQLite database file; ignored for the memory driver.
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level    string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	FilePath string `yaml:"file_path,omitempty"`
}

// Default returns the configuration used when nothing is supplied.
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			MaxTotalNodeInvocations:     50,
			MaxPerNodeInvocations:       10,
			MaxRetriesForWorkflowRepair: 2,
			NodeTimeout:                 2 * time.Minute,
			MaxParallelNodes:            8,
			MaxConcurrentWorkflows:      4,
			MaxRequestsPerWindow:        60,
			RateWindow:                  time.Minute,
		},
		Evolution: EvolutionConfig{
			PopulationSize:       8,
			Generations:          5,
			NewNodeProbability:   0.3,
			TournamentSize:       3,
			CrossoverProbability: 0.3,
			MaxCostUSD:           10.0,
			MaxDuration:          30 * time.Minute,
			MutationModel:        "claude-sonnet-4-5",
			SimilarityThreshold:  0.9,
		},
		Fitness: FitnessConfig{
			ScoreWeight:     0.6,
			TimeWeight:      0.2,
			CostWeight:      0.2,
			TimeBaseline:    time.Minute,
			CostBaselineUSD: 0.50,
		},
		Tools: ToolsConfig{
			MaxToolsPerAgent: 8,
			UniqueTools:      true,
		},
		Gateway: GatewayConfig{
			Provider:  "anthropic",
			MaxTokens: 4096,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New(errors.InvalidInput, "config is nil")
	}

	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Wrap(err, errors.ValidationFailed, "config validation failed")
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Namespace()+" failed rule "+fe.Tag())
	}
	return errors.WithFields(
		errors.New(errors.ValidationFailed, "config validation failed"),
		errors.Fields{"violations": strings.Join(msgs, "; ")},
	)
}

// Load builds the effective configuration: defaults first, then each
// source in ascending priority order, then validation.
func Load(sources []Source, paths ...string) (*Config, error) {
	cfg := Default()

	ordered := append([]Source(nil), sources...)
	sortByPriority(ordered)

	for _, src := range ordered {
		if err := src.Load(cfg, paths); err != nil {
			return nil, errors.Wrap(err, errors.InvalidInput, "loading config from "+src.Name()+" source")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from the standard sources: YAML files
// (when present) overridden by EVOFLOW_* environment variables.
func LoadDefault(paths ...string) (*Config, error) {
	return Load([]Source{NewFileSource(), NewEnvironmentSource()}, paths...)
}

func sortByPriority(sources []Source) {
	for i := 1; i < len(sources); i++ {
		for j := i; j > 0 && sources[j].Priority() < sources[j-1].Priority(); j-- {
			sources[j], sources[j-1] = sources[j-1], sources[j]
		}
	}
}
