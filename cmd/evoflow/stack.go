package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evoflow-ai/evoflow-go/pkg/cache"
	"github.com/evoflow-ai/evoflow-go/pkg/config"
	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/llms"
	"github.com/evoflow-ai/evoflow-go/pkg/logging"
	"github.com/evoflow-ai/evoflow-go/pkg/store"
	"github.com/evoflow-ai/evoflow-go/pkg/workflow"
)

// stack is the assembled runtime: everything a command needs to
// validate, run or evolve a workflow.
type stack struct {
	cfg       *config.Config
	validator *workflow.Validator
	runner    *workflow.Runner
	budget    *workflow.Budget
	store     core.Store
	gateway   core.Gateway
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadDefault(configPath)
	}
	return config.LoadDefault()
}

func buildStack() (*stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	configureLogging(cfg.Logging)

	gateway, err := llms.NewAnthropicGateway(llms.AnthropicOptions{
		APIKey:    cfg.Gateway.APIKey,
		BaseURL:   cfg.Gateway.BaseURL,
		MaxTokens: cfg.Gateway.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	// Identical prompts recur constantly while evolving, so every
	// gateway call goes through a response cache.
	cached := cache.NewGateway(gateway, cache.NewMemoryCache(4096), time.Hour)

	var backend core.Store
	if cfg.Storage.Driver == "sqlite" {
		sqlStore, err := store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		backend = sqlStore
	} else {
		backend = store.NewMemoryStore()
	}

	validator := workflow.NewValidator(
		workflow.WithModelCatalog(core.DefaultModelCatalog()),
		workflow.WithMaxToolsPerAgent(cfg.Tools.MaxToolsPerAgent),
		workflow.WithUniqueTools(cfg.Tools.UniqueTools),
	)

	var limiter *workflow.RateLimiter
	if cfg.Runner.MaxRequestsPerWindow > 0 {
		limiter = workflow.NewRateLimiter(cfg.Runner.MaxRequestsPerWindow, cfg.Runner.RateWindow)
	}

	budget := workflow.NewBudget(cfg.Evolution.MaxCostUSD)
	runner := workflow.NewRunner(
		workflow.NewLLMNodeRunner(cached, limiter),
		workflow.RunnerConfig{
			MaxTotalNodeInvocations:     cfg.Runner.MaxTotalNodeInvocations,
			MaxPerNodeInvocations:       cfg.Runner.MaxPerNodeInvocations,
			MaxRetriesForWorkflowRepair: cfg.Runner.MaxRetriesForWorkflowRepair,
			NodeTimeout:                 cfg.Runner.NodeTimeout,
			MaxParallelNodes:            cfg.Runner.MaxParallelNodes,
		},
		workflow.WithBudget(budget),
		workflow.WithStore(backend),
	)

	return &stack{
		cfg:       cfg,
		validator: validator,
		runner:    runner,
		budget:    budget,
		store:     backend,
		gateway:   cached,
	}, nil
}

func configureLogging(cfg config.LoggingConfig) {
	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if cfg.FilePath != "" {
		if fileOut, err := logging.NewFileOutput(cfg.FilePath); err == nil {
			outputs = append(outputs, fileOut)
		}
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Level),
		Outputs:  outputs,
	}))
}

func readGraph(path string) (*core.WorkflowGraph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var graph core.WorkflowGraph
	if err := yaml.Unmarshal(raw, &graph); err != nil {
		return nil, fmt.Errorf("parsing workflow %s: %w", path, err)
	}
	return &graph, nil
}
