package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/evoflow-ai/evoflow-go/pkg/core"
	"github.com/evoflow-ai/evoflow-go/pkg/evolution"
	"github.com/evoflow-ai/evoflow-go/pkg/workflow"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Check a workflow graph without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := readGraph(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			validator := workflow.NewValidator(
				workflow.WithModelCatalog(core.DefaultModelCatalog()),
				workflow.WithMaxToolsPerAgent(cfg.Tools.MaxToolsPerAgent),
				workflow.WithUniqueTools(cfg.Tools.UniqueTools),
			)

			result := validator.Validate(graph)
			for _, warning := range result.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
			}
			if !result.IsValid {
				for _, msg := range result.Errors {
					fmt.Fprintf(os.Stderr, "error: %s\n", msg)
				}
				return fmt.Errorf("%d validation error(s)", len(result.Errors))
			}
			fmt.Printf("%s: %d nodes, valid\n", args[0], len(graph.Nodes))
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow graph once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := readGraph(args[0])
			if err != nil {
				return err
			}
			st, err := buildStack()
			if err != nil {
				return err
			}
			if err := st.validator.ValidateStrict(graph); err != nil {
				return err
			}

			result := st.runner.Execute(cmd.Context(), graph, input)
			fmt.Printf("run %s: %s (%d invocations, $%.4f)\n",
				result.RunID, result.Status, len(result.Invocations), result.TotalCostUSD)
			for _, output := range result.Outputs {
				fmt.Println(output)
			}
			if result.Err != nil {
				return result.Err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "input passed to the entry node")
	return cmd
}

// caseFile is the on-disk shape of an evaluation set.
type caseFile struct {
	Cases []struct {
		Input    string `yaml:"input"`
		Expected string `yaml:"expected"`
	} `yaml:"cases"`
}

func newEvolveCmd() *cobra.Command {
	var casesPath string
	var scorerName string

	cmd := &cobra.Command{
		Use:   "evolve <workflow.yaml>",
		Short: "Evolve a workflow against an evaluation set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := readGraph(args[0])
			if err != nil {
				return err
			}
			cases, err := readCases(casesPath)
			if err != nil {
				return err
			}
			scorer, err := pickScorer(scorerName)
			if err != nil {
				return err
			}
			st, err := buildStack()
			if err != nil {
				return err
			}

			seedGenome, err := evolution.WrapGraph(st.validator, graph, evolution.EvolutionContext{})
			if err != nil {
				return err
			}

			evo := st.cfg.Evolution
			operator := evolution.NewLLMGuidedOperator(st.gateway, st.validator, evo.MutationModel, nil)
			evaluator := evolution.NewEvaluator(evolution.Weights{
				Score: st.cfg.Fitness.ScoreWeight,
				Time:  st.cfg.Fitness.TimeWeight,
				Cost:  st.cfg.Fitness.CostWeight,
			}, st.cfg.Fitness.TimeBaseline, st.cfg.Fitness.CostBaselineUSD)

			engine := evolution.NewEngine(evolution.EngineConfig{
				PopulationSize:       evo.PopulationSize,
				Generations:          evo.Generations,
				NewNodeProbability:   evo.NewNodeProbability,
				TournamentSize:       evo.TournamentSize,
				CrossoverProbability: evo.CrossoverProbability,
				SimilarityThreshold:  evo.SimilarityThreshold,
				MaxDuration:          evo.MaxDuration,
				Models:               []string{evo.MutationModel},
				Rand:                 rand.New(rand.NewSource(time.Now().UnixNano())),
			}, st.runner, evaluator, operator, scorer,
				evolution.WithEngineBudget(st.budget),
				evolution.WithEngineStore(st.store),
				evolution.WithRefiningOperator(&evolution.PromptShuffleOperator{Validator: st.validator}),
				evolution.WithCrossover(evolution.NewCrossoverOperator(st.validator, nil)),
			)

			report, err := engine.Evolve(cmd.Context(), "", cases, []*evolution.Genome{seedGenome})
			if err != nil {
				return err
			}

			fmt.Printf("stopped: %s after %d generation(s), $%.4f, %s\n",
				report.StopReason, len(report.Generations), report.TotalCostUSD,
				report.Duration.Round(time.Second))
			if report.Best != nil {
				fmt.Printf("best genome %s scored %.2f\n",
					report.Best.WorkflowVersionID(), report.Best.FitnessScore())
				encoded, err := json.MarshalIndent(report.Best.Graph(), "", "  ")
				if err == nil {
					fmt.Println(string(encoded))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&casesPath, "cases", "", "YAML file with evaluation cases (required)")
	cmd.Flags().StringVar(&scorerName, "scorer", "exact", "scorer: exact, contains or f1")
	_ = cmd.MarkFlagRequired("cases")
	return cmd
}

func readCases(path string) ([]evolution.EvaluationCase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed caseFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing cases %s: %w", path, err)
	}
	cases := make([]evolution.EvaluationCase, 0, len(parsed.Cases))
	for _, c := range parsed.Cases {
		cases = append(cases, evolution.EvaluationCase{Input: c.Input, Expected: c.Expected})
	}
	return cases, nil
}

func pickScorer(name string) (evolution.Scorer, error) {
	switch name {
	case "exact":
		return evolution.ExactMatchScorer, nil
	case "contains":
		return evolution.ContainsScorer, nil
	case "f1":
		return evolution.F1Scorer, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}
