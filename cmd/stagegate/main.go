package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/stagegate/pkg/agent"
	"github.com/zen-systems/stagegate/pkg/config"
	"github.com/zen-systems/stagegate/pkg/event"
	"github.com/zen-systems/stagegate/pkg/gate"
	"github.com/zen-systems/stagegate/pkg/metrics"
	"github.com/zen-systems/stagegate/pkg/orchestrator"
	"github.com/zen-systems/stagegate/pkg/registry"
	"github.com/zen-systems/stagegate/pkg/store"
	"github.com/zen-systems/stagegate/pkg/task"
)

var (
	configFile   string
	pipelineFile string
	verbose      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stagegate",
		Short: "Gated multi-stage agent pipeline orchestrator",
		Long: `Stagegate drives development tasks through a fixed sequence of agent
stages (requirements, coding, audit, testing, merge), enforcing quality
gates between stages. The audit stage is mandatory and cannot be skipped.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&pipelineFile, "pipeline", "", "path to pipeline definition")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(stagesCmd())
	rootCmd.AddCommand(tasksCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var useMock bool

	cmd := &cobra.Command{
		Use:   "run [description]",
		Short: "Drive a task through the pipeline",
		Long: `Creates a task from the description and drives it stage by stage.
	Each stage invokes its agent, evaluates the stage gate and retries with
	failure feedback until the gate passes or the retry budget is spent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			invokers, err := buildInvokers(cfg, reg, logger, useMock)
			if err != nil {
				return err
			}

			index, err := store.Open(cfg.StorePath)
			if err != nil {
				return err
			}

			bus := event.NewBus(256)
			m := metrics.New(prometheus.DefaultRegisterer)
			defer m.Attach(bus)()

			bus.Subscribe(event.TypeTaskFinalized, func(ev event.Event) {
				logger.Info("finalize event emitted, ready for commit",
					zap.String("task_id", ev.TaskID),
					zap.Any("artifact_hash", ev.Data["artifact_hash"]),
				)
			})

			evaluator := gate.NewEvaluator(
				gate.WithCheckTimeout(cfg.CheckTimeout),
				gate.WithEvaluatorLogger(logger),
			)

			orch, err := orchestrator.New(reg, invokers, evaluator,
				orchestrator.WithBus(bus),
				orchestrator.WithStore(index),
				orchestrator.WithJournalDir(cfg.JournalDir),
				orchestrator.WithMaxAttempts(cfg.MaxAttempts),
				orchestrator.WithInvokerTimeout(cfg.InvokerTimeout),
				orchestrator.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tk := task.New(args[0])
			if err := orch.Run(ctx, tk); err != nil {
				return err
			}

			printTask(tk)
			if tk.Status != task.StatusCompleted {
				return fmt.Errorf("task %s: %s (%s)", tk.ID, tk.Status, tk.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&useMock, "mock", false, "use the mock invoker for every role")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			fmt.Printf("pipeline %q is valid: %d stages\n", reg.Name(), reg.Len())
			return nil
		},
	}
}

func stagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the configured stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tNAME\tROLE\tSKIPPABLE\tCHECKS")
			for i, def := range reg.Stages() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%d\n", i, def.Name, def.Role, def.Skippable, len(def.Gate.Checks))
			}
			return w.Flush()
		},
	}
}

func tasksCmd() *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List persisted tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			index, err := store.Open(cfg.StorePath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tSTAGE\tATTEMPTS\tDESCRIPTION")
			for _, tk := range index.List(task.Status(statusFilter)) {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", tk.ID, tk.Status, tk.StageIndex, len(tk.Log), tk.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "filter by status")

	cmd.AddCommand(&cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task's attempt log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			index, err := store.Open(cfg.StorePath)
			if err != nil {
				return err
			}
			tk, err := index.Get(args[0])
			if err != nil {
				return err
			}
			printTask(tk)
			return nil
		},
	})

	return cmd
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	path := pipelineFile
	if path == "" {
		path = cfg.PipelinePath
	}
	if path == "" {
		return nil, fmt.Errorf("no pipeline definition: use --pipeline or set pipeline in the config file")
	}
	return registry.Load(path)
}

// buildInvokers wires one invoker per stage role from the config's role
// bindings, wrapped with transient-error retries.
func buildInvokers(cfg *config.Config, reg *registry.Registry, logger *zap.Logger, useMock bool) (map[string]agent.Invoker, error) {
	invokers := make(map[string]agent.Invoker)

	for _, def := range reg.Stages() {
		if _, ok := invokers[def.Role]; ok {
			continue
		}

		binding := cfg.Roles[def.Role]
		name := binding.Invoker
		if useMock || name == "" {
			name = "mock"
		}

		var (
			inv agent.Invoker
			err error
		)
		switch name {
		case "anthropic":
			inv, err = agent.NewAnthropicInvoker(cfg.AnthropicAPIKey, binding.Model)
		case "openai":
			inv, err = agent.NewOpenAIInvoker(cfg.OpenAIAPIKey, binding.Model)
		case "google":
			inv, err = agent.NewGoogleInvoker(cfg.GoogleAPIKey, binding.Model)
		case "mock":
			inv = agent.NewMockInvoker()
		default:
			err = fmt.Errorf("unknown invoker %q for role %q", name, def.Role)
		}
		if err != nil {
			return nil, err
		}

		invokers[def.Role] = agent.NewRetryingInvoker(inv,
			agent.WithAttempts(cfg.InvokerRetries),
			agent.WithLogger(logger),
		)
	}

	return invokers, nil
}

func printTask(tk *task.Task) {
	fmt.Printf("task %s: %s", tk.ID, tk.Status)
	if tk.Reason != "" {
		fmt.Printf(" (%s)", tk.Reason)
	}
	fmt.Printf("\n  %s\n", tk.Description)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  STAGE\tATTEMPT\tOUTCOME\tDETAIL")
	for _, a := range tk.Log {
		outcome := "fail"
		detail := a.InvokeError
		if a.Passed() {
			outcome = "pass"
		} else if detail == "" && a.Gate != nil {
			for _, c := range a.Gate.Failures() {
				detail = fmt.Sprintf("%s: %s", c.Check, c.Detail)
				break
			}
		}
		fmt.Fprintf(w, "  %s\t%d\t%s\t%s\n", a.Stage, a.Number, outcome, detail)
	}
	_ = w.Flush()
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
