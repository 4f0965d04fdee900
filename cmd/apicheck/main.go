// apicheck runs dependency-ordered API scenarios against HTTP services.
//
// Usage:
//
//	apicheck run [path]        Run scenarios from a file or directory
//	apicheck validate [path]   Load and check scenarios without sending requests
//	apicheck version           Print the version
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wondertwin-ai/apicheck/internal/config"
	"github.com/wondertwin-ai/apicheck/internal/httpclient"
	"github.com/wondertwin-ai/apicheck/internal/logging"
	"github.com/wondertwin-ai/apicheck/internal/manifest"
	"github.com/wondertwin-ai/apicheck/internal/metrics"
	"github.com/wondertwin-ai/apicheck/internal/report"
	"github.com/wondertwin-ai/apicheck/internal/scenario"
	"github.com/wondertwin-ai/apicheck/internal/suite"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const defaultScenarioDir = "./scenarios"

// errFailures signals a completed run with failing scenarios. The report
// has already been printed, so main only sets the exit code.
var errFailures = errors.New("scenarios failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, errFailures) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

type globalFlags struct {
	manifestPath string
	configPath   string
}

type runFlags struct {
	concurrency int
	reportJSON  string
	metricsFile string
	fakeSeed    uint64
}

func newRootCmd(out io.Writer) *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "apicheck",
		Short:         "Run dependency-ordered API scenarios",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&g.manifestPath, "manifest", "m", manifest.DefaultFile, "project manifest with targets")
	root.PersistentFlags().StringVar(&g.configPath, "config-file", "", "config file (default ~/.apicheck/config.yaml)")

	root.AddCommand(newRunCmd(&g), newValidateCmd(&g), newVersionCmd())
	return root
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Run scenarios from a file or directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, g, f, args)
		},
	}
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "c", 0, "scenarios to run at once (overrides config)")
	cmd.Flags().StringVar(&f.reportJSON, "report-json", "", "write a JSON summary to this path (overrides config)")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-textfile", "", "write Prometheus metrics to this path (overrides config)")
	cmd.Flags().Uint64Var(&f.fakeSeed, "seed", 0, "seed for {fake.*} values (overrides config)")
	return cmd
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Load and check scenarios without sending requests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateScenarios(cmd, g, args)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "apicheck %s\n", version)
		},
	}
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadFrom(g.configPath)
	}
	return config.Load()
}

// loadManifest reads the manifest. A missing default manifest is not an
// error; scenarios then need absolute URLs.
func loadManifest(cmd *cobra.Command, g *globalFlags) (*manifest.Manifest, error) {
	if _, err := os.Stat(g.manifestPath); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("manifest") {
		return nil, nil
	}
	return manifest.Load(g.manifestPath)
}

// loadScenarios loads the path argument, else the manifest's scenario
// directory, else ./scenarios.
func loadScenarios(m *manifest.Manifest, args []string) ([]*scenario.Scenario, error) {
	path := defaultScenarioDir
	if m != nil {
		path = m.Settings.ScenarioDir
	}
	if len(args) > 0 {
		path = args[0]
	}
	return scenario.Load(path)
}

func runScenarios(cmd *cobra.Command, g *globalFlags, f runFlags, args []string) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg, f)

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	m, err := loadManifest(cmd, g)
	if err != nil {
		return err
	}
	scenarios, err := loadScenarios(m, args)
	if err != nil {
		return err
	}

	timeout := cfg.Timeout
	if m != nil && m.Settings.Timeout > 0 {
		timeout = m.Settings.Timeout
	}

	recorder := metrics.New()
	runner := scenario.NewRunner(
		httpclient.New(timeout, httpclient.WithLogger(logger.Named("http"))),
		scenario.WithManifest(m),
		scenario.WithLogger(logger.Named("runner")),
		scenario.WithObserver(recorder),
		scenario.WithFakeSeed(cfg.FakeSeed),
	)

	logger.Info("running scenarios",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Duration("timeout", timeout),
	)
	results, runErr := suite.New(runner, cfg.Concurrency, logger.Named("suite")).Run(cmd.Context(), scenarios)

	totals := report.NewConsole(cmd.OutOrStdout()).Print(results)

	if cfg.Report.JSON != "" {
		if err := report.WriteJSON(cfg.Report.JSON, results); err != nil {
			return err
		}
		logger.Info("wrote JSON report", zap.String("path", cfg.Report.JSON))
	}
	if cfg.Metrics.Textfile != "" {
		if err := recorder.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return err
		}
		logger.Info("wrote metrics textfile", zap.String("path", cfg.Metrics.Textfile))
	}

	if runErr != nil {
		return runErr
	}
	if totals.FailedScenarios > 0 {
		return errFailures
	}
	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) {
	flags := cmd.Flags()
	if flags.Changed("concurrency") && f.concurrency > 0 {
		cfg.Concurrency = f.concurrency
	}
	if flags.Changed("report-json") {
		cfg.Report.JSON = f.reportJSON
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = f.metricsFile
	}
	if flags.Changed("seed") {
		cfg.FakeSeed = f.fakeSeed
	}
}

func validateScenarios(cmd *cobra.Command, g *globalFlags, args []string) error {
	m, err := loadManifest(cmd, g)
	if err != nil {
		return err
	}
	scenarios, err := loadScenarios(m, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	invalid := 0
	for _, s := range scenarios {
		if err := describeScenario(out, m, s); err != nil {
			fmt.Fprintf(out, "  INVALID  %s: %v\n", s.Name, err)
			invalid++
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d scenarios invalid", invalid, len(scenarios))
	}
	fmt.Fprintf(out, "\n%d scenarios valid\n", len(scenarios))
	return nil
}

// describeScenario prints a valid scenario's steps in execution order.
// Nothing is printed when the scenario is invalid.
func describeScenario(out io.Writer, m *manifest.Manifest, s *scenario.Scenario) error {
	if err := checkTarget(m, s); err != nil {
		return err
	}
	order, err := scenario.Order(s.Steps)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  OK       %s (%d steps)\n", s.Name, len(order))
	for _, i := range order {
		step := s.Steps[i]
		fmt.Fprintf(out, "             %s %s %s\n", step.Name, step.Request.Method, step.Request.URL)
	}
	return nil
}

// checkTarget reports a scenario target the manifest does not define.
func checkTarget(m *manifest.Manifest, s *scenario.Scenario) error {
	if s.Target == "" {
		return nil
	}
	if m == nil {
		return fmt.Errorf("target %q requires a manifest", s.Target)
	}
	_, err := m.Target(s.Target)
	return err
}
