package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"daybrief/internal/brief"
	"daybrief/internal/config"
	"daybrief/internal/lifecycle"
	"daybrief/internal/schedule"
	"daybrief/internal/server"
	"daybrief/internal/store"
	"daybrief/internal/synth"
)

var (
	configPath    string
	verbose       bool
	reaction      string
	reactionNote  string
	snoozeMinutes int

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "daybrief",
	Short: "daybrief - morning-brief decision pipeline",
	Long: `daybrief turns collected workspace evidence into a policy-checked
structured morning briefing. Synthesis runs through a bounded
attempt/repair loop and always degrades to a deterministic fallback,
so a brief is delivered on every cycle.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = buildLogger(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the delivery API server",
	RunE:  runServe,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one user-initiated refresh cycle and print the brief",
	RunE:  runRefresh,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "daybrief.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	refreshCmd.Flags().StringVar(&reaction, "react", "", "record a reaction to the delivered brief (accept, reframe, deprioritize, not_my_responsibility, replace_objective, snooze)")
	refreshCmd.Flags().StringVar(&reactionNote, "note", "", "note attached to the reaction")
	refreshCmd.Flags().IntVar(&snoozeMinutes, "snooze-minutes", 60, "snooze window for --react snooze")
	rootCmd.AddCommand(serveCmd, refreshCmd)
}

// buildLogger builds the zap logger from the logging config; --verbose wins
// over the configured level.
func buildLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if lc.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level := lc.Level
	if verbose {
		level = "debug"
	}
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(parsed)
	}
	return zapCfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildService wires store, scheduler, synthesizer and lifecycle record from
// config. The returned cleanup closes the store.
func buildService(ctx context.Context, cfg config.Config) (*server.Service, func(), error) {
	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	runtime, err := st.LoadRuntime(ctx, cfg.Workspace)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	triggers, err := st.LoadTriggers(ctx, cfg.Workspace)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if len(triggers) == 0 {
		triggers = cfg.TriggerStates()
	}

	record, err := st.LoadPresentation(ctx, cfg.Workspace)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	var synthesizer synth.Synthesizer
	if cfg.LLM.APIKey != "" {
		synthesizer, err = synth.NewGeminiSynthesizer(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
	} else {
		logger.Warn("no API key configured; every brief will use the deterministic fallback")
	}

	scheduler := schedule.NewScheduler(runtime, triggers, st, logger)
	svc := server.NewService(cfg.Workspace, scheduler, synthesizer, st, record, st, logger)
	return svc, func() { st.Close() }, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.New(svc, cfg.Schedule, logger)
	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Handler()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("delivery API listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var react *lifecycle.Override
	if reaction != "" {
		react = &lifecycle.Override{
			Type: lifecycle.OverrideType(reaction),
			Note: reactionNote,
			Payload: lifecycle.Payload{
				DurationMinutes: snoozeMinutes,
			},
		}
	}

	result, err := svc.Refresh(ctx, schedule.TriggerUserRefresh, brief.Input{Workspace: cfg.Workspace}, react, nil)
	if err != nil {
		return err
	}
	if result.Outcome == nil {
		fmt.Printf("not fired: %s\n", result.Decision.Reason)
		return nil
	}

	for _, section := range result.Outcome.View.Sections {
		fmt.Printf("## %s\n%s\n\n", section.Title, section.Body)
	}
	payload, err := json.MarshalIndent(result.Outcome.Telemetry, "", "  ")
	if err == nil {
		fmt.Printf("telemetry: %s\n", payload)
	}
	if result.Writeback != nil {
		fmt.Printf("reaction recorded: %s at %s\n", result.Writeback.Reaction,
			result.Writeback.RecordedAt.Format(time.RFC3339))
	}
	return nil
}
