// Command stella runs the STELLA decision loop against a chat backend.
//
// Usage:
//
//	export GEMINI_API_KEY=...
//	stella --provider gemini
//
// Settings are read from stella.yaml in the working directory, STELLA_*
// environment variables and a .env file. Exit status is 3 when switch_model
// saved a new model and the process must be restarted to use it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/martinemde/stella/agentloop"
	"github.com/martinemde/stella/config"
	"github.com/martinemde/stella/terminal"
	"github.com/martinemde/stella/unifiedllm"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitRestart = 3
)

type options struct {
	configPath string
	provider   string
	model      string
	logFormat  string
	logLevel   string
	workdir    string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "configuration file (default stella.yaml in the working directory)")
	flag.StringVar(&opts.provider, "provider", "", "backend provider, overrides configuration")
	flag.StringVar(&opts.model, "model", "", "model name, overrides configuration")
	flag.StringVar(&opts.logFormat, "log-format", "", "diagnostic log format: console or json")
	flag.StringVar(&opts.logLevel, "log-level", "", "diagnostic log level")
	flag.StringVar(&opts.workdir, "workdir", "", "directory commands run in (default current directory)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, opts)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, opts options) int {
	workdir := opts.workdir
	if workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Fatal:", err)
			return exitFatal
		}
		workdir = wd
	}
	configPath := opts.configPath
	if configPath == "" {
		configPath = filepath.Join(workdir, config.DefaultPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", err)
		return exitFatal
	}
	applyFlags(cfg, opts)

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", err)
		return exitFatal
	}

	console := terminal.NewConsole()
	env := agentloop.NewLocalExecutionEnvironment(workdir)
	models := &sessionModels{}

	registry := agentloop.NewToolRegistry()
	err = agentloop.RegisterCoreTools(registry, agentloop.CoreToolOptions{
		Env:            env,
		CommandTimeout: cfg.Loop.CommandTimeout,
		Operator:       console,
		AskTimeout:     cfg.Loop.AskTimeout,
		Display:        console,
		Provider:       cfg.Provider,
		Models:         models,
		SaveModel: func(provider, model string) error {
			return config.SaveModel(cfg.Path, provider, model)
		},
		ModelOverrides: config.ModelOverrides,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", err)
		return exitFatal
	}

	model := resolveModel(cfg)
	retry := unifiedllm.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Loop.MaxRetries
	retry.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying send")
	}

	session, err := unifiedllm.NewSession(unifiedllm.SessionConfig{
		Provider: cfg.Provider,
		Model:    model,
		BaseURL:  cfg.BaseURL,
		SystemPrompt: agentloop.BuildSystemPrompt(agentloop.PromptOptions{
			Tools:    registry.Definitions(),
			Env:      env,
			Provider: cfg.Provider,
			Model:    model,
		}),
		Retry: &retry,
	})
	if err != nil {
		var cfgErr *unifiedllm.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, "Configuration error:", cfgErr.Message)
		} else {
			fmt.Fprintln(os.Stderr, "Fatal:", err)
		}
		return exitFatal
	}
	session = unifiedllm.Wrap(session, unifiedllm.LoggingMiddleware(logger))
	models.session = session

	emitter := agentloop.NewEventEmitter(uuid.NewString(), 0)
	var wg conc.WaitGroup
	wg.Go(func() {
		agentloop.LogEvents(logger, emitter.Events())
	})

	controller := agentloop.NewController(
		session,
		agentloop.NewDispatcher(registry, cfg.Loop.MaxOutputChars),
		console,
		agentloop.ControllerConfig{
			SendTimeout:         cfg.Loop.SendTimeout,
			MaxTurns:            cfg.Loop.MaxTurns,
			LoopDetectionWindow: cfg.Loop.LoopDetectionWindow,
		},
		agentloop.WithDisplay(console),
		agentloop.WithEmitter(emitter),
	)

	console.Banner(cfg.Provider, model)
	outcome, runErr := controller.Run(ctx)
	emitter.Close()
	wg.Wait()

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", runErr)
		return exitFatal
	}
	switch outcome.Reason {
	case agentloop.ReasonRestartRequired:
		console.Notice(outcome.Message)
		return exitRestart
	case agentloop.ReasonTurnLimit:
		console.Notice(fmt.Sprintf("Stopped after %d turns.", outcome.Turns))
	}
	return exitOK
}

func applyFlags(cfg *config.Config, opts options) {
	if opts.provider != "" {
		cfg.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.ModelName = opts.model
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
}

// resolveModel fills in the provider's default model so the banner and the
// system prompt name the model actually used.
func resolveModel(cfg *config.Config) string {
	if strings.TrimSpace(cfg.ModelName) != "" {
		return cfg.ModelName
	}
	if info := unifiedllm.GetProvider(cfg.Provider); info != nil {
		return info.DefaultModel
	}
	return ""
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	switch cfg.Format {
	case "json":
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger(), nil
	case "console", "":
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
		return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// sessionModels lets list_models reach the session, which is built after the
// tools because its system prompt lists them.
type sessionModels struct {
	session unifiedllm.Session
}

func (m *sessionModels) ListModels(ctx context.Context) ([]string, error) {
	lister, ok := m.session.(unifiedllm.ModelLister)
	if !ok {
		return nil, fmt.Errorf("the active session cannot list models")
	}
	return lister.ListModels(ctx)
}
