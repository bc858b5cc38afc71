package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andreytim/dreamytin-ai/internal/config"
	"github.com/andreytim/dreamytin-ai/internal/logger"
	"github.com/andreytim/dreamytin-ai/internal/tracing"
	"github.com/andreytim/dreamytin-ai/pkg/agent"
	"github.com/andreytim/dreamytin-ai/pkg/commandqueue"
	"github.com/andreytim/dreamytin-ai/pkg/conversation"
	"github.com/andreytim/dreamytin-ai/pkg/coretools"
	"github.com/andreytim/dreamytin-ai/pkg/gateway"
	"github.com/andreytim/dreamytin-ai/pkg/provider"
	"github.com/andreytim/dreamytin-ai/pkg/toolexecutor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the DreamyTin gateway server",
	Long: `Run the gateway server in the foreground. It serves the
conversation API over HTTP and streams assistant replies over
websockets until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.HasCredentials() {
		return fmt.Errorf("no provider API keys configured; set OPENAI_API_KEY, ANTHROPIC_API_KEY or GOOGLE_API_KEY")
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	zl := log.GetZerolog()

	if err := tracing.Init(tracing.Config{
		ServiceName:    "dreamytin-ai",
		ServiceVersion: GetVersion(),
		SampleRatio:    1,
	}); err != nil {
		zl.Warn().Err(err).Msg("Failed to initialize tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(ctx)
	}()

	store, err := conversation.New(cfg.ConversationsDir)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}

	executor := toolexecutor.NewWithTimeout(time.Duration(cfg.Tools.Timeout) * time.Second)
	if err := coretools.Register(executor); err != nil {
		return fmt.Errorf("failed to register core tools: %w", err)
	}

	queue := commandqueue.New()
	defer queue.Close()

	catalog, err := provider.NewCatalog(cfg.Models)
	if err != nil {
		return fmt.Errorf("invalid model catalog: %w", err)
	}
	factory := provider.NewFactory(cfg.Providers)

	prompts := agent.NewPromptSource(cfg.SystemPromptPath, zl)
	if err := prompts.Watch(); err != nil {
		zl.Warn().Err(err).Msg("System prompt hot reload unavailable")
	}
	defer prompts.Close()

	runner, err := agent.NewRunner(agent.Config{
		Store:           store,
		Executor:        executor,
		Queue:           queue,
		Clients:         factory,
		Catalog:         catalog,
		Prompts:         prompts,
		Logger:          zl,
		Temperature:     cfg.Agent.Temperature,
		MaxTokens:       cfg.Agent.MaxTokens,
		ProviderTimeout: time.Duration(cfg.Agent.ProviderTimeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to build agent runner: %w", err)
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		Runner:       runner,
		Store:        store,
		Catalog:      catalog,
		Providers:    factory.Configured(),
		DefaultModel: cfg.Agent.DefaultModel,
		Logger:       zl,
	})
	if err != nil {
		return fmt.Errorf("failed to build gateway server: %w", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	zl.Info().
		Str("host", cfg.Gateway.Host).
		Int("port", cfg.Gateway.Port).
		Str("default_model", cfg.Agent.DefaultModel).
		Int("tools", executor.Count()).
		Msg("DreamyTin AI is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zl.Info().Str("signal", sig.String()).Msg("Shutting down")

	return server.Stop()
}
