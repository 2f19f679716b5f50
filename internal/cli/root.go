package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/internal/config"
	"github.com/drewjocham/parsemodel/internal/jsonutil"
	"github.com/drewjocham/parsemodel/internal/logging"
	"github.com/drewjocham/parsemodel/model"
)

type contextKey string

const (
	ctxConfigKey      contextKey = "config"
	ctxCancelKey      contextKey = "rootCancel"
	ctxMongoClientKey contextKey = "mongoClient"
	ctxRegistryKey    contextKey = "registry"

	annotationOffline = "offline"
	annotationStdio   = "stdio"

	maxPingRetries = 5
	pingRetryDelay = 1 * time.Second
	pingTimeout    = 2 * time.Second
)

var appVersion, commit, date = "dev", "none", "unknown"

var ErrShowConfigDisplayed = errors.New("configuration displayed")

type rootFlags struct {
	configFile string
	debug      bool
	logFile    string
	showConfig bool
}

// NewRootCmd builds the command tree. classes supplies the registered
// models; strict mode is applied from config at startup.
func NewRootCmd(classes func(*model.Registry) error) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:     "parsemodel",
		Short:   "Typed Parse models on MongoDB",
		Version: fmt.Sprintf("%s (commit: %s, build date: %s)", appVersion, commit, date),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupDependencies(cmd, flags, classes)
		},
		PersistentPostRun: teardown,
		SilenceUsage:      true,
	}

	pFlags := cmd.PersistentFlags()
	pFlags.StringVarP(&flags.configFile, "config", "c", "", "Path to config file")
	pFlags.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pFlags.StringVar(&flags.logFile, "log-file", "", "Path to write logs to a file")
	pFlags.BoolVar(&flags.showConfig, "show-config", false, "Print the effective configuration (with secrets masked) and exit")

	cmd.AddCommand(
		newClassesCmd(), newSchemaCmd(), newUnlockCmd(),
		newGetCmd(), newMCPCmd(), newVersionCmd(),
	)

	return cmd
}

func setupDependencies(cmd *cobra.Command, flags *rootFlags, classes func(*model.Registry) error) error {
	if _, err := newLogger(cmd, flags); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	cfg, err := loadConfigFromFlags(flags.configFile)
	if err != nil {
		return err
	}
	if flags.showConfig {
		if err := renderConfig(cmd.OutOrStdout(), cfg); err != nil {
			return err
		}
		return ErrShowConfigDisplayed
	}

	reg := model.NewRegistry(model.WithStrict(cfg.StrictClasses))
	if classes != nil {
		if err := classes(reg); err != nil {
			return fmt.Errorf("register models: %w", err)
		}
	}

	ctx := context.WithValue(cmd.Context(), ctxConfigKey, cfg)
	ctx = context.WithValue(ctx, ctxRegistryKey, reg)

	if isOffline(cmd) {
		cmd.SetContext(ctx)
		return nil
	}

	client, cancel, err := initClient(ctx, cfg)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, ctxCancelKey, cancel)
	ctx = context.WithValue(ctx, ctxMongoClientKey, client)

	cmd.SetContext(ctx)
	return nil
}

// newLogger keeps stdout clean for commands that speak a protocol on it.
func newLogger(cmd *cobra.Command, flags *rootFlags) (*zap.Logger, error) {
	if flags.logFile == "" && cmd.Annotations[annotationStdio] == "true" {
		return logging.ToStderr(flags.debug)
	}
	return logging.New(flags.debug, flags.logFile)
}

func isOffline(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationOffline] == "true" {
		return true
	}
	offlineNames := map[string]bool{"help": true, "version": true, "config": true}
	return offlineNames[cmd.Name()]
}

func initClient(ctx context.Context, cfg *config.Config) (*mongo.Client, context.CancelFunc, error) {
	connCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())

	client, err := mongo.Connect(cfg.ClientOptions())
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := retryPing(connCtx, client, 1); err != nil {
		_ = client.Disconnect(context.Background())
		cancel()
		return nil, nil, err
	}

	zap.L().Debug("Connected to MongoDB", zap.String("database", cfg.Database))
	return client, cancel, nil
}

func retryPing(ctx context.Context, client *mongo.Client, attempt int) error {
	pCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := client.Ping(pCtx, nil)
	cancel()

	if err == nil {
		return nil
	}

	if attempt >= maxPingRetries {
		return fmt.Errorf("mongodb unreachable after %d attempts: %w", maxPingRetries, err)
	}

	zap.S().Warnf("MongoDB attempt %d/%d failed: %v", attempt, maxPingRetries, err)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pingRetryDelay):
		return retryPing(ctx, client, attempt+1)
	}
}

func teardown(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		return
	}
	if cancel, ok := ctx.Value(ctxCancelKey).(context.CancelFunc); ok {
		cancel()
	}
	if client, ok := ctx.Value(ctxMongoClientKey).(*mongo.Client); ok {
		if err := client.Disconnect(context.Background()); err != nil {
			zap.S().Warnf("failed to disconnect mongo client: %v", err)
		}
	}
	_ = zap.L().Sync()
}

// Execute runs the CLI with the given model registration.
func Execute(classes func(*model.Registry) error) error {
	err := NewRootCmd(classes).Execute()
	if errors.Is(err, ErrShowConfigDisplayed) {
		return nil
	}
	return err
}

func loadConfigFromFlags(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load failed: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func renderConfig(w io.Writer, cfg *config.Config) error {
	return jsonutil.WriteIndented(w, cfg.Masked())
}
