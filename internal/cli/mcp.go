package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/internal/jsonutil"
	mcpserver "github.com/drewjocham/parsemodel/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI assistant integration",
		Long: `Start the Model Context Protocol (MCP) server for AI assistants.
IMPORTANT: This command uses stdin/stdout for communication.
Logs go to stderr unless --log-file is set.`,
		// The server connects to MongoDB on the first tool call.
		Annotations: map[string]string{annotationOffline: "true", annotationStdio: "true"},
		RunE:        runMCP,
	}
	cmd.AddCommand(newMCPConfigCmd())
	return cmd
}

func newMCPConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate MCP configuration JSON for AI assistants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("could not determine executable path: %w", err)
			}
			cfg, err := getConfig(cmd.Context())
			if err != nil {
				return err
			}

			config := map[string]any{
				"mcpServers": map[string]any{
					"parsemodel": map[string]any{
						"command": exePath,
						"args":    []string{"mcp"},
						"env": map[string]string{
							"MONGO_URL":      cfg.Masked().MongoURL,
							"MONGO_DATABASE": cfg.Database,
						},
					},
				},
			}
			return jsonutil.WriteIndented(cmd.OutOrStdout(), config)
		},
	}
}

func runMCP(cmd *cobra.Command, _ []string) error {
	cfg, err := getConfig(cmd.Context())
	if err != nil {
		return err
	}
	reg, err := getRegistry(cmd.Context())
	if err != nil {
		return err
	}

	server, err := mcpserver.NewServer(cfg, reg, zap.L(), appVersion)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	defer func() {
		if err := server.Close(context.Background()); err != nil {
			zap.L().Error("Error closing MCP server", zap.Error(err))
		}
	}()

	if err := server.Start(); err != nil {
		if isClosingError(err) {
			zap.L().Info("MCP server session ended", zap.String("reason", "client disconnected"))
			return nil
		}
		return fmt.Errorf("mcp server failure: %w", err)
	}

	return nil
}

func isClosingError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(err.Error(), "EOF")
}
