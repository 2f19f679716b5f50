package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/internal/config"
	"github.com/drewjocham/parsemodel/model"
)

func getConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(ctxConfigKey).(*config.Config)
	if !ok {
		return nil, fmt.Errorf("internal error: config not found in context")
	}
	return cfg, nil
}

func getRegistry(ctx context.Context) (*model.Registry, error) {
	reg, ok := ctx.Value(ctxRegistryKey).(*model.Registry)
	if !ok {
		return nil, fmt.Errorf("internal error: registry not found in context")
	}
	return reg, nil
}

func getDatabase(ctx context.Context) (*mongo.Database, error) {
	cfg, err := getConfig(ctx)
	if err != nil {
		return nil, err
	}
	client, ok := ctx.Value(ctxMongoClientKey).(*mongo.Client)
	if !ok {
		return nil, fmt.Errorf("internal error: mongo client not found in context")
	}
	return client.Database(cfg.Database), nil
}

func promptConfirmation(cmd *cobra.Command, message string) bool {
	fmt.Fprint(cmd.OutOrStdout(), message)

	reader := bufio.NewReader(cmd.InOrStdin())
	input, err := reader.ReadString('\n')
	if err != nil {
		zap.S().Errorw("Failed to read confirmation", "error", err)
		return false
	}

	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes"
}
