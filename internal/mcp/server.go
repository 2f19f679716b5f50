// Package mcp exposes the model registry and schema tools over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/internal/config"
	"github.com/drewjocham/parsemodel/model"
)

const serverName = "parsemodel"

type Server struct {
	mu        sync.Mutex
	mcpServer *mcp.Server
	config    *config.Config
	registry  *model.Registry
	client    *mongo.Client
	db        *mongo.Database
	cancel    context.CancelFunc
	logger    *zap.Logger
}

func NewServer(cfg *config.Config, reg *model.Registry, logger *zap.Logger, version string) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: version,
	}, nil)

	srv := &Server{
		mcpServer: s,
		config:    cfg,
		registry:  reg,
		logger:    logger,
	}

	srv.registerTools()
	return srv, nil
}

// database connects on first use and reconnects when the last ping fails.
func (s *Server) database(ctx context.Context) (*mongo.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if err := s.client.Ping(ctx, nil); err == nil {
			return s.db, nil
		}
		_ = s.client.Disconnect(ctx)
		s.client, s.db = nil, nil
	}

	client, err := mongo.Connect(s.config.ClientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.config.TimeoutDuration())
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb unreachable: %w", err)
	}

	s.client = client
	s.db = client.Database(s.config.Database)

	s.logger.Info("Connected to MongoDB", zap.String("database", s.config.Database))
	return s.db, nil
}

// Start serves on stdin/stdout until the client disconnects or the process
// is interrupted.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		stop()
		return fmt.Errorf("mcp server already running")
	}
	s.cancel = stop
	s.mu.Unlock()

	defer func() {
		stop()
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	s.logger.Info("Starting MCP server", zap.Int("pid", os.Getpid()))
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.mcpServer.Run(ctx, &mcp.IOTransport{
		Reader: io.NopCloser(r),
		Writer: nopWriteCloser{Writer: w},
	})
}

func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client, s.db = nil, nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var errs []error
	if client != nil {
		if err := client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect mongo client: %w", err))
		}
	}

	return errors.Join(errs...)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
