// Package testmongo provides MongoDB databases for integration tests.
package testmongo

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const image = "mongo:8.0"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Env is one isolated database for a test.
type Env struct {
	T            *testing.T
	URI          string
	Client       *mongo.Client
	Database     *mongo.Database
	DatabaseName string
}

// New connects to MONGO_URL when set and otherwise starts a container. The
// database is dropped and the client closed when the test ends.
func New(t *testing.T) *Env {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	uri := os.Getenv("MONGO_URL")
	if uri == "" {
		container, err := mongodb.Run(ctx, image)
		if err != nil {
			t.Fatalf("failed to start mongo container: %v", err)
		}
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(container); err != nil {
				t.Logf("Warning: failed to terminate container: %v", err)
			}
		})

		uri, err = container.ConnectionString(ctx)
		if err != nil {
			t.Fatalf("failed to read connection string: %v", err)
		}
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	name := fmt.Sprintf("test_%s_%d", unsafeChars.ReplaceAllString(t.Name(), "_"), time.Now().UnixNano())
	if len(name) > 60 {
		name = name[len(name)-60:]
	}

	env := &Env{
		T:            t,
		URI:          uri,
		Client:       client,
		Database:     client.Database(name),
		DatabaseName: name,
	}
	t.Cleanup(env.cleanup)
	return env
}

func (e *Env) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Database.Drop(ctx); err != nil {
		e.T.Logf("Warning: failed to drop database: %v", err)
	}
	if err := e.Client.Disconnect(ctx); err != nil {
		e.T.Logf("Warning: failed to disconnect: %v", err)
	}
}
