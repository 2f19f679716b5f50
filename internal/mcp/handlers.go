package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/drewjocham/parsemodel/internal/jsonutil"
	"github.com/drewjocham/parsemodel/record"
	"github.com/drewjocham/parsemodel/schema"
	"github.com/drewjocham/parsemodel/store"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_classes",
		Description: "List registered model classes and their field types.",
	}, s.handleListClasses)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "schema_status",
		Description: "Compare registered classes with the backend schema collection.",
	}, s.handleSchemaStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "schema_sync",
		Description: "Add registered classes and missing fields to the backend schema collection.",
	}, s.handleSchemaSync)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_object",
		Description: "Fetch one object by class and objectId.",
	}, s.handleGetObject)
}

// textResult mirrors out as indented JSON text for clients that ignore
// structured content.
func textResult(out any) (*mcp.CallToolResult, error) {
	b, err := jsonutil.MarshalIndent(out)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil
}

func (s *Server) handleListClasses(
	_ context.Context, _ *mcp.CallToolRequest, _ emptyArgs,
) (*mcp.CallToolResult, classesOutput, error) {
	out := classesOutput{Strict: s.registry.Strict(), Classes: []classSummary{}}
	for _, name := range s.registry.Classes() {
		summary := classSummary{Class: name}
		if typ, ok := s.registry.Type(name); ok {
			c, err := schema.Derive(name, typ)
			if err != nil {
				return nil, classesOutput{}, err
			}
			summary.Typed = true
			summary.Fields = c.Fields
		}
		out.Classes = append(out.Classes, summary)
	}

	res, err := textResult(out)
	return res, out, err
}

func (s *Server) syncer(ctx context.Context) (*schema.Syncer, []schema.Class, error) {
	db, err := s.database(ctx)
	if err != nil {
		return nil, nil, err
	}
	classes, err := schema.FromRegistry(s.registry)
	if err != nil {
		return nil, nil, err
	}
	return schema.NewSyncer(db,
		schema.WithCollection(s.config.SchemaCollection),
		schema.WithLogger(s.logger),
	), classes, nil
}

func (s *Server) handleSchemaStatus(
	ctx context.Context, _ *mcp.CallToolRequest, _ emptyArgs,
) (*mcp.CallToolResult, statusOutput, error) {
	syncer, classes, err := s.syncer(ctx)
	if err != nil {
		return nil, statusOutput{}, err
	}
	status, err := syncer.Status(ctx, classes)
	if err != nil {
		return nil, statusOutput{}, err
	}

	out := statusOutput{Classes: status}
	res, err := textResult(out)
	return res, out, err
}

func (s *Server) handleSchemaSync(
	ctx context.Context, _ *mcp.CallToolRequest, _ emptyArgs,
) (*mcp.CallToolResult, schema.Result, error) {
	syncer, classes, err := s.syncer(ctx)
	if err != nil {
		return nil, schema.Result{}, err
	}
	out, err := syncer.Sync(ctx, classes)
	if err != nil {
		s.logger.Warn("Schema sync incomplete", zap.Error(err), zap.Strings("skipped", out.Skipped))
		return nil, schema.Result{}, fmt.Errorf("schema sync: %w", err)
	}

	res, err := textResult(out)
	return res, out, err
}

func (s *Server) handleGetObject(
	ctx context.Context, _ *mcp.CallToolRequest, args getObjectArgs,
) (*mcp.CallToolResult, objectOutput, error) {
	if args.Class == "" || args.ObjectID == "" {
		return nil, objectOutput{}, fmt.Errorf("class and object_id are required")
	}
	db, err := s.database(ctx)
	if err != nil {
		return nil, objectOutput{}, err
	}

	w, err := store.New(db, store.WithLogger(s.logger)).GetModel(ctx, s.registry, args.Class, args.ObjectID)
	if err != nil {
		return nil, objectOutput{}, err
	}
	out := objectOutput{Class: args.Class}
	_, out.Typed = s.registry.Type(args.Class)
	if out.Object, err = restPayload(w.ParseObject()); err != nil {
		return nil, objectOutput{}, err
	}

	res, err := textResult(out)
	return res, out, err
}

// restPayload decodes obj's REST encoding with numbers kept as json.Number,
// so large integers reach the client intact.
func restPayload(obj *record.Object) (map[string]any, error) {
	raw, err := obj.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := jsonutil.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
